// Package decision turns an evaluation result into a durable, auditable
// decision. The decision row, its log trail, and the event's processed flag
// commit in a single transaction; notifications leave on a side channel
// after the commit and never roll it back.
package decision

import (
	"context"
	"fmt"
	"log/slog"

	"filesentry/internal/database"
	"filesentry/internal/events"
	"filesentry/internal/notifier"
	"filesentry/internal/retry"
	"filesentry/internal/rules"
	"filesentry/internal/scorer"
)

// Decision is the committed outcome for one event.
type Decision struct {
	EventID  int64
	Severity rules.Severity
	Action   rules.Action
	Score    float64
	RuleIDs  []int64
}

// Maker commits decisions and hands notifications to the batcher.
type Maker struct {
	store    Store
	notifier Notifier
	retryCfg retry.Config
}

// NewMaker creates a decision maker backed by the given store and notifier.
func NewMaker(store Store, notifier Notifier) *Maker {
	return &Maker{
		store:    store,
		notifier: notifier,
		retryCfg: retry.DefaultConfig(),
	}
}

// Decide validates the event, commits the decision with its log trail, and
// enqueues the admin notification the action calls for. A second decision on
// the same event fails with database.ErrAlreadyProcessed and leaves no side
// effects. Transient store failures are retried; after exhaustion the error
// surfaces and nothing is committed, so the caller can redeliver.
func (m *Maker) Decide(ctx context.Context, ev events.Event, res scorer.Result) (Decision, error) {
	if err := ev.Validate(); err != nil {
		return Decision{}, fmt.Errorf("decide event %d: %w", ev.ID, err)
	}

	rec := database.DecisionRecord{
		EventID:  ev.ID,
		RuleIDs:  res.MatchedRuleIDs,
		Severity: res.Severity,
		Action:   res.Action,
		Score:    res.Score,
	}
	entries := buildLogEntries(ev, res)

	operation := fmt.Sprintf("commit decision for event %d", ev.ID)
	err := retry.WithRetry(ctx, m.retryCfg, operation, func() error {
		return m.store.CommitDecision(ctx, rec, entries)
	})
	if err != nil {
		return Decision{}, err
	}

	m.enqueueNotification(ev, res)

	slog.Info("Committed decision",
		"event_id", ev.ID,
		"severity", res.Severity,
		"action", res.Action,
		"score", res.Score,
		"rules", res.MatchedRuleIDs,
	)

	return Decision{
		EventID:  ev.ID,
		Severity: res.Severity,
		Action:   res.Action,
		Score:    res.Score,
		RuleIDs:  res.MatchedRuleIDs,
	}, nil
}

// buildLogEntries composes the decision's log trail: the AI_DECISION record,
// a NOTIFY or ESCALATE record matching the action, and for Critical severity
// an ACTION_PREPARED record. Automated actions are recorded as intent only;
// no host-level changes happen here.
func buildLogEntries(ev events.Event, res scorer.Result) []database.LogEntry {
	eventID := ev.ID
	entries := []database.LogEntry{{
		Type: database.LogTypeDecision,
		Message: fmt.Sprintf("Event %d: severity=%s; action=%s; rules=%v; score=%.2f",
			ev.ID, res.Severity, res.Action, res.MatchedRuleIDs, res.Score),
		RelatedEventID: &eventID,
	}}

	switch res.Action {
	case rules.ActionNotify:
		entries = append(entries, database.LogEntry{
			Type:           database.LogTypeNotify,
			Message:        notificationMessage(ev, res),
			RelatedEventID: &eventID,
		})
	case rules.ActionEscalate:
		entries = append(entries, database.LogEntry{
			Type:           database.LogTypeEscalate,
			Message:        notificationMessage(ev, res),
			RelatedEventID: &eventID,
		})
	}

	if res.Severity == rules.SeverityCritical {
		entries = append(entries, database.LogEntry{
			Type: database.LogTypeActionPrepared,
			Message: fmt.Sprintf("Prepared automated action for event %d: awaiting admin review, no host-level changes",
				ev.ID),
			RelatedEventID: &eventID,
		})
	}

	return entries
}

// notificationMessage is both the NOTIFY/ESCALATE log message and the body
// line delivered to admins.
func notificationMessage(ev events.Event, res scorer.Result) string {
	if res.Action == rules.ActionEscalate {
		return fmt.Sprintf("Escalation triggered for event %d at severity %s", ev.ID, res.Severity)
	}
	return fmt.Sprintf("Event %d severity %s: notify admins", ev.ID, res.Severity)
}

// enqueueNotification hands the committed decision to the batcher when the
// action asks for one. Escalations are urgent and flush immediately.
func (m *Maker) enqueueNotification(ev events.Event, res scorer.Result) {
	if res.Action != rules.ActionNotify && res.Action != rules.ActionEscalate {
		return
	}
	m.notifier.Enqueue(notifier.Pending{
		EventID:  ev.ID,
		Severity: res.Severity,
		Message:  notificationMessage(ev, res),
		Urgent:   res.Action == rules.ActionEscalate,
	})
}
