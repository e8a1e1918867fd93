// Package learner adapts rule weights from admin feedback. Each verdict on a
// decided event nudges the weights of the adaptive rules behind that decision:
// approvals reinforce, rejections dampen, modifications apply a smaller
// correction in the direction the admin indicated. Weight updates are guarded
// by a version column so concurrent feedback never loses an update.
package learner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"filesentry/internal/database"
	"filesentry/internal/events"
	"filesentry/internal/retry"
	"filesentry/internal/rules"
)

const (
	DefaultLearningRate = 0.1
	DefaultWeightMax    = 5.0
	DefaultModifyFactor = 0.3

	// Attempts at the read-compute-commit cycle before a version conflict
	// surfaces. Conflicts only occur when two admins grade decisions sharing
	// a rule at the same moment, so one re-read almost always converges.
	weightRetries = 5
)

// Store is the persistence surface the learner needs.
type Store interface {
	GetDecision(ctx context.Context, eventID int64) (database.DecisionRecord, error)
	GetRule(ctx context.Context, id int64) (rules.Rule, error)
	CommitFeedback(ctx context.Context, fb events.Feedback, updates []database.WeightUpdate, entries []database.LogEntry) (bool, error)
}

// Invalidator drops cached rule snapshots after a weight change.
type Invalidator interface {
	Invalidate()
}

// Options tunes the learning formula. Zero values fall back to the package
// defaults.
type Options struct {
	LearningRate float64
	WeightMax    float64
	ModifyFactor float64
}

// Learner applies admin feedback to rule weights.
type Learner struct {
	store   Store
	cache   Invalidator
	metrics Recorder

	learningRate float64
	weightMax    float64
	modifyFactor float64
	retryCfg     retry.Config
}

// New creates a learner backed by the given store and cache.
func New(store Store, cache Invalidator, opts Options) *Learner {
	return NewWithMetrics(store, cache, opts, nil)
}

// NewWithMetrics creates a learner with the provided metrics recorder.
// If m is nil, a no-op implementation is used.
func NewWithMetrics(store Store, cache Invalidator, opts Options, m Recorder) *Learner {
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultLearningRate
	}
	if opts.WeightMax <= 0 {
		opts.WeightMax = DefaultWeightMax
	}
	if opts.ModifyFactor <= 0 {
		opts.ModifyFactor = DefaultModifyFactor
	}
	if m == nil {
		m = &NoOpRecorder{}
	}
	return &Learner{
		store:        store,
		cache:        cache,
		metrics:      m,
		learningRate: opts.LearningRate,
		weightMax:    opts.WeightMax,
		modifyFactor: opts.ModifyFactor,
		retryCfg:     retry.DefaultConfig(),
	}
}

// Apply records the feedback and reweights the adaptive rules behind the
// referenced decision: new_weight = clamp(old * (1 + rate*score), 0, max).
// The feedback row, weight updates, and log trail commit in one transaction.
// Redelivered feedback (same id) is skipped without touching weights, and a
// concurrent weight change triggers a re-read and retry rather than a lost
// update.
func (l *Learner) Apply(ctx context.Context, fb events.Feedback) error {
	if err := fb.Validate(); err != nil {
		return fmt.Errorf("apply feedback for event %d: %w", fb.EventID, err)
	}

	// Feedback must reference a decided event; the decision row names the
	// rules that produced it.
	dec, err := l.store.GetDecision(ctx, fb.EventID)
	if err != nil {
		return fmt.Errorf("apply feedback for event %d: %w", fb.EventID, err)
	}

	score := l.feedbackScore(fb, dec.Severity)

	for attempt := 1; attempt <= weightRetries; attempt++ {
		updates, entries, err := l.buildUpdates(ctx, fb, dec, score)
		if err != nil {
			return fmt.Errorf("apply feedback for event %d: %w", fb.EventID, err)
		}

		var applied bool
		operation := fmt.Sprintf("commit feedback for event %d", fb.EventID)
		err = retry.WithRetry(ctx, l.retryCfg, operation, func() error {
			var cerr error
			applied, cerr = l.store.CommitFeedback(ctx, fb, updates, entries)
			return cerr
		})
		if errors.Is(err, database.ErrWeightConflict) {
			l.metrics.RecordWeightConflict()
			slog.Debug("Rule weight changed concurrently, re-reading",
				"event_id", fb.EventID,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("apply feedback for event %d: %w", fb.EventID, err)
		}

		if !applied {
			slog.Debug("Feedback already recorded, skipping",
				"feedback_id", fb.ID,
				"event_id", fb.EventID,
			)
			return nil
		}

		slog.Info("Applied feedback",
			"event_id", fb.EventID,
			"outcome", fb.Outcome,
			"score", score,
			"rules_updated", len(updates),
		)
		if len(updates) > 0 {
			l.metrics.RecordWeightUpdate(len(updates))
			l.cache.Invalidate()
		}
		return nil
	}

	return fmt.Errorf("apply feedback for event %d: %w", fb.EventID, database.ErrWeightConflict)
}

// buildUpdates reads the current weight and version of every adaptive rule
// behind the decision and computes its new weight, together with the log
// trail for the commit. Rules whose weight would not move (already at a
// clamp boundary) are left untouched.
func (l *Learner) buildUpdates(ctx context.Context, fb events.Feedback, dec database.DecisionRecord, score float64) ([]database.WeightUpdate, []database.LogEntry, error) {
	eventID := fb.EventID
	entries := []database.LogEntry{{
		Type: database.LogTypeFeedback,
		Message: fmt.Sprintf("Feedback on event %d: type=%s; comment=%s; rules=%v",
			fb.EventID, fb.Outcome, fb.Comment, dec.RuleIDs),
		RelatedEventID: &eventID,
	}}

	var updates []database.WeightUpdate
	for _, id := range dec.RuleIDs {
		rule, err := l.store.GetRule(ctx, id)
		if errors.Is(err, database.ErrRuleNotFound) {
			// Deleted since the decision; nothing left to adapt.
			slog.Warn("Rule from decision no longer exists",
				"rule_id", id,
				"event_id", fb.EventID,
			)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if !rule.Adaptive {
			continue
		}

		newWeight := clampWeight(rule.Weight*(1+l.learningRate*score), l.weightMax)
		if newWeight == rule.Weight {
			continue
		}

		updates = append(updates, database.WeightUpdate{
			RuleID:          rule.ID,
			OldWeight:       rule.Weight,
			NewWeight:       newWeight,
			ExpectedVersion: rule.Version,
		})
		entries = append(entries, database.LogEntry{
			Type: database.LogTypeLearning,
			Message: fmt.Sprintf("Rule %d weight adjusted from %.4f to %.4f after %s feedback",
				rule.ID, rule.Weight, newWeight, fb.Outcome),
			RelatedEventID: &eventID,
		})
	}
	return updates, entries, nil
}

// feedbackScore maps the admin's verdict to the learning direction: approve
// +1, reject -1, modify a smaller correction whose sign follows the corrected
// severity relative to the decided one (higher means the rules were
// under-weighted).
func (l *Learner) feedbackScore(fb events.Feedback, decided rules.Severity) float64 {
	switch fb.Outcome {
	case events.OutcomeApprove:
		return 1
	case events.OutcomeReject:
		return -1
	default:
		if fb.CorrectedSeverity != nil && fb.CorrectedSeverity.Rank() > decided.Rank() {
			return l.modifyFactor
		}
		return -l.modifyFactor
	}
}

func clampWeight(w, max float64) float64 {
	if w < 0 {
		return 0
	}
	if w > max {
		return max
	}
	return w
}
