package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"filesentry/internal/retry"
	"filesentry/internal/rules"
)

// DecisionRecord is the persisted outcome of one evaluation. It doubles as
// the feedback trail: the learner reads it back to find the rules responsible
// for a decision.
type DecisionRecord struct {
	EventID  int64
	RuleIDs  []int64
	Severity rules.Severity
	Action   rules.Action
	Score    float64
}

// CommitDecision durably commits a decision as one transaction: the decision
// row, its audit entries, and the event's processed flag all land together or
// not at all. A second commit for the same event rolls back and returns
// ErrAlreadyProcessed with no side effects.
func (s *Store) CommitDecision(ctx context.Context, rec DecisionRecord, entries []LogEntry) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapStoreError("begin decision transaction", err)
	}
	defer tx.Rollback()

	// The processed flag is the exactly-once guard: only the transaction
	// that flips it gets to write the decision.
	res, err := tx.ExecContext(ctx,
		`UPDATE events SET processed = TRUE WHERE id = $1 AND processed = FALSE`,
		rec.EventID,
	)
	if err != nil {
		return wrapStoreError("mark event processed", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapStoreError("mark event processed", err)
	}
	if affected == 0 {
		var exists bool
		checkQuery := `SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)`
		if err := tx.QueryRowContext(ctx, checkQuery, rec.EventID).Scan(&exists); err == nil && !exists {
			return retry.Permanent(fmt.Errorf("event %d: %w", rec.EventID, ErrEventNotFound))
		}
		return retry.Permanent(fmt.Errorf("event %d: %w", rec.EventID, ErrAlreadyProcessed))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO decisions (event_id, rule_ids, severity, action, score, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		rec.EventID,
		pq.Array(rec.RuleIDs),
		rec.Severity.String(),
		rec.Action.String(),
		rec.Score,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return retry.Permanent(fmt.Errorf("event %d: %w", rec.EventID, ErrAlreadyProcessed))
		}
		return wrapStoreError("insert decision", err)
	}

	for _, entry := range entries {
		if err := appendLog(ctx, tx, entry); err != nil {
			return wrapStoreError("append decision log", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapStoreError("commit decision", err)
	}

	slog.Debug("Committed decision",
		"event_id", rec.EventID,
		"severity", rec.Severity,
		"action", rec.Action,
		"score", rec.Score,
	)
	return nil
}

// GetDecision returns the persisted decision for an event.
func (s *Store) GetDecision(ctx context.Context, eventID int64) (DecisionRecord, error) {
	query := `
		SELECT event_id, rule_ids, severity, action, score
		FROM decisions
		WHERE event_id = $1
	`
	var rec DecisionRecord
	var severity, action string
	err := s.conn.QueryRowContext(ctx, query, eventID).Scan(
		&rec.EventID,
		pq.Array(&rec.RuleIDs),
		&severity,
		&action,
		&rec.Score,
	)
	if err == sql.ErrNoRows {
		return DecisionRecord{}, retry.Permanent(fmt.Errorf("event %d: %w", eventID, ErrDecisionNotFound))
	}
	if err != nil {
		return DecisionRecord{}, wrapStoreError("get decision", err)
	}

	rec.Severity = rules.Severity(severity)
	rec.Action = rules.Action(action)
	return rec, nil
}
