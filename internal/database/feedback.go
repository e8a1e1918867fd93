package database

import (
	"context"
	"fmt"
	"log/slog"

	"filesentry/internal/events"
	"filesentry/internal/retry"
)

// WeightUpdate is one versioned weight write: the update only lands if the
// rule's version still matches ExpectedVersion.
type WeightUpdate struct {
	RuleID          int64
	OldWeight       float64
	NewWeight       float64
	ExpectedVersion int
}

// CommitFeedback durably applies one feedback record as one transaction: the
// feedback row, every weight update, and the audit entries land together or
// not at all. The feedback id is the idempotency key; a record seen before
// rolls back and returns applied=false with no error, so redelivered feedback
// never adjusts weights twice. A weight update losing its version guard rolls
// back with ErrWeightConflict; the caller re-reads and retries.
func (s *Store) CommitFeedback(ctx context.Context, fb events.Feedback, updates []WeightUpdate, entries []LogEntry) (bool, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, wrapStoreError("begin feedback transaction", err)
	}
	defer tx.Rollback()

	var correctedSeverity, correctedAction *string
	if fb.CorrectedSeverity != nil {
		v := fb.CorrectedSeverity.String()
		correctedSeverity = &v
	}
	if fb.CorrectedAction != nil {
		v := fb.CorrectedAction.String()
		correctedAction = &v
	}

	if fb.ID != 0 {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO feedback (id, event_id, admin_id, outcome, corrected_severity, corrected_action, comment, ts)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			 ON CONFLICT (id) DO NOTHING`,
			fb.ID, fb.EventID, fb.AdminID, string(fb.Outcome), correctedSeverity, correctedAction, nullableString(fb.Comment),
		)
		if err != nil {
			return false, wrapStoreError("insert feedback", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return false, wrapStoreError("insert feedback", err)
		}
		if affected == 0 {
			slog.Debug("Feedback already applied, skipping",
				"feedback_id", fb.ID,
				"event_id", fb.EventID,
			)
			return false, nil
		}
	} else {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO feedback (event_id, admin_id, outcome, corrected_severity, corrected_action, comment, ts)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
			fb.EventID, fb.AdminID, string(fb.Outcome), correctedSeverity, correctedAction, nullableString(fb.Comment),
		)
		if err != nil {
			return false, wrapStoreError("insert feedback", err)
		}
	}

	for _, update := range updates {
		res, err := tx.ExecContext(ctx,
			`UPDATE rules
			 SET weight = $2,
			     version = version + 1,
			     updated_at = NOW()
			 WHERE id = $1 AND version = $3`,
			update.RuleID, update.NewWeight, update.ExpectedVersion,
		)
		if err != nil {
			return false, wrapStoreError("update rule weight", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return false, wrapStoreError("update rule weight", err)
		}
		if affected == 0 {
			var exists bool
			checkQuery := `SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1)`
			if err := tx.QueryRowContext(ctx, checkQuery, update.RuleID).Scan(&exists); err == nil && !exists {
				return false, retry.Permanent(fmt.Errorf("rule %d: %w", update.RuleID, ErrRuleNotFound))
			}
			return false, retry.Permanent(fmt.Errorf("rule %d: %w", update.RuleID, ErrWeightConflict))
		}
	}

	for _, entry := range entries {
		if err := appendLog(ctx, tx, entry); err != nil {
			return false, wrapStoreError("append feedback log", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, wrapStoreError("commit feedback", err)
	}
	return true, nil
}

// FeedbackStats summarizes the accumulated feedback for the statistics
// surface.
type FeedbackStats struct {
	Total         int64   `json:"total"`
	Approvals     int64   `json:"approvals"`
	Rejections    int64   `json:"rejections"`
	Modifications int64   `json:"modifications"`
	ApprovalRate  float64 `json:"approval_rate"`
}

// GetFeedbackStats counts feedback rows by outcome.
func (s *Store) GetFeedbackStats(ctx context.Context) (FeedbackStats, error) {
	query := `SELECT outcome, COUNT(*) FROM feedback GROUP BY outcome`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return FeedbackStats{}, wrapStoreError("get feedback stats", err)
	}
	defer rows.Close()

	var stats FeedbackStats
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return FeedbackStats{}, wrapStoreError("scan feedback stats", err)
		}
		switch events.Outcome(outcome) {
		case events.OutcomeApprove:
			stats.Approvals = count
		case events.OutcomeReject:
			stats.Rejections = count
		case events.OutcomeModify:
			stats.Modifications = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return FeedbackStats{}, wrapStoreError("get feedback stats", err)
	}

	if stats.Total > 0 {
		stats.ApprovalRate = float64(stats.Approvals) / float64(stats.Total)
	}
	return stats, nil
}

// nullableString maps "" to NULL so empty comments do not store empty text.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
