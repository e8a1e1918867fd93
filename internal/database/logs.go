package database

import (
	"context"
	"database/sql"
	"time"
)

// Log types written by the decision core. The logs table is append-only;
// rows are never updated or deleted.
const (
	LogTypeDecision        = "AI_DECISION"
	LogTypeNotify          = "NOTIFY"
	LogTypeEscalate        = "ESCALATE"
	LogTypeFeedback        = "AI_FEEDBACK"
	LogTypeLearning        = "AI_LEARNING"
	LogTypeActionPrepared  = "ACTION_PREPARED"
	LogTypeDeliveryFailure = "DELIVERY_FAILURE"
)

// LogEntry is one row of the audit trail. Timestamp is assigned by the
// database on write; it is populated only on reads.
type LogEntry struct {
	ID             int64
	Type           string
	Message        string
	RelatedEventID *int64
	Timestamp      time.Time
}

// AppendLog appends a single audit entry outside any transaction. Entries
// that belong to a decision or feedback commit go through those transactions
// instead.
func (s *Store) AppendLog(ctx context.Context, entry LogEntry) error {
	if err := appendLog(ctx, s.conn, entry); err != nil {
		return wrapStoreError("append log", err)
	}
	return nil
}

// execer lets log appends run on either the pool or an open transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func appendLog(ctx context.Context, ex execer, entry LogEntry) error {
	query := `
		INSERT INTO logs (log_type, message, related_event_id, ts)
		VALUES ($1, $2, $3, NOW())
	`
	_, err := ex.ExecContext(ctx, query, entry.Type, entry.Message, entry.RelatedEventID)
	return err
}

// LogsForEvent returns the audit entries referencing an event, oldest first.
func (s *Store) LogsForEvent(ctx context.Context, eventID int64) ([]LogEntry, error) {
	query := `
		SELECT id, log_type, message, related_event_id, ts
		FROM logs
		WHERE related_event_id = $1
		ORDER BY id
	`
	rows, err := s.conn.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, wrapStoreError("list logs", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var entry LogEntry
		if err := rows.Scan(&entry.ID, &entry.Type, &entry.Message, &entry.RelatedEventID, &entry.Timestamp); err != nil {
			return nil, wrapStoreError("scan log", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
