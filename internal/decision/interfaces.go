package decision

import (
	"context"

	"filesentry/internal/database"
	"filesentry/internal/notifier"
)

// Store persists decisions durably. CommitDecision writes the decision row,
// the log entries, and the event's processed flag in one transaction.
type Store interface {
	CommitDecision(ctx context.Context, rec database.DecisionRecord, entries []database.LogEntry) error
}

// Notifier accepts pending admin notifications. Enqueue must not block.
type Notifier interface {
	Enqueue(p notifier.Pending)
}
