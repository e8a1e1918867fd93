// Package database implements the PostgreSQL backing store for rules,
// events, decisions, feedback, and the append-only audit log.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"filesentry/internal/retry"
)

// Sentinel errors for the closed failure kinds the store distinguishes.
// All of them are permanent: retrying the same call cannot succeed.
var (
	// ErrAlreadyProcessed is returned by CommitDecision when the event was
	// decided before. The duplicate call has no side effects.
	ErrAlreadyProcessed = errors.New("event already processed")

	// ErrWeightConflict is returned when a versioned weight update lost a
	// race to concurrent feedback. Callers re-read and retry.
	ErrWeightConflict = errors.New("rule weight version conflict")

	ErrEventNotFound    = errors.New("event not found")
	ErrRuleNotFound     = errors.New("rule not found")
	ErrDecisionNotFound = errors.New("decision not found")
)

// Store wraps a database connection and provides the persistence operations
// the decision core needs.
type Store struct {
	conn *sql.DB
}

// New opens a connection pool using the provided DSN and verifies it with a
// bounded ping.
func New(dsn string) (*Store, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL database")

	return &Store{conn: conn}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.conn != nil {
		slog.Info("Closing database connection")
		return s.conn.Close()
	}
	return nil
}

// Init creates the core's tables when they do not exist yet. The watcher/API
// layer owns the files, folders, and users tables; target and user ids are
// stored as plain BIGINTs here.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rules (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			pattern TEXT NOT NULL,
			severity TEXT NOT NULL,
			action TEXT NOT NULL,
			adaptive BOOLEAN NOT NULL DEFAULT FALSE,
			weight DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			version INTEGER NOT NULL DEFAULT 1,
			description TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			event_type TEXT NOT NULL,
			target_file_id BIGINT,
			target_folder_id BIGINT,
			triggered_by_user_id BIGINT,
			path TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_processed ON events(processed)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			event_id BIGINT PRIMARY KEY,
			rule_ids BIGINT[] NOT NULL,
			severity TEXT NOT NULL,
			action TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS logs (
			id BIGSERIAL PRIMARY KEY,
			log_type TEXT NOT NULL,
			message TEXT NOT NULL,
			related_event_id BIGINT,
			ts TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_related_event ON logs(related_event_id)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id BIGSERIAL PRIMARY KEY,
			event_id BIGINT NOT NULL,
			admin_id BIGINT,
			outcome TEXT NOT NULL,
			corrected_severity TEXT,
			corrected_action TEXT,
			comment TEXT,
			ts TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_event ON feedback(event_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// permanentPQ reports whether a pq error can never succeed on retry:
// integrity violations (class 23), invalid SQL or data (classes 22, 42).
// Connection-class failures (08 and friends) stay retryable.
func permanentPQ(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Class() {
	case "22", "23", "42":
		return true
	}
	return false
}

// wrapStoreError wraps a store failure, marking it permanent when retrying
// the same call cannot help.
func wrapStoreError(op string, err error) error {
	wrapped := fmt.Errorf("failed to %s: %w", op, err)
	if permanentPQ(err) {
		return retry.Permanent(wrapped)
	}
	return wrapped
}
