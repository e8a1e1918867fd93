package engine

import (
	"context"
	"time"

	"filesentry/internal/database"
	"filesentry/internal/decision"
	"filesentry/internal/events"
	"filesentry/internal/rules"
	"filesentry/internal/scorer"
)

// RuleSource serves rule snapshots for evaluation.
type RuleSource interface {
	Get(ctx context.Context) ([]rules.Rule, error)
	Age() time.Duration
}

// DecisionMaker commits the outcome for an evaluated event.
type DecisionMaker interface {
	Decide(ctx context.Context, ev events.Event, res scorer.Result) (decision.Decision, error)
}

// FeedbackApplier adapts rule weights from admin feedback.
type FeedbackApplier interface {
	Apply(ctx context.Context, fb events.Feedback) error
}

// StatsStore reads aggregate feedback history.
type StatsStore interface {
	GetFeedbackStats(ctx context.Context) (database.FeedbackStats, error)
}
