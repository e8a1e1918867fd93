// Package engine orchestrates the decision pipeline: rule snapshot, scoring,
// durable decision, and feedback-driven learning. It owns the policy for
// at-least-once intake: redelivered work converges to a no-op instead of a
// duplicate side effect.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"filesentry/internal/database"
	"filesentry/internal/events"
	"filesentry/internal/rules"
	"filesentry/internal/scorer"
)

// Engine wires the rule cache, scorer, decision maker, and learner together.
type Engine struct {
	cache      RuleSource
	maker      DecisionMaker
	learner    FeedbackApplier
	store      StatsStore
	metrics    Recorder
	thresholds scorer.Thresholds
}

// New creates an engine with no-op metrics.
func New(cache RuleSource, maker DecisionMaker, learner FeedbackApplier, store StatsStore, th scorer.Thresholds) *Engine {
	return NewWithMetrics(cache, maker, learner, store, th, nil)
}

// NewWithMetrics creates an engine with the provided metrics recorder.
// If rec is nil, a no-op implementation is used.
func NewWithMetrics(cache RuleSource, maker DecisionMaker, learner FeedbackApplier, store StatsStore, th scorer.Thresholds, rec Recorder) *Engine {
	if rec == nil {
		rec = &NoOpRecorder{}
	}
	if th == (scorer.Thresholds{}) {
		th = scorer.DefaultThresholds()
	}
	return &Engine{
		cache:      cache,
		maker:      maker,
		learner:    learner,
		store:      store,
		metrics:    rec,
		thresholds: th,
	}
}

// HandleEvent evaluates one file-system event against the current rule
// snapshot and commits the decision. Invalid events are dropped with a
// warning, and a redelivered event whose decision already exists is a no-op
// success. Any other failure surfaces so the caller can redeliver.
func (e *Engine) HandleEvent(ctx context.Context, ev events.Event) error {
	e.metrics.RecordEventReceived()

	if err := ev.Validate(); err != nil {
		e.metrics.RecordEventInvalid()
		slog.Warn("Rejecting invalid event",
			"event_id", ev.ID,
			"event_type", ev.Type,
			"error", err,
		)
		return nil
	}

	snapshot, err := e.cache.Get(ctx)
	if err != nil {
		return fmt.Errorf("handle event %d: %w", ev.ID, err)
	}

	res := scorer.Evaluate(ev, snapshot, e.thresholds)

	start := time.Now()
	_, err = e.maker.Decide(ctx, ev, res)
	if errors.Is(err, database.ErrAlreadyProcessed) {
		e.metrics.RecordEventDuplicate()
		slog.Debug("Event already processed, skipping", "event_id", ev.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("handle event %d: %w", ev.ID, err)
	}
	e.metrics.RecordDecisionCommitted(time.Since(start))
	return nil
}

// HandleFeedback applies one admin verdict. Invalid feedback and feedback
// referencing an event that was never decided are dropped with a warning;
// admins can only grade decided events, so a dangling reference cannot be
// fixed by redelivery.
func (e *Engine) HandleFeedback(ctx context.Context, fb events.Feedback) error {
	e.metrics.RecordFeedbackReceived()

	if err := fb.Validate(); err != nil {
		e.metrics.RecordFeedbackInvalid()
		slog.Warn("Rejecting invalid feedback",
			"feedback_id", fb.ID,
			"event_id", fb.EventID,
			"error", err,
		)
		return nil
	}

	err := e.learner.Apply(ctx, fb)
	if errors.Is(err, database.ErrDecisionNotFound) {
		e.metrics.RecordFeedbackInvalid()
		slog.Warn("Feedback references an undecided event, dropping",
			"feedback_id", fb.ID,
			"event_id", fb.EventID,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("handle feedback for event %d: %w", fb.EventID, err)
	}
	e.metrics.RecordFeedbackApplied()
	return nil
}

// Stats summarizes the rule set, cache freshness, and feedback history.
type Stats struct {
	TotalRules           int                    `json:"total_rules"`
	AdaptiveRules        int                    `json:"adaptive_rules"`
	SeverityDistribution map[rules.Severity]int `json:"severity_distribution"`
	CacheAge             time.Duration          `json:"cache_age"`
	Feedback             database.FeedbackStats `json:"feedback"`
}

// Stats reports the current rule distribution and feedback history.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	snapshot, err := e.cache.Get(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	st := Stats{
		TotalRules:           len(snapshot),
		SeverityDistribution: make(map[rules.Severity]int),
		CacheAge:             e.cache.Age(),
	}
	for _, r := range snapshot {
		st.SeverityDistribution[r.Severity]++
		if r.Adaptive {
			st.AdaptiveRules++
		}
	}

	fbStats, err := e.store.GetFeedbackStats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	st.Feedback = fbStats
	return st, nil
}
