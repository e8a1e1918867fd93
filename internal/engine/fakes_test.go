package engine

import (
	"context"
	"sync"
	"time"

	"filesentry/internal/database"
	"filesentry/internal/decision"
	"filesentry/internal/events"
	"filesentry/internal/rules"
	"filesentry/internal/scorer"
)

// fakeRuleSource serves a fixed snapshot.
type fakeRuleSource struct {
	rules []rules.Rule
	err   error
	age   time.Duration
}

func (f *fakeRuleSource) Get(ctx context.Context) ([]rules.Rule, error) {
	return f.rules, f.err
}

func (f *fakeRuleSource) Age() time.Duration { return f.age }

type decideCall struct {
	ev  events.Event
	res scorer.Result
}

// fakeMaker records Decide calls and fails on demand.
type fakeMaker struct {
	mu    sync.Mutex
	err   error
	calls []decideCall
}

func (f *fakeMaker) Decide(ctx context.Context, ev events.Event, res scorer.Result) (decision.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, decideCall{ev: ev, res: res})
	if f.err != nil {
		return decision.Decision{}, f.err
	}
	return decision.Decision{
		EventID:  ev.ID,
		Severity: res.Severity,
		Action:   res.Action,
		Score:    res.Score,
		RuleIDs:  res.MatchedRuleIDs,
	}, nil
}

func (f *fakeMaker) decided() []decideCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]decideCall(nil), f.calls...)
}

// fakeLearner records Apply calls and fails on demand.
type fakeLearner struct {
	mu      sync.Mutex
	err     error
	applied []events.Feedback
}

func (f *fakeLearner) Apply(ctx context.Context, fb events.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, fb)
	return nil
}

func (f *fakeLearner) appliedFeedback() []events.Feedback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Feedback(nil), f.applied...)
}

// fakeStatsStore returns canned feedback statistics.
type fakeStatsStore struct {
	stats database.FeedbackStats
	err   error
}

func (f *fakeStatsStore) GetFeedbackStats(ctx context.Context) (database.FeedbackStats, error) {
	if f.err != nil {
		return database.FeedbackStats{}, f.err
	}
	return f.stats, nil
}

// recorderSpy counts recorder calls.
type recorderSpy struct {
	mu                 sync.Mutex
	eventsReceived     int
	eventsInvalid      int
	eventsDuplicate    int
	decisionsCommitted int
	feedbackReceived   int
	feedbackInvalid    int
	feedbackApplied    int
}

func (r *recorderSpy) RecordEventReceived() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventsReceived++
}

func (r *recorderSpy) RecordEventInvalid() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventsInvalid++
}

func (r *recorderSpy) RecordEventDuplicate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventsDuplicate++
}

func (r *recorderSpy) RecordDecisionCommitted(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisionsCommitted++
}

func (r *recorderSpy) RecordFeedbackReceived() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedbackReceived++
}

func (r *recorderSpy) RecordFeedbackInvalid() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedbackInvalid++
}

func (r *recorderSpy) RecordFeedbackApplied() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedbackApplied++
}

func (r *recorderSpy) snapshot() recorderSpy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorderSpy{
		eventsReceived:     r.eventsReceived,
		eventsInvalid:      r.eventsInvalid,
		eventsDuplicate:    r.eventsDuplicate,
		decisionsCommitted: r.decisionsCommitted,
		feedbackReceived:   r.feedbackReceived,
		feedbackInvalid:    r.feedbackInvalid,
		feedbackApplied:    r.feedbackApplied,
	}
}
