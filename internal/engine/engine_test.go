package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"filesentry/internal/database"
	"filesentry/internal/events"
	"filesentry/internal/retry"
	"filesentry/internal/rules"
	"filesentry/internal/scorer"
)

func docxRule(id int64, weight float64) rules.Rule {
	return rules.Rule{
		ID:       id,
		Name:     "docs watcher",
		Pattern:  "*.docx",
		Severity: rules.SeverityHigh,
		Action:   rules.ActionNotify,
		Adaptive: true,
		Weight:   weight,
	}
}

func docxEvent(id int64) events.Event {
	fileID := int64(10)
	return events.Event{
		ID:           id,
		Type:         events.TypeModify,
		TargetFileID: &fileID,
		Path:         "docs/report.docx",
		Timestamp:    time.Now(),
	}
}

func TestEngine_HandleEventPipeline(t *testing.T) {
	cache := &fakeRuleSource{rules: []rules.Rule{docxRule(1, 1.0)}}
	maker := &fakeMaker{}
	spy := &recorderSpy{}
	e := NewWithMetrics(cache, maker, &fakeLearner{}, &fakeStatsStore{}, scorer.Thresholds{}, spy)

	if err := e.HandleEvent(context.Background(), docxEvent(42)); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	decided := maker.decided()
	if len(decided) != 1 {
		t.Fatalf("Decide called %d times, want 1", len(decided))
	}
	res := decided[0].res
	if res.Severity != rules.SeverityHigh || res.Action != rules.ActionNotify || res.Score != 3.0 {
		t.Errorf("evaluation result = %+v", res)
	}
	if !reflect.DeepEqual(res.MatchedRuleIDs, []int64{1}) {
		t.Errorf("MatchedRuleIDs = %v, want [1]", res.MatchedRuleIDs)
	}

	m := spy.snapshot()
	if m.eventsReceived != 1 || m.decisionsCommitted != 1 || m.eventsInvalid != 0 {
		t.Errorf("metrics = %+v", &m)
	}
}

func TestEngine_HandleEventInvalidDropped(t *testing.T) {
	maker := &fakeMaker{}
	spy := &recorderSpy{}
	e := NewWithMetrics(&fakeRuleSource{}, maker, &fakeLearner{}, &fakeStatsStore{}, scorer.Thresholds{}, spy)

	ev := docxEvent(1)
	folderID := int64(3)
	ev.TargetFolderID = &folderID // both targets set

	if err := e.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent() error = %v, want nil (invalid events are dropped)", err)
	}
	if len(maker.decided()) != 0 {
		t.Error("invalid event reached the decision maker")
	}
	if m := spy.snapshot(); m.eventsInvalid != 1 {
		t.Errorf("eventsInvalid = %d, want 1", m.eventsInvalid)
	}
}

func TestEngine_HandleEventDuplicateIsNoOp(t *testing.T) {
	cache := &fakeRuleSource{rules: []rules.Rule{docxRule(1, 1.0)}}
	maker := &fakeMaker{err: retry.Permanent(database.ErrAlreadyProcessed)}
	spy := &recorderSpy{}
	e := NewWithMetrics(cache, maker, &fakeLearner{}, &fakeStatsStore{}, scorer.Thresholds{}, spy)

	if err := e.HandleEvent(context.Background(), docxEvent(5)); err != nil {
		t.Fatalf("HandleEvent() on redelivery error = %v, want nil", err)
	}
	m := spy.snapshot()
	if m.eventsDuplicate != 1 {
		t.Errorf("eventsDuplicate = %d, want 1", m.eventsDuplicate)
	}
	if m.decisionsCommitted != 0 {
		t.Errorf("decisionsCommitted = %d, want 0", m.decisionsCommitted)
	}
}

func TestEngine_HandleEventCacheFailureSurfaces(t *testing.T) {
	cache := &fakeRuleSource{err: errors.New("load rules: connection refused")}
	maker := &fakeMaker{}
	e := New(cache, maker, &fakeLearner{}, &fakeStatsStore{}, scorer.Thresholds{})

	if err := e.HandleEvent(context.Background(), docxEvent(1)); err == nil {
		t.Fatal("HandleEvent() expected error when no rule snapshot is available")
	}
	if len(maker.decided()) != 0 {
		t.Error("event was decided without a rule snapshot")
	}
}

func TestEngine_HandleEventDecideFailureSurfaces(t *testing.T) {
	cache := &fakeRuleSource{rules: []rules.Rule{docxRule(1, 1.0)}}
	maker := &fakeMaker{err: errors.New("commit decision: connection reset")}
	spy := &recorderSpy{}
	e := NewWithMetrics(cache, maker, &fakeLearner{}, &fakeStatsStore{}, scorer.Thresholds{}, spy)

	if err := e.HandleEvent(context.Background(), docxEvent(1)); err == nil {
		t.Fatal("HandleEvent() expected error so the event is redelivered")
	}
	if m := spy.snapshot(); m.decisionsCommitted != 0 {
		t.Errorf("decisionsCommitted = %d, want 0", m.decisionsCommitted)
	}
}

func TestEngine_HandleFeedbackApplied(t *testing.T) {
	learner := &fakeLearner{}
	spy := &recorderSpy{}
	e := NewWithMetrics(&fakeRuleSource{}, &fakeMaker{}, learner, &fakeStatsStore{}, scorer.Thresholds{}, spy)

	adminID := int64(7)
	fb := events.Feedback{ID: 1, EventID: 42, AdminID: &adminID, Outcome: events.OutcomeApprove}
	if err := e.HandleFeedback(context.Background(), fb); err != nil {
		t.Fatalf("HandleFeedback() error = %v", err)
	}

	applied := learner.appliedFeedback()
	if len(applied) != 1 || applied[0].EventID != 42 {
		t.Errorf("applied = %+v, want feedback for event 42", applied)
	}
	if m := spy.snapshot(); m.feedbackApplied != 1 || m.feedbackReceived != 1 {
		t.Errorf("metrics = %+v", &m)
	}
}

func TestEngine_HandleFeedbackInvalidDropped(t *testing.T) {
	learner := &fakeLearner{}
	spy := &recorderSpy{}
	e := NewWithMetrics(&fakeRuleSource{}, &fakeMaker{}, learner, &fakeStatsStore{}, scorer.Thresholds{}, spy)

	fb := events.Feedback{ID: 1, EventID: 42, Outcome: "escalate"}
	if err := e.HandleFeedback(context.Background(), fb); err != nil {
		t.Fatalf("HandleFeedback() error = %v, want nil (invalid feedback is dropped)", err)
	}
	if len(learner.appliedFeedback()) != 0 {
		t.Error("invalid feedback reached the learner")
	}
	if m := spy.snapshot(); m.feedbackInvalid != 1 {
		t.Errorf("feedbackInvalid = %d, want 1", m.feedbackInvalid)
	}
}

func TestEngine_HandleFeedbackUndecidedDropped(t *testing.T) {
	learner := &fakeLearner{err: retry.Permanent(database.ErrDecisionNotFound)}
	spy := &recorderSpy{}
	e := NewWithMetrics(&fakeRuleSource{}, &fakeMaker{}, learner, &fakeStatsStore{}, scorer.Thresholds{}, spy)

	fb := events.Feedback{ID: 1, EventID: 99, Outcome: events.OutcomeReject}
	if err := e.HandleFeedback(context.Background(), fb); err != nil {
		t.Fatalf("HandleFeedback() error = %v, want nil (dangling reference is dropped)", err)
	}
	if m := spy.snapshot(); m.feedbackInvalid != 1 || m.feedbackApplied != 0 {
		t.Errorf("metrics = %+v", &m)
	}
}

func TestEngine_HandleFeedbackFailureSurfaces(t *testing.T) {
	learner := &fakeLearner{err: errors.New("commit feedback: connection reset")}
	e := New(&fakeRuleSource{}, &fakeMaker{}, learner, &fakeStatsStore{}, scorer.Thresholds{})

	fb := events.Feedback{ID: 1, EventID: 42, Outcome: events.OutcomeReject}
	if err := e.HandleFeedback(context.Background(), fb); err == nil {
		t.Fatal("HandleFeedback() expected error so the feedback is redelivered")
	}
}

func TestEngine_Stats(t *testing.T) {
	critical := docxRule(3, 1.0)
	critical.Severity = rules.SeverityCritical
	fixed := docxRule(2, 1.0)
	fixed.Adaptive = false

	cache := &fakeRuleSource{
		rules: []rules.Rule{docxRule(1, 1.0), fixed, critical},
		age:   30 * time.Second,
	}
	store := &fakeStatsStore{stats: database.FeedbackStats{
		Total:        10,
		Approvals:    8,
		Rejections:   2,
		ApprovalRate: 0.8,
	}}
	e := New(cache, &fakeMaker{}, &fakeLearner{}, store, scorer.Thresholds{})

	st, err := e.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.TotalRules != 3 {
		t.Errorf("TotalRules = %d, want 3", st.TotalRules)
	}
	if st.AdaptiveRules != 2 {
		t.Errorf("AdaptiveRules = %d, want 2", st.AdaptiveRules)
	}
	wantDist := map[rules.Severity]int{rules.SeverityHigh: 2, rules.SeverityCritical: 1}
	if !reflect.DeepEqual(st.SeverityDistribution, wantDist) {
		t.Errorf("SeverityDistribution = %v, want %v", st.SeverityDistribution, wantDist)
	}
	if st.CacheAge != 30*time.Second {
		t.Errorf("CacheAge = %v, want 30s", st.CacheAge)
	}
	if st.Feedback.ApprovalRate != 0.8 {
		t.Errorf("Feedback = %+v", st.Feedback)
	}
}

func TestEngine_StatsStoreFailure(t *testing.T) {
	cache := &fakeRuleSource{rules: []rules.Rule{docxRule(1, 1.0)}}
	store := &fakeStatsStore{err: errors.New("connection refused")}
	e := New(cache, &fakeMaker{}, &fakeLearner{}, store, scorer.Thresholds{})

	if _, err := e.Stats(context.Background()); err == nil {
		t.Fatal("Stats() expected error when feedback stats are unavailable")
	}
}
