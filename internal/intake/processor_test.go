package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"filesentry/internal/events"

	"github.com/segmentio/kafka-go"
)

func intakeEvent(id int64) *events.Event {
	fileID := int64(10)
	return &events.Event{
		ID:           id,
		Type:         events.TypeModify,
		TargetFileID: &fileID,
		Path:         "docs/report.docx",
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func intakeFeedback(id, eventID int64) *events.Feedback {
	return &events.Feedback{
		ID:      id,
		EventID: eventID,
		Outcome: events.OutcomeApprove,
	}
}

// offsets extracts the committed offsets in commit order.
func offsets(committed []kafka.Message) []int64 {
	out := make([]int64, len(committed))
	for i, m := range committed {
		out[i] = m.Offset
	}
	return out
}

// runEvents drives ProcessEvents until the reader script is exhausted.
func runEvents(t *testing.T, reader *fakeEventReader, handler *fakeEventHandler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader.exhausted = cancel

	if err := NewEventProcessor(reader, handler).ProcessEvents(ctx); err != nil {
		t.Fatalf("ProcessEvents() error = %v, want nil", err)
	}
}

func runFeedback(t *testing.T, reader *fakeFeedbackReader, handler *fakeFeedbackHandler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader.exhausted = cancel

	if err := NewFeedbackProcessor(reader, handler).ProcessFeedback(ctx); err != nil {
		t.Fatalf("ProcessFeedback() error = %v, want nil", err)
	}
}

func TestEventProcessor_CommitsAfterSuccess(t *testing.T) {
	reader := &fakeEventReader{reads: []eventRead{
		{ev: intakeEvent(1), msg: &kafka.Message{Offset: 4}},
		{ev: intakeEvent(2), msg: &kafka.Message{Offset: 5}},
	}}
	handler := &fakeEventHandler{}

	runEvents(t, reader, handler)

	if len(handler.handled) != 2 {
		t.Fatalf("handled %d events, want 2", len(handler.handled))
	}
	if got := offsets(reader.committed); len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("committed offsets = %v, want [4 5]", got)
	}
}

func TestEventProcessor_HandlerFailureLeavesOffsetUncommitted(t *testing.T) {
	reader := &fakeEventReader{reads: []eventRead{
		{ev: intakeEvent(1), msg: &kafka.Message{Offset: 4}},
		{ev: intakeEvent(2), msg: &kafka.Message{Offset: 5}},
	}}
	handler := &fakeEventHandler{errFor: map[int64]error{1: errors.New("connection refused")}}

	runEvents(t, reader, handler)

	if len(handler.handled) != 2 {
		t.Fatalf("handled %d events, want 2", len(handler.handled))
	}
	if got := offsets(reader.committed); len(got) != 1 || got[0] != 5 {
		t.Errorf("committed offsets = %v, want only [5]", got)
	}
}

func TestEventProcessor_CommitsPastUndecodableMessage(t *testing.T) {
	reader := &fakeEventReader{reads: []eventRead{
		{msg: &kafka.Message{Offset: 7}, err: errors.New("failed to unmarshal event: unexpected end of JSON input")},
		{ev: intakeEvent(2), msg: &kafka.Message{Offset: 8}},
	}}
	handler := &fakeEventHandler{}

	runEvents(t, reader, handler)

	if len(handler.handled) != 1 || handler.handled[0].ID != 2 {
		t.Fatalf("handled = %v, want only event 2", handler.handled)
	}
	if got := offsets(reader.committed); len(got) != 2 || got[0] != 7 || got[1] != 8 {
		t.Errorf("committed offsets = %v, want [7 8]", got)
	}
}

func TestEventProcessor_ReadErrorWithoutMessageContinues(t *testing.T) {
	reader := &fakeEventReader{reads: []eventRead{
		{err: errors.New("failed to fetch message from Kafka: broken pipe")},
		{ev: intakeEvent(1), msg: &kafka.Message{Offset: 9}},
	}}
	handler := &fakeEventHandler{}

	runEvents(t, reader, handler)

	if len(handler.handled) != 1 {
		t.Fatalf("handled %d events, want 1", len(handler.handled))
	}
	if got := offsets(reader.committed); len(got) != 1 || got[0] != 9 {
		t.Errorf("committed offsets = %v, want [9]", got)
	}
}

func TestEventProcessor_CommitFailureDoesNotStopLoop(t *testing.T) {
	reader := &fakeEventReader{
		reads: []eventRead{
			{ev: intakeEvent(1), msg: &kafka.Message{Offset: 4}},
			{ev: intakeEvent(2), msg: &kafka.Message{Offset: 5}},
		},
		commitErr: errors.New("commit: broken pipe"),
	}
	handler := &fakeEventHandler{}

	runEvents(t, reader, handler)

	if len(handler.handled) != 2 {
		t.Errorf("handled %d events, want 2 despite commit failures", len(handler.handled))
	}
}

func TestEventProcessor_StopsWhenContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &fakeEventReader{}
	handler := &fakeEventHandler{}

	if err := NewEventProcessor(reader, handler).ProcessEvents(ctx); err != nil {
		t.Fatalf("ProcessEvents() error = %v, want nil", err)
	}
	if reader.readCalls != 0 {
		t.Errorf("readCalls = %d, want 0 after pre-cancelled context", reader.readCalls)
	}
}

func TestFeedbackProcessor_CommitsAfterSuccess(t *testing.T) {
	reader := &fakeFeedbackReader{reads: []feedbackRead{
		{fb: intakeFeedback(101, 1), msg: &kafka.Message{Offset: 12}},
	}}
	handler := &fakeFeedbackHandler{}

	runFeedback(t, reader, handler)

	if len(handler.handled) != 1 || handler.handled[0].ID != 101 {
		t.Fatalf("handled = %v, want feedback 101", handler.handled)
	}
	if got := offsets(reader.committed); len(got) != 1 || got[0] != 12 {
		t.Errorf("committed offsets = %v, want [12]", got)
	}
}

func TestFeedbackProcessor_HandlerFailureLeavesOffsetUncommitted(t *testing.T) {
	reader := &fakeFeedbackReader{reads: []feedbackRead{
		{fb: intakeFeedback(101, 1), msg: &kafka.Message{Offset: 12}},
		{fb: intakeFeedback(102, 2), msg: &kafka.Message{Offset: 13}},
	}}
	handler := &fakeFeedbackHandler{errFor: map[int64]error{101: errors.New("timeout")}}

	runFeedback(t, reader, handler)

	if got := offsets(reader.committed); len(got) != 1 || got[0] != 13 {
		t.Errorf("committed offsets = %v, want only [13]", got)
	}
}

func TestFeedbackProcessor_CommitsPastUndecodableMessage(t *testing.T) {
	reader := &fakeFeedbackReader{reads: []feedbackRead{
		{msg: &kafka.Message{Offset: 3}, err: errors.New("failed to unmarshal feedback: invalid character")},
	}}
	handler := &fakeFeedbackHandler{}

	runFeedback(t, reader, handler)

	if len(handler.handled) != 0 {
		t.Fatalf("handled = %v, want none", handler.handled)
	}
	if got := offsets(reader.committed); len(got) != 1 || got[0] != 3 {
		t.Errorf("committed offsets = %v, want [3]", got)
	}
}
