package intake

import (
	"context"

	"filesentry/internal/events"

	"github.com/segmentio/kafka-go"
)

// eventRead is one scripted outcome for fakeEventReader.
type eventRead struct {
	ev  *events.Event
	msg *kafka.Message
	err error
}

// fakeEventReader plays back a scripted sequence of reads and records
// committed offsets. When the script runs out it invokes exhausted, which
// tests use to cancel the processing loop.
type fakeEventReader struct {
	reads     []eventRead
	idx       int
	readCalls int
	commitErr error
	committed []kafka.Message
	exhausted func()
}

func (f *fakeEventReader) ReadMessage(ctx context.Context) (*events.Event, *kafka.Message, error) {
	f.readCalls++
	if f.idx >= len(f.reads) {
		if f.exhausted != nil {
			f.exhausted()
		}
		return nil, nil, ctx.Err()
	}
	r := f.reads[f.idx]
	f.idx++
	return r.ev, r.msg, r.err
}

func (f *fakeEventReader) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, *msg)
	return nil
}

func (f *fakeEventReader) Close() error { return nil }

// feedbackRead is one scripted outcome for fakeFeedbackReader.
type feedbackRead struct {
	fb  *events.Feedback
	msg *kafka.Message
	err error
}

type fakeFeedbackReader struct {
	reads     []feedbackRead
	idx       int
	commitErr error
	committed []kafka.Message
	exhausted func()
}

func (f *fakeFeedbackReader) ReadMessage(ctx context.Context) (*events.Feedback, *kafka.Message, error) {
	if f.idx >= len(f.reads) {
		if f.exhausted != nil {
			f.exhausted()
		}
		return nil, nil, ctx.Err()
	}
	r := f.reads[f.idx]
	f.idx++
	return r.fb, r.msg, r.err
}

func (f *fakeFeedbackReader) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, *msg)
	return nil
}

func (f *fakeFeedbackReader) Close() error { return nil }

// fakeEventHandler records every event it is asked to process and fails the
// ones whose IDs appear in errFor.
type fakeEventHandler struct {
	handled []events.Event
	errFor  map[int64]error
}

func (f *fakeEventHandler) HandleEvent(ctx context.Context, ev events.Event) error {
	f.handled = append(f.handled, ev)
	return f.errFor[ev.ID]
}

type fakeFeedbackHandler struct {
	handled []events.Feedback
	errFor  map[int64]error
}

func (f *fakeFeedbackHandler) HandleFeedback(ctx context.Context, fb events.Feedback) error {
	f.handled = append(f.handled, fb)
	return f.errFor[fb.ID]
}
