package intake

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// EventProcessor drains the events topic into the decision pipeline.
type EventProcessor struct {
	reader  EventReader
	handler EventHandler
}

// NewEventProcessor creates a processor that feeds events to the handler.
func NewEventProcessor(reader EventReader, handler EventHandler) *EventProcessor {
	return &EventProcessor{
		reader:  reader,
		handler: handler,
	}
}

// ProcessEvents continuously reads events from the message queue and runs
// each through the handler. Offsets are committed only after the handler
// succeeds, so a crash mid-decision results in redelivery rather than loss.
func (p *EventProcessor) ProcessEvents(ctx context.Context) error {
	slog.Info("Starting event intake loop")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Event intake loop stopped")
			return nil
		default:
			ev, msg, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if msg != nil {
					// Undecodable payload. Commit past it so it cannot
					// wedge the partition.
					slog.Error("Dropping undecodable event message",
						"offset", msg.Offset,
						"error", err,
					)
					commitMessage(ctx, p.reader.CommitMessage, msg)
					continue
				}
				slog.Error("Failed to read event message", "error", err)
				continue
			}

			if err := p.handler.HandleEvent(ctx, *ev); err != nil {
				// Leave the offset uncommitted so the event is redelivered.
				slog.Error("Failed to process event",
					"event_id", ev.ID,
					"error", err,
				)
				continue
			}

			commitMessage(ctx, p.reader.CommitMessage, msg)
		}
	}
}

// FeedbackProcessor drains the feedback topic into the weight learner.
type FeedbackProcessor struct {
	reader  FeedbackReader
	handler FeedbackHandler
}

// NewFeedbackProcessor creates a processor that feeds admin judgments to the
// handler.
func NewFeedbackProcessor(reader FeedbackReader, handler FeedbackHandler) *FeedbackProcessor {
	return &FeedbackProcessor{
		reader:  reader,
		handler: handler,
	}
}

// ProcessFeedback continuously reads feedback from the message queue and runs
// each record through the handler. Offsets are committed only after the
// handler succeeds.
func (p *FeedbackProcessor) ProcessFeedback(ctx context.Context) error {
	slog.Info("Starting feedback intake loop")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Feedback intake loop stopped")
			return nil
		default:
			fb, msg, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if msg != nil {
					// Undecodable payload. Commit past it so it cannot
					// wedge the partition.
					slog.Error("Dropping undecodable feedback message",
						"offset", msg.Offset,
						"error", err,
					)
					commitMessage(ctx, p.reader.CommitMessage, msg)
					continue
				}
				slog.Error("Failed to read feedback message", "error", err)
				continue
			}

			if err := p.handler.HandleFeedback(ctx, *fb); err != nil {
				// Leave the offset uncommitted so the feedback is redelivered.
				slog.Error("Failed to process feedback",
					"feedback_id", fb.ID,
					"event_id", fb.EventID,
					"error", err,
				)
				continue
			}

			commitMessage(ctx, p.reader.CommitMessage, msg)
		}
	}
}

// commitMessage commits one offset and logs the failure if the commit does
// not go through. The offset will be committed again on the next successful
// message, so a failure here only widens the redelivery window.
func commitMessage(ctx context.Context, commit func(context.Context, *kafka.Message) error, msg *kafka.Message) {
	if err := commit(ctx, msg); err != nil {
		slog.Error("Failed to commit offset",
			"offset", msg.Offset,
			"error", err,
		)
	}
}
