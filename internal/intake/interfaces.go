// Package intake provides Kafka consumer functionality for the events.new
// and feedback.new topics.
package intake

import (
	"context"

	"filesentry/internal/events"

	"github.com/segmentio/kafka-go"
)

// EventReader reads file-activity events from a message queue.
type EventReader interface {
	// ReadMessage reads the next message and returns the parsed Event.
	// Returns the raw message for offset tracking; on a decode failure the
	// raw message is still returned so the caller can commit past it.
	ReadMessage(ctx context.Context) (*events.Event, *kafka.Message, error)

	// CommitMessage commits the offset for the given message.
	CommitMessage(ctx context.Context, msg *kafka.Message) error

	// Close closes the reader and releases resources.
	Close() error
}

// FeedbackReader reads admin feedback records from a message queue.
type FeedbackReader interface {
	// ReadMessage reads the next message and returns the parsed Feedback.
	// Returns the raw message for offset tracking; on a decode failure the
	// raw message is still returned so the caller can commit past it.
	ReadMessage(ctx context.Context) (*events.Feedback, *kafka.Message, error)

	// CommitMessage commits the offset for the given message.
	CommitMessage(ctx context.Context, msg *kafka.Message) error

	// Close closes the reader and releases resources.
	Close() error
}

// EventHandler runs one event through the decision pipeline.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev events.Event) error
}

// FeedbackHandler applies one admin judgment to the rule weights.
type FeedbackHandler interface {
	HandleFeedback(ctx context.Context, fb events.Feedback) error
}
