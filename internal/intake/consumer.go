package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"filesentry/internal/events"
	kafkautil "filesentry/internal/kafka"

	"github.com/segmentio/kafka-go"
)

// EventConsumer wraps a Kafka reader and provides a simple interface for
// consuming file-activity events.
type EventConsumer struct {
	reader *kafka.Reader
	topic  string
}

// NewEventConsumer creates a new Kafka consumer for the events topic.
// The consumer is configured for at-least-once delivery semantics.
func NewEventConsumer(brokers, topic, groupID string) (*EventConsumer, error) {
	reader, err := newReader(brokers, topic, groupID)
	if err != nil {
		return nil, err
	}
	return &EventConsumer{
		reader: reader,
		topic:  topic,
	}, nil
}

// ReadMessage fetches the next message from Kafka and deserializes it as an
// Event. The offset is not committed; call CommitMessage after the event has
// been processed.
func (c *EventConsumer) ReadMessage(ctx context.Context) (*events.Event, *kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch message from Kafka: %w", err)
	}

	var ev events.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return nil, &msg, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &ev, &msg, nil
}

// CommitMessage commits the offset for the given message.
// This should be called after successfully processing a message.
func (c *EventConsumer) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	return c.reader.CommitMessages(ctx, *msg)
}

// Close gracefully closes the Kafka reader and releases resources.
func (c *EventConsumer) Close() error {
	return closeReader(c.reader, c.topic)
}

// FeedbackConsumer wraps a Kafka reader and provides a simple interface for
// consuming admin feedback.
type FeedbackConsumer struct {
	reader *kafka.Reader
	topic  string
}

// NewFeedbackConsumer creates a new Kafka consumer for the feedback topic.
// The consumer is configured for at-least-once delivery semantics.
func NewFeedbackConsumer(brokers, topic, groupID string) (*FeedbackConsumer, error) {
	reader, err := newReader(brokers, topic, groupID)
	if err != nil {
		return nil, err
	}
	return &FeedbackConsumer{
		reader: reader,
		topic:  topic,
	}, nil
}

// ReadMessage fetches the next message from Kafka and deserializes it as a
// Feedback. The offset is not committed; call CommitMessage after the
// feedback has been processed.
func (c *FeedbackConsumer) ReadMessage(ctx context.Context) (*events.Feedback, *kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch message from Kafka: %w", err)
	}

	var fb events.Feedback
	if err := json.Unmarshal(msg.Value, &fb); err != nil {
		return nil, &msg, fmt.Errorf("failed to unmarshal feedback: %w", err)
	}

	return &fb, &msg, nil
}

// CommitMessage commits the offset for the given message.
// This should be called after successfully processing a message.
func (c *FeedbackConsumer) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	return c.reader.CommitMessages(ctx, *msg)
}

// Close gracefully closes the Kafka reader and releases resources.
func (c *FeedbackConsumer) Close() error {
	return closeReader(c.reader, c.topic)
}

// newReader validates the connection parameters and builds a reader with the
// shared at-least-once configuration.
func newReader(brokers, topic, groupID string) (*kafka.Reader, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	reader := kafka.NewReader(kafkautil.NewReaderConfig(brokerList, topic, groupID))

	slog.Info("Kafka consumer configured",
		"min_bytes", 10e3,
		"max_bytes", 10e6,
		"max_wait", kafkautil.ReadTimeout,
		"commit_interval", kafkautil.CommitInterval,
	)

	return reader, nil
}

func closeReader(reader *kafka.Reader, topic string) error {
	slog.Info("Closing Kafka consumer", "topic", topic)
	if err := reader.Close(); err != nil {
		slog.Error("Error closing Kafka consumer", "topic", topic, "error", err)
		return err
	}
	return nil
}
