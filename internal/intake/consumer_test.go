package intake

import (
	"testing"
)

func TestNewEventConsumer(t *testing.T) {
	tests := []struct {
		name    string
		brokers string
		topic   string
		groupID string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid consumer",
			brokers: "localhost:9092",
			topic:   "events.new",
			groupID: "filesentry-events",
			wantErr: false,
		},
		{
			name:    "empty brokers",
			brokers: "",
			topic:   "events.new",
			groupID: "filesentry-events",
			wantErr: true,
			errMsg:  "brokers cannot be empty",
		},
		{
			name:    "empty topic",
			brokers: "localhost:9092",
			topic:   "",
			groupID: "filesentry-events",
			wantErr: true,
			errMsg:  "topic cannot be empty",
		},
		{
			name:    "empty groupID",
			brokers: "localhost:9092",
			topic:   "events.new",
			groupID: "",
			wantErr: true,
			errMsg:  "groupID cannot be empty",
		},
		{
			name:    "multiple brokers with spaces",
			brokers: "localhost:9092, localhost:9093",
			topic:   "events.new",
			groupID: "filesentry-events",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer, err := NewEventConsumer(tt.brokers, tt.topic, tt.groupID)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEventConsumer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if err.Error() != tt.errMsg {
					t.Errorf("NewEventConsumer() error = %v, want error message %v", err.Error(), tt.errMsg)
				}
			}
			if !tt.wantErr && consumer != nil {
				_ = consumer.Close()
			}
		})
	}
}

func TestNewFeedbackConsumer(t *testing.T) {
	consumer, err := NewFeedbackConsumer("localhost:9092", "feedback.new", "filesentry-feedback")
	if err != nil {
		t.Fatalf("NewFeedbackConsumer() error = %v, want nil", err)
	}
	defer consumer.Close()

	if _, err := NewFeedbackConsumer("", "feedback.new", "filesentry-feedback"); err == nil {
		t.Error("NewFeedbackConsumer() with empty brokers should fail")
	}
}
