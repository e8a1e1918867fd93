// Package config provides configuration parsing and validation for the
// filesentry service.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Transport names accepted by the provider flag. They match the names the
// notification transports register under.
const (
	ProviderNoOp   = "noop"
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderResend = "resend"
)

// Config holds all configuration parameters for the filesentry service.
type Config struct {
	KafkaBrokers    string
	EventsTopic     string
	FeedbackTopic   string
	EventsGroupID   string
	FeedbackGroupID string
	PostgresDSN     string
	RedisAddr       string

	Provider        string
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	SESRegion       string
	ResendAPIKey    string
	EmailFrom       string
	EmailRecipients string

	TuningFile string
}

// Validate checks that all required configuration fields are set and have
// valid values. Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if c.EventsTopic == "" {
		return fmt.Errorf("events-topic cannot be empty")
	}
	if c.FeedbackTopic == "" {
		return fmt.Errorf("feedback-topic cannot be empty")
	}
	if c.EventsGroupID == "" {
		return fmt.Errorf("events-group-id cannot be empty")
	}
	if c.FeedbackGroupID == "" {
		return fmt.Errorf("feedback-group-id cannot be empty")
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres-dsn cannot be empty")
	}
	switch c.Provider {
	case ProviderNoOp, ProviderSMTP, ProviderSES, ProviderResend:
	default:
		return fmt.Errorf("provider must be one of noop, smtp, ses, resend (got %q)", c.Provider)
	}
	if c.Provider == ProviderSMTP {
		if c.SMTPHost == "" {
			return fmt.Errorf("smtp-host cannot be empty when provider is smtp")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			return fmt.Errorf("smtp-port must be between 1 and 65535")
		}
	}
	if c.Provider == ProviderResend && c.ResendAPIKey == "" {
		return fmt.Errorf("resend-api-key cannot be empty when provider is resend")
	}
	if c.Provider != ProviderNoOp {
		if c.EmailFrom == "" {
			return fmt.Errorf("email-from cannot be empty when provider is %s", c.Provider)
		}
		if len(c.Recipients()) == 0 {
			return fmt.Errorf("email-recipients cannot be empty when provider is %s", c.Provider)
		}
	}
	return nil
}

// Recipients parses the comma-separated recipient list, dropping empty
// entries and surrounding whitespace.
func (c *Config) Recipients() []string {
	parts := strings.Split(c.EmailRecipients, ",")
	recipients := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			recipients = append(recipients, p)
		}
	}
	return recipients
}

// GetEnvOrDefault returns env var value or default.
func GetEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}
