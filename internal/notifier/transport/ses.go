package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SES delivers mail through AWS SES v2.
type SES struct {
	client *sesv2.Client
	region string
}

// NewSES creates an SES transport. Credentials come from the default AWS
// chain (environment, shared config, instance role); when loading fails the
// transport reports itself unconfigured instead of erroring.
func NewSES(ctx context.Context, region string) *SES {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		slog.Warn("Failed to load AWS config, SES transport unavailable", "error", err)
		return &SES{region: region}
	}
	return &SES{client: sesv2.NewFromConfig(cfg), region: region}
}

func (s *SES) Name() string { return "ses" }

func (s *SES) IsConfigured() bool { return s.client != nil }

// Send delivers the message via the SES SendEmail API.
func (s *SES) Send(ctx context.Context, msg Message) error {
	if s.client == nil {
		return fmt.Errorf("SES client not initialized")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: &msg.From,
		Destination: &types.Destination{
			ToAddresses: msg.To,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &msg.Subject},
				Body: &types.Body{
					Text: &types.Content{Data: &msg.Body},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("SES send failed: %w", err)
	}

	slog.Debug("Email sent via SES",
		"message_id", *result.MessageId,
		"recipients", len(msg.To),
	)
	return nil
}
