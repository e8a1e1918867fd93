package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Resend delivers mail through the Resend API.
type Resend struct {
	client *resend.Client
}

// NewResend creates a Resend transport. An empty API key leaves the
// transport unconfigured.
func NewResend(apiKey string) *Resend {
	if apiKey == "" {
		return &Resend{}
	}
	return &Resend{client: resend.NewClient(apiKey)}
}

func (r *Resend) Name() string { return "resend" }

func (r *Resend) IsConfigured() bool { return r.client != nil }

// Send delivers the message via the Resend API.
func (r *Resend) Send(ctx context.Context, msg Message) error {
	if r.client == nil {
		return fmt.Errorf("Resend client not initialized")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	params := &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Body,
	}

	result, err := r.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("Resend send failed: %w", err)
	}

	slog.Debug("Email sent via Resend",
		"email_id", result.Id,
		"recipients", len(msg.To),
	)
	return nil
}
