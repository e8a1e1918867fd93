package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// SMTP delivers mail through a plain SMTP server, using implicit TLS on
// port 465 and STARTTLS otherwise.
type SMTP struct {
	host     string
	port     int
	username string
	password string
}

// NewSMTP creates an SMTP transport. Host and port are required; credentials
// are optional for servers that accept unauthenticated relay.
func NewSMTP(host string, port int, username, password string) *SMTP {
	return &SMTP{host: host, port: port, username: username, password: password}
}

func (s *SMTP) Name() string { return "smtp" }

func (s *SMTP) IsConfigured() bool { return s.host != "" && s.port != 0 }

// Send delivers the message over one SMTP session.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if !s.IsConfigured() {
		return fmt.Errorf("smtp transport not configured")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	client, err := s.connect(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.username != "" && s.password != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("failed to set sender %s: %w", msg.From, err)
	}
	for _, recipient := range msg.To {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", recipient, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err := writer.Write(buildMIME(msg)); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write email data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// connect dials the server and upgrades to TLS. Port 465 expects TLS from
// the first byte; other ports try STARTTLS when the server offers it.
func (s *SMTP) connect(ctx context.Context, addr string) (*smtp.Client, error) {
	dialer := &net.Dialer{}

	if s.port == 465 {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: s.host})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SMTP server with TLS: %w", err)
		}
		client, err := smtp.NewClient(conn, s.host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create SMTP client: %w", err)
		}
		return client, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	return client, nil
}

// buildMIME assembles the raw RFC 822 message.
func buildMIME(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}
