// Package transport delivers notification batches by email. Providers
// implement a common interface behind a registry so the batcher never cares
// which backend is configured, or whether any is.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Message is one assembled notification email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Transport sends an assembled message.
type Transport interface {
	// Name returns the transport name (e.g. "smtp", "ses").
	Name() string

	// Send delivers the message.
	Send(ctx context.Context, msg Message) error

	// IsConfigured reports whether the transport can actually deliver.
	IsConfigured() bool
}

// NoOp is the default transport when no delivery backend is configured.
// Batching still runs; delivery is omitted.
type NoOp struct{}

func (NoOp) Name() string { return "noop" }

func (NoOp) IsConfigured() bool { return true }

// Send logs and discards the message.
func (NoOp) Send(ctx context.Context, msg Message) error {
	slog.Info("No notification transport configured, discarding message",
		"subject", msg.Subject,
		"recipients", len(msg.To),
	)
	return nil
}

// Registry holds the available transports and routes Send calls to the
// primary one, falling back to other configured transports in registration
// order when the primary fails. Registry itself satisfies Transport.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Transport
	order      []string
	primary    string
}

var _ Transport = (*Registry)(nil)

// NewRegistry creates an empty transport registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]Transport)}
}

// Register adds a transport.
func (r *Registry) Register(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transports[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.transports[t.Name()] = t
	slog.Info("Registered notification transport", "name", t.Name(), "configured", t.IsConfigured())
}

// SetPrimary selects the transport Send tries first.
func (r *Registry) SetPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transports[name]; !ok {
		return fmt.Errorf("transport %q not registered", name)
	}
	r.primary = name
	return nil
}

// Name identifies the registry by its primary transport.
func (r *Registry) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.primary != "" {
		return r.primary
	}
	return "registry"
}

// IsConfigured reports whether any registered transport can deliver.
func (r *Registry) IsConfigured() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transports {
		if t.IsConfigured() {
			return true
		}
	}
	return false
}

// Send delivers through the primary transport, then through the remaining
// configured transports in registration order. The primary's error is
// returned when every transport fails.
func (r *Registry) Send(ctx context.Context, msg Message) error {
	r.mu.RLock()
	primary := r.transports[r.primary]
	order := append([]string(nil), r.order...)
	r.mu.RUnlock()

	var primaryErr error
	if primary != nil && primary.IsConfigured() {
		primaryErr = primary.Send(ctx, msg)
		if primaryErr == nil {
			return nil
		}
	}

	for _, name := range order {
		r.mu.RLock()
		t := r.transports[name]
		r.mu.RUnlock()
		if t == nil || !t.IsConfigured() || (primary != nil && name == primary.Name()) {
			continue
		}
		if primaryErr != nil {
			slog.Warn("Primary transport failed, trying fallback",
				"primary", primary.Name(),
				"fallback", name,
				"error", primaryErr,
			)
		}
		err := t.Send(ctx, msg)
		if err == nil {
			return nil
		}
		if primaryErr == nil {
			primaryErr = err
		}
	}

	if primaryErr != nil {
		return primaryErr
	}
	return fmt.Errorf("no configured notification transport available")
}
