// Package notifier batches admin notifications and delivers them by email.
// Decisions enqueue pending notifications; a flush loop combines everything
// queued into a single message so a burst of file activity does not turn
// into a burst of emails. Escalations skip the batch interval.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"filesentry/internal/database"
	"filesentry/internal/notifier/transport"
	"filesentry/internal/retry"
	"filesentry/internal/rules"
)

const (
	DefaultQueueCapacity = 256
	DefaultHighWater     = 32
	DefaultFlushInterval = 5 * time.Minute
	DefaultMaxAttempts   = 3
	DefaultDrainTimeout  = 30 * time.Second
)

// Pending is a notification waiting in the batch queue.
type Pending struct {
	EventID    int64
	Severity   rules.Severity
	Message    string
	EnqueuedAt time.Time
	Attempts   int
	Urgent     bool
}

// Store records delivery failures in the activity log.
type Store interface {
	AppendLog(ctx context.Context, entry database.LogEntry) error
}

// Options tunes queue and delivery behavior. Zero values fall back to the
// package defaults.
type Options struct {
	QueueCapacity  int
	HighWater      int
	FlushInterval  time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	DrainTimeout   time.Duration
	From           string
	Recipients     []string
}

// Batcher collects pending notifications in a bounded queue and flushes them
// as one email per cycle. Flushes happen on the interval tick, when the queue
// reaches the high-water mark, or immediately for urgent escalations.
type Batcher struct {
	transport transport.Transport
	store     Store
	metrics   Recorder

	capacity     int
	highWater    int
	interval     time.Duration
	maxAttempts  int
	retryCfg     retry.Config
	drainTimeout time.Duration
	from         string
	recipients   []string

	mu      sync.Mutex
	queue   []Pending
	flushCh chan struct{}

	now func() time.Time
}

// New creates a batcher with no-op metrics.
func New(tr transport.Transport, store Store, opts Options) *Batcher {
	return NewWithMetrics(tr, store, opts, nil)
}

// NewWithMetrics creates a batcher with the provided metrics recorder.
// If rec is nil, a no-op implementation is used.
func NewWithMetrics(tr transport.Transport, store Store, opts Options, rec Recorder) *Batcher {
	if rec == nil {
		rec = &NoOpRecorder{}
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.HighWater <= 0 || opts.HighWater > opts.QueueCapacity {
		opts.HighWater = DefaultHighWater
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 16 * time.Second
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	return &Batcher{
		transport:   tr,
		store:       store,
		metrics:     rec,
		capacity:    opts.QueueCapacity,
		highWater:   opts.HighWater,
		interval:    opts.FlushInterval,
		maxAttempts: opts.MaxAttempts,
		retryCfg: retry.Config{
			InitialBackoff: opts.InitialBackoff,
			MaxBackoff:     opts.MaxBackoff,
			BackoffFactor:  4.0,
		},
		drainTimeout: opts.DrainTimeout,
		from:         opts.From,
		recipients:   opts.Recipients,
		flushCh:      make(chan struct{}, 1),
		now:          time.Now,
	}
}

// Enqueue adds a pending notification without blocking. When the queue is
// full the oldest entry of the lowest queued severity makes room, unless the
// incoming notification ranks below it; a Critical is only ever displaced by
// another Critical. Urgent entries and a queue at the high-water mark signal
// an immediate flush.
func (b *Batcher) Enqueue(p Pending) {
	if p.EnqueuedAt.IsZero() {
		p.EnqueuedAt = b.now()
	}

	b.mu.Lock()
	if len(b.queue) >= b.capacity && !b.evictLocked(p) {
		b.mu.Unlock()
		b.metrics.RecordNotificationDropped(1)
		slog.Warn("Notification queue full, refusing incoming notification",
			"event_id", p.EventID,
			"severity", p.Severity,
		)
		return
	}
	b.queue = append(b.queue, p)
	depth := len(b.queue)
	b.mu.Unlock()

	b.metrics.RecordNotificationEnqueued()
	if p.Urgent || depth >= b.highWater {
		b.signalFlush()
	}
}

// evictLocked makes room for an incoming notification. The victim is the
// oldest entry of the lowest queued severity; an incoming notification that
// ranks below the victim is refused instead, so admitting a Low never costs
// a queued High and a Critical is only ever displaced by another Critical.
// Caller holds b.mu.
func (b *Batcher) evictLocked(incoming Pending) bool {
	victim := 0
	for i, p := range b.queue {
		if p.Severity.Rank() < b.queue[victim].Severity.Rank() {
			victim = i
		}
	}
	if incoming.Severity.Rank() < b.queue[victim].Severity.Rank() {
		return false
	}

	evicted := b.queue[victim]
	b.queue = append(b.queue[:victim], b.queue[victim+1:]...)
	b.metrics.RecordNotificationDropped(1)
	slog.Warn("Notification queue full, evicting queued notification",
		"evicted_event_id", evicted.EventID,
		"evicted_severity", evicted.Severity,
		"incoming_event_id", incoming.EventID,
		"incoming_severity", incoming.Severity,
	)
	return true
}

func (b *Batcher) signalFlush() {
	select {
	case b.flushCh <- struct{}{}:
	default:
	}
}

// Len reports the current queue depth.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Run owns the flush loop: interval ticks, high-water and urgent signals, and
// shutdown. Cancelling ctx drains the queue with one final delivery attempt
// bounded by the drain timeout, so shutdown never silently discards
// notifications.
func (b *Batcher) Run(ctx context.Context) error {
	slog.Info("Starting notification batcher",
		"transport", b.transport.Name(),
		"flush_interval", b.interval,
		"queue_capacity", b.capacity,
		"high_water", b.highWater,
	)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain()
			slog.Info("Notification batcher stopped")
			return nil
		case <-ticker.C:
			b.flush(ctx)
		case <-b.flushCh:
			b.flush(ctx)
		}
	}
}

// drain flushes whatever is still queued under a fresh deadline. Used on
// shutdown, after the run context is already cancelled.
func (b *Batcher) drain() {
	if b.Len() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.drainTimeout)
	defer cancel()

	slog.Info("Draining notification queue", "pending", b.Len(), "timeout", b.drainTimeout)
	b.flush(ctx)
}

// flush takes everything queued and delivers it as a single batch. Exhausted
// retries record one DELIVERY_FAILURE log row for the batch and drop it; a
// failed batch never blocks later cycles.
func (b *Batcher) flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	batchID := uuid.New().String()
	msg := b.buildMessage(batchID, batch)
	slog.Debug("Flushing notification batch", "batch_id", batchID, "count", len(batch))

	var lastErr error
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		for i := range batch {
			batch[i].Attempts = attempt
		}
		lastErr = b.transport.Send(ctx, msg)
		if lastErr == nil {
			b.metrics.RecordBatchDelivered(len(batch))
			slog.Info("Delivered notification batch",
				"batch_id", batchID,
				"count", len(batch),
				"transport", b.transport.Name(),
				"attempts", attempt,
			)
			return
		}
		if attempt == b.maxAttempts || ctx.Err() != nil {
			break
		}

		delay := retry.Backoff(b.retryCfg, attempt-1)
		slog.Warn("Notification delivery failed, backing off",
			"batch_id", batchID,
			"attempt", attempt,
			"max_attempts", b.maxAttempts,
			"backoff", delay,
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
		if ctx.Err() != nil {
			break
		}
	}

	b.dropBatch(ctx, batchID, batch, lastErr)
}

// dropBatch records the delivery failure and abandons the batch.
func (b *Batcher) dropBatch(ctx context.Context, batchID string, batch []Pending, cause error) {
	attempts := batch[0].Attempts

	b.metrics.RecordDeliveryFailure()
	b.metrics.RecordNotificationDropped(len(batch))
	slog.Error("Dropping notification batch after failed delivery",
		"batch_id", batchID,
		"count", len(batch),
		"attempts", attempts,
		"error", cause,
	)

	// The run context may already be cancelled during shutdown; the failure
	// still has to reach the activity log.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	entry := database.LogEntry{
		Type: database.LogTypeDeliveryFailure,
		Message: fmt.Sprintf("Failed to deliver notification batch %s (%d notifications) after %d attempts: %v",
			batchID, len(batch), attempts, cause),
	}
	if err := b.store.AppendLog(ctx, entry); err != nil {
		slog.Error("Failed to record delivery failure",
			"batch_id", batchID,
			"error", err,
		)
	}
}

// buildMessage combines a batch into one email, grouped by severity with the
// most severe first. An escalation in the batch takes over the subject line.
func (b *Batcher) buildMessage(batchID string, batch []Pending) transport.Message {
	top := rules.SeverityLow
	urgent := false
	for _, p := range batch {
		if p.Severity.Rank() > top.Rank() {
			top = p.Severity
		}
		if p.Urgent {
			urgent = true
		}
	}

	subject := fmt.Sprintf("FileSentry: %d notifications", len(batch))
	if urgent {
		subject = fmt.Sprintf("FileSentry: ESCALATION (%s)", top)
	}

	var sb strings.Builder
	sb.WriteString("File Activity Notifications\n")
	sb.WriteString("===========================\n\n")
	sb.WriteString(fmt.Sprintf("Batch ID: %s\n", batchID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n", b.now().UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Notifications: %d\n", len(batch)))

	for _, sev := range []rules.Severity{rules.SeverityCritical, rules.SeverityHigh, rules.SeverityMedium, rules.SeverityLow} {
		var lines []string
		for _, p := range batch {
			if p.Severity == sev {
				lines = append(lines, p.Message)
			}
		}
		if len(lines) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("\n%s (%d):\n", sev, len(lines)))
		for _, line := range lines {
			sb.WriteString(fmt.Sprintf("  - %s\n", line))
		}
	}

	return transport.Message{
		From:    b.from,
		To:      b.recipients,
		Subject: subject,
		Body:    sb.String(),
	}
}
