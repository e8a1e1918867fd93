// Package metrics collects runtime counters for the decision pipeline and
// reports them to Redis for centralized access. The Collector satisfies the
// Recorder interfaces of the engine, rule cache, learner, and notifier, so a
// single instance observes the whole pipeline.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"filesentry/internal/engine"
	"filesentry/internal/learner"
	"filesentry/internal/notifier"
	"filesentry/internal/rulecache"

	"github.com/redis/go-redis/v9"
)

const (
	// MetricsKeyPrefix is the Redis key prefix for service metrics.
	MetricsKeyPrefix = "metrics:"
	// MetricsTTL is how long metrics stay in Redis if not refreshed.
	MetricsTTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot is the metrics document written to Redis.
type Snapshot struct {
	ServiceName string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"`

	// Counters (monotonically increasing since start)
	EventsReceived     uint64 `json:"events_received"`
	EventsInvalid      uint64 `json:"events_invalid"`
	EventsDuplicate    uint64 `json:"events_duplicate"`
	DecisionsCommitted uint64 `json:"decisions_committed"`

	FeedbackReceived uint64 `json:"feedback_received"`
	FeedbackInvalid  uint64 `json:"feedback_invalid"`
	FeedbackApplied  uint64 `json:"feedback_applied"`
	WeightUpdates    uint64 `json:"weight_updates"`
	WeightConflicts  uint64 `json:"weight_conflicts"`

	NotificationsEnqueued  uint64 `json:"notifications_enqueued"`
	NotificationsDropped   uint64 `json:"notifications_dropped"`
	NotificationsDelivered uint64 `json:"notifications_delivered"`
	BatchesDelivered       uint64 `json:"batches_delivered"`
	DeliveryFailures       uint64 `json:"delivery_failures"`

	CacheRefreshes       uint64 `json:"cache_refreshes"`
	CacheRefreshFailures uint64 `json:"cache_refresh_failures"`
	CacheInvalidations   uint64 `json:"cache_invalidations"`

	// Rates (per report interval)
	DecisionsPerSecond float64 `json:"decisions_per_second"`

	// Latencies (averages in nanoseconds)
	AvgDecisionLatencyNs float64 `json:"avg_decision_latency_ns"`
}

// Collector collects pipeline counters and periodically reports them.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration
	now            func() time.Time

	eventsReceived     atomic.Uint64
	eventsInvalid      atomic.Uint64
	eventsDuplicate    atomic.Uint64
	decisionsCommitted atomic.Uint64

	feedbackReceived atomic.Uint64
	feedbackInvalid  atomic.Uint64
	feedbackApplied  atomic.Uint64
	weightUpdates    atomic.Uint64
	weightConflicts  atomic.Uint64

	notificationsEnqueued  atomic.Uint64
	notificationsDropped   atomic.Uint64
	notificationsDelivered atomic.Uint64
	batchesDelivered       atomic.Uint64
	deliveryFailures       atomic.Uint64

	cacheRefreshes       atomic.Uint64
	cacheRefreshFailures atomic.Uint64
	cacheInvalidations   atomic.Uint64

	// Decision latency tracking
	totalLatencyNs atomic.Uint64
	latencyCount   atomic.Uint64

	// Rate calculation state, updated on each report
	reportMu           sync.Mutex
	lastReportTime     time.Time
	lastCommittedCount uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

var (
	_ engine.Recorder    = (*Collector)(nil)
	_ notifier.Recorder  = (*Collector)(nil)
	_ rulecache.Recorder = (*Collector)(nil)
	_ learner.Recorder   = (*Collector)(nil)
)

// NewCollector creates a metrics collector. A nil Redis client is allowed;
// counters are then kept in memory only and nothing is reported.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	now := time.Now().UTC()
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      now,
		reportInterval: DefaultReportInterval,
		now:            time.Now,
		lastReportTime: now,
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.writeSnapshot(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.writeSnapshot(context.Background()) // Final write
				return
			case <-ticker.C:
				c.writeSnapshot(ctx)
			}
		}
	}()
}

// Stop stops the metrics reporting.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) RecordEventReceived()  { c.eventsReceived.Add(1) }
func (c *Collector) RecordEventInvalid()   { c.eventsInvalid.Add(1) }
func (c *Collector) RecordEventDuplicate() { c.eventsDuplicate.Add(1) }

// RecordDecisionCommitted counts one committed decision and tracks how long
// the commit path took.
func (c *Collector) RecordDecisionCommitted(elapsed time.Duration) {
	c.decisionsCommitted.Add(1)
	c.totalLatencyNs.Add(uint64(elapsed.Nanoseconds()))
	c.latencyCount.Add(1)
}

func (c *Collector) RecordFeedbackReceived() { c.feedbackReceived.Add(1) }
func (c *Collector) RecordFeedbackInvalid()  { c.feedbackInvalid.Add(1) }
func (c *Collector) RecordFeedbackApplied()  { c.feedbackApplied.Add(1) }

func (c *Collector) RecordWeightUpdate(n int) { c.weightUpdates.Add(uint64(n)) }
func (c *Collector) RecordWeightConflict()    { c.weightConflicts.Add(1) }

func (c *Collector) RecordNotificationEnqueued() { c.notificationsEnqueued.Add(1) }

func (c *Collector) RecordNotificationDropped(n int) {
	c.notificationsDropped.Add(uint64(n))
}

// RecordBatchDelivered counts one delivered batch of n notifications.
func (c *Collector) RecordBatchDelivered(n int) {
	c.batchesDelivered.Add(1)
	c.notificationsDelivered.Add(uint64(n))
}

func (c *Collector) RecordDeliveryFailure() { c.deliveryFailures.Add(1) }

func (c *Collector) RecordCacheRefresh()        { c.cacheRefreshes.Add(1) }
func (c *Collector) RecordCacheRefreshFailure() { c.cacheRefreshFailures.Add(1) }
func (c *Collector) RecordCacheInvalidation()   { c.cacheInvalidations.Add(1) }

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *Snapshot {
	now := c.now().UTC()
	committed := c.decisionsCommitted.Load()

	c.reportMu.Lock()
	elapsed := now.Sub(c.lastReportTime).Seconds()
	lastCommitted := c.lastCommittedCount
	c.reportMu.Unlock()

	var rate float64
	if elapsed > 0 {
		rate = float64(committed-lastCommitted) / elapsed
	}

	var avgLatencyNs float64
	if count := c.latencyCount.Load(); count > 0 {
		avgLatencyNs = float64(c.totalLatencyNs.Load()) / float64(count)
	}

	return &Snapshot{
		ServiceName: c.serviceName,
		StartedAt:   c.startedAt,
		LastUpdated: now,
		Status:      "healthy",

		EventsReceived:     c.eventsReceived.Load(),
		EventsInvalid:      c.eventsInvalid.Load(),
		EventsDuplicate:    c.eventsDuplicate.Load(),
		DecisionsCommitted: committed,

		FeedbackReceived: c.feedbackReceived.Load(),
		FeedbackInvalid:  c.feedbackInvalid.Load(),
		FeedbackApplied:  c.feedbackApplied.Load(),
		WeightUpdates:    c.weightUpdates.Load(),
		WeightConflicts:  c.weightConflicts.Load(),

		NotificationsEnqueued:  c.notificationsEnqueued.Load(),
		NotificationsDropped:   c.notificationsDropped.Load(),
		NotificationsDelivered: c.notificationsDelivered.Load(),
		BatchesDelivered:       c.batchesDelivered.Load(),
		DeliveryFailures:       c.deliveryFailures.Load(),

		CacheRefreshes:       c.cacheRefreshes.Load(),
		CacheRefreshFailures: c.cacheRefreshFailures.Load(),
		CacheInvalidations:   c.cacheInvalidations.Load(),

		DecisionsPerSecond:   rate,
		AvgDecisionLatencyNs: avgLatencyNs,
	}
}

// writeSnapshot writes current metrics to Redis. Latency counters are never
// reset, so the reported average covers the whole process lifetime.
func (c *Collector) writeSnapshot(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snap := c.GetSnapshot()

	c.reportMu.Lock()
	c.lastReportTime = snap.LastUpdated
	c.lastCommittedCount = snap.DecisionsCommitted
	c.reportMu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.serviceName, "error", err)
		return
	}

	key := MetricsKeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, MetricsTTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.serviceName, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "service", c.serviceName, "key", key)
}

// ConnectRedis creates and validates a Redis connection.
// Returns the client and nil on success, or nil and an error on failure.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return client, nil
}
