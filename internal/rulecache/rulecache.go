// Package rulecache holds the active rule snapshot, refreshed from the
// backing store on a TTL. It is the single source of truth events are
// matched against.
package rulecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"filesentry/internal/retry"
	"filesentry/internal/rules"
)

// DefaultTTL is the maximum snapshot age before a Get triggers a refresh.
const DefaultTTL = 60 * time.Second

// ErrNotLoaded is returned by Get when no snapshot has ever been loaded and
// the attempt to load one failed. There is nothing stale to fall back to.
var ErrNotLoaded = errors.New("rule snapshot not loaded")

// Store loads the full rule set from the backing store.
type Store interface {
	LoadRules(ctx context.Context) ([]rules.Rule, error)
}

// Cache serves an immutable rule snapshot to concurrent evaluators. A Get on
// a stale snapshot refreshes synchronously in the calling goroutine; at most
// one refresh runs at a time, and callers that lose that race are served the
// prior snapshot immediately rather than waiting. A failed refresh is
// non-fatal: the stale snapshot continues to serve and staleness is
// observable through Age.
type Cache struct {
	store    Store
	ttl      time.Duration
	recorder Recorder
	retryCfg retry.Config
	now      func() time.Time

	mu          sync.RWMutex
	snapshot    []rules.Rule
	loadedAt    time.Time // zeroed by Invalidate to force the next refresh
	refreshedAt time.Time // last successful load, drives Age

	refreshMu sync.Mutex
}

// New creates a cache over the given store. A nil recorder disables metrics.
func New(store Store, ttl time.Duration, recorder Recorder) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if recorder == nil {
		recorder = &NoOpRecorder{}
	}
	return &Cache{
		store:    store,
		ttl:      ttl,
		recorder: recorder,
		retryCfg: retry.DefaultConfig(),
		now:      time.Now,
	}
}

// Load performs the blocking initial load. Unlike refreshes on the Get path
// there is no stale snapshot to fall back to, so failure is returned to the
// caller.
func (c *Cache) Load(ctx context.Context) error {
	return c.refresh(ctx)
}

// Get returns the current snapshot, refreshing first when the TTL has
// elapsed. Refresh failure is non-fatal once a snapshot exists: the stale
// snapshot is returned and staleness stays observable through Age. Only when
// no load has ever succeeded does the failure surface as an error. Callers
// must treat the returned slice as read-only; it is shared between all
// evaluators until the next swap.
func (c *Cache) Get(ctx context.Context) ([]rules.Rule, error) {
	c.mu.RLock()
	snapshot := c.snapshot
	loaded := !c.refreshedAt.IsZero()
	stale := c.now().Sub(c.loadedAt) >= c.ttl
	c.mu.RUnlock()

	if !stale {
		return snapshot, nil
	}

	if !c.refreshMu.TryLock() {
		// A refresh is in flight; serve the prior snapshot.
		if !loaded {
			return nil, ErrNotLoaded
		}
		return snapshot, nil
	}
	defer c.refreshMu.Unlock()

	// Re-check under the refresh lock: the previous holder may have
	// refreshed while this caller was acquiring it.
	c.mu.RLock()
	snapshot = c.snapshot
	loaded = !c.refreshedAt.IsZero()
	stale = c.now().Sub(c.loadedAt) >= c.ttl
	c.mu.RUnlock()
	if !stale {
		return snapshot, nil
	}

	if err := c.refresh(ctx); err != nil {
		if !loaded {
			return nil, fmt.Errorf("%w: %w", ErrNotLoaded, err)
		}
		slog.Error("Rule snapshot refresh failed, serving stale snapshot",
			"age", c.Age().Round(time.Millisecond),
			"rules_count", len(snapshot),
			"error", err,
		)
		return snapshot, nil
	}

	c.mu.RLock()
	snapshot = c.snapshot
	c.mu.RUnlock()
	return snapshot, nil
}

// Invalidate forces the next Get to refresh unconditionally. Called by the
// feedback learner after a weight write so evaluators pick up new weights
// without waiting out the TTL.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
	c.recorder.RecordCacheInvalidation()
	slog.Debug("Rule cache invalidated")
}

// Age returns the time since the last successful load. It keeps growing
// while refreshes fail, which is how unbounded staleness is observed.
func (c *Cache) Age() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.refreshedAt.IsZero() {
		return 0
	}
	return c.now().Sub(c.refreshedAt)
}

// Len returns the size of the current snapshot.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshot)
}

// refresh loads a new snapshot and swaps it in atomically. Transient store
// failures are retried with backoff before giving up.
func (c *Cache) refresh(ctx context.Context) error {
	var loaded []rules.Rule
	err := retry.WithRetry(ctx, c.retryCfg, "load rules", func() error {
		var loadErr error
		loaded, loadErr = c.store.LoadRules(ctx)
		return loadErr
	})
	if err != nil {
		c.recorder.RecordCacheRefreshFailure()
		return err
	}

	now := c.now()
	c.mu.Lock()
	c.snapshot = loaded
	c.loadedAt = now
	c.refreshedAt = now
	c.mu.Unlock()

	c.recorder.RecordCacheRefresh()
	slog.Debug("Loaded rule snapshot", "rules_count", len(loaded))
	return nil
}
