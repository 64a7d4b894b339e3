package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/authguard/internal/observability"
)

// Memory is the in-process ValidationCache backend.
type Memory[V any] struct {
	opts options[V]

	mu      sync.Mutex
	entries map[string]Entry[V]

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewMemory creates a memory cache and starts its sweep loop.
func NewMemory[V any](opts ...Option[V]) *Memory[V] {
	o := buildOptions(opts)
	if o.sweepInterval <= 0 {
		o.sweepInterval = 5 * time.Minute
	}

	c := &Memory[V]{
		opts:    o,
		entries: make(map[string]Entry[V]),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go c.sweepLoop()

	o.logger.Info("memory validation cache initialized",
		observability.Duration("default_ttl", o.defaultTTL),
		observability.Duration("sweep_interval", o.sweepInterval),
	)
	return c
}

func (c *Memory[V]) span(ctx context.Context, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "cache."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("cache.backend", BackendMemory)),
	)
}

func observe(backend, op string, start time.Time) {
	GetMetrics().duration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

func (c *Memory[V]) copyOf(v V) V {
	if c.opts.clone != nil {
		return c.opts.clone(v)
	}
	return v
}

// Get implements ValidationCache. Expired entries are removed on read.
func (c *Memory[V]) Get(ctx context.Context, key string) (V, bool) {
	_, span := c.span(ctx, "Get")
	defer span.End()
	defer observe(BackendMemory, "get", time.Now())

	var zero V
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && entry.Expired(c.opts.now()) {
		delete(c.entries, key)
		c.mu.Unlock()
		GetMetrics().evictions.WithLabelValues(BackendMemory).Inc()
		ok = false
	} else {
		c.mu.Unlock()
	}

	if !ok {
		GetMetrics().misses.WithLabelValues(BackendMemory).Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return zero, false
	}

	GetMetrics().hits.WithLabelValues(BackendMemory).Inc()
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return c.copyOf(entry.Value), true
}

// Put implements ValidationCache. A non-positive ttl stores nothing.
func (c *Memory[V]) Put(ctx context.Context, key string, value V, ttl time.Duration) {
	_, span := c.span(ctx, "Put")
	defer span.End()
	defer observe(BackendMemory, "put", time.Now())

	if ttl <= 0 {
		return
	}

	entry := Entry[V]{Value: c.copyOf(value), ExpiresAt: c.opts.now().Add(ttl)}

	c.mu.Lock()
	c.entries[key] = entry
	n := len(c.entries)
	c.mu.Unlock()

	GetMetrics().size.WithLabelValues(BackendMemory).Set(float64(n))
}

// PutDefault implements ValidationCache.
func (c *Memory[V]) PutDefault(ctx context.Context, key string, value V) {
	c.Put(ctx, key, value, c.opts.defaultTTL)
}

// Evict implements ValidationCache.
func (c *Memory[V]) Evict(ctx context.Context, key string) {
	_, span := c.span(ctx, "Evict")
	defer span.End()
	defer observe(BackendMemory, "evict", time.Now())

	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if ok {
		GetMetrics().evictions.WithLabelValues(BackendMemory).Inc()
	}
}

// Exists implements ValidationCache.
func (c *Memory[V]) Exists(ctx context.Context, key string) bool {
	_, span := c.span(ctx, "Exists")
	defer span.End()
	defer observe(BackendMemory, "exists", time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	return ok && !entry.Expired(c.opts.now())
}

// Expire implements ValidationCache.
func (c *Memory[V]) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	_, span := c.span(ctx, "Expire")
	defer span.End()
	defer observe(BackendMemory, "expire", time.Now())

	now := c.opts.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.Expired(now) {
		return false
	}
	if ttl <= 0 {
		delete(c.entries, key)
		return true
	}
	entry.ExpiresAt = now.Add(ttl)
	c.entries[key] = entry
	return true
}

// Clear implements ValidationCache.
func (c *Memory[V]) Clear(ctx context.Context) {
	_, span := c.span(ctx, "Clear")
	defer span.End()
	defer observe(BackendMemory, "clear", time.Now())

	c.mu.Lock()
	c.entries = make(map[string]Entry[V])
	c.mu.Unlock()

	GetMetrics().size.WithLabelValues(BackendMemory).Set(0)
}

// Len returns the number of physically held entries, expired included.
func (c *Memory[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the sweep loop.
func (c *Memory[V]) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		<-c.doneCh
	})
	return nil
}

func (c *Memory[V]) sweepLoop() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.opts.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Memory[V]) Sweep() int {
	now := c.opts.now()

	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		GetMetrics().evictions.WithLabelValues(BackendMemory).Add(float64(removed))
		c.opts.logger.Debug("swept expired cache entries",
			observability.Int("removed", removed),
			observability.Int("remaining", n),
		)
	}
	GetMetrics().size.WithLabelValues(BackendMemory).Set(float64(n))
	return removed
}
