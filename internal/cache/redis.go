package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/authguard/internal/observability"
)

const clearScanCount = 500

// Redis is the distributed ValidationCache backend. Values are JSON encoded,
// so fields tagged json:"-" never reach Redis.
type Redis[V any] struct {
	opts      options[V]
	client    *redis.Client
	keyPrefix string
	ownClient bool
}

// NewRedis creates a Redis cache over client. When ownClient is true Close
// also closes the client.
func NewRedis[V any](client *redis.Client, keyPrefix string, ownClient bool, opts ...Option[V]) *Redis[V] {
	o := buildOptions(opts)
	o.logger.Info("redis validation cache initialized",
		observability.String("key_prefix", keyPrefix),
		observability.Duration("default_ttl", o.defaultTTL),
	)
	return &Redis[V]{
		opts:      o,
		client:    client,
		keyPrefix: keyPrefix,
		ownClient: ownClient,
	}
}

func (c *Redis[V]) key(key string) string {
	return c.keyPrefix + HashKey(key)
}

func (c *Redis[V]) begin(ctx context.Context, op string) (context.Context, context.CancelFunc, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cache.backend", BackendRedis)),
	)
	ctx, cancel := context.WithTimeout(ctx, c.opts.opTimeout)
	return ctx, cancel, span
}

func (c *Redis[V]) fail(span trace.Span, op string, err error) {
	GetMetrics().errors.WithLabelValues(BackendRedis, op).Inc()
	observability.RecordError(span, err)
	c.opts.logger.Warn("redis cache operation failed, treating as miss",
		observability.String("operation", op),
		observability.Error(err),
	)
}

// Get implements ValidationCache.
func (c *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	ctx, cancel, span := c.begin(ctx, "Get")
	defer span.End()
	defer cancel()
	defer observe(BackendRedis, "get", time.Now())

	var zero V
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		GetMetrics().misses.WithLabelValues(BackendRedis).Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return zero, false
	}
	if err != nil {
		c.fail(span, "get", err)
		GetMetrics().misses.WithLabelValues(BackendRedis).Inc()
		return zero, false
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		c.fail(span, "get", err)
		GetMetrics().misses.WithLabelValues(BackendRedis).Inc()
		return zero, false
	}

	GetMetrics().hits.WithLabelValues(BackendRedis).Inc()
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return v, true
}

// Put implements ValidationCache. Failures are logged and not retried.
func (c *Redis[V]) Put(ctx context.Context, key string, value V, ttl time.Duration) {
	ctx, cancel, span := c.begin(ctx, "Put")
	defer span.End()
	defer cancel()
	defer observe(BackendRedis, "put", time.Now())

	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.fail(span, "put", err)
		return
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		c.fail(span, "put", err)
	}
}

// PutDefault implements ValidationCache.
func (c *Redis[V]) PutDefault(ctx context.Context, key string, value V) {
	c.Put(ctx, key, value, c.opts.defaultTTL)
}

// Evict implements ValidationCache.
func (c *Redis[V]) Evict(ctx context.Context, key string) {
	ctx, cancel, span := c.begin(ctx, "Evict")
	defer span.End()
	defer cancel()
	defer observe(BackendRedis, "evict", time.Now())

	n, err := c.client.Del(ctx, c.key(key)).Result()
	if err != nil {
		c.fail(span, "evict", err)
		return
	}
	if n > 0 {
		GetMetrics().evictions.WithLabelValues(BackendRedis).Inc()
	}
}

// Exists implements ValidationCache.
func (c *Redis[V]) Exists(ctx context.Context, key string) bool {
	ctx, cancel, span := c.begin(ctx, "Exists")
	defer span.End()
	defer cancel()
	defer observe(BackendRedis, "exists", time.Now())

	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		c.fail(span, "exists", err)
		return false
	}
	return n > 0
}

// Expire implements ValidationCache.
func (c *Redis[V]) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	ctx, cancel, span := c.begin(ctx, "Expire")
	defer span.End()
	defer cancel()
	defer observe(BackendRedis, "expire", time.Now())

	if ttl <= 0 {
		n, err := c.client.Del(ctx, c.key(key)).Result()
		if err != nil {
			c.fail(span, "expire", err)
			return false
		}
		return n > 0
	}

	ok, err := c.client.Expire(ctx, c.key(key), ttl).Result()
	if err != nil {
		c.fail(span, "expire", err)
		return false
	}
	return ok
}

// Clear implements ValidationCache by deleting every key under the prefix.
// Without a prefix it does nothing, as the keyspace may be shared.
func (c *Redis[V]) Clear(ctx context.Context) {
	if c.keyPrefix == "" {
		c.opts.logger.Warn("redis cache has no key prefix, refusing to clear")
		return
	}

	ctx, cancel, span := c.begin(ctx, "Clear")
	defer span.End()
	defer cancel()
	defer observe(BackendRedis, "clear", time.Now())

	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", clearScanCount).Iterator()
	batch := make([]string, 0, clearScanCount)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == clearScanCount {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				c.fail(span, "clear", err)
				return
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.fail(span, "clear", err)
		return
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			c.fail(span, "clear", err)
		}
	}
}

// Close closes the client when the cache owns it.
func (c *Redis[V]) Close() error {
	if c.ownClient {
		return c.client.Close()
	}
	return nil
}
