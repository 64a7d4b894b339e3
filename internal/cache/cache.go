package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
)

// Backend names used in metrics and spans.
const (
	BackendMemory = config.BackendMemory
	BackendRedis  = config.BackendRedis
)

const tracerName = "authguard/cache"

// DefaultOpTimeout bounds a single backend call when none is configured.
const DefaultOpTimeout = 200 * time.Millisecond

// ValidationCache maps keys to values with absolute expiry.
type ValidationCache[V any] interface {
	// Get returns the value and true, or the zero value and false when the
	// key is absent, expired or the backend failed.
	Get(ctx context.Context, key string) (V, bool)

	// Put stores value for ttl.
	Put(ctx context.Context, key string, value V, ttl time.Duration)

	// PutDefault stores value for the configured default TTL.
	PutDefault(ctx context.Context, key string, value V)

	// Evict removes key.
	Evict(ctx context.Context, key string)

	// Exists reports whether key holds an unexpired entry.
	Exists(ctx context.Context, key string) bool

	// Expire resets the expiry of an existing entry to now+ttl and reports
	// whether the entry existed.
	Expire(ctx context.Context, key string, ttl time.Duration) bool

	// Clear removes every entry owned by this cache.
	Clear(ctx context.Context)

	// Close releases background resources.
	Close() error
}

// Entry is a cached value with its absolute expiry.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// Expired reports whether the entry is logically absent at now.
func (e Entry[V]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

type options[V any] struct {
	defaultTTL    time.Duration
	sweepInterval time.Duration
	opTimeout     time.Duration
	clone         func(V) V
	logger        observability.Logger
	now           func() time.Time
}

// Option configures a cache.
type Option[V any] func(*options[V])

// WithDefaultTTL sets the TTL used by PutDefault.
func WithDefaultTTL[V any](ttl time.Duration) Option[V] {
	return func(o *options[V]) { o.defaultTTL = ttl }
}

// WithSweepInterval sets how often the memory backend removes expired
// entries.
func WithSweepInterval[V any](d time.Duration) Option[V] {
	return func(o *options[V]) { o.sweepInterval = d }
}

// WithOpTimeout bounds each backend call.
func WithOpTimeout[V any](d time.Duration) Option[V] {
	return func(o *options[V]) { o.opTimeout = d }
}

// WithClone makes the memory backend store and return independent copies.
func WithClone[V any](fn func(V) V) Option[V] {
	return func(o *options[V]) { o.clone = fn }
}

// WithLogger sets the logger.
func WithLogger[V any](logger observability.Logger) Option[V] {
	return func(o *options[V]) { o.logger = logger }
}

// WithClock overrides time.Now, for tests.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(o *options[V]) { o.now = now }
}

func buildOptions[V any](opts []Option[V]) options[V] {
	o := options[V]{
		defaultTTL:    time.Hour,
		sweepInterval: 5 * time.Minute,
		opTimeout:     DefaultOpTimeout,
		logger:        observability.NopLogger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New builds the backend selected by cfg.Type. keyPrefix namespaces Redis
// keys and overrides cfg.Redis.KeyPrefix when set.
func New[V any](cfg config.CacheConfig, keyPrefix string, opts ...Option[V]) (ValidationCache[V], error) {
	switch cfg.Type {
	case BackendMemory, "":
		opts = append([]Option[V]{WithSweepInterval[V](cfg.SweepInterval.Duration())}, opts...)
		return NewMemory[V](opts...), nil
	case BackendRedis:
		client, err := NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		if keyPrefix == "" {
			keyPrefix = cfg.Redis.KeyPrefix
		}
		return NewRedis[V](client, keyPrefix, true, opts...), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}

// NewRedisClient parses cfg.URL, applies pool settings and pings the server.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if d := cfg.DialTimeout.Duration(); d > 0 {
		opts.DialTimeout = d
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// HashKey returns the hex SHA-256 of key. Credentials are never used as
// external keys verbatim.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
