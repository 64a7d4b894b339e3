package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/principal"
)

const testPrefix = "authguard:test:"

func newTestRedis[V any](t *testing.T, opts ...Option[V]) (*Redis[V], *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedis[V](client, testPrefix, true, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

// TestRedis_PutGet tests the basic hit/miss path and key hashing.
func TestRedis_PutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, mr := newTestRedis[string](t)

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Put(ctx, "sk-raw-credential", "v", time.Minute)
	got, ok := c.Get(ctx, "sk-raw-credential")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, testPrefix+HashKey("sk-raw-credential"), keys[0])
	assert.NotContains(t, keys[0], "sk-raw-credential")
}

// TestRedis_TTL tests that entries expire with the server-side TTL.
func TestRedis_TTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, mr := newTestRedis[int](t, WithDefaultTTL[int](time.Minute))

	c.PutDefault(ctx, "k", 7)
	assert.Equal(t, time.Minute, mr.TTL(testPrefix+HashKey("k")))

	mr.FastForward(30 * time.Second)
	assert.True(t, c.Exists(ctx, "k"))

	mr.FastForward(30 * time.Second)
	assert.False(t, c.Exists(ctx, "k"))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

// TestRedis_NonPositiveTTL tests that a zero TTL stores nothing.
func TestRedis_NonPositiveTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, mr := newTestRedis[string](t)

	c.Put(ctx, "k", "v", 0)
	assert.Empty(t, mr.Keys())
}

// TestRedis_EvictExpireClear tests the mutation operations.
func TestRedis_EvictExpireClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, mr := newTestRedis[string](t)

	c.Put(ctx, "a", "1", time.Minute)
	c.Evict(ctx, "a")
	assert.False(t, c.Exists(ctx, "a"))

	assert.False(t, c.Expire(ctx, "missing", time.Hour))
	c.Put(ctx, "b", "2", time.Minute)
	assert.True(t, c.Expire(ctx, "b", time.Hour))
	assert.Equal(t, time.Hour, mr.TTL(testPrefix+HashKey("b")))
	assert.True(t, c.Expire(ctx, "b", 0))
	assert.False(t, c.Exists(ctx, "b"))

	require.NoError(t, mr.Set("unrelated", "keep"))
	for _, k := range []string{"x", "y", "z"} {
		c.Put(ctx, k, k, time.Minute)
	}
	c.Clear(ctx)
	assert.Equal(t, []string{"unrelated"}, mr.Keys())
}

// TestRedis_ClearWithoutPrefix tests that an unprefixed cache leaves the
// shared keyspace alone.
func TestRedis_ClearWithoutPrefix(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedis[string](client, "", true)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, mr.Set("tenant-b:session", "keep"))
	c.Put(ctx, "a", "1", time.Minute)
	c.Clear(ctx)

	assert.True(t, mr.Exists("tenant-b:session"))
	assert.True(t, c.Exists(ctx, "a"))
}

// TestRedis_PrincipalEncoding tests that the secret value and usage never
// reach Redis while the rest of the principal round-trips.
func TestRedis_PrincipalEncoding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, mr := newTestRedis[*principal.Info](t)

	p := &principal.Info{
		ID:          "svc-a",
		SecretValue: "sk-secret",
		Enabled:     true,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Permissions: principal.NewPermissionSet("read", "write"),
		Usage:       principal.NewUsageRegistry().For("svc-a"),
	}
	c.Put(ctx, "sk-secret", p, time.Minute)

	raw, err := mr.Get(testPrefix + HashKey("sk-secret"))
	require.NoError(t, err)
	assert.NotContains(t, raw, "sk-secret")

	got, ok := c.Get(ctx, "sk-secret")
	require.True(t, ok)
	assert.Equal(t, "svc-a", got.ID)
	assert.Empty(t, got.SecretValue)
	assert.Nil(t, got.Usage)
	assert.True(t, got.Permissions.Has("write"))
	assert.True(t, got.CreatedAt.Equal(p.CreatedAt))
}

// TestRedis_BackendFailureIsMiss tests that an unreachable server degrades
// every read to a miss and counts the error.
func TestRedis_BackendFailureIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis[string](t, WithOpTimeout[string](100*time.Millisecond))

	c.Put(ctx, "k", "v", time.Minute)
	mr.Close()

	before := testutil.ToFloat64(GetMetrics().errors.WithLabelValues(BackendRedis, "get"))

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, c.Exists(ctx, "k"))
	assert.False(t, c.Expire(ctx, "k", time.Minute))
	c.Put(ctx, "k2", "v", time.Minute)
	c.Evict(ctx, "k")
	c.Clear(ctx)

	after := testutil.ToFloat64(GetMetrics().errors.WithLabelValues(BackendRedis, "get"))
	assert.GreaterOrEqual(t, after-before, 1.0)
}

// TestRedis_CorruptValueIsMiss tests that an undecodable value is a miss.
func TestRedis_CorruptValueIsMiss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, mr := newTestRedis[map[string]int](t)

	require.NoError(t, mr.Set(testPrefix+HashKey("k"), "not-json"))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

// TestNew_Redis tests that New connects to the configured server and
// applies the key prefix.
func TestNew_Redis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c, err := New[string](config.CacheConfig{
		Type:  config.BackendRedis,
		Redis: config.RedisConfig{URL: "redis://" + mr.Addr(), KeyPrefix: "cfg:"},
	}, "")
	require.NoError(t, err)
	defer c.Close()

	c.Put(context.Background(), "k", "v", time.Minute)
	assert.Equal(t, []string{"cfg:" + HashKey("k")}, mr.Keys())

	_, err = New[string](config.CacheConfig{
		Type:  config.BackendRedis,
		Redis: config.RedisConfig{URL: "://bad"},
	}, "")
	assert.Error(t, err)
}

func TestMetrics_Register(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := GetMetrics()
	m.Init()
	m.MustRegister(registry)

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
