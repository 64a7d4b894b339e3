package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authguard/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemory[V any](t *testing.T, clock *fakeClock, opts ...Option[V]) *Memory[V] {
	t.Helper()
	opts = append([]Option[V]{
		WithClock[V](clock.Now),
		WithSweepInterval[V](time.Hour),
	}, opts...)
	c := NewMemory[V](opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// TestMemory_PutGet tests the basic hit/miss path.
func TestMemory_PutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestMemory[string](t, newFakeClock())

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Put(ctx, "k", "v", time.Minute)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
	assert.True(t, c.Exists(ctx, "k"))

	c.Put(ctx, "k", "v2", time.Minute)
	got, _ = c.Get(ctx, "k")
	assert.Equal(t, "v2", got)
}

// TestMemory_Expiry tests that an entry is absent exactly at its expiry
// instant and is removed on read.
func TestMemory_Expiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	c := newTestMemory[int](t, clock)

	c.Put(ctx, "k", 1, 10*time.Second)

	clock.Advance(10*time.Second - time.Nanosecond)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(time.Nanosecond)
	assert.False(t, c.Exists(ctx, "k"))
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry should be removed on read")
}

// TestMemory_NonPositiveTTL tests that a zero or negative TTL stores nothing.
func TestMemory_NonPositiveTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestMemory[string](t, newFakeClock())

	c.Put(ctx, "zero", "v", 0)
	c.Put(ctx, "neg", "v", -time.Second)

	assert.False(t, c.Exists(ctx, "zero"))
	assert.False(t, c.Exists(ctx, "neg"))
	assert.Equal(t, 0, c.Len())
}

// TestMemory_PutDefault tests the configured default TTL.
func TestMemory_PutDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	c := newTestMemory[string](t, clock, WithDefaultTTL[string](time.Minute))

	c.PutDefault(ctx, "k", "v")
	clock.Advance(59 * time.Second)
	assert.True(t, c.Exists(ctx, "k"))
	clock.Advance(time.Second)
	assert.False(t, c.Exists(ctx, "k"))
}

// TestMemory_EvictExpireClear tests the mutation operations.
func TestMemory_EvictExpireClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	c := newTestMemory[string](t, clock)

	c.Put(ctx, "a", "1", time.Minute)
	c.Put(ctx, "b", "2", time.Minute)

	c.Evict(ctx, "a")
	assert.False(t, c.Exists(ctx, "a"))
	c.Evict(ctx, "a")

	assert.False(t, c.Expire(ctx, "missing", time.Hour))
	assert.True(t, c.Expire(ctx, "b", time.Hour))
	clock.Advance(30 * time.Minute)
	assert.True(t, c.Exists(ctx, "b"), "expire should extend the entry")

	assert.True(t, c.Expire(ctx, "b", 0))
	assert.False(t, c.Exists(ctx, "b"))

	c.Put(ctx, "x", "1", time.Minute)
	c.Put(ctx, "y", "2", time.Minute)
	c.Clear(ctx)
	assert.Equal(t, 0, c.Len())
}

// TestMemory_Sweep tests that Sweep removes only expired entries.
func TestMemory_Sweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	c := newTestMemory[string](t, clock)

	c.Put(ctx, "short", "v", time.Second)
	c.Put(ctx, "long", "v", time.Hour)

	assert.Equal(t, 0, c.Sweep())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Exists(ctx, "long"))
}

// TestMemory_Clone tests that stored values are isolated from callers.
func TestMemory_Clone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cloneMap := func(m map[string]string) map[string]string {
		out := make(map[string]string, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	c := newTestMemory[map[string]string](t, newFakeClock(), WithClone(cloneMap))

	in := map[string]string{"role": "read"}
	c.Put(ctx, "k", in, time.Minute)
	in["role"] = "admin"

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "read", got["role"])

	got["role"] = "admin"
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, "read", again["role"])
}

// TestMemory_Concurrent exercises the cache from many goroutines.
func TestMemory_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestMemory[int](t, newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := string(rune('a' + (i+j)%8))
				c.Put(ctx, key, j, time.Minute)
				c.Get(ctx, key)
				if j%10 == 0 {
					c.Evict(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}

// TestMemory_CloseIdempotent tests that Close can be called twice.
func TestMemory_CloseIdempotent(t *testing.T) {
	t.Parallel()

	c := NewMemory[string](WithSweepInterval[string](time.Millisecond))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

// TestNew tests backend selection.
func TestNew(t *testing.T) {
	t.Parallel()

	c, err := New[string](config.CacheConfig{Type: config.BackendMemory}, "")
	require.NoError(t, err)
	_, isMemory := c.(*Memory[string])
	assert.True(t, isMemory)
	require.NoError(t, c.Close())

	_, err = New[string](config.CacheConfig{Type: "bogus"}, "")
	assert.Error(t, err)
}

func TestHashKey(t *testing.T) {
	t.Parallel()

	h := HashKey("sk-secret")
	assert.Len(t, h, 64)
	assert.NotContains(t, h, "sk-secret")
	assert.Equal(t, h, HashKey("sk-secret"))
	assert.NotEqual(t, h, HashKey("sk-secret2"))
}

func TestEntry_Expired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	assert.True(t, Entry[int]{ExpiresAt: now}.Expired(now))
	assert.False(t, Entry[int]{ExpiresAt: now.Add(time.Second)}.Expired(now))
}
