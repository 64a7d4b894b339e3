package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authguard/internal/audit"
	"github.com/vyrodovalexey/authguard/internal/config"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (s *recordingSink) Publish(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

type engineFixture struct {
	engine  *Engine
	store   *audit.MemoryStore
	sink    *recordingSink
	clock   *testClock
	metrics *Metrics
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:   audit.NewMemoryStore(0),
		sink:    &recordingSink{},
		clock:   &testClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	f.engine = NewEngine(f.store, f.sink, config.Default().Alert,
		WithEngineClock(f.clock.Now),
		WithEngineMetrics(f.metrics),
	)
	t.Cleanup(func() { _ = f.store.Close() })
	return f
}

func (f *engineFixture) add(t *testing.T, e audit.Event) {
	t.Helper()
	if e.Timestamp.IsZero() {
		e.Timestamp = f.clock.Now()
	}
	if e.ID == "" {
		e.ID = audit.NewEventID()
	}
	require.NoError(t, f.store.Append(context.Background(), e))
}

func failure(ip string) audit.Event {
	return audit.Event{
		Type:          audit.EventAuthenticationFailure,
		ClientIP:      ip,
		Action:        audit.ActionAuthenticate,
		FailureReason: "not_found",
	}
}

// TestEngine_AuthFailureSpikeCooldown walks the threshold and cooldown
// sequence: four failures raise nothing, the fifth raises one alert, later
// failures stay silent until the cooldown has elapsed.
func TestEngine_AuthFailureSpikeCooldown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	var firedAt []int
	for i := 1; i <= 70; i++ {
		f.add(t, failure("203.0.113.7"))
		a, err := f.engine.CheckAuthFailureSpike(ctx)
		require.NoError(t, err)
		if a != nil {
			firedAt = append(firedAt, i)
			assert.Equal(t, TypeAuthFailureSpike, a.Type)
			assert.Equal(t, SeverityHigh, a.Severity)
			assert.Equal(t, StatusActive, a.Status)
			assert.NotEmpty(t, a.ID)
		}
		f.clock.Advance(15 * time.Second)
	}

	// 5th failure at 60s; cooldown ends 15m later at the 65th failure
	assert.Equal(t, []int{5, 65}, firedAt)
	assert.Equal(t, 2, f.sink.Len())
	assert.Equal(t, float64(64), testutil.ToFloat64(f.metrics.suppressed.WithLabelValues(TypeAuthFailureSpike)))

	stats := f.engine.Stats()
	assert.Equal(t, int64(2), stats.AlertCounts[TypeAuthFailureSpike])
	assert.Equal(t, int64(2), stats.TotalAlerts)
	assert.Equal(t, 1, stats.ActiveAlertsLast24Hours)
}

func TestEngine_AuthFailureWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 4; i++ {
		f.add(t, failure("198.51.100.1"))
	}
	f.clock.Advance(6 * time.Minute)
	f.add(t, failure("198.51.100.1"))

	a, err := f.engine.CheckAuthFailureSpike(ctx)
	require.NoError(t, err)
	assert.Nil(t, a, "failures outside the window must not count")

	f.add(t, audit.Event{Type: audit.EventAuthenticationSuccess, Success: true})
	a, err = f.engine.CheckAuthFailureSpike(ctx)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestEngine_SuspiciousIP(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 9; i++ {
		f.add(t, failure("203.0.113.50"))
		f.add(t, failure("198.51.100.9"))
	}
	a, err := f.engine.CheckSuspiciousIP(ctx)
	require.NoError(t, err)
	assert.Nil(t, a)

	f.add(t, failure("203.0.113.50"))
	f.add(t, failure("203.0.113.50"))
	f.add(t, failure("198.51.100.9"))

	a, err = f.engine.CheckSuspiciousIP(ctx)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, TypeSuspiciousIP, a.Type)
	assert.Equal(t, "203.0.***.50", a.Data["clientIp"])
	assert.Equal(t, 11, a.Data["failureCount"])
	assert.Equal(t, 2, a.Data["suspiciousIps"])
	assert.NotContains(t, a.Description, "203.0.113.50")

	a, err = f.engine.CheckSuspiciousIP(ctx)
	require.NoError(t, err)
	assert.Nil(t, a, "cooldown is per alert type")
}

func TestEngine_SanitizationAnomaly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 99; i++ {
		f.add(t, audit.SanitizationEvent("svc-a", "10.0.0.1", "/v1/chat", 1))
	}
	a, err := f.engine.CheckSanitizationAnomaly(ctx)
	require.NoError(t, err)
	assert.Nil(t, a)

	f.add(t, audit.SanitizationEvent("svc-a", "10.0.0.1", "/v1/chat", 1))
	a, err = f.engine.CheckSanitizationAnomaly(ctx)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, SeverityMedium, a.Severity)
	assert.Equal(t, 100, a.Data["sanitizationCount"])
}

func TestEngine_TokenAnomaly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	jwtFailure := audit.Event{Type: audit.EventAuthenticationFailure, Action: audit.ActionJWTAuthenticate}
	for i := 0; i < 19; i++ {
		f.add(t, jwtFailure)
	}
	// static key failures and successful token events do not count
	for i := 0; i < 10; i++ {
		f.add(t, failure("10.1.1.1"))
		f.add(t, audit.Event{Type: audit.EventJWTRevoked, Action: audit.ActionJWTRevoke, Success: true})
	}
	a, err := f.engine.CheckTokenAnomaly(ctx)
	require.NoError(t, err)
	assert.Nil(t, a)

	f.add(t, jwtFailure)
	a, err = f.engine.CheckTokenAnomaly(ctx)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, TypeJWTAnomaly, a.Type)
	assert.Equal(t, 20, a.Data["jwtFailureCount"])
}

func TestEngine_RunChecksAndReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 10; i++ {
		f.add(t, failure("203.0.113.1"))
	}
	alerts := f.engine.RunChecks(ctx)
	require.Len(t, alerts, 2)
	assert.Equal(t, TypeAuthFailureSpike, alerts[0].Type)
	assert.Equal(t, TypeSuspiciousIP, alerts[1].Type)

	assert.Empty(t, f.engine.RunChecks(ctx))

	f.engine.Reset()
	stats := f.engine.Stats()
	assert.Zero(t, stats.TotalAlerts)
	assert.Empty(t, stats.LastAlertTimes)

	assert.Len(t, f.engine.RunChecks(ctx), 2, "reset clears cooldowns")
}

// slowSink blocks each publish until its context ends and records whether
// the context had already ended on entry.
type slowSink struct {
	mu      sync.Mutex
	expired []bool
}

func (s *slowSink) Publish(ctx context.Context, _ Alert) error {
	s.mu.Lock()
	s.expired = append(s.expired, ctx.Err() != nil)
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (s *slowSink) Close() error { return nil }

func TestEngine_RunChecksTimeoutPerCheck(t *testing.T) {
	t.Parallel()

	store := audit.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })
	clock := &testClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	sink := &slowSink{}
	engine := NewEngine(store, sink, config.Default().Alert,
		WithEngineClock(clock.Now),
		WithEngineMetrics(NewMetrics(prometheus.NewRegistry())),
		WithCheckTimeout(30*time.Millisecond),
	)

	for i := 0; i < 10; i++ {
		e := failure("203.0.113.1")
		e.ID = audit.NewEventID()
		e.Timestamp = clock.Now()
		require.NoError(t, store.Append(context.Background(), e))
	}

	alerts := engine.RunChecks(context.Background())
	require.Len(t, alerts, 2)
	assert.Equal(t, TypeSuspiciousIP, alerts[1].Type)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []bool{false, false}, sink.expired, "a slow publish must not use up later checks' time")
}

func TestEngine_PublishErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.sink.err = errors.New("broker down")

	for i := 0; i < 5; i++ {
		f.add(t, failure("203.0.113.1"))
	}
	a, err := f.engine.CheckAuthFailureSpike(ctx)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.publishErrors.WithLabelValues(TypeAuthFailureSpike)))
}

func TestEngine_StoreError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.store.Close())

	_, err := f.engine.CheckAuthFailureSpike(context.Background())
	assert.ErrorIs(t, err, audit.ErrStoreClosed)
	assert.Empty(t, f.engine.RunChecks(context.Background()))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.checkErrors.WithLabelValues(TypeAuthFailureSpike)))
}

func TestEngine_Stats24h(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.add(t, failure("203.0.113.1"))
	}
	_, err := f.engine.CheckAuthFailureSpike(context.Background())
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)
	stats := f.engine.Stats()
	assert.Equal(t, int64(1), stats.TotalAlerts)
	assert.Zero(t, stats.ActiveAlertsLast24Hours)
}

func TestMaskIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", "unknown"},
		{"192.168.1.42", "192.168.***.42"},
		{"2001:db8::8a2e:370:7334", "2001****7334"},
		{"::1", "****"},
		{"short", "****"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskIP(tt.in), tt.in)
	}
}
