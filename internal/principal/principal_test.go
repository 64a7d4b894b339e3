package principal

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authguard/internal/config"
)

func TestInfo_Valid(t *testing.T) {
	t.Parallel()

	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name      string
		enabled   bool
		expiresAt *time.Time
		want      bool
	}{
		{"enabled no expiry", true, nil, true},
		{"enabled future expiry", true, &future, true},
		{"enabled expired", true, &past, false},
		{"expires exactly now", true, &now, false},
		{"disabled", false, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &Info{Enabled: tt.enabled, ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, p.Valid(now))
		})
	}
}

func TestInfo_JSONExcludesSecret(t *testing.T) {
	t.Parallel()

	p := &Info{
		ID:          "billing",
		SecretValue: "sk-secret",
		Enabled:     true,
		Permissions: NewPermissionSet("write", "read"),
		Usage:       &UsageStatistics{},
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.Contains(t, string(data), `"permissions":["read","write"]`)

	var back Info
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "billing", back.ID)
	assert.Empty(t, back.SecretValue)
	assert.True(t, back.Permissions.Has("write"))
	assert.Nil(t, back.Usage)
}

func TestInfo_Clone(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour)
	p := &Info{
		ID:          "a",
		ExpiresAt:   &exp,
		Permissions: NewPermissionSet("read"),
		Metadata:    map[string]interface{}{"team": "x"},
	}

	c := p.Clone()
	c.Permissions["write"] = struct{}{}
	c.Metadata["team"] = "y"
	*c.ExpiresAt = exp.Add(time.Hour)

	assert.False(t, p.Permissions.Has("write"))
	assert.Equal(t, "x", p.Metadata["team"])
	assert.Equal(t, exp, *p.ExpiresAt)
	assert.Nil(t, (*Info)(nil).Clone())
}

func TestFromSpec(t *testing.T) {
	t.Parallel()

	disabled := false
	now := time.Now()
	p := FromSpec(config.PrincipalSpec{
		ID:          "svc",
		Value:       "sk-1",
		Enabled:     &disabled,
		Permissions: []string{"read", ""},
	}, now)

	assert.Equal(t, "svc", p.ID)
	assert.Equal(t, "sk-1", p.SecretValue)
	assert.False(t, p.Enabled)
	assert.Equal(t, now, p.CreatedAt)
	assert.Equal(t, []string{"read"}, p.Permissions.List())
}

func TestUsageStatistics_Concurrent(t *testing.T) {
	t.Parallel()

	u := &UsageStatistics{}
	assert.Zero(t, u.SuccessRate())
	assert.True(t, u.LastUsedAt().IsZero())

	now := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				u.Record(i%2 == 0, now)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1000), u.TotalRequests())
	assert.Equal(t, int64(500), u.SuccessfulRequests())
	assert.Equal(t, int64(500), u.FailedRequests())
	assert.InDelta(t, 0.5, u.SuccessRate(), 1e-9)
	assert.Equal(t, int64(1000), u.Daily(now))
	assert.Equal(t, now.UnixNano(), u.LastUsedAt().UnixNano())

	snap := u.Snapshot()
	assert.Equal(t, int64(1000), snap.DailyUsage[now.UTC().Format("2006-01-02")])
	require.NotNil(t, snap.LastUsedAt)
}

func TestUsageRegistry(t *testing.T) {
	t.Parallel()

	r := NewUsageRegistry()
	a := r.For("a")
	assert.Same(t, a, r.For("a"))
	a.Record(true, time.Now())

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap["a"].TotalRequests)
}

func TestUsageStatistics_DailyRetention(t *testing.T) {
	t.Parallel()

	u := &UsageStatistics{}
	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	u.Record(true, first)
	u.Record(true, first.Add(30*24*time.Hour))
	assert.Equal(t, int64(1), u.Daily(first))

	later := first.Add(DailyUsageRetention + 24*time.Hour)
	u.Record(false, later)

	assert.Equal(t, int64(0), u.Daily(first))
	assert.Equal(t, int64(1), u.Daily(first.Add(30*24*time.Hour)))
	assert.Equal(t, int64(1), u.Daily(later))
	assert.Len(t, u.Snapshot().DailyUsage, 2)
	assert.Equal(t, int64(3), u.TotalRequests())
}

func TestUsageRegistry_Prune(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewUsageRegistry()
	r.For("stale").Record(true, now.Add(-40*24*time.Hour))
	r.For("active").Record(true, now.Add(-time.Hour))
	r.For("unused")

	p, err := NewUsagePruner(r, 0, "", nil)
	require.NoError(t, err)
	p.now = func() time.Time { return now }

	assert.Equal(t, 1, p.Prune())
	assert.Equal(t, 2, r.Len())
	snap := r.Snapshot()
	assert.NotContains(t, snap, "stale")
	assert.Contains(t, snap, "active")
	assert.Contains(t, snap, "unused")
}

func TestNewUsagePruner_InvalidSchedule(t *testing.T) {
	t.Parallel()

	_, err := NewUsagePruner(NewUsageRegistry(), time.Hour, "every hour", nil)
	assert.Error(t, err)
}
