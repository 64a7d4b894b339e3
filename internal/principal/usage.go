package principal

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vyrodovalexey/authguard/internal/observability"
)

const dayLayout = "2006-01-02"

const (
	// DailyUsageRetention bounds how many days of per-day counts are kept.
	DailyUsageRetention = 90 * 24 * time.Hour

	// DefaultUsageIdleRetention drops statistics of principals unused for
	// this long.
	DefaultUsageIdleRetention = 30 * 24 * time.Hour

	// DefaultUsagePruneSchedule runs the usage pruner hourly.
	DefaultUsagePruneSchedule = "@hourly"
)

// UsageStatistics counts validation outcomes for one principal. Every
// method is safe for concurrent use and lock-free on the counting path.
type UsageStatistics struct {
	total      atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
	lastUsedAt atomic.Int64

	// day ("2006-01-02", UTC) -> *atomic.Int64
	daily sync.Map
}

// UsageSnapshot is a point-in-time copy of UsageStatistics.
type UsageSnapshot struct {
	TotalRequests      int64            `json:"totalRequests"`
	SuccessfulRequests int64            `json:"successfulRequests"`
	FailedRequests     int64            `json:"failedRequests"`
	LastUsedAt         *time.Time       `json:"lastUsedAt,omitempty"`
	DailyUsage         map[string]int64 `json:"dailyUsage"`
	SuccessRate        float64          `json:"successRate"`
}

// Record counts one outcome observed at the given time.
func (u *UsageStatistics) Record(success bool, at time.Time) {
	u.total.Add(1)
	if success {
		u.successful.Add(1)
	} else {
		u.failed.Add(1)
	}
	u.lastUsedAt.Store(at.UnixNano())

	day := at.UTC().Format(dayLayout)
	counter, ok := u.daily.Load(day)
	if !ok {
		var loaded bool
		counter, loaded = u.daily.LoadOrStore(day, new(atomic.Int64))
		if !loaded {
			u.pruneDays(at.Add(-DailyUsageRetention))
		}
	}
	counter.(*atomic.Int64).Add(1)
}

// pruneDays drops day buckets before cutoff. Day keys sort chronologically.
func (u *UsageStatistics) pruneDays(cutoff time.Time) {
	oldest := cutoff.UTC().Format(dayLayout)
	u.daily.Range(func(k, _ any) bool {
		if k.(string) < oldest {
			u.daily.Delete(k)
		}
		return true
	})
}

// TotalRequests returns the number of recorded outcomes.
func (u *UsageStatistics) TotalRequests() int64 { return u.total.Load() }

// SuccessfulRequests returns the number of successful outcomes.
func (u *UsageStatistics) SuccessfulRequests() int64 { return u.successful.Load() }

// FailedRequests returns the number of failed outcomes.
func (u *UsageStatistics) FailedRequests() int64 { return u.failed.Load() }

// LastUsedAt returns the time of the latest outcome, zero if none.
func (u *UsageStatistics) LastUsedAt() time.Time {
	n := u.lastUsedAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// SuccessRate returns successful/total, 0 when nothing was recorded.
func (u *UsageStatistics) SuccessRate() float64 {
	total := u.total.Load()
	if total == 0 {
		return 0
	}
	return float64(u.successful.Load()) / float64(total)
}

// Daily returns the count recorded on the UTC day containing t.
func (u *UsageStatistics) Daily(t time.Time) int64 {
	if v, ok := u.daily.Load(t.UTC().Format(dayLayout)); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

// Snapshot copies the current counters.
func (u *UsageStatistics) Snapshot() UsageSnapshot {
	s := UsageSnapshot{
		TotalRequests:      u.total.Load(),
		SuccessfulRequests: u.successful.Load(),
		FailedRequests:     u.failed.Load(),
		DailyUsage:         make(map[string]int64),
		SuccessRate:        u.SuccessRate(),
	}
	if last := u.LastUsedAt(); !last.IsZero() {
		s.LastUsedAt = &last
	}
	u.daily.Range(func(k, v any) bool {
		s.DailyUsage[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return s
}

// UsageRegistry holds one UsageStatistics per principal ID so that counts
// survive cache copies and store reloads.
type UsageRegistry struct {
	stats sync.Map
}

// NewUsageRegistry creates an empty registry.
func NewUsageRegistry() *UsageRegistry {
	return &UsageRegistry{}
}

// For returns the statistics of id, creating them on first use.
func (r *UsageRegistry) For(id string) *UsageStatistics {
	if v, ok := r.stats.Load(id); ok {
		return v.(*UsageStatistics)
	}
	v, _ := r.stats.LoadOrStore(id, &UsageStatistics{})
	return v.(*UsageStatistics)
}

// Prune removes principals whose last recorded use is before cutoff and
// returns how many were removed. Entries with nothing recorded are kept.
func (r *UsageRegistry) Prune(cutoff time.Time) int {
	removed := 0
	r.stats.Range(func(k, v any) bool {
		last := v.(*UsageStatistics).LastUsedAt()
		if !last.IsZero() && last.Before(cutoff) {
			r.stats.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// Len returns the number of tracked principals.
func (r *UsageRegistry) Len() int {
	n := 0
	r.stats.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Snapshot copies the statistics of every known principal.
func (r *UsageRegistry) Snapshot() map[string]UsageSnapshot {
	out := make(map[string]UsageSnapshot)
	r.stats.Range(func(k, v any) bool {
		out[k.(string)] = v.(*UsageStatistics).Snapshot()
		return true
	})
	return out
}

// UsagePruner periodically drops statistics of idle principals.
type UsagePruner struct {
	registry *UsageRegistry
	idle     time.Duration
	cron     *cron.Cron
	logger   observability.Logger
	now      func() time.Time
}

// NewUsagePruner creates a pruner removing principals idle for longer than
// idle on schedule. Zero values select the defaults.
func NewUsagePruner(
	registry *UsageRegistry,
	idle time.Duration,
	schedule string,
	logger observability.Logger,
) (*UsagePruner, error) {
	if idle <= 0 {
		idle = DefaultUsageIdleRetention
	}
	if schedule == "" {
		schedule = DefaultUsagePruneSchedule
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	p := &UsagePruner{
		registry: registry,
		idle:     idle,
		cron:     cron.New(),
		logger:   logger,
		now:      time.Now,
	}
	if _, err := p.cron.AddFunc(schedule, func() { p.Prune() }); err != nil {
		return nil, fmt.Errorf("invalid usage prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Prune removes idle principals now.
func (p *UsagePruner) Prune() int {
	n := p.registry.Prune(p.now().Add(-p.idle))
	if n > 0 {
		p.logger.Debug("pruned idle usage statistics", observability.Int("removed", n))
	}
	return n
}

// Start starts the cron scheduler.
func (p *UsagePruner) Start() {
	p.cron.Start()
}

// Stop stops the scheduler and waits for a running prune.
func (p *UsagePruner) Stop() {
	<-p.cron.Stop().Done()
}
