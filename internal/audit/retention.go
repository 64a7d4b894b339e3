package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vyrodovalexey/authguard/internal/observability"
)

// DefaultRetentionSchedule runs retention daily at 03:00.
const DefaultRetentionSchedule = "0 3 * * *"

// RetentionScheduler periodically deletes events older than the retention
// period.
type RetentionScheduler struct {
	store   Store
	maxAge  time.Duration
	cron    *cron.Cron
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewRetentionScheduler creates a scheduler deleting events older than
// days on schedule, a standard five-field cron expression.
func NewRetentionScheduler(
	store Store,
	days int,
	schedule string,
	metrics *Metrics,
	logger observability.Logger,
) (*RetentionScheduler, error) {
	if days <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", days)
	}
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	s := &RetentionScheduler{
		store:   store,
		maxAge:  time.Duration(days) * 24 * time.Hour,
		cron:    cron.New(),
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *RetentionScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.Purge(ctx); err != nil {
		s.logger.Warn("audit retention failed", observability.Error(err))
	}
}

// Purge deletes expired events now.
func (s *RetentionScheduler) Purge(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.maxAge)
	n, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.metrics.deleted.Add(float64(n))
	s.logger.Info("audit retention completed",
		observability.Int("deleted", n),
		observability.Time("cutoff", cutoff),
	)
	return n, nil
}

// Start starts the cron scheduler.
func (s *RetentionScheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running purge.
func (s *RetentionScheduler) Stop() {
	<-s.cron.Stop().Done()
}
