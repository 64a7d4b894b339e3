package alert

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/vyrodovalexey/authguard/internal/observability"
)

// DefaultSchedule runs the checks every minute.
const DefaultSchedule = "@every 1m"

// Scheduler runs the engine checks on a cron schedule.
type Scheduler struct {
	engine  *Engine
	cron    *cron.Cron
	logger  observability.Logger
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler for engine. schedule accepts standard
// cron expressions and descriptors such as "@every 30s".
func NewScheduler(engine *Engine, schedule string, logger observability.Logger) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	s := &Scheduler{
		engine: engine,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid alert schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	alerts := s.engine.RunChecks(context.Background())
	if len(alerts) > 0 {
		s.logger.Info("alert checks raised alerts", observability.Int("count", len(alerts)))
	}
}

// Start starts the schedule.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Stop stops the schedule and waits for a running check.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}
