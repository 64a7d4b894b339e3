package principal

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
)

// BreakerStore guards a Store with a circuit breaker. ErrNotFound counts as
// a success; while the breaker is open every lookup fails fast with
// ErrUnavailable.
type BreakerStore struct {
	next   Store
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// NewBreakerStore wraps next.
func NewBreakerStore(name string, next Store, cfg config.BreakerConfig, logger observability.Logger) *BreakerStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	s := &BreakerStore{next: next, logger: logger}
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval.Duration(),
		Timeout:     cfg.Timeout.Duration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("principal store circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})
	return s
}

// State returns the breaker state name.
func (s *BreakerStore) State() string {
	return s.cb.State().String()
}

func (s *BreakerStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	v, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, err
}

// FindByValue implements Store.
func (s *BreakerStore) FindByValue(ctx context.Context, value string) (*Info, error) {
	v, err := s.execute(func() (interface{}, error) {
		return s.next.FindByValue(ctx, value)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Info), nil
}

// FindByID implements Store.
func (s *BreakerStore) FindByID(ctx context.Context, id string) (*Info, error) {
	v, err := s.execute(func() (interface{}, error) {
		return s.next.FindByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Info), nil
}

// Exists implements Store.
func (s *BreakerStore) Exists(ctx context.Context, value string) (bool, error) {
	v, err := s.execute(func() (interface{}, error) {
		return s.next.Exists(ctx, value)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}
