// Package retry runs operations with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Defaults applied to zero Policy fields.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
	DefaultJitter         = 0.25
)

// Policy controls Do. Zero fields take the package defaults.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         float64

	// Retryable decides whether err is worth another attempt. Nil retries
	// everything except context errors.
	Retryable func(err error) bool

	// OnRetry is called before sleeping ahead of attempt number next.
	OnRetry func(next int, err error, wait time.Duration)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = DefaultJitter
	}
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx ends. The last error is returned.
func Do(ctx context.Context, p Policy, fn func() error) error {
	p = p.withDefaults()

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		if err = fn(); err == nil {
			return nil
		}
		if !retryable(p, err) || attempt == p.MaxAttempts-1 {
			return err
		}

		wait := Backoff(attempt, p.InitialBackoff, p.MaxBackoff, p.Jitter)
		if p.OnRetry != nil {
			p.OnRetry(attempt+2, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func retryable(p Policy, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

// Backoff returns initial*2^attempt plus up to jitter*100% extra, capped at max.
func Backoff(attempt int, initial, maxBackoff time.Duration, jitter float64) time.Duration {
	d := float64(initial) * math.Pow(2, float64(attempt))
	//nolint:gosec // timing jitter, not security sensitive
	d += d * jitter * rand.Float64()
	if d > float64(maxBackoff) {
		d = float64(maxBackoff)
	}
	return time.Duration(d)
}
