package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DependencyType classifies a dependency.
type DependencyType string

const (
	// TypeDatabase is a database dependency.
	TypeDatabase DependencyType = "database"
	// TypeCache is a cache dependency.
	TypeCache DependencyType = "cache"
	// TypeStore is a principal store dependency.
	TypeStore DependencyType = "store"
	// TypeCustom is any other dependency.
	TypeCustom DependencyType = "custom"
)

// DefaultCheckTimeout bounds a single check.
const DefaultCheckTimeout = 2 * time.Second

// Pinger is implemented by stores that can verify their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyCheck is a named dependency probe.
type DependencyCheck struct {
	name     string
	depType  DependencyType
	checkFn  func(ctx context.Context) error
	critical bool
	timeout  time.Duration
}

// CheckOption configures a DependencyCheck.
type CheckOption func(*DependencyCheck)

// WithCritical marks whether a failure makes the service unready.
func WithCritical(critical bool) CheckOption {
	return func(d *DependencyCheck) {
		d.critical = critical
	}
}

// WithTimeout overrides DefaultCheckTimeout.
func WithTimeout(timeout time.Duration) CheckOption {
	return func(d *DependencyCheck) {
		d.timeout = timeout
	}
}

// NewDependencyCheck creates a critical check.
func NewDependencyCheck(
	name string,
	depType DependencyType,
	checkFn func(ctx context.Context) error,
	opts ...CheckOption,
) *DependencyCheck {
	d := &DependencyCheck{
		name:     name,
		depType:  depType,
		checkFn:  checkFn,
		critical: true,
		timeout:  DefaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the check name.
func (d *DependencyCheck) Name() string {
	return d.name
}

// Type returns the dependency type.
func (d *DependencyCheck) Type() DependencyType {
	return d.depType
}

// IsCritical reports whether the check gates readiness.
func (d *DependencyCheck) IsCritical() bool {
	return d.critical
}

// Check runs the probe within the check timeout.
func (d *DependencyCheck) Check(ctx context.Context) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.checkFn(ctx)
}

// RedisCheck pings a Redis client.
func RedisCheck(name string, client redis.UniversalClient, opts ...CheckOption) *DependencyCheck {
	return NewDependencyCheck(name, TypeCache, func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis client is nil")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	}, opts...)
}

// PingCheck wraps anything with a Ping method.
func PingCheck(name string, depType DependencyType, p Pinger, opts ...CheckOption) *DependencyCheck {
	return NewDependencyCheck(name, depType, func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		return nil
	}, opts...)
}

// BreakerCheck fails while a circuit breaker reports the open state.
func BreakerCheck(name string, state func() string, opts ...CheckOption) *DependencyCheck {
	return NewDependencyCheck(name, TypeStore, func(context.Context) error {
		if s := state(); s == "open" {
			return fmt.Errorf("circuit breaker is %s", s)
		}
		return nil
	}, opts...)
}
