package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFlaky = errors.New("flaky")

func fastPolicy() Policy {
	return Policy{MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failures  int
		retryable func(error) bool
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", failures: 0, wantCalls: 1},
		{name: "recovers", failures: 2, wantCalls: 3},
		{name: "exhausted", failures: 10, wantCalls: 4, wantErr: true},
		{name: "not retryable", failures: 10, retryable: func(error) bool { return false }, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := fastPolicy()
			p.Retryable = tt.retryable

			calls := 0
			err := Do(context.Background(), p, func() error {
				calls++
				if calls <= tt.failures {
					return errFlaky
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, errFlaky)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastPolicy(), func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDo_OnRetry(t *testing.T) {
	t.Parallel()

	var attempts []int
	p := fastPolicy()
	p.OnRetry = func(next int, _ error, _ time.Duration) { attempts = append(attempts, next) }

	_ = Do(context.Background(), p, func() error { return errFlaky })
	assert.Equal(t, []int{2, 3, 4}, attempts)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100*time.Millisecond, Backoff(0, 100*time.Millisecond, time.Second, 0))
	assert.Equal(t, 400*time.Millisecond, Backoff(2, 100*time.Millisecond, time.Second, 0))
	assert.Equal(t, time.Second, Backoff(10, 100*time.Millisecond, time.Second, 0.5))

	d := Backoff(1, 100*time.Millisecond, time.Second, 0.5)
	assert.GreaterOrEqual(t, d, 200*time.Millisecond)
	assert.LessOrEqual(t, d, 300*time.Millisecond)
}
