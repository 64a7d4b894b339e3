package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Is(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  *Error
		want error
	}{
		{err: &Error{Kind: KindMissingCredential, Reason: ReasonMissing}, want: ErrMissingCredential},
		{err: NewInvalid(ReasonNotFound), want: ErrInvalidCredential},
		{err: &Error{Kind: KindInsufficientPermission, Reason: ReasonForbidden}, want: ErrInsufficientPermission},
		{err: NewUnavailable(ReasonTimeout, errors.New("deadline")), want: ErrDependencyUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.err.Kind.String(), func(t *testing.T) {
			t.Parallel()

			wrapped := fmt.Errorf("validate: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.want)
			for _, other := range []error{ErrMissingCredential, ErrInvalidCredential, ErrInsufficientPermission, ErrDependencyUnavailable} {
				if other != tt.want {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewUnavailable(ReasonStoreFailed, cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "dependency_unavailable")
	assert.Contains(t, err.Error(), ReasonStoreFailed)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "auth invalid_credential (not_found)", NewInvalid(ReasonNotFound).Error())
}

func TestAsError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, AsError(nil))

	invalid := NewInvalid(ReasonDisabled)
	assert.Same(t, invalid, AsError(fmt.Errorf("wrapped: %w", invalid)))

	plain := AsError(errors.New("boom"))
	require.NotNil(t, plain)
	assert.Equal(t, KindDependencyUnavailable, plain.Kind)
	assert.Equal(t, "internal", plain.Reason)
}

func TestErrorKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "missing_credential", KindMissingCredential.String())
	assert.Equal(t, "unknown", ErrorKind(0).String())
}
