package auth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected request.
type ErrorKind int

// Error kinds.
const (
	KindMissingCredential ErrorKind = iota + 1
	KindInvalidCredential
	KindInsufficientPermission
	KindDependencyUnavailable
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case KindMissingCredential:
		return "missing_credential"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindInsufficientPermission:
		return "insufficient_permission"
	case KindDependencyUnavailable:
		return "dependency_unavailable"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per kind. Every *Error matches the sentinel of its
// kind with errors.Is.
var (
	// ErrMissingCredential indicates that no credential was presented.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidCredential indicates an unknown, disabled, expired or
	// otherwise unacceptable credential.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrInsufficientPermission indicates an authenticated principal lacking
	// the required permission.
	ErrInsufficientPermission = errors.New("insufficient permission")

	// ErrDependencyUnavailable indicates that the cache or store failed.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Reasons used by the built-in strategies.
const (
	ReasonMissing     = "missing_credential"
	ReasonNotFound    = "not_found"
	ReasonDisabled    = "disabled"
	ReasonExpired     = "expired"
	ReasonForbidden   = "insufficient_permissions"
	ReasonStoreFailed = "store_unavailable"
	ReasonTimeout     = "store_timeout"
)

// Error is a rejection with a kind and an internal reason. Reason is for
// logs and audit only; clients see a code derived from the kind.
type Error struct {
	Kind   ErrorKind
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth %s (%s): %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("auth %s (%s)", e.Kind, e.Reason)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel of e.Kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindMissingCredential:
		return ErrMissingCredential
	case KindInvalidCredential:
		return ErrInvalidCredential
	case KindInsufficientPermission:
		return ErrInsufficientPermission
	case KindDependencyUnavailable:
		return ErrDependencyUnavailable
	default:
		return nil
	}
}

// NewInvalid returns an invalid-credential error.
func NewInvalid(reason string) *Error {
	return &Error{Kind: KindInvalidCredential, Reason: reason}
}

// NewUnavailable returns a dependency error wrapping cause.
func NewUnavailable(reason string, cause error) *Error {
	return &Error{Kind: KindDependencyUnavailable, Reason: reason, Cause: cause}
}

// AsError converts err into an *Error. Errors that are not *Error become
// dependency failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewUnavailable("internal", err)
}
