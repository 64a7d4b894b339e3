package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/vyrodovalexey/authguard/internal/audit"
	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
	"github.com/vyrodovalexey/authguard/internal/principal"
)

// Strategy validates credentials of one scheme.
type Strategy interface {
	// Scheme returns the credential scheme the strategy handles.
	Scheme() Scheme

	// Validate resolves raw to a principal. Errors are *Error values.
	Validate(ctx context.Context, raw string) (*principal.Info, error)
}

// AuditRecorder receives one event per terminal outcome.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Event)
}

// Outcome is the result of running a request through the pipeline. Exactly
// one of Principal and Err is set unless Skipped.
type Outcome struct {
	Principal  *principal.Info
	Credential Credential
	Err        *Error
	Skipped    bool
}

// Accepted reports whether the request may proceed.
func (o Outcome) Accepted() bool {
	return o.Err == nil
}

// Status returns the HTTP status of a rejection.
func (o Outcome) Status() int {
	if o.Err == nil {
		return http.StatusOK
	}
	switch o.Err.Kind {
	case KindMissingCredential, KindInvalidCredential:
		return http.StatusUnauthorized
	case KindInsufficientPermission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the client-facing error code of a rejection.
func (o Outcome) Code() string {
	if o.Err == nil {
		return ""
	}
	switch o.Err.Kind {
	case KindMissingCredential:
		return CodeMissingAPIKey
	case KindInvalidCredential:
		if o.Credential.Scheme == SchemeSignedToken {
			return CodeInvalidToken
		}
		return CodeInvalidAPIKey
	case KindInsufficientPermission:
		return CodeInsufficientPermissions
	default:
		return CodeInternalError
	}
}

// Message returns the client-facing message of a rejection.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	switch o.Err.Kind {
	case KindMissingCredential:
		return "API key is required"
	case KindInvalidCredential:
		if o.Credential.Scheme == SchemeSignedToken {
			return "Invalid or expired token"
		}
		return "Invalid API key"
	case KindInsufficientPermission:
		return "Insufficient permissions"
	default:
		return "Authentication service unavailable"
	}
}

// Service runs the authentication state machine: extract, select strategy,
// validate, authorize.
type Service struct {
	enabled    bool
	extractor  *Extractor
	strategies map[Scheme]Strategy
	recorder   AuditRecorder
	logger     observability.Logger
	metrics    *Metrics
	now        func() time.Time
}

// ServiceOption is a functional option for the service.
type ServiceOption func(*Service)

// WithStrategy registers a strategy for its scheme.
func WithStrategy(s Strategy) ServiceOption {
	return func(svc *Service) {
		svc.strategies[s.Scheme()] = s
	}
}

// WithAuditRecorder sets the audit recorder.
func WithAuditRecorder(r AuditRecorder) ServiceOption {
	return func(svc *Service) {
		svc.recorder = r
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger observability.Logger) ServiceOption {
	return func(svc *Service) {
		svc.logger = logger
	}
}

// WithServiceMetrics sets the metrics.
func WithServiceMetrics(metrics *Metrics) ServiceOption {
	return func(svc *Service) {
		svc.metrics = metrics
	}
}

// WithServiceClock overrides time.Now.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(svc *Service) {
		svc.now = now
	}
}

// NewService creates the authentication service.
func NewService(cfg config.AuthConfig, extractor *Extractor, opts ...ServiceOption) *Service {
	if extractor == nil {
		extractor = NewExtractor(cfg)
	}
	svc := &Service{
		enabled:    cfg.Enabled,
		extractor:  extractor,
		strategies: make(map[Scheme]Strategy),
		logger:     observability.NopLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.metrics == nil {
		svc.metrics = NewMetrics(nil)
	}
	return svc
}

// Authenticate authenticates r and authorizes its method.
func (s *Service) Authenticate(r *http.Request) Outcome {
	return s.authenticate(r, "")
}

// AuthenticateFor authenticates r and requires permission instead of the
// method-derived one.
func (s *Service) AuthenticateFor(r *http.Request, permission string) Outcome {
	return s.authenticate(r, permission)
}

func (s *Service) authenticate(r *http.Request, permission string) Outcome {
	if !s.enabled || s.extractor.Excluded(r.URL.Path) {
		return Outcome{Skipped: true}
	}

	start := s.now()
	o := s.run(r, permission)
	s.metrics.record(schemeLabel(o.Credential), o, s.now().Sub(start))
	s.audit(r, o, permission)
	s.log(r, o)
	return o
}

func (s *Service) run(r *http.Request, permission string) Outcome {
	ctx := r.Context()

	cred, ok := s.extractor.Extract(r)
	if !ok {
		return Outcome{Err: &Error{Kind: KindMissingCredential, Reason: ReasonMissing}}
	}

	strategy, ok := s.strategies[cred.Scheme]
	if !ok {
		return Outcome{Credential: cred, Err: NewInvalid("unsupported_scheme")}
	}

	p, err := strategy.Validate(ctx, cred.Value)
	if err != nil {
		return Outcome{Credential: cred, Err: AsError(err)}
	}

	var allowed bool
	if permission == "" {
		allowed = Authorize(p, r.Method)
	} else {
		allowed = Allowed(p, permission)
	}
	if !allowed {
		return Outcome{
			Principal:  p,
			Credential: cred,
			Err:        &Error{Kind: KindInsufficientPermission, Reason: ReasonForbidden},
		}
	}

	return Outcome{Principal: p, Credential: cred}
}

// audit is the single emission point for request audit events.
func (s *Service) audit(r *http.Request, o Outcome, permission string) {
	if s.recorder == nil {
		return
	}

	e := audit.Event{
		ClientIP:  ClientIP(r),
		UserAgent: r.Header.Get(HeaderUserAgent),
		Timestamp: s.now(),
		Resource:  r.URL.Path,
		Action:    audit.ActionAuthenticate,
		Success:   o.Err == nil,
		AdditionalData: map[string]interface{}{
			"method": r.Method,
		},
	}
	if o.Credential.Scheme != "" {
		e.AdditionalData["scheme"] = string(o.Credential.Scheme)
	}
	if o.Credential.Scheme == SchemeSignedToken {
		e.Action = audit.ActionJWTAuthenticate
	}
	if o.Principal != nil {
		e.UserID = o.Principal.ID
	}

	switch {
	case o.Err == nil:
		e.Type = audit.EventAuthenticationSuccess
	case o.Err.Kind == KindInsufficientPermission:
		e.Type = audit.EventAuthorizationFailure
		e.Action = audit.ActionAuthorize
		e.FailureReason = o.Err.Reason
		if permission == "" {
			permission = RequiredPermission(r.Method)
		}
		e.AdditionalData["requiredPermission"] = permission
	case o.Err.Kind == KindDependencyUnavailable:
		e.Type = audit.EventAuthenticationError
		e.FailureReason = o.Err.Reason
	default:
		e.Type = audit.EventAuthenticationFailure
		e.FailureReason = o.Err.Reason
	}

	s.recorder.Record(r.Context(), e)
}

func (s *Service) log(r *http.Request, o Outcome) {
	logger := s.logger.WithContext(r.Context())
	fields := []observability.Field{
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
		observability.String("scheme", schemeLabel(o.Credential)),
	}
	if o.Credential.Scheme == SchemeStaticKey {
		fields = append(fields, observability.String("key_fingerprint", observability.Fingerprint(o.Credential.Value)))
	}
	if o.Principal != nil {
		fields = append(fields, observability.String("principal_id", o.Principal.ID))
	}

	if o.Err == nil {
		logger.Debug("request authenticated", fields...)
		return
	}

	fields = append(fields,
		observability.String("kind", o.Err.Kind.String()),
		observability.String("reason", o.Err.Reason),
	)
	if o.Err.Kind == KindDependencyUnavailable {
		fields = append(fields, observability.Error(o.Err.Cause))
		logger.Warn("authentication dependency failed", fields...)
		return
	}
	logger.Info("request rejected", fields...)
}

func schemeLabel(c Credential) string {
	if c.Scheme == "" {
		return "none"
	}
	return string(c.Scheme)
}
