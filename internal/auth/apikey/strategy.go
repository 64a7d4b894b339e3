package apikey

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/authguard/internal/auth"
	"github.com/vyrodovalexey/authguard/internal/cache"
	"github.com/vyrodovalexey/authguard/internal/observability"
	"github.com/vyrodovalexey/authguard/internal/principal"
)

const tracerName = "authguard/auth/apikey"

// Defaults.
const (
	DefaultCacheTTL     = time.Hour
	DefaultStoreTimeout = 2 * time.Second
)

// Strategy validates static keys.
type Strategy struct {
	store        principal.Store
	cache        cache.ValidationCache[*principal.Info]
	usage        *principal.UsageRegistry
	cacheTTL     time.Duration
	storeTimeout time.Duration
	logger       observability.Logger
	now          func() time.Time
}

// Option is a functional option for the strategy.
type Option func(*Strategy)

// WithCacheTTL sets how long a validated principal stays cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Strategy) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithStoreTimeout bounds each store lookup.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Strategy) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithUsageRegistry shares usage statistics with other components.
func WithUsageRegistry(r *principal.UsageRegistry) Option {
	return func(s *Strategy) {
		s.usage = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Strategy) {
		s.logger = logger
	}
}

// WithClock overrides time.Now for validity checks.
func WithClock(now func() time.Time) Option {
	return func(s *Strategy) {
		s.now = now
	}
}

// NewStrategy creates a static key strategy. The cache should clone values
// (cache.WithClone((*principal.Info).Clone)) so callers cannot mutate entries.
func NewStrategy(store principal.Store, c cache.ValidationCache[*principal.Info], opts ...Option) *Strategy {
	s := &Strategy{
		store:        store,
		cache:        c,
		usage:        principal.NewUsageRegistry(),
		cacheTTL:     DefaultCacheTTL,
		storeTimeout: DefaultStoreTimeout,
		logger:       observability.NopLogger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scheme implements auth.Strategy.
func (s *Strategy) Scheme() auth.Scheme {
	return auth.SchemeStaticKey
}

// Usage returns the usage registry.
func (s *Strategy) Usage() *principal.UsageRegistry {
	return s.usage
}

// Validate implements auth.Strategy.
func (s *Strategy) Validate(ctx context.Context, raw string) (*principal.Info, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "apikey.Validate",
		trace.WithAttributes(attribute.String("key.fingerprint", observability.Fingerprint(raw))),
	)
	defer span.End()

	if raw == "" {
		return nil, &auth.Error{Kind: auth.KindMissingCredential, Reason: auth.ReasonMissing}
	}

	now := s.now()

	if p, ok := s.cache.Get(ctx, raw); ok {
		if p.Valid(now) {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return s.accept(p, now), nil
		}
		s.cache.Evict(ctx, raw)
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	p, err := s.lookup(ctx, raw)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	switch {
	case !p.Enabled:
		s.reject(p, now)
		return nil, auth.NewInvalid(auth.ReasonDisabled)
	case p.Expired(now):
		s.reject(p, now)
		return nil, auth.NewInvalid(auth.ReasonExpired)
	}

	s.cache.Put(ctx, raw, p, s.cacheTTL)
	return s.accept(p, now), nil
}

// Invalidate drops the cached principal for raw so the next request goes to
// the store.
func (s *Strategy) Invalidate(ctx context.Context, raw string) {
	s.cache.Evict(ctx, raw)
}

func (s *Strategy) lookup(ctx context.Context, raw string) (*principal.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	p, err := s.store.FindByValue(ctx, raw)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, principal.ErrNotFound):
		return nil, auth.NewInvalid(auth.ReasonNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("principal store lookup timed out",
			observability.String("key_fingerprint", observability.Fingerprint(raw)),
			observability.Duration("timeout", s.storeTimeout),
		)
		return nil, auth.NewUnavailable(auth.ReasonTimeout, err)
	default:
		s.logger.Warn("principal store lookup failed",
			observability.String("key_fingerprint", observability.Fingerprint(raw)),
			observability.Error(err),
		)
		return nil, auth.NewUnavailable(auth.ReasonStoreFailed, err)
	}
}

func (s *Strategy) accept(p *principal.Info, now time.Time) *principal.Info {
	p.Usage = s.usage.For(p.ID)
	p.Usage.Record(true, now)
	return p
}

func (s *Strategy) reject(p *principal.Info, now time.Time) {
	s.usage.For(p.ID).Record(false, now)
}
