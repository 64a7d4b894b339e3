package jwt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vyrodovalexey/authguard/internal/auth"
	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
	"github.com/vyrodovalexey/authguard/internal/principal"
)

const tracerName = "authguard/auth/jwt"

// Rejection reasons.
const (
	ReasonMalformed         = "malformed_token"
	ReasonAlgorithm         = "algorithm_not_allowed"
	ReasonSignature         = "invalid_signature"
	ReasonExpired           = "token_expired"
	ReasonNotYetValid       = "token_not_yet_valid"
	ReasonIssuer            = "invalid_issuer"
	ReasonAudience          = "invalid_audience"
	ReasonClaims            = "invalid_claims"
	ReasonMissingSubject    = "missing_subject"
	ReasonMissingExpiry     = "missing_expiry"
	ReasonRevoked           = "token_revoked"
	ReasonKeySetUnavailable = "key_set_unavailable"
)

// DefaultRevocationTTL applies to revoked tokens without an expiry.
const DefaultRevocationTTL = 24 * time.Hour

// Claims mapped onto the principal instead of its metadata.
const (
	ClaimRoles       = "roles"
	ClaimPermissions = "permissions"
)

// ErrNoKeySet is returned when an asymmetric token arrives without a key set.
var ErrNoKeySet = errors.New("no key set configured")

// Strategy validates signed tokens.
type Strategy struct {
	issuer     string
	audience   string
	algorithms map[string]struct{}
	secret     []byte
	keys       KeySet
	skew       time.Duration
	revoked    RevocationStore
	usage      *principal.UsageRegistry
	logger     observability.Logger
	now        func() time.Time
}

// Option is a functional option for the strategy.
type Option func(*Strategy)

// WithKeySet sets the key set used for asymmetric algorithms.
func WithKeySet(keys KeySet) Option {
	return func(s *Strategy) {
		s.keys = keys
	}
}

// WithRevocationStore sets the revocation store.
func WithRevocationStore(store RevocationStore) Option {
	return func(s *Strategy) {
		s.revoked = store
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

// WithClock overrides time.Now for claim validation.
func WithClock(now func() time.Time) Option {
	return func(s *Strategy) {
		s.now = now
	}
}

// NewStrategy creates a signed token strategy from cfg.
func NewStrategy(cfg config.JWTConfig, opts ...Option) (*Strategy, error) {
	if len(cfg.Algorithms) == 0 {
		return nil, errors.New("jwt: at least one algorithm is required")
	}

	s := &Strategy{
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		algorithms: make(map[string]struct{}, len(cfg.Algorithms)),
		secret:     []byte(cfg.Secret),
		skew:       cfg.ClockSkew.Duration(),
		usage:      principal.NewUsageRegistry(),
		logger:     observability.NopLogger(),
		now:        time.Now,
	}
	for _, alg := range cfg.Algorithms {
		alg = strings.ToUpper(strings.TrimSpace(alg))
		if alg == "" || alg == "NONE" {
			return nil, fmt.Errorf("jwt: algorithm %q is not allowed", alg)
		}
		s.algorithms[alg] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Scheme implements auth.Strategy.
func (s *Strategy) Scheme() auth.Scheme {
	return auth.SchemeSignedToken
}

// Validate implements auth.Strategy.
func (s *Strategy) Validate(ctx context.Context, raw string) (*principal.Info, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "jwt.Validate")
	defer span.End()

	tok, err := s.verify(ctx, raw)
	if err != nil {
		span.SetAttributes(attribute.String("auth.reason", auth.AsError(err).Reason))
		s.logger.Debug("signed token rejected", observability.Error(err))
		return nil, err
	}

	if s.revoked != nil && s.revoked.Contains(ctx, TokenID(tok, raw)) {
		span.SetAttributes(attribute.String("auth.reason", ReasonRevoked))
		return nil, auth.NewInvalid(ReasonRevoked)
	}

	p, err := s.principalFrom(tok)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("principal.id", p.ID))
	return p, nil
}

// verify checks the algorithm, signature and registered claims.
func (s *Strategy) verify(ctx context.Context, raw string) (jwt.Token, error) {
	buf := []byte(raw)

	msg, err := jws.Parse(buf)
	if err != nil || len(msg.Signatures()) != 1 {
		return nil, &auth.Error{Kind: auth.KindInvalidCredential, Reason: ReasonMalformed, Cause: err}
	}
	alg := msg.Signatures()[0].ProtectedHeaders().Algorithm()
	if _, ok := s.algorithms[alg.String()]; !ok {
		return nil, auth.NewInvalid(ReasonAlgorithm)
	}

	if err := s.verifySignature(ctx, buf, alg); err != nil {
		return nil, err
	}

	tok, err := jwt.Parse(buf, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return nil, &auth.Error{Kind: auth.KindInvalidCredential, Reason: ReasonMalformed, Cause: err}
	}

	validateOpts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(s.now)),
		jwt.WithAcceptableSkew(s.skew),
	}
	if s.issuer != "" {
		validateOpts = append(validateOpts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		validateOpts = append(validateOpts, jwt.WithAudience(s.audience))
	}
	if err := jwt.Validate(tok, validateOpts...); err != nil {
		return nil, &auth.Error{Kind: auth.KindInvalidCredential, Reason: validationReason(err), Cause: err}
	}
	// jwt.Validate skips exp when the claim is absent
	if tok.Expiration().IsZero() {
		return nil, auth.NewInvalid(ReasonMissingExpiry)
	}
	return tok, nil
}

func (s *Strategy) verifySignature(ctx context.Context, buf []byte, alg jwa.SignatureAlgorithm) error {
	if strings.HasPrefix(alg.String(), "HS") {
		if len(s.secret) == 0 {
			return auth.NewInvalid(ReasonSignature)
		}
		if _, err := jws.Verify(buf, jws.WithKey(alg, s.secret)); err != nil {
			return &auth.Error{Kind: auth.KindInvalidCredential, Reason: ReasonSignature, Cause: err}
		}
		return nil
	}

	if s.keys == nil {
		return &auth.Error{Kind: auth.KindInvalidCredential, Reason: ReasonSignature, Cause: ErrNoKeySet}
	}
	set, err := s.keys.Keys(ctx)
	if err != nil {
		s.logger.Warn("key set unavailable", observability.Error(err))
		return auth.NewUnavailable(ReasonKeySetUnavailable, err)
	}
	_, err = jws.Verify(buf, jws.WithKeySet(set, jws.WithRequireKid(false), jws.WithInferAlgorithmFromKey(true)))
	if err != nil {
		return &auth.Error{Kind: auth.KindInvalidCredential, Reason: ReasonSignature, Cause: err}
	}
	return nil
}

func validationReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired()):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenNotYetValid()):
		return ReasonNotYetValid
	case errors.Is(err, jwt.ErrInvalidIssuer()):
		return ReasonIssuer
	case errors.Is(err, jwt.ErrInvalidAudience()):
		return ReasonAudience
	default:
		return ReasonClaims
	}
}

func (s *Strategy) principalFrom(tok jwt.Token) (*principal.Info, error) {
	if tok.Subject() == "" {
		return nil, auth.NewInvalid(ReasonMissingSubject)
	}

	now := s.now()
	p := &principal.Info{
		ID:          tok.Subject(),
		CreatedAt:   tok.IssuedAt(),
		Enabled:     true,
		Permissions: principal.NewPermissionSet(),
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if exp := tok.Expiration(); !exp.IsZero() {
		p.ExpiresAt = &exp
	}

	for name, value := range tok.PrivateClaims() {
		switch name {
		case ClaimRoles, ClaimPermissions:
			for _, perm := range stringList(value) {
				p.Permissions[perm] = struct{}{}
			}
		default:
			if p.Metadata == nil {
				p.Metadata = make(map[string]interface{})
			}
			p.Metadata[name] = value
		}
	}

	p.Usage = s.usage.For(p.ID)
	p.Usage.Record(true, now)
	return p, nil
}

// stringList accepts a single string, a space or comma separated string,
// or a list of strings.
func stringList(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return strings.FieldsFunc(val, func(r rune) bool { return r == ',' || r == ' ' })
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// TokenID returns the revocation identity of a token: its jti, or the hex
// SHA-256 of the raw token when it has none.
func TokenID(tok jwt.Token, raw string) string {
	if jti := tok.JwtID(); jti != "" {
		return jti
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Revoke revokes raw for its remaining lifetime and reports whether an
// entry was written. Expired tokens are not recorded. The signature is not
// checked, so callers must be trusted.
func (s *Strategy) Revoke(ctx context.Context, raw string) (bool, error) {
	if s.revoked == nil {
		return false, errors.New("jwt: revocation store not configured")
	}

	tok, err := jwt.Parse([]byte(raw), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return false, &auth.Error{Kind: auth.KindInvalidCredential, Reason: ReasonMalformed, Cause: err}
	}

	ttl := DefaultRevocationTTL
	if exp := tok.Expiration(); !exp.IsZero() {
		ttl = exp.Sub(s.now())
	}
	if ttl <= 0 {
		return false, nil
	}

	id := TokenID(tok, raw)
	s.revoked.Revoke(ctx, id, ttl)
	s.logger.Info("token revoked",
		observability.String("subject", tok.Subject()),
		observability.String("token_id", observability.Fingerprint(id)),
		observability.Duration("ttl", ttl),
	)
	return true, nil
}
