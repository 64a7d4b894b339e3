package auth

import (
	"net/http"
	"strings"

	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
)

// Scheme identifies a credential scheme.
type Scheme string

// Credential schemes.
const (
	SchemeStaticKey   Scheme = "static-key"
	SchemeSignedToken Scheme = "signed-token"
)

// Credential is a raw credential taken from a request. It is never
// persisted or logged.
type Credential struct {
	Value  string
	Scheme Scheme
	Source string
}

// Extractor pulls credentials out of requests.
type Extractor struct {
	headerName   string
	excluded     []string
	signedTokens bool
	allowQuery   bool
	logger       observability.Logger
}

// ExtractorOption is a functional option for the extractor.
type ExtractorOption func(*Extractor)

// WithSignedTokens lets the extractor classify bearer values shaped like a
// signed token as SchemeSignedToken. allowQuery additionally accepts the
// token query parameter.
func WithSignedTokens(allowQuery bool) ExtractorOption {
	return func(e *Extractor) {
		e.signedTokens = true
		e.allowQuery = allowQuery
	}
}

// WithExtractorLogger sets the logger.
func WithExtractorLogger(logger observability.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor creates an extractor for cfg.
func NewExtractor(cfg config.AuthConfig, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		headerName: cfg.HeaderName,
		excluded:   cfg.ExcludedPaths,
		logger:     observability.NopLogger(),
	}
	if e.headerName == "" {
		e.headerName = "X-API-Key"
	}
	if e.excluded == nil {
		e.excluded = config.DefaultExcludedPaths
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Excluded reports whether path bypasses authentication. An entry matches
// the path itself and everything below it.
func (e *Extractor) Excluded(path string) bool {
	for _, p := range e.excluded {
		if p == "" {
			continue
		}
		if path == p {
			return true
		}
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Extract returns the request credential. The configured header wins, then
// an Authorization bearer value, then the token query parameter when
// signed tokens accept it. ok is false when no credential is present.
func (e *Extractor) Extract(r *http.Request) (cred Credential, ok bool) {
	if v := strings.TrimSpace(r.Header.Get(e.headerName)); v != "" {
		return Credential{Value: v, Scheme: SchemeStaticKey, Source: "header:" + e.headerName}, true
	}

	if v := bearerToken(r); v != "" {
		scheme := SchemeStaticKey
		if e.signedTokens && LooksLikeSignedToken(v) {
			scheme = SchemeSignedToken
		}
		return Credential{Value: v, Scheme: scheme, Source: "header:" + HeaderAuthorization}, true
	}

	if e.signedTokens && e.allowQuery {
		if v := strings.TrimSpace(r.URL.Query().Get(QueryParamToken)); v != "" {
			e.logger.Warn("signed token taken from query parameter",
				observability.String("path", r.URL.Path),
				observability.String("remote_addr", r.RemoteAddr),
			)
			return Credential{Value: v, Scheme: SchemeSignedToken, Source: "query:" + QueryParamToken}, true
		}
	}

	return Credential{}, false
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get(HeaderAuthorization)
	if !strings.HasPrefix(auth, AuthSchemeBearer) {
		return ""
	}
	return strings.TrimSpace(auth[len(AuthSchemeBearer):])
}

// LooksLikeSignedToken reports whether v has the three dot-separated
// segments of a compact JWS.
func LooksLikeSignedToken(v string) bool {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts[:2] {
		if p == "" {
			return false
		}
	}
	return true
}
