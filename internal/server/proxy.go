package server

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/authguard/internal/auth"
	"github.com/vyrodovalexey/authguard/internal/observability"
)

// PrincipalHeader tells the upstream who was authenticated.
const PrincipalHeader = "X-Auth-Principal"

// Hop-by-hop headers. These are removed when sent to the upstream.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Upstream forwards authenticated requests to a single backend.
type Upstream struct {
	target   *url.URL
	proxy    *httputil.ReverseProxy
	stripped []string
	logger   observability.Logger
}

// NewUpstream creates a forwarder for rawURL. Headers named in strip, such
// as the static key header, are not forwarded. X-Forwarded-For is appended
// by httputil.ReverseProxy itself.
func NewUpstream(rawURL string, strip []string, logger observability.Logger) (*Upstream, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream url %q must be absolute", rawURL)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	u := &Upstream{target: target, stripped: strip, logger: logger}
	u.proxy = &httputil.ReverseProxy{
		Director:     u.director,
		ErrorHandler: u.errorHandler,
	}
	return u, nil
}

func (u *Upstream) director(req *http.Request) {
	originalHost := req.Host

	req.URL.Scheme = u.target.Scheme
	req.URL.Host = u.target.Host
	req.URL.Path, req.URL.RawPath = joinPath(u.target, req.URL)

	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	for _, h := range u.stripped {
		req.Header.Del(h)
	}

	// Never trust a caller-supplied principal.
	req.Header.Del(PrincipalHeader)
	if p, ok := auth.PrincipalFromContext(req.Context()); ok {
		req.Header.Set(PrincipalHeader, p.ID)
	}

	if req.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	req.Header.Set("X-Forwarded-Host", originalHost)
	req.Host = u.target.Host
}

func joinPath(target, in *url.URL) (path, rawPath string) {
	if target.Path == "" || target.Path == "/" {
		return in.Path, in.RawPath
	}
	joined := target.JoinPath(in.EscapedPath())
	return joined.Path, joined.RawPath
}

func (u *Upstream) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	u.logger.WithContext(r.Context()).Error("proxy error",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.String("upstream", u.target.Host),
		observability.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = io.WriteString(w, `{"error":"BAD_GATEWAY","message":"failed to reach upstream"}`)
}

// ServeHTTP implements http.Handler.
func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.proxy.ServeHTTP(w, r)
}

// echoPrincipal answers in place of an upstream.
func echoPrincipal(c *gin.Context) {
	id := ""
	if p, ok := auth.PrincipalFromContext(c.Request.Context()); ok {
		id = p.ID
	}
	c.JSON(http.StatusOK, gin.H{"principal": id})
}
