package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/authguard/internal/audit"
	"github.com/vyrodovalexey/authguard/internal/auth"
	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/health"
	"github.com/vyrodovalexey/authguard/internal/observability"
	"github.com/vyrodovalexey/authguard/internal/principal"
)

// DefaultMaxBodySize limits request bodies.
const DefaultMaxBodySize = 10 << 20

var ginModeOnce sync.Once

// Deps are the components the server routes to. Auth is required; nil
// optional components turn their admin endpoints into 404s.
type Deps struct {
	Auth     *auth.Service
	Audit    audit.Store
	Recorder auth.AuditRecorder
	Alerts   AlertEngine
	Revoker  TokenRevoker
	Usage    *principal.UsageRegistry
	Registry *prometheus.Registry
	Tracer   *observability.Tracer
	Health   *health.Checker
	Logger   observability.Logger

	// StripHeaders are removed before forwarding upstream.
	StripHeaders []string
}

// Server is the authguard HTTP server.
type Server struct {
	cfg        config.ServerConfig
	engine     *gin.Engine
	httpServer *http.Server
	logger     observability.Logger

	mu      sync.RWMutex
	running bool
}

// New builds the router for cfg and deps.
func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Auth == nil {
		return nil, errors.New("server: auth service is required")
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Health == nil {
		deps.Health = health.NewChecker("")
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()
	engine.Use(RequestID())
	if deps.Tracer != nil {
		engine.Use(observability.GinTracing(deps.Tracer))
	}
	engine.Use(AccessLog(deps.Logger), Recovery(deps.Logger), maxBodySize(DefaultMaxBodySize))

	engine.GET("/health", deps.Health.GinLiveness())
	engine.GET("/ready", deps.Health.GinReadiness())
	if deps.Registry != nil {
		engine.GET("/metrics", gin.WrapH(observability.MetricsHandler(deps.Registry)))
	}

	a := &admin{
		audit:    deps.Audit,
		recorder: deps.Recorder,
		alerts:   deps.Alerts,
		revoker:  deps.Revoker,
		usage:    deps.Usage,
		logger:   deps.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	a.register(engine.Group("/admin", SecurityHeaders(), auth.GinRequirePermission(deps.Auth, principal.AdminPermission)))

	var forward gin.HandlerFunc = echoPrincipal
	if cfg.Upstream != "" {
		upstream, err := NewUpstream(cfg.Upstream, deps.StripHeaders, deps.Logger)
		if err != nil {
			return nil, err
		}
		forward = gin.WrapH(upstream)
	}
	engine.NoRoute(auth.GinMiddleware(deps.Auth), forward)

	return &Server{cfg: cfg, engine: engine, logger: deps.Logger}, nil
}

func maxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens until Stop is called. It returns nil after a clean stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.engine,
		ReadTimeout:       s.cfg.ReadTimeout.Duration(),
		ReadHeaderTimeout: s.cfg.ReadTimeout.Duration(),
		WriteTimeout:      s.cfg.WriteTimeout.Duration(),
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", s.cfg.Address),
		observability.String("upstream", s.cfg.Upstream),
	)

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning reports whether the server is listening.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
