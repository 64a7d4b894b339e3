package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the service is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates a non-critical dependency is failing.
	StatusDegraded Status = "degraded"
)

// HealthResponse is the liveness body.
type HealthResponse struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse is the readiness body.
type ReadinessResponse struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Check is the result of one dependency check.
type Check struct {
	Status   Status `json:"status"`
	Type     string `json:"type"`
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency"`
}

// Checker aggregates dependency checks.
type Checker struct {
	version   string
	startTime time.Time
	metrics   *Metrics

	mu     sync.RWMutex
	checks map[string]*DependencyCheck
}

// Option configures a Checker.
type Option func(*Checker)

// WithMetrics records check results.
func WithMetrics(m *Metrics) Option {
	return func(c *Checker) {
		c.metrics = m
	}
}

// NewChecker creates a new health checker.
func NewChecker(version string, opts ...Option) *Checker {
	c := &Checker{
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]*DependencyCheck),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces a dependency check.
func (c *Checker) Register(check *DependencyCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[check.Name()] = check
}

// Names returns the registered check names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health returns the liveness status.
func (c *Checker) Health() HealthResponse {
	c.metrics.probe("liveness")
	return HealthResponse{
		Status:    StatusHealthy,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}

// Readiness runs every check concurrently.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	c.metrics.probe("readiness")

	c.mu.RLock()
	checks := make([]*DependencyCheck, 0, len(c.checks))
	for _, check := range c.checks {
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	results := make([]Check, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := check.Check(ctx)
			elapsed := time.Since(start)
			c.metrics.dependency(check, err == nil, elapsed.Seconds())

			res := Check{
				Status:   StatusHealthy,
				Type:     string(check.Type()),
				Critical: check.IsCritical(),
				Latency:  elapsed.Round(time.Microsecond).String(),
			}
			if err != nil {
				res.Status = StatusUnhealthy
				res.Message = err.Error()
			}
			results[i] = res
		}()
	}
	wg.Wait()

	response := ReadinessResponse{
		Status:    StatusHealthy,
		Checks:    make(map[string]Check, len(checks)),
		Timestamp: time.Now().UTC(),
	}
	for i, check := range checks {
		res := results[i]
		response.Checks[check.Name()] = res
		if res.Status != StatusUnhealthy {
			continue
		}
		if res.Critical {
			response.Status = StatusUnhealthy
		} else if response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}
	return response
}

// GinLiveness serves the liveness probe.
func (c *Checker) GinLiveness() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, c.Health())
	}
}

// GinReadiness serves the readiness probe. Unhealthy maps to 503.
func (c *Checker) GinReadiness() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response := c.Readiness(ctx.Request.Context())
		status := http.StatusOK
		if response.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		ctx.JSON(status, response)
	}
}
