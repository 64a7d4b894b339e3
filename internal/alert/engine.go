package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/authguard/internal/audit"
	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
)

const (
	defaultCooldown     = 15 * time.Minute
	defaultCheckTimeout = 10 * time.Second
)

// Rule is the window and threshold of one check.
type Rule struct {
	Window    time.Duration
	Threshold int
}

func ruleFrom(c config.AlertRuleConfig, window time.Duration, threshold int) Rule {
	r := Rule{Window: c.Window.Duration(), Threshold: c.Threshold}
	if r.Window <= 0 {
		r.Window = window
	}
	if r.Threshold <= 0 {
		r.Threshold = threshold
	}
	return r
}

// Stats is a snapshot of the engine state.
type Stats struct {
	AlertCounts             map[string]int64     `json:"alertCounts"`
	LastAlertTimes          map[string]time.Time `json:"lastAlertTimes"`
	TotalAlerts             int64                `json:"totalAlerts"`
	ActiveAlertsLast24Hours int                  `json:"activeAlertsLast24Hours"`
}

// Engine evaluates alert rules against an audit store.
type Engine struct {
	store    audit.Store
	sink     Sink
	cooldown time.Duration
	timeout  time.Duration

	authFailure  Rule
	suspiciousIP Rule
	sanitization Rule
	tokenAnomaly Rule

	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time

	mu        sync.Mutex
	lastAlert map[string]time.Time
	counts    map[string]int64
}

// EngineOption is a functional option for the engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(logger observability.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEngineMetrics sets the metrics.
func WithEngineMetrics(metrics *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithCheckTimeout bounds each check, including publishing its alert.
func WithCheckTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithEngineClock overrides time.Now.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine reading store and publishing to sink. Zero
// rule fields in cfg take the built-in defaults.
func NewEngine(store audit.Store, sink Sink, cfg config.AlertConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		store:        store,
		sink:         sink,
		cooldown:     cfg.Cooldown.Duration(),
		timeout:      defaultCheckTimeout,
		authFailure:  ruleFrom(cfg.AuthFailureSpike, 5*time.Minute, 5),
		suspiciousIP: ruleFrom(cfg.SuspiciousIP, 10*time.Minute, 10),
		sanitization: ruleFrom(cfg.Sanitization, 60*time.Minute, 100),
		tokenAnomaly: ruleFrom(cfg.TokenAnomaly, 10*time.Minute, 20),
		logger:       observability.NopLogger(),
		now:          time.Now,
		lastAlert:    make(map[string]time.Time),
		counts:       make(map[string]int64),
	}
	if e.cooldown <= 0 {
		e.cooldown = defaultCooldown
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink == nil {
		e.sink = NewLogSink(e.logger)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

// CheckAuthFailureSpike alerts when global authentication failures reach
// the threshold.
func (e *Engine) CheckAuthFailureSpike(ctx context.Context) (*Alert, error) {
	r := e.authFailure
	n, err := e.store.Count(ctx, audit.Filter{
		From: e.now().Add(-r.Window),
		Type: audit.EventAuthenticationFailure,
	})
	if err != nil {
		return nil, e.checkFailed(TypeAuthFailureSpike, err)
	}
	if n < r.Threshold {
		return nil, nil
	}
	return e.trigger(ctx, TypeAuthFailureSpike, SeverityHigh,
		"Authentication failure spike",
		fmt.Sprintf("%d authentication failures in the last %s", n, r.Window),
		map[string]interface{}{
			"failureCount": n,
			"timeWindow":   r.Window.String(),
			"threshold":    r.Threshold,
		},
	), nil
}

// CheckSuspiciousIP alerts when a single client address reaches the
// failure threshold. The address with the most failures is reported.
func (e *Engine) CheckSuspiciousIP(ctx context.Context) (*Alert, error) {
	r := e.suspiciousIP
	events, err := e.store.Query(ctx, audit.Filter{
		From: e.now().Add(-r.Window),
		Type: audit.EventAuthenticationFailure,
	})
	if err != nil {
		return nil, e.checkFailed(TypeSuspiciousIP, err)
	}

	byIP := make(map[string]int)
	for _, ev := range events {
		byIP[ev.ClientIP]++
	}
	ips := make([]string, 0, len(byIP))
	for ip, n := range byIP {
		if n >= r.Threshold {
			ips = append(ips, ip)
		}
	}
	if len(ips) == 0 {
		return nil, nil
	}
	sort.Slice(ips, func(i, j int) bool {
		if byIP[ips[i]] != byIP[ips[j]] {
			return byIP[ips[i]] > byIP[ips[j]]
		}
		return ips[i] < ips[j]
	})

	ip, n := ips[0], byIP[ips[0]]
	masked := MaskIP(ip)
	return e.trigger(ctx, TypeSuspiciousIP, SeverityHigh,
		"Suspicious IP activity",
		fmt.Sprintf("IP %s produced %d authentication failures in the last %s", masked, n, r.Window),
		map[string]interface{}{
			"clientIp":      masked,
			"failureCount":  n,
			"timeWindow":    r.Window.String(),
			"threshold":     r.Threshold,
			"suspiciousIps": len(ips),
		},
	), nil
}

// CheckSanitizationAnomaly alerts when sanitization operations reach the
// threshold.
func (e *Engine) CheckSanitizationAnomaly(ctx context.Context) (*Alert, error) {
	r := e.sanitization
	n, err := e.store.Count(ctx, audit.Filter{
		From: e.now().Add(-r.Window),
		Type: audit.EventDataSanitization,
	})
	if err != nil {
		return nil, e.checkFailed(TypeSanitizationAnomaly, err)
	}
	if n < r.Threshold {
		return nil, nil
	}
	return e.trigger(ctx, TypeSanitizationAnomaly, SeverityMedium,
		"Sanitization anomaly",
		fmt.Sprintf("%d sanitization operations in the last %s", n, r.Window),
		map[string]interface{}{
			"sanitizationCount": n,
			"timeWindow":        r.Window.String(),
			"threshold":         r.Threshold,
		},
	), nil
}

// CheckTokenAnomaly alerts when failed signed-token events reach the
// threshold.
func (e *Engine) CheckTokenAnomaly(ctx context.Context) (*Alert, error) {
	r := e.tokenAnomaly
	events, err := e.store.Query(ctx, audit.Filter{
		From:    e.now().Add(-r.Window),
		Success: audit.Bool(false),
	})
	if err != nil {
		return nil, e.checkFailed(TypeJWTAnomaly, err)
	}

	n := 0
	for _, ev := range events {
		if ev.IsJWT() {
			n++
		}
	}
	if n < r.Threshold {
		return nil, nil
	}
	return e.trigger(ctx, TypeJWTAnomaly, SeverityMedium,
		"Signed token anomaly",
		fmt.Sprintf("%d signed token failures in the last %s", n, r.Window),
		map[string]interface{}{
			"jwtFailureCount": n,
			"timeWindow":      r.Window.String(),
			"threshold":       r.Threshold,
		},
	), nil
}

// RunChecks runs every check once and returns the alerts raised. Check
// failures are logged and skipped.
func (e *Engine) RunChecks(ctx context.Context) []Alert {
	checks := []func(context.Context) (*Alert, error){
		e.CheckAuthFailureSpike,
		e.CheckSuspiciousIP,
		e.CheckSanitizationAnomaly,
		e.CheckTokenAnomaly,
	}

	var raised []Alert
	for _, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, e.timeout)
		a, err := check(checkCtx)
		cancel()
		if err != nil {
			e.logger.Warn("alert check failed", observability.Error(err))
			continue
		}
		if a != nil {
			raised = append(raised, *a)
		}
	}
	return raised
}

func (e *Engine) checkFailed(alertType string, err error) error {
	e.metrics.checkErrors.WithLabelValues(alertType).Inc()
	return fmt.Errorf("%s check: %w", alertType, err)
}

// trigger raises an alert unless alertType is cooling down.
func (e *Engine) trigger(
	ctx context.Context,
	alertType string,
	severity Severity,
	title, description string,
	data map[string]interface{},
) *Alert {
	now := e.now()

	e.mu.Lock()
	if last, ok := e.lastAlert[alertType]; ok && now.Sub(last) < e.cooldown {
		e.mu.Unlock()
		e.metrics.suppressed.WithLabelValues(alertType).Inc()
		e.logger.Debug("alert in cooldown, skipping", observability.String("alert_type", alertType))
		return nil
	}
	e.lastAlert[alertType] = now
	e.counts[alertType]++
	e.mu.Unlock()

	a := &Alert{
		ID:          uuid.New().String(),
		Type:        alertType,
		Title:       title,
		Description: description,
		Severity:    severity,
		Timestamp:   now,
		Data:        data,
		Status:      StatusActive,
	}

	e.metrics.alertsTotal.WithLabelValues(alertType, string(severity)).Inc()
	e.logger.Warn("security alert triggered",
		observability.String("alert_type", alertType),
		observability.String("severity", string(severity)),
		observability.String("description", description),
	)

	if err := e.sink.Publish(ctx, *a); err != nil {
		e.metrics.publishErrors.WithLabelValues(alertType).Inc()
		e.logger.Warn("failed to publish alert",
			observability.String("alert_id", a.ID),
			observability.Error(err),
		)
	}
	return a
}

// Stats returns per-type counts and last alert times.
func (e *Engine) Stats() Stats {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		AlertCounts:    make(map[string]int64, len(e.counts)),
		LastAlertTimes: make(map[string]time.Time, len(e.lastAlert)),
	}
	for t, n := range e.counts {
		s.AlertCounts[t] = n
		s.TotalAlerts += n
	}
	for t, last := range e.lastAlert {
		s.LastAlertTimes[t] = last
		if now.Sub(last) < 24*time.Hour {
			s.ActiveAlertsLast24Hours++
		}
	}
	return s
}

// Reset clears counts and cooldowns.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.lastAlert = make(map[string]time.Time)
	e.counts = make(map[string]int64)
	e.mu.Unlock()

	e.logger.Info("alert statistics reset")
}
