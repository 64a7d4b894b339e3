package alert

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/authguard/internal/observability"
)

// Metrics contains alert engine metrics.
type Metrics struct {
	alertsTotal   *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	checkErrors   *prometheus.CounterVec
	suppressed    *prometheus.CounterVec
}

// NewMetrics creates alert metrics registered with registerer. A nil
// registerer uses the default one. Duplicate registration is ignored.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	ns := observability.MetricsNamespace

	m := &Metrics{
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "alert",
			Name:      "alerts_total",
			Help:      "Total number of security alerts raised",
		}, []string{"type", "severity"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "alert",
			Name:      "publish_errors_total",
			Help:      "Alerts a sink failed to deliver",
		}, []string{"type"}),
		checkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "alert",
			Name:      "check_errors_total",
			Help:      "Alert checks that failed to query the audit store",
		}, []string{"type"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "alert",
			Name:      "suppressed_total",
			Help:      "Threshold breaches not alerted because of the cooldown",
		}, []string{"type"}),
	}

	for _, c := range []prometheus.Collector{m.alertsTotal, m.publishErrors, m.checkErrors, m.suppressed} {
		_ = registerer.Register(c)
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	for _, t := range []string{TypeAuthFailureSpike, TypeSuspiciousIP, TypeSanitizationAnomaly, TypeJWTAnomaly} {
		m.publishErrors.WithLabelValues(t)
		m.checkErrors.WithLabelValues(t)
		m.suppressed.WithLabelValues(t)
	}
}
