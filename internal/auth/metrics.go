package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/authguard/internal/observability"
)

// Metrics holds Prometheus metrics for the authentication pipeline.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	failuresTotal   *prometheus.CounterVec
}

// NewMetrics creates metrics registered with registerer. A nil registerer
// uses the default one. Duplicate registration is ignored so tests may
// build several services.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	ns := observability.MetricsNamespace

	m := &Metrics{}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "auth",
			Name:      "requests_total",
			Help:      "Total number of authenticated requests by outcome",
		},
		[]string{"scheme", "outcome"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "auth",
			Name:      "request_duration_seconds",
			Help:      "Authentication pipeline duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"scheme"},
	)

	m.failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Total number of rejected requests by reason",
		},
		[]string{"scheme", "reason"},
	)

	for _, c := range []prometheus.Collector{m.requestsTotal, m.requestDuration, m.failuresTotal} {
		_ = registerer.Register(c)
	}
	return m
}

// Init pre-initializes the common label combinations so they appear in
// /metrics before the first request.
func (m *Metrics) Init() {
	for _, scheme := range []Scheme{SchemeStaticKey, SchemeSignedToken} {
		for _, outcome := range []string{"accepted", "rejected"} {
			m.requestsTotal.WithLabelValues(string(scheme), outcome)
		}
		m.requestDuration.WithLabelValues(string(scheme))
	}
}

func (m *Metrics) record(scheme string, o Outcome, d time.Duration) {
	outcome := "accepted"
	if o.Err != nil {
		outcome = "rejected"
		m.failuresTotal.WithLabelValues(scheme, o.Err.Reason).Inc()
	}
	m.requestsTotal.WithLabelValues(scheme, outcome).Inc()
	m.requestDuration.WithLabelValues(scheme).Observe(d.Seconds())
}
