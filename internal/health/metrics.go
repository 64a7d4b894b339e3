package health

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/authguard/internal/observability"
)

// Metrics holds health check metrics.
type Metrics struct {
	checksTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates health metrics registered with registerer. A nil
// registerer uses the default one. Duplicate registration is ignored.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	ns := observability.MetricsNamespace

	m := &Metrics{
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "health",
			Name:      "checks_total",
			Help:      "Total number of health checks performed",
		}, []string{"type"}),
		checkStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "health",
			Name:      "dependency_status",
			Help:      "Dependency status (1=healthy, 0=unhealthy)",
		}, []string{"dependency", "type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "health",
			Name:      "check_duration_seconds",
			Help:      "Duration of dependency checks",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5},
		}, []string{"dependency"}),
	}
	for _, c := range []prometheus.Collector{m.checksTotal, m.checkStatus, m.duration} {
		_ = registerer.Register(c)
	}
	return m
}

// Init pre-initializes the probe counters.
func (m *Metrics) Init() {
	for _, probe := range []string{"liveness", "readiness"} {
		m.checksTotal.WithLabelValues(probe)
	}
}

func (m *Metrics) probe(kind string) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) dependency(d *DependencyCheck, healthy bool, seconds float64) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.checkStatus.WithLabelValues(d.name, string(d.depType)).Set(v)
	m.duration.WithLabelValues(d.name).Observe(seconds)
}
