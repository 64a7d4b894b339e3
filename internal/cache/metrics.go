package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/authguard/internal/observability"
)

// Metrics holds Prometheus collectors for cache operations.
type Metrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions *prometheus.CounterVec
	errors    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	size      *prometheus.GaugeVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the process-wide cache metrics.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

func newMetrics() *Metrics {
	ns := observability.MetricsNamespace
	return &Metrics{
		hits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of validation cache hits",
		}, []string{"backend"}),
		misses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of validation cache misses",
		}, []string{"backend"}),
		evictions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of entries removed by expiry or eviction",
		}, []string{"backend"}),
		errors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Total number of backend errors degraded to a miss",
		}, []string{"backend", "operation"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "cache",
			Name:      "operation_duration_seconds",
			Help:      "Cache read and write latency",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"backend", "operation"}),
		size: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries held by the memory backend",
		}, []string{"backend"}),
	}
}

// MustRegister registers the collectors with registry. promauto already
// registered them with the default registry; the server exposes a custom
// one.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.hits, m.misses, m.evictions, m.errors, m.duration, m.size)
}

// Init pre-creates label combinations so series appear before first use.
func (m *Metrics) Init() {
	for _, backend := range []string{BackendMemory, BackendRedis} {
		m.hits.WithLabelValues(backend)
		m.misses.WithLabelValues(backend)
		m.evictions.WithLabelValues(backend)
		for _, op := range []string{"get", "put", "evict", "exists", "expire", "clear"} {
			m.errors.WithLabelValues(backend, op)
			m.duration.WithLabelValues(backend, op)
		}
	}
}
