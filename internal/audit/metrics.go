package audit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/authguard/internal/observability"
)

// Metrics contains audit metrics.
type Metrics struct {
	eventsTotal  *prometheus.CounterVec
	droppedTotal prometheus.Counter
	writeErrors  prometheus.Counter
	queueDepth   prometheus.Gauge
	deleted      prometheus.Counter
}

// NewMetrics creates audit metrics registered with registerer. A nil
// registerer uses the default one. Duplicate registration is ignored.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	ns := observability.MetricsNamespace

	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total number of audit events written",
		}, []string{"type", "success"}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Audit events dropped because the queue was full or closed",
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "write_errors_total",
			Help:      "Audit events the store failed to persist",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "queue_depth",
			Help:      "Audit events waiting to be written",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "retention_deleted_total",
			Help:      "Audit events removed by retention",
		}),
	}

	for _, c := range []prometheus.Collector{m.eventsTotal, m.droppedTotal, m.writeErrors, m.queueDepth, m.deleted} {
		_ = registerer.Register(c)
	}
	return m
}

func successLabel(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}
