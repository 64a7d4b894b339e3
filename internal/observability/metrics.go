package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsNamespace prefixes every metric exported by authguard.
const MetricsNamespace = "authguard"

// Registerer is implemented by per-package metric sets.
type Registerer interface {
	MustRegister(registry *prometheus.Registry)
}

// NewRegistry returns a registry preloaded with Go runtime and process
// collectors plus the given metric sets.
func NewRegistry(sets ...Registerer) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, s := range sets {
		s.MustRegister(registry)
	}
	return registry
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		Registry:          registry,
		EnableOpenMetrics: true,
	})
}
