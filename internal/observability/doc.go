// Package observability provides logging, metrics, and tracing for authguard.
//
// Logging is structured via zap behind the Logger interface:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("principal validated",
//	    observability.String("principal_id", id),
//	    observability.Duration("took", d),
//	)
//
// Metrics are registered on a dedicated Prometheus registry returned by
// NewRegistry and exposed through MetricsHandler.
//
// Tracing uses the OpenTelemetry API. When enabled, NewTracer installs an
// SDK provider exporting over OTLP gRPC; otherwise spans are no-ops.
package observability
