// Package server exposes authguard over HTTP with gin.
//
// Routes:
//
//	GET  /health                 liveness
//	GET  /ready                  readiness of the configured dependencies
//	GET  /metrics                Prometheus metrics
//	GET  /admin/audit/stats      audit statistics over a time range
//	GET  /admin/alerts/stats     alert engine statistics
//	POST /admin/alerts/reset     clear alert state
//	POST /admin/tokens/revoke    revoke a signed token
//	GET  /admin/usage            per-principal usage statistics
//	*    everything else         authenticated, then proxied upstream
//
// Admin routes require the admin permission.
package server
