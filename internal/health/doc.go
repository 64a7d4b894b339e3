// Package health provides liveness and readiness reporting for authguard.
//
// Dependencies (principal store, cache backend, audit database) register a
// DependencyCheck with a Checker. Liveness is always healthy while the
// process serves requests; readiness runs every check and reports
// unhealthy when a critical one fails, degraded when only non-critical
// ones fail.
//
//	checker := health.NewChecker(version)
//	checker.Register(health.RedisCheck("cache", client))
//	checker.Register(health.PingCheck("audit-db", health.TypeDatabase, auditStore, health.WithCritical(false)))
//
//	router.GET("/health", checker.GinLiveness())
//	router.GET("/ready", checker.GinReadiness())
package health
