// Package observability provides structured logging, Prometheus and
// OpenTelemetry metrics, tracing setup, health checks and graceful shutdown.
//
// # Logging
//
//	logger := observability.NewLogger(observability.ParseLogLevel("info"), os.Stdout)
//	logger.WithField("user_id", id).WithError(err).Error("Dashboard failed")
//
// Request handlers use FromContext, which adds the request ID, user ID and
// trace IDs stored on the context.
//
// # Metrics
//
// Metrics registers HTTP, analytics, usage and auth collectors on a registry
// served by MetricsHandler. Both Metrics and OTelMetrics record dashboard
// computations and cache lookups for the analytics service.
//
// # Tracing
//
// InitOTel installs OTLP/gRPC providers. StartSpan and EndSpan wrap the
// dashboard computation and snapshot runs; they are no-ops while tracing is
// disabled.
//
// # Health
//
// HealthChecker serves /health/live and /health/ready. The database is
// required; Redis is optional and only degrades readiness.
package observability
