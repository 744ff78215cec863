// Package observability provides structured logging and Prometheus metrics
// for the collector pipeline and the read API.
//
// # Logging
//
// Logger wraps stdlib slog with a JSON handler and chainable field helpers:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("package", name).WithError(err).Warn("bucket fetch failed")
//
// # Metrics
//
// NewMetrics registers the full metric set (provider fetches, saved points,
// storage operations, cache hits, HTTP requests, batch runs) on a dedicated
// registry. HTTPMetricsMiddleware instruments handlers and MetricsHandler
// serves the /metrics endpoint.
package observability
