// Package observability provides the operational plumbing for the payments
// service: structured JSON logging with request/tenant context, Prometheus
// metrics for the checkout pipeline, OpenTelemetry tracing, dependency
// health checks, panic recovery, and graceful shutdown.
package observability
