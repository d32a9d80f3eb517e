// Package telemetry groups the observability subpackages: structured
// logging (logging), Prometheus metrics (metrics), and OpenTelemetry
// distributed tracing (tracing).
package telemetry
