// Package tracing initializes the OpenTelemetry SDK for the gateway. When
// tracing is disabled the returned tracer is a noop, so call sites never
// check a flag. OTLP over gRPC and Zipkin exporters are supported.
package tracing
