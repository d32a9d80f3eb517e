// Package metrics defines the gateway's Prometheus instrumentation: upstream
// exchange counters and latency histograms, retry and failure counters, and
// registry membership gauges refreshed from health sweeps. A Collector owns
// its own registry so tests never collide on the global default.
package metrics
