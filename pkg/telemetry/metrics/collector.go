package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"aurora-hq/nexus/pkg/proxy"
	"aurora-hq/nexus/pkg/registry"
)

const (
	namespace = "nexus"
	subsystem = "gateway"
)

// Collector owns every Prometheus metric the gateway exposes.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	responseBytes    *prometheus.HistogramVec
	upstreamFailures *prometheus.CounterVec
	streamsTotal     *prometheus.CounterVec

	backendsRegistered *prometheus.GaugeVec
	backendsHealthy    *prometheus.GaugeVec
	requestsInFlight   *prometheus.GaugeVec

	ledgerDropped prometheus.Counter
}

// NewCollector creates and registers the gateway metrics. A nil reg gets a
// fresh private registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: reg,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Upstream exchanges completed, by backend kind and HTTP status.",
			},
			[]string{"kind", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Upstream exchange duration in seconds.",
				// Inference latencies run from sub-second embeddings to
				// multi-minute generations.
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),
		responseBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "response_bytes",
				Help:      "Bytes relayed to the client per exchange.",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 10), // 256B to ~64MB
			},
			[]string{"kind"},
		),
		upstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "upstream_failures_total",
				Help:      "Failed upstream attempts, by backend kind and failure class.",
			},
			[]string{"kind", "failure"},
		),
		streamsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "streams_total",
				Help:      "Streaming (SSE) exchanges, by backend kind.",
			},
			[]string{"kind"},
		),

		backendsRegistered: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "backends_registered",
				Help:      "Backend instances currently registered, by kind.",
			},
			[]string{"kind"},
		),
		backendsHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "backends_healthy",
				Help:      "Backend instances currently healthy, by kind.",
			},
			[]string{"kind"},
		),
		requestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_in_flight",
				Help:      "Exchanges currently dispatched to backends, by kind.",
			},
			[]string{"kind"},
		),

		ledgerDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ledger_dropped_total",
				Help:      "Ledger records dropped because the recorder queue was full.",
			},
		),
	}

	reg.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.responseBytes,
		c.upstreamFailures,
		c.streamsTotal,
		c.backendsRegistered,
		c.backendsHealthy,
		c.requestsInFlight,
		c.ledgerDropped,
	)

	return c
}

// ObserveExchange records one completed upstream exchange. Wire it to the
// forwarder's OnExchange hook.
func (c *Collector) ObserveExchange(ex proxy.Exchange) {
	kind := ex.Kind.String()

	c.requestsTotal.WithLabelValues(kind, strconv.Itoa(ex.Status)).Inc()
	c.requestDuration.WithLabelValues(kind).Observe(ex.Duration.Seconds())
	c.responseBytes.WithLabelValues(kind).Observe(float64(ex.BytesOut))
	if ex.Streamed {
		c.streamsTotal.WithLabelValues(kind).Inc()
	}
	if ex.FailureKind != "" {
		c.upstreamFailures.WithLabelValues(kind, ex.FailureKind).Inc()
	}
}

// SetRegistryStats refreshes the membership gauges. Wire it to the health
// monitor's OnSweep hook and call it after admin mutations.
func (c *Collector) SetRegistryStats(stats map[registry.Kind]registry.KindStats) {
	for kind, st := range stats {
		label := kind.String()
		c.backendsRegistered.WithLabelValues(label).Set(float64(st.Registered))
		c.backendsHealthy.WithLabelValues(label).Set(float64(st.Healthy))
		c.requestsInFlight.WithLabelValues(label).Set(float64(st.InFlight))
	}
}

// LedgerDropped counts one discarded ledger record.
func (c *Collector) LedgerDropped() {
	c.ledgerDropped.Inc()
}

// Registry exposes the underlying Prometheus registry for the scrape
// handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
