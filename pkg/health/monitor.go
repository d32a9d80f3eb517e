package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"aurora-hq/nexus/pkg/registry"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 5 * time.Second
	DefaultPath     = "/v1/models"
)

// Config controls the probe loop.
type Config struct {
	// Interval between probe sweeps.
	Interval time.Duration

	// Timeout applied to each individual probe request.
	Timeout time.Duration

	// Path probed on each instance, relative to its base URL.
	Path string

	// EvictAfter unregisters an instance once it has failed this many
	// consecutive probes. Zero disables eviction: unhealthy instances
	// stay registered (and excluded from dispatch) until unregistered
	// by hand.
	EvictAfter int
}

// Monitor owns the probe loop. Create with New, start with Start, and stop
// with Stop; a stopped monitor cannot be restarted.
type Monitor struct {
	reg    *registry.Registry
	cfg    Config
	client *http.Client
	logger *slog.Logger

	// OnSweep, if set, is invoked after every completed sweep with the
	// registry's per-kind stats. Used to refresh metrics gauges.
	OnSweep func(map[registry.Kind]registry.KindStats)

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a Monitor over reg. Zero fields of cfg take package defaults.
func New(reg *registry.Registry, cfg Config, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		reg:    reg,
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.Timeout},
		done:   make(chan struct{}),
	}
}

// Start launches the probe loop in a background goroutine. It returns
// immediately. The loop stops when ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		m.logger.Info("health monitor started",
			slog.Duration("interval", m.cfg.Interval),
			slog.String("path", m.cfg.Path),
			slog.Int("evict_after", m.cfg.EvictAfter))

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// A sweep against slow backends can outlast the
				// interval; if the previous one is still running,
				// skip this tick rather than stacking sweeps.
				if !m.running.CompareAndSwap(false, true) {
					m.logger.Warn("health sweep still running, skipping tick")
					continue
				}
				m.Sweep(ctx)
				m.running.Store(false)
			}
		}
	}()
}

// Stop terminates the loop and waits for an in-flight sweep to finish.
// Stopping a monitor that was never started is a no-op.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// Sweep probes every registered instance once, in parallel, and feeds the
// results back into the registry. Exported so callers can force an
// immediate sweep outside the ticker cadence.
func (m *Monitor) Sweep(ctx context.Context) {
	all := m.reg.ListAll()

	var wg sync.WaitGroup
	for kind, instances := range all {
		for _, inst := range instances {
			wg.Add(1)
			go func(kind registry.Kind, inst registry.Instance) {
				defer wg.Done()
				m.probe(ctx, kind, inst)
			}(kind, inst)
		}
	}
	wg.Wait()

	if m.OnSweep != nil {
		m.OnSweep(m.reg.Stats())
	}
}

func (m *Monitor) probe(ctx context.Context, kind registry.Kind, inst registry.Instance) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	start := time.Now()
	ok := m.check(ctx, inst.BaseURL)
	latency := time.Since(start)

	failures, err := m.reg.ReportProbe(inst.ID, ok, latency)
	if err != nil {
		// Instance was unregistered while the probe was in flight.
		return
	}

	if ok {
		if !inst.Healthy {
			m.logger.Info("backend recovered",
				slog.String("id", inst.ID),
				slog.String("kind", kind.String()),
				slog.String("url", inst.BaseURL))
		}
		return
	}

	m.logger.Warn("backend probe failed",
		slog.String("id", inst.ID),
		slog.String("kind", kind.String()),
		slog.String("url", inst.BaseURL),
		slog.Int("consecutive_failures", failures))

	if m.cfg.EvictAfter > 0 && failures >= m.cfg.EvictAfter {
		if err := m.reg.UnregisterByID(inst.ID); err == nil {
			m.logger.Warn("backend evicted after repeated probe failures",
				slog.String("id", inst.ID),
				slog.String("kind", kind.String()),
				slog.String("url", inst.BaseURL),
				slog.Int("failures", failures))
		}
	}
}

func (m *Monitor) check(ctx context.Context, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s", baseURL, m.cfg.Path), nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
