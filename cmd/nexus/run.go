package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"aurora-hq/nexus/pkg/config"
	"aurora-hq/nexus/pkg/health"
	"aurora-hq/nexus/pkg/ledger"
	"aurora-hq/nexus/pkg/proxy"
	"aurora-hq/nexus/pkg/proxy/handlers"
	"aurora-hq/nexus/pkg/registry"
	"aurora-hq/nexus/pkg/routing"
	"aurora-hq/nexus/pkg/server"
	"aurora-hq/nexus/pkg/telemetry/logging"
	"aurora-hq/nexus/pkg/telemetry/metrics"
	"aurora-hq/nexus/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	rag           bool
	watchConfig   bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the gateway with the given configuration.

Statically configured backends are registered before the listener accepts
traffic; further instances can be added and removed at runtime through the
admin API.

Examples:
  # Start with defaults (listens on 127.0.0.1:8080)
  nexus run

  # Start with a config file
  nexus run --config /etc/nexus/nexus.yaml

  # Override the listen address
  nexus run --listen 0.0.0.0:9068

  # Route chat and embeddings to RAG backends
  nexus run --rag

  # Validate config and exit
  nexus run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.rag, "rag", false, "enable RAG routing")
	runCmd.Flags().BoolVar(&runFlags.watchConfig, "watch-config", false, "reload static backends when the config file changes")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.rag {
		cfg.RAG.Enabled = true
	}

	logger, err := logging.New(cfg.Telemetry.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracer, err := tracing.New(ctx, cfg.Telemetry.Tracing)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	collector := metrics.NewCollector(nil)

	reg := registry.New(registry.Config{
		FailureThreshold: cfg.Registry.FailureThreshold,
	})
	if err := registerStaticBackends(reg, cfg.Backends, logger); err != nil {
		return err
	}
	collector.SetRegistryStats(reg.Stats())

	forwarder := proxy.NewForwarder(reg, proxy.Config{
		RequestTimeout: cfg.Forward.RequestTimeout,
		MaxRetries:     cfg.Forward.MaxRetries,
		StreamBuffer:   cfg.Forward.StreamBuffer,
	})

	// Fan the exchange hook out to metrics and, when enabled, the ledger.
	var recorder *ledger.Recorder
	if cfg.Ledger.Enabled {
		recorder, err = newRecorder(cfg.Ledger, collector, logger)
		if err != nil {
			return err
		}
		defer recorder.Close()
	}
	forwarder.OnExchange = func(ex proxy.Exchange) {
		collector.ObserveExchange(ex)
		if recorder != nil {
			recorder.Record(ex)
		}
	}

	if cfg.Health.Enabled {
		monitor := health.New(reg, health.Config{
			Interval:   cfg.Health.Interval,
			Timeout:    cfg.Health.Timeout,
			Path:       cfg.Health.Path,
			EvictAfter: cfg.Health.EvictAfter,
		}, logger)
		monitor.OnSweep = collector.SetRegistryStats
		monitor.Start(ctx)
		defer monitor.Stop()
	}

	if runFlags.watchConfig && cfgFile != "" {
		watcher, werr := config.NewWatcher(cfgFile, logger)
		if werr != nil {
			return werr
		}
		current := cfg.Backends
		if werr := watcher.Watch(func(next *config.Config) {
			syncStaticBackends(reg, current, next.Backends, logger)
			current = next.Backends
		}); werr != nil {
			return werr
		}
		defer watcher.Stop()
	}

	srv := server.New(*cfg, server.Deps{
		Registry:  reg,
		Router:    routing.New(cfg.RAG.Enabled),
		Forwarder: forwarder,
		Admin: handlers.NewAdmin(reg, handlers.AdminConfig{
			VerifyOnRegister: cfg.Registry.VerifyOnRegister,
			VerifyPath:       cfg.Health.Path,
			VerifyTimeout:    cfg.Health.Timeout,
		}),
		Metrics: collector,
		Logger:  logger,
	})

	logger.Info("gateway starting",
		slog.String("address", cfg.Proxy.ListenAddress),
		slog.Bool("rag_mode", cfg.RAG.Enabled),
		slog.Int("static_backends", len(cfg.Backends)))

	return srv.Start(ctx)
}

func newRecorder(cfg config.LedgerConfig, collector *metrics.Collector, logger *slog.Logger) (*ledger.Recorder, error) {
	var store ledger.Storage
	switch cfg.Backend {
	case "sqlite":
		var err error
		store, err = ledger.NewSQLiteStorage(cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("open ledger storage: %w", err)
		}
	default:
		store = ledger.NewMemoryStorage(0)
	}

	recorder := ledger.NewRecorder(store, cfg.Buffer, logger)
	recorder.OnDrop = collector.LedgerDropped

	pruner := ledger.NewPruner(store, cfg.Retention.Days, cfg.Retention.Schedule, logger)
	if err := pruner.Start(); err != nil {
		recorder.Close()
		return nil, err
	}
	return recorder, nil
}

// registerStaticBackends admits the configured backends before the listener
// opens. A duplicate entry is harmless; anything else fails startup since
// the config was already validated.
func registerStaticBackends(reg *registry.Registry, backends []config.BackendConfig, logger *slog.Logger) error {
	for _, b := range backends {
		kind, err := registry.ParseKind(b.Kind)
		if err != nil {
			return fmt.Errorf("backend %q: %w", b.URL, err)
		}
		inst, err := reg.Register(kind, b.URL)
		if err != nil {
			return fmt.Errorf("register backend %q: %w", b.URL, err)
		}
		logger.Info("backend registered from config",
			slog.String("id", inst.ID),
			slog.String("kind", kind.String()),
			slog.String("url", inst.BaseURL))
	}
	return nil
}

// syncStaticBackends reconciles the registry against a reloaded backends
// list: entries that disappeared are unregistered, new ones registered.
// Backends added at runtime through the admin API are untouched.
func syncStaticBackends(reg *registry.Registry, old, next []config.BackendConfig, logger *slog.Logger) {
	type key struct{ kind, url string }

	oldSet := make(map[key]bool, len(old))
	for _, b := range old {
		oldSet[key{b.Kind, b.URL}] = true
	}
	nextSet := make(map[key]bool, len(next))
	for _, b := range next {
		nextSet[key{b.Kind, b.URL}] = true
	}

	for _, b := range old {
		if nextSet[key{b.Kind, b.URL}] {
			continue
		}
		kind, err := registry.ParseKind(b.Kind)
		if err != nil {
			continue
		}
		if err := reg.Unregister(kind, b.URL); err != nil {
			logger.Warn("config reload: unregister failed",
				slog.String("url", b.URL),
				slog.Any("error", err))
			continue
		}
		logger.Info("backend removed by config reload",
			slog.String("kind", b.Kind),
			slog.String("url", b.URL))
	}

	for _, b := range next {
		if oldSet[key{b.Kind, b.URL}] {
			continue
		}
		kind, err := registry.ParseKind(b.Kind)
		if err != nil {
			logger.Warn("config reload: skipping backend with unknown kind",
				slog.String("url", b.URL),
				slog.String("kind", b.Kind))
			continue
		}
		inst, err := reg.Register(kind, b.URL)
		if err != nil {
			logger.Warn("config reload: register failed",
				slog.String("url", b.URL),
				slog.Any("error", err))
			continue
		}
		logger.Info("backend added by config reload",
			slog.String("id", inst.ID),
			slog.String("kind", b.Kind),
			slog.String("url", inst.BaseURL))
	}
}
