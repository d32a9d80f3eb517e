package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"aurora-hq/nexus/pkg/config"
	"aurora-hq/nexus/pkg/proxy"
	"aurora-hq/nexus/pkg/proxy/handlers"
	"aurora-hq/nexus/pkg/proxy/middleware"
	"aurora-hq/nexus/pkg/registry"
	"aurora-hq/nexus/pkg/routing"
	"aurora-hq/nexus/pkg/telemetry/metrics"
)

// Deps are the wired components the server serves. Metrics is optional;
// everything else is required.
type Deps struct {
	Registry  *registry.Registry
	Router    *routing.Router
	Forwarder *proxy.Forwarder
	Admin     *handlers.Admin
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

// Server is the gateway's HTTP front end.
type Server struct {
	cfg    config.ProxyConfig
	deps   Deps
	logger *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once

	mu      sync.RWMutex
	running bool
}

// New assembles a server from its components.
func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg.Proxy,
		deps:   deps,
		logger: logger,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Proxy.ListenAddress,
		Handler:           s.buildHandler(cfg),
		ReadHeaderTimeout: cfg.Proxy.ReadHeaderTimeout,
		IdleTimeout:       cfg.Proxy.IdleTimeout,
		MaxHeaderBytes:    cfg.Proxy.MaxHeaderBytes,
		// No WriteTimeout: SSE responses stay open for as long as the
		// upstream generates tokens.
	}
	return s
}

// Start runs the listener and blocks until ctx is cancelled, a SIGINT or
// SIGTERM arrives, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", slog.String("address", s.cfg.ListenAddress))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("listener failed: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()

		if serr := s.httpServer.Shutdown(shutdownCtx); serr != nil {
			err = fmt.Errorf("shutdown: %w", serr)
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		s.logger.Info("gateway stopped")
	})
	return err
}

// Handler exposes the assembled handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// buildHandler mounts every endpoint and wraps the mux in the middleware
// chain.
func (s *Server) buildHandler(cfg config.Config) http.Handler {
	mux := http.NewServeMux()

	gateway := handlers.NewGateway(s.deps.Router, s.deps.Forwarder)
	models := handlers.NewModels(s.deps.Registry, s.deps.Forwarder)

	for _, path := range s.deps.Router.BusinessPaths() {
		if path == "/v1/models" {
			mux.Handle(path, models)
			continue
		}
		mux.Handle(path, gateway)
	}

	mux.HandleFunc("/admin/servers/register", s.deps.Admin.Register)
	mux.HandleFunc("/admin/servers/unregister", s.deps.Admin.Unregister)
	mux.HandleFunc("/admin/servers", s.deps.Admin.List)

	mux.Handle("/health", handlers.Health())
	mux.Handle("/ready", handlers.Ready(s.deps.Registry))

	if s.deps.Metrics != nil && cfg.Telemetry.Metrics.Enabled {
		mux.Handle(cfg.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}

	// Everything not mounted above gets the OpenAI-style 404 instead of
	// the stdlib plain-text one.
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxy.WriteError(w, proxy.NewErrorResponse(
			fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path),
			proxy.ErrorTypeNotFound, proxy.CodeRouteNotFound,
		))
	}))

	var handler http.Handler = mux
	if cfg.Proxy.CORS.Enabled {
		handler = middleware.CORS(corsFromConfig(cfg.Proxy.CORS))(handler)
	}
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)
	return handler
}

func corsFromConfig(cfg config.CORSConfig) *middleware.CORSConfig {
	return &middleware.CORSConfig{
		Enabled:          true,
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		MaxAge:           cfg.MaxAge,
		AllowCredentials: cfg.AllowCredentials,
	}
}
