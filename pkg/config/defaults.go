package config

import "time"

// Default values applied by ApplyDefaults.
const (
	DefaultListenAddress     = "127.0.0.1:8080"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1MB

	DefaultCORSMaxAge = 3600

	DefaultFailureThreshold = 3

	DefaultHealthInterval = 10 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
	DefaultHealthPath     = "/v1/models"

	DefaultRequestTimeout = 60 * time.Second
	DefaultMaxRetries     = 1
	DefaultStreamBuffer   = 16

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultLogOutput = "stdout"

	DefaultMetricsPath = "/metrics"

	DefaultTracingExporter    = "otlp"
	DefaultTracingServiceName = "nexus"
	DefaultTracingSampleRate  = 1.0

	DefaultLedgerBackend           = "memory"
	DefaultLedgerBuffer            = 1000
	DefaultLedgerSQLitePath        = "data/ledger.db"
	DefaultLedgerMaxOpenConns      = 10
	DefaultLedgerMaxIdleConns      = 5
	DefaultLedgerBusyTimeout       = 5 * time.Second
	DefaultLedgerRetentionSchedule = "0 3 * * *"
)

// ApplyDefaults fills in zero-valued fields. Booleans keep their YAML values
// since false is meaningful for every toggle here.
func ApplyDefaults(cfg *Config) {
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadHeaderTimeout == 0 {
		cfg.Proxy.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if len(cfg.Proxy.CORS.AllowedOrigins) == 0 {
		cfg.Proxy.CORS.AllowedOrigins = []string{"*"}
	}
	if len(cfg.Proxy.CORS.AllowedMethods) == 0 {
		cfg.Proxy.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.Proxy.CORS.AllowedHeaders) == 0 {
		cfg.Proxy.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "Accept"}
	}
	if cfg.Proxy.CORS.MaxAge == 0 {
		cfg.Proxy.CORS.MaxAge = DefaultCORSMaxAge
	}

	if cfg.Registry.FailureThreshold == 0 {
		cfg.Registry.FailureThreshold = DefaultFailureThreshold
	}

	if cfg.Health.Interval == 0 {
		cfg.Health.Interval = DefaultHealthInterval
	}
	if cfg.Health.Timeout == 0 {
		cfg.Health.Timeout = DefaultHealthTimeout
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = DefaultHealthPath
	}

	if cfg.Forward.RequestTimeout == 0 {
		cfg.Forward.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Forward.MaxRetries == 0 {
		cfg.Forward.MaxRetries = DefaultMaxRetries
	}
	if cfg.Forward.StreamBuffer == 0 {
		cfg.Forward.StreamBuffer = DefaultStreamBuffer
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Logging.Output == "" {
		cfg.Telemetry.Logging.Output = DefaultLogOutput
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Tracing.Exporter == "" {
		cfg.Telemetry.Tracing.Exporter = DefaultTracingExporter
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.SampleRate == 0 {
		cfg.Telemetry.Tracing.SampleRate = DefaultTracingSampleRate
	}

	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = DefaultLedgerBackend
	}
	if cfg.Ledger.Buffer == 0 {
		cfg.Ledger.Buffer = DefaultLedgerBuffer
	}
	if cfg.Ledger.SQLite.Path == "" {
		cfg.Ledger.SQLite.Path = DefaultLedgerSQLitePath
	}
	if cfg.Ledger.SQLite.MaxOpenConns == 0 {
		cfg.Ledger.SQLite.MaxOpenConns = DefaultLedgerMaxOpenConns
	}
	if cfg.Ledger.SQLite.MaxIdleConns == 0 {
		cfg.Ledger.SQLite.MaxIdleConns = DefaultLedgerMaxIdleConns
	}
	if cfg.Ledger.SQLite.BusyTimeout == 0 {
		cfg.Ledger.SQLite.BusyTimeout = DefaultLedgerBusyTimeout
	}
	if cfg.Ledger.Retention.Schedule == "" {
		cfg.Ledger.Retention.Schedule = DefaultLedgerRetentionSchedule
	}
}

// DefaultConfig returns a fully-defaulted configuration, as if loaded from
// an empty file.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
