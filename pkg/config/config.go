package config

import "time"

// Config is the root configuration for the gateway. Every section carries
// sensible defaults; an empty file (or no file at all) yields a working
// single-node configuration listening on the default address.
type Config struct {
	// Proxy contains the HTTP listener configuration.
	Proxy ProxyConfig `yaml:"proxy"`

	// Registry controls backend membership and health bookkeeping.
	Registry RegistryConfig `yaml:"registry"`

	// Health controls the background probe loop.
	Health HealthConfig `yaml:"health"`

	// Forward controls upstream dispatch: timeouts, retries, stream buffering.
	Forward ForwardConfig `yaml:"forward"`

	// RAG toggles retrieval-augmented routing: chat and embedding traffic
	// is dispatched to the rag-chat and rag-embedding kinds instead of the
	// plain chat kind.
	RAG RAGConfig `yaml:"rag"`

	// Backends lists instances registered at startup, before the listener
	// accepts traffic. Equivalent to calling the admin register endpoint
	// once per entry.
	Backends []BackendConfig `yaml:"backends"`

	// Telemetry contains logging, metrics, and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Ledger configures the per-exchange request ledger. Disabled by
	// default.
	Ledger LedgerConfig `yaml:"ledger"`
}

// ProxyConfig contains the HTTP listener configuration.
//
// There is deliberately no write timeout: SSE responses stay open for as
// long as the upstream keeps generating tokens, and a server-level write
// timeout would sever them mid-stream.
type ProxyConfig struct {
	// ListenAddress is the "host:port" the gateway listens on.
	ListenAddress string `yaml:"listen_address"`

	// ReadHeaderTimeout bounds how long the server waits for request
	// headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown. In-flight requests still
	// running after this long are severed.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS configures cross-origin handling on the business endpoints.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	MaxAge           int      `yaml:"max_age"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// RegistryConfig controls backend membership.
type RegistryConfig struct {
	// FailureThreshold is the number of consecutive failures after which
	// an instance is marked unhealthy.
	FailureThreshold int `yaml:"failure_threshold"`

	// VerifyOnRegister probes a backend once before admitting it through
	// the admin register endpoint. A failed probe rejects the registration
	// with 400; nothing is added to the registry.
	VerifyOnRegister bool `yaml:"verify_on_register"`
}

// HealthConfig controls the background probe loop.
type HealthConfig struct {
	// Enabled turns the probe loop on.
	Enabled bool `yaml:"enabled"`

	// Interval between probe sweeps.
	Interval time.Duration `yaml:"interval"`

	// Timeout per individual probe.
	Timeout time.Duration `yaml:"timeout"`

	// Path probed on each backend, relative to its base URL.
	Path string `yaml:"path"`

	// EvictAfter unregisters an instance after this many consecutive
	// failed probes. Zero keeps unhealthy instances registered until
	// manually unregistered.
	EvictAfter int `yaml:"evict_after"`
}

// ForwardConfig controls upstream dispatch.
type ForwardConfig struct {
	// RequestTimeout bounds a buffered (non-streaming) upstream exchange
	// end to end. For streaming exchanges it bounds time-to-first-header
	// only.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxRetries is how many additional instances are tried after the
	// first attempt fails retriably.
	MaxRetries int `yaml:"max_retries"`

	// StreamBuffer is the chunk channel capacity between the upstream
	// reader and the client writer on streaming responses.
	StreamBuffer int `yaml:"stream_buffer"`
}

// RAGConfig toggles retrieval-augmented routing.
type RAGConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BackendConfig is one statically-configured backend instance.
type BackendConfig struct {
	// URL is the backend base URL, e.g. "http://10.0.0.5:8080".
	URL string `yaml:"url"`

	// Kind is the backend category: chat, whisper, image, tts, rag-chat,
	// or rag-embedding.
	Kind string `yaml:"kind"`
}

// TelemetryConfig groups observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`

	// Output is "stdout" or "stderr".
	Output string `yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is where the scrape handler is mounted, default "/metrics".
	Path string `yaml:"path"`
}

// TracingConfig controls OpenTelemetry trace export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is "otlp" or "zipkin".
	Exporter string `yaml:"exporter"`

	// Endpoint is the collector address: host:port for otlp-grpc, a full
	// URL for zipkin.
	Endpoint string `yaml:"endpoint"`

	// ServiceName identifies this gateway in traces.
	ServiceName string `yaml:"service_name"`

	// SampleRate in [0,1]; 1 traces every request.
	SampleRate float64 `yaml:"sample_rate"`
}

// LedgerConfig configures the request ledger.
type LedgerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// SQLite settings, used when Backend is "sqlite".
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Buffer is the async recorder queue depth. Records are dropped, with
	// a counter incremented, when the queue is full.
	Buffer int `yaml:"buffer"`

	// Retention prunes old records on a cron schedule.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains SQLite backend settings for the ledger.
type SQLiteConfig struct {
	Path         string        `yaml:"path"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	WALMode      bool          `yaml:"wal_mode"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig controls ledger pruning.
type RetentionConfig struct {
	// Days is how long records are kept. Zero disables pruning.
	Days int `yaml:"days"`

	// Schedule is a standard 5-field cron expression.
	Schedule string `yaml:"schedule"`
}
