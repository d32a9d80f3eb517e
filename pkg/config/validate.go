package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// FieldError is a validation failure on one configuration field.
type FieldError struct {
	// Field is the dotted path to the field, e.g. "proxy.listen_address".
	Field string

	// Message describes what is wrong.
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError aggregates every field error found in one pass, so a bad
// config reports all of its problems at once.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "configuration validation failed"
	case 1:
		return "configuration validation failed: " + e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:", len(e.Errors))
	for _, fe := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(fe.Error())
	}
	return sb.String()
}

var validKinds = map[string]bool{
	"chat":          true,
	"whisper":       true,
	"image":         true,
	"tts":           true,
	"rag-chat":      true,
	"rag-embedding": true,
}

// Validate checks internal consistency. It assumes defaults have already
// been applied.
func Validate(cfg *Config) error {
	var errs []FieldError

	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, _, err := net.SplitHostPort(cfg.Proxy.ListenAddress); err != nil {
		add("proxy.listen_address", "invalid host:port %q: %v", cfg.Proxy.ListenAddress, err)
	}
	if cfg.Proxy.ShutdownTimeout < 0 {
		add("proxy.shutdown_timeout", "must not be negative")
	}

	if cfg.Registry.FailureThreshold < 1 {
		add("registry.failure_threshold", "must be at least 1, got %d", cfg.Registry.FailureThreshold)
	}

	if cfg.Health.Interval <= 0 {
		add("health.interval", "must be positive")
	}
	if cfg.Health.Timeout <= 0 {
		add("health.timeout", "must be positive")
	}
	if cfg.Health.Timeout > cfg.Health.Interval {
		add("health.timeout", "must not exceed health.interval (%s > %s)", cfg.Health.Timeout, cfg.Health.Interval)
	}
	if cfg.Health.EvictAfter < 0 {
		add("health.evict_after", "must not be negative")
	}
	if cfg.Health.Path != "" && !strings.HasPrefix(cfg.Health.Path, "/") {
		add("health.path", "must start with /")
	}

	if cfg.Forward.RequestTimeout <= 0 {
		add("forward.request_timeout", "must be positive")
	}
	if cfg.Forward.MaxRetries < 0 {
		add("forward.max_retries", "must not be negative")
	}
	if cfg.Forward.StreamBuffer < 1 {
		add("forward.stream_buffer", "must be at least 1")
	}

	for i, b := range cfg.Backends {
		field := fmt.Sprintf("backends[%d]", i)
		if b.URL == "" {
			add(field+".url", "required")
		} else if u, err := url.Parse(b.URL); err != nil || u.Scheme == "" || u.Host == "" {
			add(field+".url", "invalid URL %q", b.URL)
		} else if u.Scheme != "http" && u.Scheme != "https" {
			add(field+".url", "scheme must be http or https, got %q", u.Scheme)
		}
		if !validKinds[b.Kind] {
			add(field+".kind", "unknown kind %q", b.Kind)
		}
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("telemetry.logging.level", "must be debug, info, warn, or error, got %q", cfg.Telemetry.Logging.Level)
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		add("telemetry.logging.format", "must be json or text, got %q", cfg.Telemetry.Logging.Format)
	}
	switch cfg.Telemetry.Logging.Output {
	case "stdout", "stderr":
	default:
		add("telemetry.logging.output", "must be stdout or stderr, got %q", cfg.Telemetry.Logging.Output)
	}

	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Exporter {
		case "otlp", "zipkin":
		default:
			add("telemetry.tracing.exporter", "must be otlp or zipkin, got %q", cfg.Telemetry.Tracing.Exporter)
		}
		if cfg.Telemetry.Tracing.Endpoint == "" {
			add("telemetry.tracing.endpoint", "required when tracing is enabled")
		}
	}
	if sr := cfg.Telemetry.Tracing.SampleRate; sr < 0 || sr > 1 {
		add("telemetry.tracing.sample_rate", "must be in [0,1], got %v", sr)
	}

	if cfg.Ledger.Enabled {
		switch cfg.Ledger.Backend {
		case "memory", "sqlite":
		default:
			add("ledger.backend", "must be memory or sqlite, got %q", cfg.Ledger.Backend)
		}
		if cfg.Ledger.Backend == "sqlite" && cfg.Ledger.SQLite.Path == "" {
			add("ledger.sqlite.path", "required for the sqlite backend")
		}
		if cfg.Ledger.Buffer < 1 {
			add("ledger.buffer", "must be at least 1")
		}
		if cfg.Ledger.Retention.Days < 0 {
			add("ledger.retention.days", "must not be negative")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
