package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file, applies defaults and NEXUS_*
// environment overrides, then validates. Environment variables always win
// over file values.
//
// An empty path is allowed and produces the default configuration (still
// subject to env overrides).
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies NEXUS_SECTION_FIELD environment variables on top
// of the loaded configuration. Malformed values are ignored; validation
// afterward catches anything that matters.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Proxy.ListenAddress, "NEXUS_PROXY_LISTEN_ADDRESS")
	setDuration(&cfg.Proxy.ShutdownTimeout, "NEXUS_PROXY_SHUTDOWN_TIMEOUT")

	setInt(&cfg.Registry.FailureThreshold, "NEXUS_REGISTRY_FAILURE_THRESHOLD")
	setBool(&cfg.Registry.VerifyOnRegister, "NEXUS_REGISTRY_VERIFY_ON_REGISTER")

	setBool(&cfg.Health.Enabled, "NEXUS_HEALTH_ENABLED")
	setDuration(&cfg.Health.Interval, "NEXUS_HEALTH_INTERVAL")
	setDuration(&cfg.Health.Timeout, "NEXUS_HEALTH_TIMEOUT")
	setInt(&cfg.Health.EvictAfter, "NEXUS_HEALTH_EVICT_AFTER")

	setDuration(&cfg.Forward.RequestTimeout, "NEXUS_FORWARD_REQUEST_TIMEOUT")
	setInt(&cfg.Forward.MaxRetries, "NEXUS_FORWARD_MAX_RETRIES")

	setBool(&cfg.RAG.Enabled, "NEXUS_RAG_ENABLED")

	setString(&cfg.Telemetry.Logging.Level, "NEXUS_LOG_LEVEL")
	setString(&cfg.Telemetry.Logging.Format, "NEXUS_LOG_FORMAT")
	setBool(&cfg.Telemetry.Metrics.Enabled, "NEXUS_METRICS_ENABLED")
	setBool(&cfg.Telemetry.Tracing.Enabled, "NEXUS_TRACING_ENABLED")
	setString(&cfg.Telemetry.Tracing.Exporter, "NEXUS_TRACING_EXPORTER")
	setString(&cfg.Telemetry.Tracing.Endpoint, "NEXUS_TRACING_ENDPOINT")

	setBool(&cfg.Ledger.Enabled, "NEXUS_LEDGER_ENABLED")
	setString(&cfg.Ledger.Backend, "NEXUS_LEDGER_BACKEND")
	setString(&cfg.Ledger.SQLite.Path, "NEXUS_LEDGER_SQLITE_PATH")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
