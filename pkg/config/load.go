package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BROKER_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded over Default(), remaining zero values get defaults,
// and the result is validated. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes a YAML document over the defaults without validating it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention BROKER_SECTION_FIELD (e.g., BROKER_SERVER_LISTEN_ADDRESS) and
// always take precedence over the file.
//
// An empty path skips the file and starts from the defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg = Default()
	} else {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, readErr)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies BROKER_* environment variables. Values that fail
// to parse are ignored.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envInt("SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)
	if val := os.Getenv(EnvPrefix + "SERVER_MAX_BODY_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = i
		}
	}
	envBool("SERVER_TRUST_PROXY_HEADERS", &cfg.Server.TrustProxyHeaders)
	envBool("SERVER_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	envString("SERVER_TLS_CERT_FILE", &cfg.Server.TLS.CertFile)
	envString("SERVER_TLS_KEY_FILE", &cfg.Server.TLS.KeyFile)

	// Directory overrides
	envString("DIRECTORY_FILE_PATH", &cfg.Directory.FilePath)
	envBool("DIRECTORY_WATCH", &cfg.Directory.Watch)
	envDuration("DIRECTORY_CACHE_TTL", &cfg.Directory.CacheTTL)
	envBool("DIRECTORY_GIT_ENABLED", &cfg.Directory.Git.Enabled)
	envString("DIRECTORY_GIT_REPOSITORY", &cfg.Directory.Git.Repository)
	envString("DIRECTORY_GIT_BRANCH", &cfg.Directory.Git.Branch)
	envString("DIRECTORY_GIT_PATH", &cfg.Directory.Git.Path)
	envString("DIRECTORY_GIT_AUTH_TOKEN", &cfg.Directory.Git.Auth.Token)

	// Throttle overrides
	envBool("THROTTLE_ENABLED", &cfg.Throttle.Enabled)
	envBool("THROTTLE_FAIL_OPEN", &cfg.Throttle.FailOpen)
	envList("THROTTLE_LIMIT_PRIORITY", &cfg.Throttle.LimitPriority)
	envList("THROTTLE_COUNTER_SCOPE_PRIORITY", &cfg.Throttle.CounterScopePriority)

	// Counter store overrides
	envString("COUNTERS_BACKEND", &cfg.Counters.Backend)
	envString("COUNTERS_SQLITE_PATH", &cfg.Counters.SQLite.Path)

	// Request log overrides
	envString("REQUEST_LOG_BACKEND", &cfg.RequestLog.Backend)
	envString("REQUEST_LOG_SQLITE_PATH", &cfg.RequestLog.SQLite.Path)

	// Dispatch overrides
	envDuration("DISPATCH_DEFAULT_TIMEOUT", &cfg.Dispatch.DefaultTimeout)
	envDuration("DISPATCH_MAX_TIMEOUT", &cfg.Dispatch.MaxTimeout)
	envDuration("DISPATCH_ASYNC_TIMEOUT", &cfg.Dispatch.AsyncTimeout)
	envString("DISPATCH_FALLBACK", &cfg.Dispatch.Fallback)

	// Housekeeping overrides
	envString("HOUSEKEEPING_SCHEDULE", &cfg.Housekeeping.Schedule)
	envDuration("HOUSEKEEPING_COUNTER_RETENTION", &cfg.Housekeeping.CounterRetention)
	envDuration("HOUSEKEEPING_LOG_RETENTION", &cfg.Housekeeping.LogRetention)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_LOGGING_REDACT_TOKENS", &cfg.Telemetry.Logging.RedactTokens)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envBool("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
	envString("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// envList reads a comma-separated list.
func envList(name string, dst *[]string) {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
