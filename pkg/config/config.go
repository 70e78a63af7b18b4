package config

import "time"

// Config is the root configuration structure for the broker.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and request size limits.
	Server ServerConfig `yaml:"server"`

	// Directory configures where API keys, services and endpoints are
	// loaded from and how lookups are cached.
	Directory DirectoryConfig `yaml:"directory"`

	// Throttle configures admission control.
	Throttle ThrottleConfig `yaml:"throttle"`

	// Counters configures the usage counter store.
	Counters CountersConfig `yaml:"counters"`

	// RequestLog configures request log persistence.
	RequestLog RequestLogConfig `yaml:"request_log"`

	// Dispatch configures request execution and service handlers.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Housekeeping configures pruning of old counters and log entries.
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`

	// Telemetry contains configuration for logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response
	// writes. It must exceed dispatch.max_timeout or long sync requests are
	// cut off.
	// Default: 6m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown, including draining async
	// requests.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits request body size.
	// Default: 10485760 (10MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// TrustProxyHeaders makes the client IP come from X-Forwarded-For and
	// X-Real-IP when present.
	// Default: false
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	// TLS enables HTTPS on the listener.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures TLS termination.
type TLSConfig struct {
	// Enabled serves HTTPS instead of HTTP.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM certificate chain.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the certificate files are checked for
	// changes. Zero disables reloading.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// DirectoryConfig configures the directory source.
type DirectoryConfig struct {
	// FilePath is the YAML directory document.
	// Default: "./directory.yaml"
	FilePath string `yaml:"file_path"`

	// Watch reloads the document when the file changes.
	// Default: true
	Watch bool `yaml:"watch"`

	// WatchDebounce coalesces bursts of file events.
	// Default: 100ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// CacheTTL is how long lookups are cached. Zero disables the cache.
	// Default: 30s
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Git syncs the document from a Git repository instead of a local file.
	// When enabled, FilePath is ignored and Watch is replaced by polling.
	Git DirectoryGitConfig `yaml:"git"`
}

// DirectoryGitConfig configures a Git-backed directory document.
type DirectoryGitConfig struct {
	// Enabled turns on Git sync.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Repository is the clone URL (https, ssh or a local path).
	Repository string `yaml:"repository"`

	// Branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the document's path inside the repository.
	// Default: "directory.yaml"
	Path string `yaml:"path"`

	// LocalPath is where the repository is cloned.
	// Default: "./data/directory-repo"
	LocalPath string `yaml:"local_path"`

	// Depth limits clone history. Zero clones the full history.
	// Default: 0
	Depth int `yaml:"depth"`

	// PollInterval is how often the remote is pulled.
	// Default: 30s
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout bounds each clone or pull.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	Auth GitAuthConfig `yaml:"auth"`
}

// GitAuthConfig configures Git credentials.
type GitAuthConfig struct {
	// Type is "none", "token" or "ssh".
	// Default: "none"
	Type string `yaml:"type"`

	// Token is a personal access token used over HTTPS.
	Token string `yaml:"token"`

	// SSHKeyPath is a private key file. It must not be group or world readable.
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase unlocks an encrypted key.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// ThrottleConfig configures admission control.
type ThrottleConfig struct {
	// Enabled is the global kill switch. When false every request is
	// admitted without touching the counter store.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// FailOpen admits requests when the counter store is unavailable.
	// Default: true
	FailOpen bool `yaml:"fail_open"`

	// LimitPriority orders the scopes consulted for each window's limit.
	// Default: ["api_key", "endpoint", "service"]
	LimitPriority []string `yaml:"limit_priority"`

	// CounterScopePriority orders the scopes that can own the usage counter.
	// Default: ["endpoint", "service", "api_key", "client_ip"]
	CounterScopePriority []string `yaml:"counter_scope_priority"`
}

// CountersConfig configures the usage counter store.
type CountersConfig struct {
	// Backend is "memory" or "sqlite".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend.
	SQLite CountersSQLiteConfig `yaml:"sqlite"`
}

// CountersSQLiteConfig configures the SQLite counter store.
type CountersSQLiteConfig struct {
	// Path to the database file.
	// Default: "data/counters.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long a writer waits for a lock.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often the WAL is checkpointed.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// MaxOpenConns sizes the connection pool.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`
}

// RequestLogConfig configures request log persistence.
type RequestLogConfig struct {
	// Backend is "memory" or "sqlite".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend.
	SQLite RequestLogSQLiteConfig `yaml:"sqlite"`

	// WriteTimeout bounds each log write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxErrorLength truncates stored error messages.
	// Default: 1024
	MaxErrorLength int `yaml:"max_error_length"`
}

// RequestLogSQLiteConfig configures the SQLite request log.
type RequestLogSQLiteConfig struct {
	// Path to the database file.
	// Default: "data/requests.db"
	Path string `yaml:"path"`

	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// DispatchConfig configures request execution.
type DispatchConfig struct {
	// DefaultTimeout applies to sync requests without a timeout.
	// Default: 30s
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// MaxTimeout caps caller timeouts.
	// Default: 5m
	MaxTimeout time.Duration `yaml:"max_timeout"`

	// AsyncTimeout bounds async handlers. Zero means unbounded.
	// Default: 0
	AsyncTimeout time.Duration `yaml:"async_timeout"`

	// Handlers maps service names to handler definitions.
	Handlers map[string]HandlerConfig `yaml:"handlers"`

	// Fallback names the handler type used for services without an entry
	// in Handlers: "echo" or "" (none).
	// Default: ""
	Fallback string `yaml:"fallback"`
}

// HandlerConfig defines the handler for one service.
type HandlerConfig struct {
	// Type is "echo" or "http".
	Type string `yaml:"type"`

	// URL is the upstream endpoint for "http" handlers.
	URL string `yaml:"url"`

	// Timeout bounds upstream calls for "http" handlers.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// Headers are sent with every upstream call.
	Headers map[string]string `yaml:"headers"`

	// MaxResponseBytes caps upstream response bodies for "http" handlers.
	// Default: 10 MiB
	MaxResponseBytes int64 `yaml:"max_response_bytes"`
}

// HousekeepingConfig configures pruning.
type HousekeepingConfig struct {
	// Schedule is a cron expression. Empty disables pruning.
	// Default: "*/15 * * * *"
	Schedule string `yaml:"schedule"`

	// CounterRetention is how long counters are kept after their window
	// starts. Minimum 48h.
	// Default: 72h
	CounterRetention time.Duration `yaml:"counter_retention"`

	// LogRetention is how long terminal request log entries are kept.
	// Zero keeps them forever.
	// Default: 720h (30 days)
	LogRetention time.Duration `yaml:"log_retention"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactTokens masks API tokens in log attributes.
	// Default: true
	RedactTokens bool `yaml:"redact_tokens"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path of the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	// Enabled turns on span export. When false a noop tracer is used.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address (host:port).
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Sampler is one of always, never, ratio.
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of root traces sampled with the ratio sampler.
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "broker"
	ServiceName string `yaml:"service_name"`

	// Timeout bounds each export call.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
