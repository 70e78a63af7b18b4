package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 6 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576  // 1MB
	DefaultMaxBodyBytes    = 10485760 // 10MB

	DefaultTLSMinVersion     = "1.2"
	DefaultTLSReloadInterval = 5 * time.Minute

	// Directory defaults
	DefaultDirectoryFilePath      = "./directory.yaml"
	DefaultDirectoryWatch         = true
	DefaultDirectoryWatchDebounce = 100 * time.Millisecond
	DefaultDirectoryCacheTTL      = 30 * time.Second
	DefaultGitBranch              = "main"
	DefaultGitPath                = "directory.yaml"
	DefaultGitLocalPath           = "./data/directory-repo"
	DefaultGitPollInterval        = 30 * time.Second
	DefaultGitTimeout             = 10 * time.Second
	DefaultGitAuthType            = "none"

	// Throttle defaults
	DefaultThrottleEnabled  = true
	DefaultThrottleFailOpen = true

	// Counter store defaults
	DefaultCountersBackend            = "sqlite"
	DefaultCountersSQLitePath         = "data/counters.db"
	DefaultCountersBusyTimeout        = 5 * time.Second
	DefaultCountersCheckpointInterval = 5 * time.Minute
	DefaultCountersMaxOpenConns       = 4

	// Request log defaults
	DefaultRequestLogBackend        = "sqlite"
	DefaultRequestLogSQLitePath     = "data/requests.db"
	DefaultRequestLogMaxOpenConns   = 10
	DefaultRequestLogMaxIdleConns   = 5
	DefaultRequestLogBusyTimeout    = 5 * time.Second
	DefaultRequestLogWriteTimeout   = 5 * time.Second
	DefaultRequestLogMaxErrorLength = 1024

	// Dispatch defaults
	DefaultDispatchTimeout    = 30 * time.Second
	DefaultDispatchMaxTimeout = 5 * time.Minute
	DefaultHandlerTimeout     = 30 * time.Second

	// Housekeeping defaults
	DefaultHousekeepingSchedule = "*/15 * * * *"
	DefaultCounterRetention     = 72 * time.Hour
	DefaultLogRetention         = 30 * 24 * time.Hour

	// Telemetry defaults
	DefaultLoggingLevel   = "info"
	DefaultLoggingFormat  = "json"
	DefaultRedactTokens   = true
	DefaultMetricsEnabled = true
	DefaultMetricsPath    = "/metrics"

	// Tracing defaults
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingServiceName = "broker"
	DefaultTracingTimeout     = 10 * time.Second
)

// Default priority lists.
var (
	DefaultLimitPriority        = []string{"api_key", "endpoint", "service"}
	DefaultCounterScopePriority = []string{"endpoint", "service", "api_key", "client_ip"}
)

// Default returns a configuration with every field at its default,
// including the booleans that default to true. LoadConfig decodes the file
// over this value so that omitted booleans keep their defaults.
func Default() *Config {
	cfg := &Config{
		Server:    ServerConfig{TLS: TLSConfig{ReloadInterval: DefaultTLSReloadInterval}},
		Directory: DirectoryConfig{Watch: DefaultDirectoryWatch},
		Throttle: ThrottleConfig{
			Enabled:  DefaultThrottleEnabled,
			FailOpen: DefaultThrottleFailOpen,
		},
		Housekeeping: HousekeepingConfig{
			Schedule:     DefaultHousekeepingSchedule,
			LogRetention: DefaultLogRetention,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactTokens: DefaultRedactTokens},
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets defaults for any fields that have zero values.
// Booleans, the housekeeping schedule, the log retention and the TLS reload
// interval are left alone since their zero values are meaningful; use
// Default for a fully populated configuration. The function is idempotent.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}

	// Directory defaults
	if cfg.Directory.FilePath == "" {
		cfg.Directory.FilePath = DefaultDirectoryFilePath
	}
	if cfg.Directory.WatchDebounce == 0 {
		cfg.Directory.WatchDebounce = DefaultDirectoryWatchDebounce
	}
	if cfg.Directory.CacheTTL == 0 {
		cfg.Directory.CacheTTL = DefaultDirectoryCacheTTL
	}
	if cfg.Directory.Git.Branch == "" {
		cfg.Directory.Git.Branch = DefaultGitBranch
	}
	if cfg.Directory.Git.Path == "" {
		cfg.Directory.Git.Path = DefaultGitPath
	}
	if cfg.Directory.Git.LocalPath == "" {
		cfg.Directory.Git.LocalPath = DefaultGitLocalPath
	}
	if cfg.Directory.Git.PollInterval == 0 {
		cfg.Directory.Git.PollInterval = DefaultGitPollInterval
	}
	if cfg.Directory.Git.Timeout == 0 {
		cfg.Directory.Git.Timeout = DefaultGitTimeout
	}
	if cfg.Directory.Git.Auth.Type == "" {
		cfg.Directory.Git.Auth.Type = DefaultGitAuthType
	}

	// Throttle defaults
	if len(cfg.Throttle.LimitPriority) == 0 {
		cfg.Throttle.LimitPriority = append([]string(nil), DefaultLimitPriority...)
	}
	if len(cfg.Throttle.CounterScopePriority) == 0 {
		cfg.Throttle.CounterScopePriority = append([]string(nil), DefaultCounterScopePriority...)
	}

	// Counter store defaults
	if cfg.Counters.Backend == "" {
		cfg.Counters.Backend = DefaultCountersBackend
	}
	if cfg.Counters.SQLite.Path == "" {
		cfg.Counters.SQLite.Path = DefaultCountersSQLitePath
	}
	if cfg.Counters.SQLite.BusyTimeout == 0 {
		cfg.Counters.SQLite.BusyTimeout = DefaultCountersBusyTimeout
	}
	if cfg.Counters.SQLite.CheckpointInterval == 0 {
		cfg.Counters.SQLite.CheckpointInterval = DefaultCountersCheckpointInterval
	}
	if cfg.Counters.SQLite.MaxOpenConns == 0 {
		cfg.Counters.SQLite.MaxOpenConns = DefaultCountersMaxOpenConns
	}

	// Request log defaults
	if cfg.RequestLog.Backend == "" {
		cfg.RequestLog.Backend = DefaultRequestLogBackend
	}
	if cfg.RequestLog.SQLite.Path == "" {
		cfg.RequestLog.SQLite.Path = DefaultRequestLogSQLitePath
	}
	if cfg.RequestLog.SQLite.MaxOpenConns == 0 {
		cfg.RequestLog.SQLite.MaxOpenConns = DefaultRequestLogMaxOpenConns
	}
	if cfg.RequestLog.SQLite.MaxIdleConns == 0 {
		cfg.RequestLog.SQLite.MaxIdleConns = DefaultRequestLogMaxIdleConns
	}
	if cfg.RequestLog.SQLite.BusyTimeout == 0 {
		cfg.RequestLog.SQLite.BusyTimeout = DefaultRequestLogBusyTimeout
	}
	if cfg.RequestLog.WriteTimeout == 0 {
		cfg.RequestLog.WriteTimeout = DefaultRequestLogWriteTimeout
	}
	if cfg.RequestLog.MaxErrorLength == 0 {
		cfg.RequestLog.MaxErrorLength = DefaultRequestLogMaxErrorLength
	}

	// Dispatch defaults
	if cfg.Dispatch.DefaultTimeout == 0 {
		cfg.Dispatch.DefaultTimeout = DefaultDispatchTimeout
	}
	if cfg.Dispatch.MaxTimeout == 0 {
		cfg.Dispatch.MaxTimeout = DefaultDispatchMaxTimeout
	}
	for name, h := range cfg.Dispatch.Handlers {
		if h.Timeout == 0 {
			h.Timeout = DefaultHandlerTimeout
		}
		cfg.Dispatch.Handlers[name] = h
	}

	// Housekeeping defaults
	if cfg.Housekeeping.CounterRetention == 0 {
		cfg.Housekeeping.CounterRetention = DefaultCounterRetention
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
		if cfg.Telemetry.Tracing.SampleRatio == 0 {
			cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
		}
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
}
