package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration. All errors are collected and
// returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDirectory(&cfg.Directory)...)
	errs = append(errs, validateThrottle(&cfg.Throttle)...)
	errs = append(errs, validateBackend("counters", cfg.Counters.Backend, cfg.Counters.SQLite.Path)...)
	errs = append(errs, validateBackend("request_log", cfg.RequestLog.Backend, cfg.RequestLog.SQLite.Path)...)
	errs = append(errs, validateDispatch(&cfg.Dispatch)...)
	errs = append(errs, validateHousekeeping(&cfg.Housekeeping)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Server.WriteTimeout > 0 && cfg.Server.WriteTimeout <= cfg.Dispatch.MaxTimeout {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: fmt.Sprintf("must exceed dispatch.max_timeout (%s)", cfg.Dispatch.MaxTimeout),
		})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: fmt.Sprintf("invalid address: %v", err)})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "must be between 0 and 10MB"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "must be non-negative"})
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "cert file is required when TLS is enabled"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "key file is required when TLS is enabled"})
		}
	}
	if v := cfg.TLS.MinVersion; v != "" && v != "1.2" && v != "1.3" {
		errs = append(errs, FieldError{Field: "server.tls.min_version", Message: "must be 1.2 or 1.3"})
	}
	if cfg.TLS.ReloadInterval < 0 {
		errs = append(errs, FieldError{Field: "server.tls.reload_interval", Message: "must be non-negative"})
	}

	return errs
}

func validateDirectory(cfg *DirectoryConfig) []FieldError {
	var errs []FieldError
	if cfg.FilePath == "" {
		errs = append(errs, FieldError{Field: "directory.file_path", Message: "file path is required"})
	}
	if cfg.CacheTTL < 0 {
		errs = append(errs, FieldError{Field: "directory.cache_ttl", Message: "cache ttl must be non-negative"})
	}
	if cfg.WatchDebounce < 0 {
		errs = append(errs, FieldError{Field: "directory.watch_debounce", Message: "debounce must be non-negative"})
	}
	if cfg.Git.Enabled {
		errs = append(errs, validateGit(&cfg.Git)...)
	}
	return errs
}

func validateGit(cfg *DirectoryGitConfig) []FieldError {
	var errs []FieldError
	if cfg.Repository == "" {
		errs = append(errs, FieldError{Field: "directory.git.repository", Message: "repository is required"})
	}
	if cfg.Branch == "" {
		errs = append(errs, FieldError{Field: "directory.git.branch", Message: "branch is required"})
	}
	if cfg.Path == "" || strings.HasPrefix(cfg.Path, "/") || strings.Contains(cfg.Path, "..") {
		errs = append(errs, FieldError{Field: "directory.git.path", Message: "must be a relative path inside the repository"})
	}
	if cfg.LocalPath == "" {
		errs = append(errs, FieldError{Field: "directory.git.local_path", Message: "local path is required"})
	}
	if cfg.Depth < 0 {
		errs = append(errs, FieldError{Field: "directory.git.depth", Message: "must be non-negative"})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, FieldError{Field: "directory.git.poll_interval", Message: "must be positive"})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "directory.git.timeout", Message: "must be positive"})
	}
	switch cfg.Auth.Type {
	case "none", "":
	case "token":
		if cfg.Auth.Token == "" {
			errs = append(errs, FieldError{Field: "directory.git.auth.token", Message: "required for token auth"})
		}
	case "ssh":
		if cfg.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{Field: "directory.git.auth.ssh_key_path", Message: "required for ssh auth"})
		}
	default:
		errs = append(errs, FieldError{Field: "directory.git.auth.type", Message: fmt.Sprintf("unsupported auth type %q (must be none, token or ssh)", cfg.Auth.Type)})
	}
	return errs
}

func validateThrottle(cfg *ThrottleConfig) []FieldError {
	var errs []FieldError
	errs = append(errs, validatePriority("throttle.limit_priority", cfg.LimitPriority,
		"api_key", "endpoint", "service")...)
	errs = append(errs, validatePriority("throttle.counter_scope_priority", cfg.CounterScopePriority,
		"endpoint", "service", "api_key", "client_ip")...)
	return errs
}

// validatePriority rejects empty lists, unknown scope names and duplicates.
func validatePriority(field string, priority []string, allowed ...string) []FieldError {
	if len(priority) == 0 {
		return []FieldError{{Field: field, Message: "at least one scope is required"}}
	}

	var errs []FieldError
	seen := make(map[string]bool, len(priority))
	for i, name := range priority {
		known := false
		for _, a := range allowed {
			if name == a {
				known = true
				break
			}
		}
		switch {
		case !known:
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("unknown scope %q (allowed: %s)", name, strings.Join(allowed, ", ")),
			})
		case seen[name]:
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("duplicate scope %q", name),
			})
		}
		seen[name] = true
	}
	return errs
}

func validateBackend(section, backend, path string) []FieldError {
	switch backend {
	case "memory":
		return nil
	case "sqlite":
		if path == "" {
			return []FieldError{{Field: section + ".sqlite.path", Message: "path is required for sqlite backend"}}
		}
		return nil
	default:
		return []FieldError{{
			Field:   section + ".backend",
			Message: fmt.Sprintf("unsupported backend %q (must be memory or sqlite)", backend),
		}}
	}
}

func validateDispatch(cfg *DispatchConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultTimeout <= 0 {
		errs = append(errs, FieldError{Field: "dispatch.default_timeout", Message: "default timeout must be positive"})
	}
	if cfg.MaxTimeout <= 0 {
		errs = append(errs, FieldError{Field: "dispatch.max_timeout", Message: "max timeout must be positive"})
	}
	if cfg.DefaultTimeout > cfg.MaxTimeout {
		errs = append(errs, FieldError{Field: "dispatch.default_timeout", Message: "default timeout exceeds max timeout"})
	}
	if cfg.AsyncTimeout < 0 {
		errs = append(errs, FieldError{Field: "dispatch.async_timeout", Message: "async timeout must be non-negative"})
	}
	if cfg.Fallback != "" && cfg.Fallback != "echo" {
		errs = append(errs, FieldError{Field: "dispatch.fallback", Message: fmt.Sprintf("unsupported fallback %q (must be echo or empty)", cfg.Fallback)})
	}

	for name, h := range cfg.Handlers {
		field := "dispatch.handlers." + name
		switch h.Type {
		case "echo":
		case "http":
			if h.URL == "" {
				errs = append(errs, FieldError{Field: field + ".url", Message: "url is required for http handlers"})
			} else if u, err := url.Parse(h.URL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, FieldError{Field: field + ".url", Message: fmt.Sprintf("invalid url %q", h.URL)})
			}
		default:
			errs = append(errs, FieldError{Field: field + ".type", Message: fmt.Sprintf("unsupported handler type %q (must be echo or http)", h.Type)})
		}
		if h.Timeout < 0 {
			errs = append(errs, FieldError{Field: field + ".timeout", Message: "timeout must be non-negative"})
		}
		if h.MaxResponseBytes < 0 {
			errs = append(errs, FieldError{Field: field + ".max_response_bytes", Message: "max_response_bytes must be non-negative"})
		}
	}

	return errs
}

func validateHousekeeping(cfg *HousekeepingConfig) []FieldError {
	var errs []FieldError
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{Field: "housekeeping.schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}
	if cfg.CounterRetention < 0 {
		errs = append(errs, FieldError{Field: "housekeeping.counter_retention", Message: "must be non-negative"})
	}
	if cfg.LogRetention < 0 {
		errs = append(errs, FieldError{Field: "housekeeping.log_retention", Message: "must be non-negative"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q (must be always, never, or ratio)", cfg.Tracing.Sampler),
			})
		}
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0.0 and 1.0"})
	}

	return errs
}
