package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "broker.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9090"

throttle:
  limit_priority: [service, api_key]

counters:
  backend: memory

dispatch:
  default_timeout: 5s
  handlers:
    billing:
      type: http
      url: http://billing.internal:8080/invoke
    echo:
      type: echo

telemetry:
  logging:
    level: debug
    format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("ReadTimeout = %v, want default", cfg.Server.ReadTimeout)
	}
	if !reflect.DeepEqual(cfg.Throttle.LimitPriority, []string{"service", "api_key"}) {
		t.Errorf("LimitPriority = %v", cfg.Throttle.LimitPriority)
	}
	if !reflect.DeepEqual(cfg.Throttle.CounterScopePriority, DefaultCounterScopePriority) {
		t.Errorf("CounterScopePriority = %v, want default", cfg.Throttle.CounterScopePriority)
	}
	if cfg.Counters.Backend != "memory" {
		t.Errorf("Counters.Backend = %q", cfg.Counters.Backend)
	}
	if cfg.Dispatch.DefaultTimeout != 5*time.Second {
		t.Errorf("DefaultTimeout = %v", cfg.Dispatch.DefaultTimeout)
	}
	if h := cfg.Dispatch.Handlers["billing"]; h.Type != "http" || h.Timeout != DefaultHandlerTimeout {
		t.Errorf("billing handler = %+v", h)
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Telemetry.Logging)
	}
}

func TestLoadConfig_BooleanDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "server:\n  listen_address: \"127.0.0.1:8080\"\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.Throttle.Enabled || !cfg.Throttle.FailOpen {
		t.Errorf("Throttle = %+v, want enabled and fail-open by default", cfg.Throttle)
	}
	if !cfg.Directory.Watch || !cfg.Telemetry.Metrics.Enabled || !cfg.Telemetry.Logging.RedactTokens {
		t.Error("boolean defaults not applied")
	}
	if cfg.Housekeeping.Schedule != DefaultHousekeepingSchedule {
		t.Errorf("Schedule = %q, want default", cfg.Housekeeping.Schedule)
	}

	cfg, err = LoadConfig(writeConfig(t, `
throttle:
  enabled: false
  fail_open: false
housekeeping:
  schedule: ""
  log_retention: 0s
`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Throttle.Enabled || cfg.Throttle.FailOpen {
		t.Errorf("explicit false overridden: %+v", cfg.Throttle)
	}
	if cfg.Housekeeping.Schedule != "" || cfg.Housekeeping.LogRetention != 0 {
		t.Errorf("explicit zero overridden: %+v", cfg.Housekeeping)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	if _, err := LoadConfig(writeConfig(t, "server: [not, a, map]")); err == nil {
		t.Error("expected error for malformed YAML")
	}

	_, err := LoadConfig(writeConfig(t, "counters:\n  backend: redis\n"))
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if !strings.Contains(err.Error(), "counters.backend") {
		t.Errorf("error %q does not name the field", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:8080"
throttle:
  fail_open: true
`)

	t.Setenv("BROKER_SERVER_LISTEN_ADDRESS", "0.0.0.0:7070")
	t.Setenv("BROKER_THROTTLE_FAIL_OPEN", "false")
	t.Setenv("BROKER_THROTTLE_COUNTER_SCOPE_PRIORITY", "api_key, client_ip")
	t.Setenv("BROKER_DISPATCH_DEFAULT_TIMEOUT", "2s")
	t.Setenv("BROKER_SERVER_MAX_BODY_BYTES", "2048")
	t.Setenv("BROKER_SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7070" {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Throttle.FailOpen {
		t.Error("FailOpen not overridden")
	}
	if !reflect.DeepEqual(cfg.Throttle.CounterScopePriority, []string{"api_key", "client_ip"}) {
		t.Errorf("CounterScopePriority = %v", cfg.Throttle.CounterScopePriority)
	}
	if cfg.Dispatch.DefaultTimeout != 2*time.Second {
		t.Errorf("DefaultTimeout = %v", cfg.Dispatch.DefaultTimeout)
	}
	if cfg.Server.MaxBodyBytes != 2048 {
		t.Errorf("MaxBodyBytes = %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("unparsable override applied: ReadTimeout = %v", cfg.Server.ReadTimeout)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("BROKER_COUNTERS_BACKEND", "memory")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}
	if cfg.Counters.Backend != "memory" {
		t.Errorf("Counters.Backend = %q", cfg.Counters.Backend)
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	first := *cfg
	ApplyDefaults(cfg)

	if !reflect.DeepEqual(first, *cfg) {
		t.Error("ApplyDefaults is not idempotent")
	}
	if cfg.Throttle.Enabled {
		t.Error("ApplyDefaults must not touch booleans")
	}
}

func TestLoadConfigWithEnvOverrides_GitDirectory(t *testing.T) {
	path := writeConfig(t, `
directory:
  git:
    enabled: true
    repository: https://git.example.com/ops/directory.git
    auth:
      type: token
`)
	t.Setenv("BROKER_DIRECTORY_GIT_AUTH_TOKEN", "ghp_from_env")
	t.Setenv("BROKER_DIRECTORY_GIT_BRANCH", "release")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}
	git := cfg.Directory.Git
	if git.Auth.Token != "ghp_from_env" || git.Branch != "release" {
		t.Errorf("git overrides not applied: %+v", git)
	}
	if git.Path != DefaultGitPath || git.PollInterval != DefaultGitPollInterval {
		t.Errorf("git defaults not applied: path=%q poll=%v", git.Path, git.PollInterval)
	}
}
