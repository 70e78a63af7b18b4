package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/broker/pkg/config"
)

func TestNew_MountsEndpoints(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	cfg := config.Default().Telemetry
	tel, err := New(cfg, BuildInfo{Version: "test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tel.Shutdown(context.Background())

	if tel.Tracer.Enabled() {
		t.Error("tracing enabled by default")
	}

	mux := http.NewServeMux()
	tel.Mount(mux)

	for _, path := range []string{"/health", "/ready", "/version", cfg.Metrics.Path} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestNew_MetricsDisabled(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	cfg := config.Default().Telemetry
	cfg.Metrics.Enabled = false
	tel, err := New(cfg, BuildInfo{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	mux := http.NewServeMux()
	tel.Mount(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, cfg.Metrics.Path, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics served while disabled: %d", rec.Code)
	}
}

func TestNew_InvalidLogging(t *testing.T) {
	cfg := config.Default().Telemetry
	cfg.Logging.Level = "verbose"
	if _, err := New(cfg, BuildInfo{}); err == nil {
		t.Error("expected error for invalid log level")
	}
}
