package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"mercator-hq/broker/pkg/config"
	"mercator-hq/broker/pkg/telemetry/health"
	"mercator-hq/broker/pkg/telemetry/logging"
	"mercator-hq/broker/pkg/telemetry/metrics"
	"mercator-hq/broker/pkg/telemetry/tracing"
)

// BuildInfo is reported by the version endpoint.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Telemetry holds the process-wide observability components.
type Telemetry struct {
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
	Health  *health.Checker

	build BuildInfo
}

// New installs the default logger and builds metrics, tracing and health.
func New(cfg config.TelemetryConfig, build BuildInfo) (*Telemetry, error) {
	logger, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	tracer, err := tracing.New(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	return &Telemetry{
		Logger:  logger,
		Metrics: metrics.NewCollector(cfg.Metrics),
		Tracer:  tracer,
		Health:  health.New(health.DefaultCheckTimeout),
		build:   build,
	}, nil
}

// Mount registers the health endpoints and, when enabled, the metrics
// endpoint on mux.
func (t *Telemetry) Mount(mux *http.ServeMux) {
	health.Mount(mux, t.Health, t.build.Version, t.build.Commit, t.build.BuildTime)
	if t.Metrics.Enabled() {
		mux.Handle("GET "+t.Metrics.Path(), t.Metrics.Handler())
	}
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}
