// Package telemetry bundles the broker's observability stack.
//
//   - logging: slog setup with token redaction
//   - metrics: Prometheus registry and scrape handler
//   - tracing: OpenTelemetry spans exported over OTLP
//   - health: liveness, readiness and version endpoints
//
// New builds all four from the telemetry section of the configuration:
//
//	tel, err := telemetry.New(cfg.Telemetry, telemetry.BuildInfo{Version: version})
//	defer tel.Shutdown(ctx)
//
//	engine, err := limits.NewEngine(limits.EngineConfig{
//		Store:   store,
//		Metrics: limits.NewMetrics(tel.Metrics.Registerer()),
//	})
//	tel.Health.RegisterCheck("counters", store.Ping, true)
package telemetry
