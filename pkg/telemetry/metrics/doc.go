// Package metrics owns the broker's Prometheus registry.
//
// NewCollector builds a registry with the Go runtime and process
// collectors. Every component receives Collector.Registerer and registers
// its own metrics there:
//
//	broker_admission_decisions_total   limits engine
//	broker_dispatch_requests_total     dispatcher
//	broker_requestlog_*                request log recorder
//	broker_http_requests_total         InstrumentRoute
//	broker_invocations_total           RecordInvocation
//
// Handler serves the registry, with OpenMetrics negotiation, at the
// configured path. When metrics are disabled Registerer returns nil and
// components keep their collectors unregistered.
package metrics
