// Package tracing provides OpenTelemetry tracing for the broker.
//
// A Tracer is built from the telemetry.tracing section. Spans are exported
// over OTLP gRPC with a parent-based sampler (always, never or ratio):
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: otel-collector:4317
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// Inbound W3C trace context is extracted by HTTPMiddleware, and the HTTP
// handler forwards it to upstream services with Inject. The proxy opens one
// span per invocation and annotates it with the request id, the target
// service and endpoint, the admission decision and the dispatch outcome.
package tracing
