package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on broker spans.
const (
	AttrRequestID = "broker.request_id"
	AttrAPIKeyID  = "broker.api_key_id"
	AttrService   = "broker.service"
	AttrEndpoint  = "broker.endpoint"
	AttrMode      = "broker.dispatch.mode"
	AttrStatus    = "broker.status"

	AttrAdmitted       = "broker.admission.allowed"
	AttrLimitScope     = "broker.admission.scope"
	AttrLimitWindow    = "broker.admission.window"
	AttrLimitRemaining = "broker.admission.remaining"

	AttrErrorType = "broker.error.type"
)

// SetRequestAttributes records the request and caller identity. The API key
// id is recorded, never the token.
func SetRequestAttributes(span trace.Span, requestID, apiKeyID string) {
	attrs := make([]attribute.KeyValue, 0, 2)
	if requestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, requestID))
	}
	if apiKeyID != "" {
		attrs = append(attrs, attribute.String(AttrAPIKeyID, apiKeyID))
	}
	span.SetAttributes(attrs...)
}

// SetTargetAttributes records the addressed service and endpoint.
func SetTargetAttributes(span trace.Span, service, endpoint string) {
	span.SetAttributes(
		attribute.String(AttrService, service),
		attribute.String(AttrEndpoint, endpoint),
	)
}

// SetAdmissionAttributes records an admission decision. Scope and window are
// empty when no limit applied.
func SetAdmissionAttributes(span trace.Span, allowed bool, scope, window string, remaining int64) {
	attrs := []attribute.KeyValue{attribute.Bool(AttrAdmitted, allowed)}
	if window != "" {
		attrs = append(attrs,
			attribute.String(AttrLimitScope, scope),
			attribute.String(AttrLimitWindow, window),
			attribute.Int64(AttrLimitRemaining, remaining),
		)
	}
	span.SetAttributes(attrs...)
}

// SetDispatchAttributes records the dispatch mode and resulting status.
func SetDispatchAttributes(span trace.Span, mode, status string) {
	span.SetAttributes(
		attribute.String(AttrMode, mode),
		attribute.String(AttrStatus, status),
	)
}

// SetErrorAttributes records err on the span under a short error type.
func SetErrorAttributes(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrErrorType, errorType))
	SetStatus(span, err)
}
