package handlers

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/broker/pkg/proxy"
	"mercator-hq/broker/pkg/requestlog"
	"mercator-hq/broker/pkg/telemetry/logging"
	"mercator-hq/broker/pkg/telemetry/tracing"
)

// RequestLookupHandler serves GET /requests/{requestId}. Callers see only
// entries recorded under their own API key; anything else is a 404. Lookups
// are not subject to admission.
type RequestLookupHandler struct {
	gate    *Gate
	entries requestlog.Storage
	tracer  *tracing.Tracer
	logger  *slog.Logger
}

// NewRequestLookupHandler creates the request lookup handler. tracer may be
// nil.
func NewRequestLookupHandler(gate *Gate, entries requestlog.Storage, tracer *tracing.Tracer) *RequestLookupHandler {
	return &RequestLookupHandler{
		gate:    gate,
		entries: entries,
		tracer:  tracer,
		logger:  slog.Default().With("component", "proxy.requests"),
	}
}

// ServeHTTP implements http.Handler.
func (h *RequestLookupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "requests.get", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	key, err := h.gate.Authenticate(ctx, proxy.ExtractToken(r))
	if err != nil {
		respondError(ctx, w, h.logger, span, err)
		return
	}
	ctx = logging.WithAPIKeyID(ctx, key.ID)

	requestID := r.PathValue("requestId")
	tracing.SetRequestAttributes(span, requestID, key.ID)

	entry, err := h.entries.Get(ctx, requestID)
	if err != nil {
		respondError(ctx, w, h.logger, span, err)
		return
	}
	if entry.APIKeyID != key.ID {
		respondError(ctx, w, h.logger, span, requestlog.ErrNotFound)
		return
	}

	respondJSON(ctx, w, h.logger, http.StatusOK, entry)
}
