package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/broker/pkg/directory"
	"mercator-hq/broker/pkg/limits"
	"mercator-hq/broker/pkg/proxy"
	"mercator-hq/broker/pkg/proxy/middleware"
	"mercator-hq/broker/pkg/proxy/types"
	"mercator-hq/broker/pkg/telemetry/logging"
	"mercator-hq/broker/pkg/telemetry/tracing"
)

// DiscoveryHandler serves the discovery calls. Both go through the same
// authentication and admission check as broker calls.
type DiscoveryHandler struct {
	gate         *Gate
	catalog      directory.Lister
	tracer       *tracing.Tracer
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewDiscoveryHandler creates the discovery handler. tracer may be nil.
func NewDiscoveryHandler(gate *Gate, catalog directory.Lister, tracer *tracing.Tracer, maxBodyBytes int64) *DiscoveryHandler {
	return &DiscoveryHandler{
		gate:         gate,
		catalog:      catalog,
		tracer:       tracer,
		maxBodyBytes: maxBodyBytes,
		logger:       slog.Default().With("component", "proxy.discovery"),
	}
}

// Services returns the handler for POST /discovery/services.
//
// The admission scope is the API key, narrowed to the service when name
// matches an active service exactly. Results are the active services whose
// name contains name, case-insensitively.
func (h *DiscoveryHandler) Services() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "discovery.services", trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		var req types.ServiceDiscoveryRequest
		if err := proxy.DecodeJSON(r, h.maxBodyBytes, &req); err != nil {
			respondError(ctx, w, h.logger, span, err)
			return
		}
		key, err := h.gate.Authenticate(ctx, req.Token)
		if err != nil {
			respondError(ctx, w, h.logger, span, err)
			return
		}
		ctx = logging.WithAPIKeyID(ctx, key.ID)
		tracing.SetRequestAttributes(span, middleware.GetRequestID(ctx), key.ID)

		if err := proxy.Validate(&req); err != nil {
			respondError(ctx, w, h.logger, span, err)
			return
		}

		scopes := limits.Scopes{APIKey: key, ClientIP: clientIP(r)}
		if req.Name != "" {
			scopes.Service = h.gate.OptionalService(ctx, req.Name)
		}
		if !h.admit(ctx, w, span, scopes) {
			return
		}

		all, err := h.catalog.ListServices(ctx)
		if err != nil {
			respondError(ctx, w, h.logger, span, unavailable("services", err))
			return
		}
		items := make([]*directory.Service, 0, len(all))
		for _, svc := range all {
			if svc.Active && containsFold(svc.Name, req.Name) {
				items = append(items, svc)
			}
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

		respondJSON(ctx, w, h.logger, http.StatusOK, types.NewPage(items, req.Pagination))
	})
}

// Endpoints returns the handler for POST /discovery/endpoints.
//
// The service is required and scopes admission. Endpoints are filtered by
// name substring and exact version; deprecated endpoints are listed only
// with includeDeprecated.
func (h *DiscoveryHandler) Endpoints() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "discovery.endpoints", trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		var req types.EndpointDiscoveryRequest
		if err := proxy.DecodeJSON(r, h.maxBodyBytes, &req); err != nil {
			respondError(ctx, w, h.logger, span, err)
			return
		}
		key, err := h.gate.Authenticate(ctx, req.Token)
		if err != nil {
			respondError(ctx, w, h.logger, span, err)
			return
		}
		ctx = logging.WithAPIKeyID(ctx, key.ID)
		tracing.SetRequestAttributes(span, middleware.GetRequestID(ctx), key.ID)

		if err := proxy.Validate(&req); err != nil {
			respondError(ctx, w, h.logger, span, err)
			return
		}
		svc, err := h.gate.Service(ctx, req.Service)
		if err != nil {
			respondError(ctx, w, h.logger, span, err)
			return
		}
		tracing.SetTargetAttributes(span, svc.Name, "")

		if !h.admit(ctx, w, span, limits.Scopes{APIKey: key, Service: svc, ClientIP: clientIP(r)}) {
			return
		}

		all, err := h.catalog.ListEndpoints(ctx, svc.ID)
		if err != nil {
			respondError(ctx, w, h.logger, span, unavailable("endpoints", err))
			return
		}
		items := make([]*directory.Endpoint, 0, len(all))
		for _, ep := range all {
			if ep.Deprecated && !req.IncludeDeprecated {
				continue
			}
			if req.Version != "" && ep.Version != req.Version {
				continue
			}
			if containsFold(ep.Name, req.Name) {
				items = append(items, ep)
			}
		}
		sort.Slice(items, func(i, j int) bool {
			if items[i].Name != items[j].Name {
				return items[i].Name < items[j].Name
			}
			return items[i].Version < items[j].Version
		})

		respondJSON(ctx, w, h.logger, http.StatusOK, types.NewPage(items, req.Pagination))
	})
}

// admit runs admission and writes the 429 or error response when the
// request may not proceed.
func (h *DiscoveryHandler) admit(ctx context.Context, w http.ResponseWriter, span trace.Span, scopes limits.Scopes) bool {
	d, err := h.gate.Admit(ctx, scopes)
	if err != nil {
		respondError(ctx, w, h.logger, span, err)
		return false
	}
	tracing.SetAdmissionAttributes(span, d.Allowed, d.ScopeKey, string(d.LimitType), d.Remaining)
	if !d.Allowed {
		if err := proxy.WriteThrottled(w, d); err != nil {
			h.logger.ErrorContext(ctx, "failed to write response", "error", err)
		}
		return false
	}
	proxy.SetRateLimitHeaders(w, d)
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
