package handlers

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/broker/pkg/directory"
	"mercator-hq/broker/pkg/dispatch"
	"mercator-hq/broker/pkg/limits"
	"mercator-hq/broker/pkg/proxy"
	"mercator-hq/broker/pkg/proxy/middleware"
	"mercator-hq/broker/pkg/proxy/types"
	"mercator-hq/broker/pkg/requestlog"
	"mercator-hq/broker/pkg/telemetry/logging"
	"mercator-hq/broker/pkg/telemetry/metrics"
	"mercator-hq/broker/pkg/telemetry/tracing"
)

// Dispatcher runs admitted requests. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *dispatch.Request) (*dispatch.Result, error)
}

// Invocation outcomes recorded per service.
const (
	OutcomeThrottled = "throttled"
	OutcomeRejected  = "rejected"
	OutcomeAccepted  = "accepted"
)

// BrokerHandler serves POST /broker/{service}: it authenticates the caller,
// resolves the target, runs admission and dispatches the call.
type BrokerHandler struct {
	gate         *Gate
	dispatcher   Dispatcher
	metrics      *metrics.Collector
	tracer       *tracing.Tracer
	maxBodyBytes int64
	logger       *slog.Logger
}

// BrokerOptions are the optional collaborators of BrokerHandler.
type BrokerOptions struct {
	// Metrics may be nil.
	Metrics *metrics.Collector

	// Tracer may be nil.
	Tracer *tracing.Tracer

	// MaxBodyBytes defaults to proxy.DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// NewBrokerHandler creates the broker call handler.
func NewBrokerHandler(gate *Gate, dispatcher Dispatcher, opts BrokerOptions) *BrokerHandler {
	return &BrokerHandler{
		gate:         gate,
		dispatcher:   dispatcher,
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       slog.Default().With("component", "proxy.broker"),
	}
}

// ServeHTTP implements http.Handler.
func (h *BrokerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "broker.invoke", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	serviceName := r.PathValue("service")
	requestID := middleware.GetRequestID(ctx)

	var req types.BrokerRequest
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
	tracing.SetRequestAttributes(span, requestID, key.ID)
	tracing.SetTargetAttributes(span, serviceName, req.Endpoint)

	svc, err := h.gate.Service(ctx, serviceName)
	if err != nil {
		respondError(ctx, w, h.logger, span, err)
		return
	}

	var ep *directory.Endpoint
	if req.Endpoint != "" {
		if ep, err = h.gate.Endpoint(ctx, svc, req.Endpoint); err != nil {
			h.metrics.RecordInvocation(svc.Name, OutcomeRejected)
			respondError(ctx, w, h.logger, span, err)
			return
		}
	}

	if err := proxy.Validate(&req); err != nil {
		h.metrics.RecordInvocation(svc.Name, OutcomeRejected)
		respondError(ctx, w, h.logger, span, err)
		return
	}

	ip := clientIP(r)
	decision, err := h.gate.Admit(ctx, limits.Scopes{
		APIKey:   key,
		Service:  svc,
		Endpoint: ep,
		ClientIP: ip,
	})
	if err != nil {
		respondError(ctx, w, h.logger, span, err)
		return
	}
	tracing.SetAdmissionAttributes(span, decision.Allowed, decision.ScopeKey, string(decision.LimitType), decision.Remaining)

	if !decision.Allowed {
		h.metrics.RecordInvocation(svc.Name, OutcomeThrottled)
		h.logger.InfoContext(ctx, "request throttled",
			"service", svc.Name,
			"scope", decision.ScopeKey,
			"window", decision.LimitType,
			"limit", decision.Limit,
		)
		if err := proxy.WriteThrottled(w, decision); err != nil {
			h.logger.ErrorContext(ctx, "failed to write response", "error", err)
		}
		return
	}

	proxy.SetRateLimitHeaders(w, decision)
	if ep != nil && ep.Deprecated {
		w.Header().Set("Deprecation", "true")
	}

	result, err := h.dispatcher.Dispatch(ctx, &dispatch.Request{
		RequestID: requestID,
		Service:   svc.Name,
		Endpoint:  endpointRef(ep, req.Endpoint),
		Payload:   req.Body,
		Async:     req.Async,
		Timeout:   timeoutOf(req.Timeout),
		APIKeyID:  key.ID,
		ClientIP:  ip,
	})
	mode := "sync"
	if req.Async {
		mode = "async"
	}
	if result != nil {
		tracing.SetDispatchAttributes(span, mode, string(result.Status))
		if result.RequestID != requestID {
			// The caller's ID was already logged; report the one issued.
			w.Header().Set(middleware.RequestIDHeader, result.RequestID)
		}
	}
	if err != nil {
		h.metrics.RecordInvocation(svc.Name, outcomeOf(result, err))
		respondError(ctx, w, h.logger, span, err)
		return
	}

	if req.Async {
		h.metrics.RecordInvocation(svc.Name, OutcomeAccepted)
		respondJSON(ctx, w, h.logger, http.StatusAccepted, types.AsyncAccepted{
			Success:   true,
			Message:   "request accepted for asynchronous processing",
			RequestID: result.RequestID,
		})
		return
	}

	h.metrics.RecordInvocation(svc.Name, string(result.Status))
	body, err := types.SyncResult(result.Response, types.RequestInfo{
		Service:        svc.Name,
		Payload:        req.Body,
		ProcessingTime: result.ProcessingTime.Milliseconds(),
	})
	if err != nil {
		respondError(ctx, w, h.logger, span, err)
		return
	}
	if err := proxy.WriteRawJSON(w, http.StatusOK, body); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// endpointRef is the endpoint recorded in the request log: the resolved
// name@version when known, otherwise what the caller sent.
func endpointRef(ep *directory.Endpoint, requested string) string {
	if ep == nil {
		return requested
	}
	if ep.Version == "" {
		return ep.Name
	}
	return ep.Name + "@" + ep.Version
}

// timeoutOf converts the caller's timeout in milliseconds. Values too large
// for a Duration saturate; the dispatcher caps them at its maximum.
func timeoutOf(ms *int64) time.Duration {
	if ms == nil {
		return 0
	}
	if *ms > int64(math.MaxInt64/time.Millisecond) {
		return math.MaxInt64
	}
	return time.Duration(*ms) * time.Millisecond
}

func outcomeOf(result *dispatch.Result, err error) string {
	if result != nil && result.Status != "" {
		return string(result.Status)
	}
	if errors.Is(err, dispatch.ErrTimeout) {
		return string(requestlog.StatusTimeout)
	}
	return string(requestlog.StatusError)
}
