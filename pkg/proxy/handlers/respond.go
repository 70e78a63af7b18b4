package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/broker/pkg/proxy"
	"mercator-hq/broker/pkg/telemetry/tracing"
)

// respondError writes the error response for err, records it on span and
// logs it: server-side failures at error, caller errors at debug.
func respondError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, span trace.Span, err error) {
	errResp := proxy.HandleError(err)
	status := errResp.Error.HTTPStatusCode()

	tracing.SetErrorAttributes(span, err, errResp.Error.Type)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", "status", status, "error", err)
	} else {
		logger.DebugContext(ctx, "request rejected", "status", status, "error", err)
	}

	if werr := proxy.WriteErrorResponse(w, errResp); werr != nil {
		logger.ErrorContext(ctx, "failed to write error response", "error", werr)
	}
}

func respondJSON(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, status int, v interface{}) {
	if err := proxy.WriteJSONResponse(w, status, v); err != nil {
		logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}
