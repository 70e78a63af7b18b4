package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/broker/pkg/proxy"
	"mercator-hq/broker/pkg/proxy/types"
)

// RecoveryMiddleware recovers from panics in HTTP handlers and returns a 500
// with a generic error body. The panic and stack trace are logged; neither
// reaches the client.
func RecoveryMiddleware(next http.Handler) http.Handler {
	logger := slog.Default().With("component", "proxy.recovery")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				_ = proxy.WriteErrorResponse(w, types.NewServerError(
					"An internal error occurred. Please try again later.",
					types.CodeInternalError,
				))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
