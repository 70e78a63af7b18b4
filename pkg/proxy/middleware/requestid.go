package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"mercator-hq/broker/pkg/telemetry/logging"
)

// RequestIDHeader is the HTTP header for request ID.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns each request an ID, stores it in the context
// and echoes it in the X-Request-ID response header. A client-supplied
// X-Request-ID is kept when it is a valid UUID; anything else is replaced.
//
// The ID doubles as the broker request id, so it is what the request log
// records and what GET /requests/{requestId} looks up.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	return logging.RequestID(ctx)
}
