package middleware

import "net/http"

// BodyLimitMiddleware caps request bodies at maxBytes. Reads past the limit
// fail with *http.MaxBytesError, which proxy.DecodeJSON reports as 413.
// A non-positive maxBytes disables the cap.
func BodyLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
