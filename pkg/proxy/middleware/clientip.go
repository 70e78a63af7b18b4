package middleware

import (
	"context"
	"net/http"

	"mercator-hq/broker/pkg/proxy"
)

// ClientIPMiddleware resolves the caller's IP once and stores it in the
// context for admission and logging. Proxy headers are honoured only with
// trustProxy.
func ClientIPMiddleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := proxy.ClientIP(r, trustProxy)
			ctx := context.WithValue(r.Context(), ClientIPKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
