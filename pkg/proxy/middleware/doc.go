// Package middleware provides the HTTP middleware wrapped around every
// broker route.
//
// The server chains them outermost first:
//
//	handler = Chain(mux,
//		RecoveryMiddleware,
//		RequestIDMiddleware,
//		ClientIPMiddleware(cfg.Server.TrustProxyHeaders),
//		LoggingMiddleware,
//		BodyLimitMiddleware(cfg.Server.MaxBodyBytes),
//	)
//
// # Request ID
//
// RequestIDMiddleware keeps a client X-Request-ID only when it is a UUID and
// otherwise generates one:
//
//	X-Request-ID: 550e8400-e29b-41d4-a716-446655440000
//
// The id is stored with logging.WithRequestID, so every record logged with
// the request context carries request_id, and it becomes the id the request
// log records the invocation under.
//
// # Panics
//
// RecoveryMiddleware turns a panic into a 500 internal_error response and
// logs the stack. It sits outermost so panics in other middleware are
// caught too.
package middleware
