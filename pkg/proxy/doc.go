// Package proxy holds the HTTP plumbing shared by the broker endpoints:
// request decoding, token extraction, client address resolution, and the
// mapping from admission and dispatch errors to JSON error responses.
//
// Handlers report failures by returning errors and let HandleError pick the
// status:
//
//	if err := proxy.DecodeJSON(r, maxBytes, &req); err != nil {
//	    proxy.WriteErrorResponse(w, proxy.HandleError(err))
//	    return
//	}
//
// Error bodies have the shape
//
//	{"error": {"message": "...", "type": "not_found", "param": "service", "code": "service_not_found"}}
//
// except for rate limit denials, which WriteThrottled renders as
//
//	{"error": "...", "limitType": "minute", "limit": 60, "resetAt": "2025-01-01T10:31:00Z"}
//
// together with X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset
// and Retry-After headers.
//
// The endpoints live in the handlers subpackage, the middleware chain in
// middleware, and the wire types in types.
package proxy
