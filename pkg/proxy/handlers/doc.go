// Package handlers implements the broker's HTTP endpoints.
//
//	POST /broker/{service}        BrokerHandler
//	POST /discovery/services      DiscoveryHandler.Services
//	POST /discovery/endpoints     DiscoveryHandler.Endpoints
//	GET  /requests/{requestId}    RequestLookupHandler
//
// A broker call is processed in this order, stopping at the first failure:
//
//  1. Decode the JSON body (400, or 413 when oversized).
//  2. Authenticate the token (401; 503 when the directory is down).
//  3. Resolve the service (404 when unknown or inactive).
//  4. Resolve the optional endpoint (404 when unknown). A directory failure
//     here drops the endpoint scope instead of failing the call.
//  5. Validate the body (400).
//  6. Run admission through Gate (429 with X-RateLimit-* headers).
//  7. Dispatch: 202 for async, 200 with the handler result for sync, 408 on
//     timeout, 500 on handler failure.
//
// Admitted responses with a limit in force carry X-RateLimit-* headers with
// the effective remaining count. Calls to a deprecated endpoint are admitted
// with a Deprecation: true header.
package handlers
