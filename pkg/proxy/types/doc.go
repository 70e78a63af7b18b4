// Package types defines the JSON bodies of the broker's HTTP surface.
//
// Requests:
//   - BrokerRequest: POST /broker/{service}
//   - ServiceDiscoveryRequest: POST /discovery/services
//   - EndpointDiscoveryRequest: POST /discovery/endpoints
//
// Responses:
//   - SyncResult: the handler result with a "request" object attached
//   - AsyncAccepted: 202 for async calls
//   - Page: paginated discovery results
//   - ThrottledResponse: 429 for denied admissions
//   - ErrorResponse: every other failure, {"error": {message, type, param, code}}
//
// ErrorDetail.HTTPStatusCode maps an error type to its HTTP status.
package types
