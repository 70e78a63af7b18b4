package types

import (
	"net/http"
	"time"
)

// ErrorResponse is the JSON body of every failed broker call except
// throttling, which uses ThrottledResponse.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error and determines the HTTP status.
	Type string `json:"type"`

	// Param names the request field at fault, if any.
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Error types.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error" // 400
	ErrorTypeAuthentication     = "authentication_error"  // 401
	ErrorTypeNotFound           = "not_found"             // 404
	ErrorTypeRequestTimeout     = "request_timeout"       // 408
	ErrorTypeRequestTooLarge    = "request_too_large"     // 413
	ErrorTypeRateLimitExceeded  = "rate_limit_exceeded"   // 429
	ErrorTypeServerError        = "server_error"          // 500
	ErrorTypeServiceUnavailable = "service_unavailable"   // 503
)

// Error codes.
const (
	CodeMissingField     = "missing_field"
	CodeInvalidValue     = "invalid_value"
	CodeInvalidJSON      = "invalid_json"
	CodeInvalidToken     = "invalid_token"
	CodeServiceNotFound  = "service_not_found"
	CodeEndpointNotFound = "endpoint_not_found"
	CodeRequestNotFound  = "request_not_found"
	CodeHandlerError     = "handler_error"
	CodeTimeout          = "timeout"
	CodeRequestTooLarge  = "request_too_large"
	CodeDirectoryDown    = "directory_unavailable"
	CodeCountersDown     = "counters_unavailable"
	CodeShuttingDown     = "shutting_down"
	CodeInternalError    = "internal_error"
)

// NewErrorResponse creates an error response with the given details.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates a 400 response.
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewAuthenticationError creates a 401 response.
func NewAuthenticationError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeAuthentication, "token", CodeInvalidToken)
}

// NewNotFoundError creates a 404 response.
func NewNotFoundError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeNotFound, param, code)
}

// NewTimeoutError creates a 408 response.
func NewTimeoutError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeRequestTimeout, "", CodeTimeout)
}

// NewServerError creates a 500 response.
func NewServerError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServerError, "", code)
}

// NewServiceUnavailableError creates a 503 response.
func NewServiceUnavailableError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServiceUnavailable, "", code)
}

// HTTPStatusCode returns the HTTP status code for the error type.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRequestTimeout:
		return http.StatusRequestTimeout
	case ErrorTypeRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorTypeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorTypeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ThrottledResponse is the 429 body of a denied admission.
type ThrottledResponse struct {
	Error     string    `json:"error"`
	LimitType string    `json:"limitType"`
	Limit     int64     `json:"limit"`
	ResetAt   time.Time `json:"resetAt"`
}
