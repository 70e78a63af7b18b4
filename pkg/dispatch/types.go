package dispatch

import (
	"encoding/json"
	"errors"
	"time"

	"mercator-hq/broker/pkg/requestlog"
)

// Request is an admitted call ready for execution.
type Request struct {
	// RequestID is generated when empty, or replaced when it is already
	// logged. Result.RequestID is the ID of the request log entry.
	RequestID string
	Service   string
	Endpoint  string
	Payload   json.RawMessage
	Async     bool

	// Timeout is the caller's sync timeout. Zero uses the default.
	Timeout time.Duration

	APIKeyID string
	ClientIP string
}

// Result describes how a dispatched request ended, or for async requests
// that it was accepted.
type Result struct {
	RequestID string
	Status    requestlog.Status

	// Response is the handler result. Nil unless Status is success.
	Response json.RawMessage

	// ProcessingTime is the measured handler time. Zero for async.
	ProcessingTime time.Duration

	// Timeout is the effective timeout applied.
	Timeout time.Duration
}

var (
	// ErrTimeout is returned when a sync handler exceeds its timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrNoHandler is returned when no handler serves the service.
	ErrNoHandler = errors.New("no handler registered for service")

	// ErrShuttingDown is returned for new requests after Close.
	ErrShuttingDown = errors.New("dispatcher is shutting down")
)

// HandlerError wraps a failure returned (or panicked) by a handler.
type HandlerError struct {
	Service string
	Err     error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return "handler for " + e.Service + " failed: " + e.Err.Error()
}

// Unwrap returns the handler's error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
