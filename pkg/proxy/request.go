package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mercator-hq/broker/pkg/proxy/types"
)

const (
	// DefaultMaxBodyBytes is the request body cap when none is configured.
	DefaultMaxBodyBytes = 10 * 1024 * 1024

	// AuthorizationHeader carries "Bearer <token>" on GET endpoints.
	AuthorizationHeader = "Authorization"
)

// DecodeJSON reads at most maxBytes of the request body into v. Oversized
// bodies and malformed JSON are reported as *RequestError.
func DecodeJSON(r *http.Request, maxBytes int64, v interface{}) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return tooLarge(maxErr.Limit)
		}
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return tooLarge(maxBytes)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &RequestError{Message: "request body is empty", Code: types.CodeInvalidJSON, Param: "body"}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return &RequestError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Code:    types.CodeInvalidJSON,
			Param:   "body",
		}
	}
	return nil
}

func tooLarge(limit int64) *RequestError {
	return &RequestError{
		Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", limit),
		Code:    types.CodeRequestTooLarge,
		Param:   "body",
	}
}

// Validate runs a request type's Validate and converts validation failures
// to *RequestError.
func Validate(v interface{ Validate() error }) error {
	err := v.Validate()
	if err == nil {
		return nil
	}
	var valErr *types.ValidationError
	if errors.As(err, &valErr) {
		return &RequestError{Message: valErr.Message, Code: types.CodeInvalidValue, Param: valErr.Field}
	}
	return err
}

// ExtractToken returns the bearer token of the Authorization header, or
// the token query parameter.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get(AuthorizationHeader); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}

// RequestError represents a request parsing or validation error.
type RequestError struct {
	Message string
	Code    string
	Param   string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// ToErrorResponse converts a RequestError to a 400 response, or 413 for
// oversized bodies.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	if e.Code == types.CodeRequestTooLarge {
		return types.NewErrorResponse(e.Message, types.ErrorTypeRequestTooLarge, e.Param, e.Code)
	}
	return types.NewInvalidRequestError(e.Message, e.Param, e.Code)
}
