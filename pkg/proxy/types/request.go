package types

import (
	"bytes"
	"encoding/json"
)

// Pagination defaults for discovery calls.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// BrokerRequest is the body of POST /broker/{service}.
type BrokerRequest struct {
	// Token is the caller's API key token.
	Token string `json:"token"`

	// Timeout is the sync timeout in milliseconds. Zero or absent uses the
	// configured default.
	Timeout *int64 `json:"timeout,omitempty"`

	// Async returns 202 immediately and runs the handler in the background.
	Async bool `json:"async,omitempty"`

	// Body is the opaque payload passed to the service handler. Required.
	Body json.RawMessage `json:"body"`

	// Endpoint optionally names the endpoint, as "name" or "name@version".
	Endpoint string `json:"endpoint,omitempty"`
}

// Validate checks the fields required before admission. The token is
// checked separately since a missing token is an authentication failure.
func (r *BrokerRequest) Validate() error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return &ValidationError{Field: "body", Message: "body is required"}
	}
	if r.Timeout != nil && *r.Timeout < 0 {
		return &ValidationError{Field: "timeout", Message: "timeout must not be negative"}
	}
	return nil
}

// Pagination is embedded in discovery requests.
type Pagination struct {
	Page     int `json:"page,omitempty"`
	PageSize int `json:"pageSize,omitempty"`
}

// Validate normalizes p; ServiceDiscoveryRequest inherits it.
func (p *Pagination) Validate() error {
	return p.Normalize()
}

// Normalize applies defaults and validates the page window.
func (p *Pagination) Normalize() error {
	if p.Page < 0 {
		return &ValidationError{Field: "page", Message: "page must be positive"}
	}
	if p.PageSize < 0 || p.PageSize > MaxPageSize {
		return &ValidationError{Field: "pageSize", Message: "pageSize must be between 1 and 100"}
	}
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	return nil
}

// Bounds returns the slice bounds of the page within n items.
func (p Pagination) Bounds(n int) (start, end int) {
	start = (p.Page - 1) * p.PageSize
	if start > n {
		start = n
	}
	end = start + p.PageSize
	if end > n {
		end = n
	}
	return start, end
}

// ServiceDiscoveryRequest is the body of POST /discovery/services.
type ServiceDiscoveryRequest struct {
	Token string `json:"token"`

	// Name filters services by case-insensitive substring.
	Name string `json:"name,omitempty"`

	Pagination
}

// EndpointDiscoveryRequest is the body of POST /discovery/endpoints.
type EndpointDiscoveryRequest struct {
	Token string `json:"token"`

	// Service names the service whose endpoints are listed. Required.
	Service string `json:"service"`

	// Name filters endpoints by case-insensitive substring.
	Name string `json:"name,omitempty"`

	// Version filters endpoints by exact version.
	Version string `json:"version,omitempty"`

	IncludeDeprecated bool `json:"includeDeprecated,omitempty"`

	Pagination
}

// Validate checks the fields required before admission.
func (r *EndpointDiscoveryRequest) Validate() error {
	if r.Service == "" {
		return &ValidationError{Field: "service", Message: "service is required"}
	}
	return r.Pagination.Normalize()
}

// ValidationError reports an invalid request field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}
