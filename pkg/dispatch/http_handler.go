package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"mercator-hq/broker/pkg/telemetry/logging"
	"mercator-hq/broker/pkg/telemetry/tracing"
)

// maxUpstreamBody is the default cap on an upstream response body.
const maxUpstreamBody = 10 << 20

// ErrUpstreamTooLarge is returned when an upstream response body exceeds
// MaxResponseBytes.
var ErrUpstreamTooLarge = errors.New("upstream response too large")

// HTTPHandlerConfig configures an HTTPHandler.
type HTTPHandlerConfig struct {
	// URL receives the payload as a JSON POST.
	URL string

	// Headers are added to every upstream request.
	Headers map[string]string

	// Timeout bounds each upstream call in addition to the request context.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxIdleConnsPerHost sizes the connection pool.
	// Default: 10
	MaxIdleConnsPerHost int

	// MaxResponseBytes caps the upstream response body. Larger bodies fail
	// the call rather than being cut short.
	// Default: 10 MiB
	MaxResponseBytes int64
}

// HTTPHandler forwards the payload to an upstream service over HTTP.
type HTTPHandler struct {
	config HTTPHandlerConfig
	client *http.Client
}

// NewHTTPHandler creates a handler with its own pooled client.
func NewHTTPHandler(config HTTPHandlerConfig) (*HTTPHandler, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("http handler: url is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = maxUpstreamBody
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPHandler{
		config: config,
		client: &http.Client{Transport: transport, Timeout: config.Timeout},
	}, nil
}

// Invoke implements Handler. Non-2xx responses are errors. A response body
// that is not JSON is returned as a JSON string.
func (h *HTTPHandler) Invoke(ctx context.Context, service string, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Broker-Service", service)
	for k, v := range h.config.Headers {
		req.Header.Set(k, v)
	}
	if id := logging.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	tracing.Inject(ctx, req.Header)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	limit := h.config.MaxResponseBytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrUpstreamTooLarge, limit)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	if len(body) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		return json.Marshal(string(body))
	}
	return body, nil
}

// UpstreamError is returned for non-2xx upstream responses.
type UpstreamError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
