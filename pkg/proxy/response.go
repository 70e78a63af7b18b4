package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/broker/pkg/limits"
	"mercator-hq/broker/pkg/proxy/types"
)

// WriteJSONResponse writes data as a JSON response.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

// WriteRawJSON writes an already encoded JSON document.
func WriteRawJSON(w http.ResponseWriter, statusCode int, raw json.RawMessage) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to write JSON response: %w", err)
	}
	return nil
}

// WriteErrorResponse writes errResp with the status of its error type.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}

// SetRateLimitHeaders sets the X-RateLimit-* headers of a limited decision.
func SetRateLimitHeaders(w http.ResponseWriter, d *limits.Decision) {
	for k, v := range d.Headers() {
		w.Header().Set(k, v)
	}
}

// WriteThrottled writes the 429 response of a denied decision.
func WriteThrottled(w http.ResponseWriter, d *limits.Decision) error {
	SetRateLimitHeaders(w, d)
	w.Header().Set("Retry-After", retryAfter(d))
	return WriteJSONResponse(w, http.StatusTooManyRequests, types.ThrottledResponse{
		Error:     fmt.Sprintf("rate limit exceeded: %d requests per %s", d.Limit, d.LimitType),
		LimitType: string(d.LimitType),
		Limit:     d.Limit,
		ResetAt:   d.ResetAt.UTC(),
	})
}

// retryAfter returns the whole seconds until the denying window resets,
// at least 1.
func retryAfter(d *limits.Decision) string {
	secs := int64(time.Until(d.ResetAt).Seconds() + 0.999)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
