package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/broker/pkg/directory"
	"mercator-hq/broker/pkg/dispatch"
	"mercator-hq/broker/pkg/limits"
	"mercator-hq/broker/pkg/proxy/types"
	"mercator-hq/broker/pkg/requestlog"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"bad request", &RequestError{Message: "bad", Code: types.CodeInvalidJSON}, http.StatusBadRequest, types.CodeInvalidJSON},
		{"too large", &RequestError{Message: "big", Code: types.CodeRequestTooLarge}, http.StatusRequestEntityTooLarge, types.CodeRequestTooLarge},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, types.CodeInvalidToken},
		{"service", fmt.Errorf("%w: billing", ErrServiceNotFound), http.StatusNotFound, types.CodeServiceNotFound},
		{"endpoint", ErrEndpointNotFound, http.StatusNotFound, types.CodeEndpointNotFound},
		{"request", requestlog.ErrNotFound, http.StatusNotFound, types.CodeRequestNotFound},
		{"timeout", dispatch.ErrTimeout, http.StatusRequestTimeout, types.CodeTimeout},
		{"handler", &dispatch.HandlerError{Service: "billing", Err: errors.New("boom")}, http.StatusInternalServerError, types.CodeHandlerError},
		{"shutting down", dispatch.ErrShuttingDown, http.StatusServiceUnavailable, types.CodeShuttingDown},
		{"directory", fmt.Errorf("lookup: %w", directory.ErrUnavailable), http.StatusServiceUnavailable, types.CodeDirectoryDown},
		{"counters", limits.ErrStoreUnavailable, http.StatusServiceUnavailable, types.CodeCountersDown},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, types.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := HandleError(tt.err)
			if got := resp.Error.HTTPStatusCode(); got != tt.status {
				t.Errorf("status = %d, want %d", got, tt.status)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Error.Code, tt.code)
			}
		})
	}
}

func TestHandleError_HidesInternalDetail(t *testing.T) {
	resp := HandleError(errors.New("open /var/lib/broker/log.db: permission denied"))
	if strings.Contains(resp.Error.Message, "/var/lib") {
		t.Errorf("internal detail leaked: %q", resp.Error.Message)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Token string `json:"token"`
	}

	tests := []struct {
		name    string
		body    string
		max     int64
		wantErr string
	}{
		{"valid", `{"token":"abc"}`, 0, ""},
		{"empty", "  ", 0, types.CodeInvalidJSON},
		{"malformed", `{"token":`, 0, types.CodeInvalidJSON},
		{"oversized", `{"token":"abcdefghijklmnop"}`, 8, types.CodeRequestTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v payload
			err := DecodeJSON(r, tt.max, &v)

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if v.Token != "abc" {
					t.Errorf("token = %q", v.Token)
				}
				return
			}

			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("error = %v, want *RequestError", err)
			}
			if reqErr.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", reqErr.Code, tt.wantErr)
			}
		})
	}
}

func TestDecodeJSON_MaxBytesReader(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"abcdefghijklmnop"}`))
	r.Body = http.MaxBytesReader(w, r.Body, 4)

	var v map[string]string
	err := DecodeJSON(r, 1024, &v)
	if HandleError(err).Error.HTTPStatusCode() != http.StatusRequestEntityTooLarge {
		t.Errorf("error = %v, want 413", err)
	}
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/requests/1?token=from-query", nil)
	if got := ExtractToken(r); got != "from-query" {
		t.Errorf("query token = %q", got)
	}

	r.Header.Set(AuthorizationHeader, "Bearer from-header")
	if got := ExtractToken(r); got != "from-header" {
		t.Errorf("header token = %q", got)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:4000"
	r.Header.Set(ForwardedForHeader, "not-an-ip")
	r.Header.Set(RealIPHeader, "198.51.100.4")

	if got := ClientIP(r, false); got != "192.0.2.1" {
		t.Errorf("untrusted = %q", got)
	}
	if got := ClientIP(r, true); got != "198.51.100.4" {
		t.Errorf("trusted = %q, want X-Real-IP fallback", got)
	}
}

func TestWriteThrottled(t *testing.T) {
	reset := time.Now().Add(30 * time.Second).Truncate(time.Second)
	d := &limits.Decision{
		Limited:   true,
		LimitType: limits.WindowMinute,
		Limit:     60,
		ResetAt:   reset,
	}

	w := httptest.NewRecorder()
	if err := WriteThrottled(w, d); err != nil {
		t.Fatalf("WriteThrottled failed: %v", err)
	}

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "60" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("headers = %v", w.Header())
	}
	if ra := w.Header().Get("Retry-After"); ra == "" || ra == "0" {
		t.Errorf("Retry-After = %q", ra)
	}

	var body types.ThrottledResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.LimitType != "minute" || body.Limit != 60 || !body.ResetAt.Equal(reset) {
		t.Errorf("body = %+v", body)
	}
}
