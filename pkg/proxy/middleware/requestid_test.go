package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"mercator-hq/broker/pkg/telemetry/logging"
)

func TestRequestIDMiddleware(t *testing.T) {
	const clientID = "0b8f2a53-6f1e-4c4e-9d8e-3f7a1c2b5e90"

	tests := []struct {
		name     string
		header   string
		wantKeep bool
	}{
		{name: "no header", header: ""},
		{name: "client uuid kept", header: clientID, wantKeep: true},
		{name: "free-form id replaced", header: "custom-request-id-12345"},
		{name: "sql in header replaced", header: "1'; DROP TABLE request_log; --"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
				if logging.RequestID(r.Context()) != seen {
					t.Error("logging context does not carry the request id")
				}
			}))

			req := httptest.NewRequest(http.MethodPost, "/broker/billing", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			if got != seen {
				t.Errorf("response header %q differs from context id %q", got, seen)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("request id %q is not a UUID: %v", got, err)
			}
			if kept := got == tt.header; kept != tt.wantKeep {
				t.Errorf("kept client id = %v, want %v", kept, tt.wantKeep)
			}
		})
	}
}

func TestRequestIDMiddleware_Unique(t *testing.T) {
	h := RequestIDMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		id := w.Header().Get(RequestIDHeader)
		if seen[id] {
			t.Fatalf("duplicate request id %s", id)
		}
		seen[id] = true
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	if id := GetRequestID(req.Context()); id != "" {
		t.Errorf("GetRequestID() = %q, want empty", id)
	}
}
