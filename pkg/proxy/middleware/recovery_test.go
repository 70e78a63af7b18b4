package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/broker/pkg/proxy/types"
)

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{
			name:    "string panic",
			handler: func(http.ResponseWriter, *http.Request) { panic("handler exploded") },
			want:    http.StatusInternalServerError,
		},
		{
			name:    "error panic",
			handler: func(http.ResponseWriter, *http.Request) { panic(errors.New("nil upstream")) },
			want:    http.StatusInternalServerError,
		},
		{
			name: "no panic",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			},
			want: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RecoveryMiddleware(tt.handler).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/broker/billing", nil))

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want != http.StatusInternalServerError {
				return
			}
			var errResp types.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
				t.Fatalf("invalid error body: %v", err)
			}
			if errResp.Error.Code != types.CodeInternalError {
				t.Errorf("code = %q, want %q", errResp.Error.Code, types.CodeInternalError)
			}
			if strings.Contains(errResp.Error.Message, "exploded") || strings.Contains(errResp.Error.Message, "upstream") {
				t.Errorf("panic value leaked to client: %q", errResp.Error.Message)
			}
		})
	}
}

func TestRecoveryMiddleware_LogsPanic(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/broker/billing", nil))

	out := buf.String()
	if !strings.Contains(out, "panic in handler") || !strings.Contains(out, "handler exploded") {
		t.Errorf("panic not logged: %s", out)
	}
	if !strings.Contains(out, `"path":"/broker/billing"`) {
		t.Errorf("path missing from log: %s", out)
	}
}
