package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"mercator-hq/broker/pkg/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", buf.String(), err)
	}
	return out
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %s", buf.String())
	}

	logger.Warn("shown", "component", "test")
	rec := decodeLine(t, &buf)
	if rec["msg"] != "shown" || rec["component"] != "test" {
		t.Errorf("record = %v", rec)
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hello", "service", "billing")
	if !strings.Contains(buf.String(), "service=billing") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	if _, err := New(Options{Level: "verbose"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNew_ContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := WithAPIKeyID(WithRequestID(context.Background(), "req-1"), "key-1")
	logger.With("component", "proxy").InfoContext(ctx, "admitted")

	rec := decodeLine(t, &buf)
	if rec["request_id"] != "req-1" || rec["api_key_id"] != "key-1" {
		t.Errorf("context attributes missing: %v", rec)
	}
	if rec["component"] != "proxy" {
		t.Errorf("With attributes lost: %v", rec)
	}
}

func TestNew_Redaction(t *testing.T) {
	tests := []struct {
		name   string
		redact bool
		key    string
		value  string
		want   string
	}{
		{"sensitive key", true, "token", "sk-test-1234567890", "sk-te***"},
		{"short secret", true, "password", "hunter2", Masked},
		{"token in message value", true, "detail", "called with sk-live-abcdef123", "called with sk-li***"},
		{"bearer header", true, "header", "Bearer abc.def.ghi", "Bearer ***"},
		{"id keys untouched", true, "api_key_id", "c0ffee-id", "c0ffee-id"},
		{"disabled", false, "token", "sk-test-1234567890", "sk-test-1234567890"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := New(Options{Writer: &buf, RedactTokens: tt.redact})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			logger.Info("test", tt.key, tt.value)

			rec := decodeLine(t, &buf)
			if rec[tt.key] != tt.want {
				t.Errorf("%s = %v, want %q", tt.key, rec[tt.key], tt.want)
			}
		})
	}
}

func TestSetup(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger, err := Setup(config.LoggingConfig{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if slog.Default() != logger {
		t.Error("Setup did not install the default logger")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level not enabled")
	}
}
