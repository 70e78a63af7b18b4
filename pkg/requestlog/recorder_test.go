package requestlog_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/broker/pkg/requestlog"
	"mercator-hq/broker/pkg/requestlog/storage"
)

func newTestRecorder(t *testing.T) (*requestlog.Recorder, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	return requestlog.NewRecorder(store, nil, prometheus.NewRegistry()), store
}

func TestRecorder_BeginAndComplete(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()

	err := rec.Begin(ctx, &requestlog.Entry{
		RequestID: "req-1",
		Service:   "billing",
		Async:     true,
		Status:    requestlog.StatusSuccess, // overwritten
	})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	got, _ := store.Get(ctx, "req-1")
	if got.Status != requestlog.StatusPending {
		t.Fatalf("Status after Begin = %s, want pending", got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	err = rec.Complete(ctx, "req-1", &requestlog.Patch{
		Status:         requestlog.StatusSuccess,
		ProcessingTime: 20 * time.Millisecond,
		Response:       json.RawMessage(`{"ok":true}`),
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, _ = store.Get(ctx, "req-1")
	if got.Status != requestlog.StatusSuccess {
		t.Errorf("Status after Complete = %s, want success", got.Status)
	}
}

func TestRecorder_CompleteTwiceIsRejected(t *testing.T) {
	rec, _ := newTestRecorder(t)
	ctx := context.Background()

	_ = rec.Begin(ctx, &requestlog.Entry{RequestID: "req-1", Service: "billing", Async: true})
	if err := rec.Complete(ctx, "req-1", &requestlog.Patch{Status: requestlog.StatusError, Error: "boom"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	err := rec.Complete(ctx, "req-1", &requestlog.Patch{Status: requestlog.StatusSuccess})
	if !errors.Is(err, requestlog.ErrAlreadyTerminal) {
		t.Errorf("second Complete error = %v, want ErrAlreadyTerminal", err)
	}
}

func TestRecorder_Record(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()

	err := rec.Record(ctx, &requestlog.Entry{
		RequestID:      "req-1",
		Service:        "billing",
		Status:         requestlog.StatusTimeout,
		ProcessingTime: 500 * time.Millisecond,
		Error:          strings.Repeat("x", 5000),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, _ := store.Get(ctx, "req-1")
	if got.Status != requestlog.StatusTimeout {
		t.Errorf("Status = %s, want timeout", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set on terminal entry")
	}
	if len(got.Error) >= 5000 {
		t.Errorf("Error not truncated: %d bytes", len(got.Error))
	}

	err = rec.Record(ctx, &requestlog.Entry{RequestID: "req-2", Service: "billing", Status: requestlog.StatusPending})
	if !errors.Is(err, requestlog.ErrInvalidEntry) {
		t.Errorf("Record(pending) error = %v, want ErrInvalidEntry", err)
	}
}

func TestRecorder_WriteSurvivesCancelledContext(t *testing.T) {
	rec, store := newTestRecorder(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rec.Record(ctx, &requestlog.Entry{RequestID: "req-1", Service: "billing", Status: requestlog.StatusSuccess}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if _, err := store.Get(context.Background(), "req-1"); err != nil {
		t.Errorf("entry not written: %v", err)
	}
}

func TestEntry_MarshalJSON(t *testing.T) {
	e := &requestlog.Entry{
		RequestID:      "req-1",
		Service:        "billing",
		Status:         requestlog.StatusSuccess,
		Timeout:        2 * time.Second,
		ProcessingTime: 1500 * time.Millisecond,
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out["timeoutMs"] != float64(2000) || out["processingTimeMs"] != float64(1500) {
		t.Errorf("durations rendered as %v / %v", out["timeoutMs"], out["processingTimeMs"])
	}
	if out["requestId"] != "req-1" {
		t.Errorf("requestId = %v", out["requestId"])
	}
}

func TestStatus(t *testing.T) {
	if requestlog.StatusPending.IsTerminal() {
		t.Error("pending is terminal")
	}
	for _, s := range []requestlog.Status{requestlog.StatusSuccess, requestlog.StatusError, requestlog.StatusTimeout} {
		if !s.IsTerminal() {
			t.Errorf("%s is not terminal", s)
		}
	}
	if requestlog.Status("queued").Valid() {
		t.Error("unknown status is valid")
	}
}
