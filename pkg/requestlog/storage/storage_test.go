package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/broker/pkg/requestlog"
)

func backends(t *testing.T) map[string]requestlog.Storage {
	t.Helper()

	sqlite, err := NewSQLiteStorage(&SQLiteConfig{Path: filepath.Join(t.TempDir(), "requests.db")})
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]requestlog.Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqlite,
	}
}

func pendingEntry(id string, createdAt time.Time) *requestlog.Entry {
	return &requestlog.Entry{
		RequestID: id,
		Service:   "billing",
		Endpoint:  "invoice@v1",
		Payload:   json.RawMessage(`{"amount":42}`),
		Async:     true,
		Timeout:   30 * time.Second,
		Status:    requestlog.StatusPending,
		APIKeyID:  "key-1",
		ClientIP:  "10.0.0.7",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestStorage_CreateAndGet(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := time.Now().Truncate(time.Millisecond)

			if err := store.Create(ctx, pendingEntry("req-1", created)); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			got, err := store.Get(ctx, "req-1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Status != requestlog.StatusPending || !got.Async || got.Service != "billing" {
				t.Errorf("Get returned %+v", got)
			}
			if string(got.Payload) != `{"amount":42}` {
				t.Errorf("Payload = %s", got.Payload)
			}
			if got.Timeout != 30*time.Second {
				t.Errorf("Timeout = %v, want 30s", got.Timeout)
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
			}
			if got.CompletedAt != nil {
				t.Errorf("pending entry has CompletedAt %v", got.CompletedAt)
			}
		})
	}
}

func TestStorage_GetNotFound(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "missing")
			if !errors.Is(err, requestlog.ErrNotFound) {
				t.Errorf("Get error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStorage_CreateDuplicate(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Create(ctx, pendingEntry("req-1", time.Now())); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			err := store.Create(ctx, pendingEntry("req-1", time.Now()))
			if !errors.Is(err, requestlog.ErrDuplicate) {
				t.Errorf("second Create error = %v, want ErrDuplicate", err)
			}
		})
	}
}

func TestStorage_UpdateByRequestID(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Create(ctx, pendingEntry("req-1", time.Now())); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			err := store.UpdateByRequestID(ctx, "req-1", &requestlog.Patch{
				Status:         requestlog.StatusSuccess,
				ProcessingTime: 150 * time.Millisecond,
				Response:       json.RawMessage(`{"ok":true}`),
			})
			if err != nil {
				t.Fatalf("UpdateByRequestID failed: %v", err)
			}

			got, _ := store.Get(ctx, "req-1")
			if got.Status != requestlog.StatusSuccess {
				t.Errorf("Status = %s, want success", got.Status)
			}
			if got.ProcessingTime != 150*time.Millisecond {
				t.Errorf("ProcessingTime = %v, want 150ms", got.ProcessingTime)
			}
			if string(got.Response) != `{"ok":true}` {
				t.Errorf("Response = %s", got.Response)
			}
			if got.CompletedAt == nil {
				t.Error("CompletedAt not set")
			}
		})
	}
}

func TestStorage_TerminalEntriesAreImmutable(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Create(ctx, pendingEntry("req-1", time.Now())); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if err := store.UpdateByRequestID(ctx, "req-1", &requestlog.Patch{Status: requestlog.StatusError, Error: "boom"}); err != nil {
				t.Fatalf("UpdateByRequestID failed: %v", err)
			}

			err := store.UpdateByRequestID(ctx, "req-1", &requestlog.Patch{Status: requestlog.StatusSuccess})
			if !errors.Is(err, requestlog.ErrAlreadyTerminal) {
				t.Errorf("second update error = %v, want ErrAlreadyTerminal", err)
			}

			got, _ := store.Get(ctx, "req-1")
			if got.Status != requestlog.StatusError || got.Error != "boom" {
				t.Errorf("terminal entry modified: %+v", got)
			}
		})
	}
}

func TestStorage_UpdateValidation(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := store.UpdateByRequestID(ctx, "missing", &requestlog.Patch{Status: requestlog.StatusSuccess})
			if !errors.Is(err, requestlog.ErrNotFound) {
				t.Errorf("update of missing entry error = %v, want ErrNotFound", err)
			}

			err = store.UpdateByRequestID(ctx, "missing", &requestlog.Patch{Status: requestlog.StatusPending})
			if !errors.Is(err, requestlog.ErrInvalidEntry) {
				t.Errorf("non-terminal patch error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestStorage_ConcurrentCompletionAppliesOnce(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Create(ctx, pendingEntry("req-1", time.Now())); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			var (
				wg        sync.WaitGroup
				succeeded atomic.Int32
				rejected  atomic.Int32
			)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := store.UpdateByRequestID(ctx, "req-1", &requestlog.Patch{
						Status: requestlog.StatusSuccess,
						Error:  fmt.Sprintf("writer-%d", i),
					})
					switch {
					case err == nil:
						succeeded.Add(1)
					case errors.Is(err, requestlog.ErrAlreadyTerminal):
						rejected.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(i)
			}
			wg.Wait()

			if succeeded.Load() != 1 || rejected.Load() != 9 {
				t.Errorf("succeeded=%d rejected=%d, want 1 and 9", succeeded.Load(), rejected.Load())
			}
		})
	}
}

func TestStorage_QueryAndCount(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().Add(-time.Hour)

			for i := 0; i < 5; i++ {
				e := pendingEntry(fmt.Sprintf("req-%d", i), base.Add(time.Duration(i)*time.Minute))
				if i%2 == 1 {
					e.APIKeyID = "key-2"
				}
				if err := store.Create(ctx, e); err != nil {
					t.Fatalf("Create failed: %v", err)
				}
			}
			if err := store.UpdateByRequestID(ctx, "req-4", &requestlog.Patch{Status: requestlog.StatusSuccess}); err != nil {
				t.Fatalf("UpdateByRequestID failed: %v", err)
			}

			all, err := store.Query(ctx, &requestlog.Query{})
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(all) != 5 {
				t.Fatalf("Query returned %d entries, want 5", len(all))
			}
			if all[0].RequestID != "req-4" {
				t.Errorf("first entry = %s, want newest req-4", all[0].RequestID)
			}

			byKey, _ := store.Query(ctx, &requestlog.Query{APIKeyID: "key-2"})
			if len(byKey) != 2 {
				t.Errorf("Query by key returned %d, want 2", len(byKey))
			}

			page, _ := store.Query(ctx, &requestlog.Query{Limit: 2, Offset: 1})
			if len(page) != 2 || page[0].RequestID != "req-3" {
				t.Errorf("page = %d entries starting %v", len(page), page)
			}

			n, err := store.Count(ctx, &requestlog.Query{Status: requestlog.StatusPending})
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if n != 4 {
				t.Errorf("Count(pending) = %d, want 4", n)
			}

			from := base.Add(2 * time.Minute)
			n, _ = store.Count(ctx, &requestlog.Query{StartTime: &from})
			if n != 3 {
				t.Errorf("Count(since) = %d, want 3", n)
			}
		})
	}
}

func TestStorage_DeleteBeforeKeepsPending(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := time.Now().Add(-48 * time.Hour)

			for _, id := range []string{"old-done", "old-pending"} {
				if err := store.Create(ctx, pendingEntry(id, old)); err != nil {
					t.Fatalf("Create failed: %v", err)
				}
			}
			if err := store.Create(ctx, pendingEntry("new", time.Now())); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if err := store.UpdateByRequestID(ctx, "old-done", &requestlog.Patch{Status: requestlog.StatusSuccess}); err != nil {
				t.Fatalf("UpdateByRequestID failed: %v", err)
			}

			deleted, err := store.DeleteBefore(ctx, time.Now().Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("DeleteBefore failed: %v", err)
			}
			if deleted != 1 {
				t.Errorf("deleted %d entries, want 1", deleted)
			}
			if _, err := store.Get(ctx, "old-pending"); err != nil {
				t.Errorf("pending entry deleted: %v", err)
			}
		})
	}
}

func TestSQLiteStorage_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.db")
	ctx := context.Background()

	store, err := NewSQLiteStorage(&SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := store.Create(ctx, pendingEntry("req-1", time.Now())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStorage(&SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.Get(ctx, "req-1"); err != nil {
		t.Errorf("entry lost across reopen: %v", err)
	}
}

func TestSQLiteStorage_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStorage(&SQLiteConfig{}); err == nil {
		t.Error("Expected error for empty path")
	}
}
