package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/broker/pkg/requestlog"
)

// MemoryStorage implements requestlog.Storage using an in-memory map.
// Intended for tests and single-process deployments without persistence.
type MemoryStorage struct {
	entries map[string]*requestlog.Entry
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]*requestlog.Entry),
	}
}

// Create implements requestlog.Storage.
func (s *MemoryStorage) Create(_ context.Context, entry *requestlog.Entry) error {
	if err := requestlog.ValidateEntry(entry); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.RequestID]; exists {
		return fmt.Errorf("%w: %s", requestlog.ErrDuplicate, entry.RequestID)
	}
	s.entries[entry.RequestID] = copyEntry(entry)
	return nil
}

// UpdateByRequestID implements requestlog.Storage.
func (s *MemoryStorage) UpdateByRequestID(_ context.Context, requestID string, patch *requestlog.Patch) error {
	if err := requestlog.ValidatePatch(patch); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", requestlog.ErrNotFound, requestID)
	}
	if e.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", requestlog.ErrAlreadyTerminal, requestID, e.Status)
	}

	now := time.Now()
	e.Status = patch.Status
	e.ProcessingTime = patch.ProcessingTime
	e.Response = append([]byte(nil), patch.Response...)
	e.Error = patch.Error
	e.UpdatedAt = now
	e.CompletedAt = &now
	return nil
}

// Get implements requestlog.Storage.
func (s *MemoryStorage) Get(_ context.Context, requestID string) (*requestlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", requestlog.ErrNotFound, requestID)
	}
	return copyEntry(e), nil
}

// Query implements requestlog.Storage.
func (s *MemoryStorage) Query(_ context.Context, query *requestlog.Query) ([]*requestlog.Entry, error) {
	if query == nil {
		query = &requestlog.Query{}
	}

	results := s.filter(query)
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	start := query.Offset
	if start > len(results) {
		return []*requestlog.Entry{}, nil
	}
	limit := query.Limit
	if limit <= 0 {
		limit = requestlog.DefaultQueryLimit
	}
	end := start + limit
	if end > len(results) {
		end = len(results)
	}
	return results[start:end], nil
}

// Count implements requestlog.Storage.
func (s *MemoryStorage) Count(_ context.Context, query *requestlog.Query) (int64, error) {
	if query == nil {
		query = &requestlog.Query{}
	}
	return int64(len(s.filter(query))), nil
}

// DeleteBefore implements requestlog.Storage.
func (s *MemoryStorage) DeleteBefore(_ context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, e := range s.entries {
		if e.Status.IsTerminal() && e.CreatedAt.Before(t) {
			delete(s.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

// Ping implements requestlog.Storage.
func (s *MemoryStorage) Ping(context.Context) error { return nil }

// Close implements requestlog.Storage.
func (s *MemoryStorage) Close() error { return nil }

func (s *MemoryStorage) filter(q *requestlog.Query) []*requestlog.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*requestlog.Entry
	for _, e := range s.entries {
		if matches(e, q) {
			out = append(out, copyEntry(e))
		}
	}
	return out
}

func matches(e *requestlog.Entry, q *requestlog.Query) bool {
	if q.APIKeyID != "" && e.APIKeyID != q.APIKeyID {
		return false
	}
	if q.Service != "" && e.Service != q.Service {
		return false
	}
	if q.Status != "" && e.Status != q.Status {
		return false
	}
	if q.StartTime != nil && e.CreatedAt.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.CreatedAt.After(*q.EndTime) {
		return false
	}
	return true
}

func copyEntry(e *requestlog.Entry) *requestlog.Entry {
	out := *e
	out.Payload = append([]byte(nil), e.Payload...)
	out.Response = append([]byte(nil), e.Response...)
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
