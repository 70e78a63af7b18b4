package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-process map.
// All data is lost when the process exits.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*Counter
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*Counter),
		now:      time.Now,
	}
}

// GetOrCreate implements Store.
func (m *MemoryStore) GetOrCreate(_ context.Context, key Key) (*Counter, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.getOrCreateLocked(key)
	out := *c
	return &out, nil
}

// Increment implements Store.
func (m *MemoryStore) Increment(_ context.Context, key Key) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.getOrCreateLocked(key)
	c.Count++
	c.LastUpdated = m.now()
	return c.Count, nil
}

func (m *MemoryStore) getOrCreateLocked(key Key) *Counter {
	k := key.String()
	c, ok := m.counters[k]
	if !ok {
		c = &Counter{
			Scope:       key.Scope,
			Window:      key.Window,
			WindowStart: key.WindowStart,
			LastUpdated: m.now(),
		}
		m.counters[k] = c
	}
	return c
}

// Cleanup implements Store.
func (m *MemoryStore) Cleanup(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for k, c := range m.counters {
		if c.WindowStart.Before(olderThan) {
			delete(m.counters, k)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of counters held.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}

// Ping implements Store.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
