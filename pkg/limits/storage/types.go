package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Store persists usage counters for rate limiting.
// Implementations must be thread-safe, and Increment must be linearizable per
// Key: concurrent callers never lose an increment.
type Store interface {
	// GetOrCreate returns the counter for key, creating it at zero if it
	// does not exist yet.
	GetOrCreate(ctx context.Context, key Key) (*Counter, error)

	// Increment adds one to the counter for key, creating it if needed,
	// and returns the new count.
	Increment(ctx context.Context, key Key) (int64, error)

	// Cleanup removes counters whose window started before olderThan.
	// Returns the number of counters deleted.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Key identifies one counter: a scope, a window kind and the start of the
// window being counted.
type Key struct {
	// Scope is the scope key that owns the counter, e.g. "endpoint:billing/invoice@v1".
	Scope string

	// Window is the window kind (minute, hour, day).
	Window string

	// WindowStart is the truncated start of the window.
	WindowStart time.Time
}

// Validate checks that all key fields are set.
func (k Key) Validate() error {
	if k.Scope == "" {
		return fmt.Errorf("%w: scope cannot be empty", ErrInvalidKey)
	}
	if k.Window == "" {
		return fmt.Errorf("%w: window cannot be empty", ErrInvalidKey)
	}
	if k.WindowStart.IsZero() {
		return fmt.Errorf("%w: window start cannot be zero", ErrInvalidKey)
	}
	return nil
}

// String renders the key as "scope|window|unix".
func (k Key) String() string {
	return k.Scope + "|" + k.Window + "|" + strconv.FormatInt(k.WindowStart.Unix(), 10)
}

// Counter is the persisted request count of one Key.
type Counter struct {
	Scope       string
	Window      string
	WindowStart time.Time
	Count       int64
	LastUpdated time.Time
}

// ErrInvalidKey is returned for keys with missing fields.
var ErrInvalidKey = errors.New("invalid counter key")

// StorageError wraps a backend failure with the operation that failed.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("%s counter store: %s failed: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}
