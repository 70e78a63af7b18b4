package requestlog

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a logged request.
type Status string

const (
	// StatusPending marks an accepted async request that has not finished.
	StatusPending Status = "pending"

	// StatusSuccess marks a request whose handler returned a result.
	StatusSuccess Status = "success"

	// StatusError marks a request whose handler failed.
	StatusError Status = "error"

	// StatusTimeout marks a sync request that exceeded its timeout.
	StatusTimeout Status = "timeout"
)

// IsTerminal reports whether s is a final status. Terminal entries are
// never modified again.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusTimeout
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// Entry is the log record of one dispatched request.
type Entry struct {
	RequestID      string          `json:"requestId"`
	Service        string          `json:"service"`
	Endpoint       string          `json:"endpoint,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Async          bool            `json:"async"`
	Timeout        time.Duration   `json:"-"`
	Status         Status          `json:"status"`
	ProcessingTime time.Duration   `json:"-"`
	Response       json.RawMessage `json:"response,omitempty"`
	Error          string          `json:"error,omitempty"`
	APIKeyID       string          `json:"apiKeyId,omitempty"`
	ClientIP       string          `json:"clientIp,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

// MarshalJSON renders durations as integer milliseconds.
func (e *Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	return json.Marshal(struct {
		*plain
		TimeoutMs        int64 `json:"timeoutMs"`
		ProcessingTimeMs int64 `json:"processingTimeMs"`
	}{
		plain:            (*plain)(e),
		TimeoutMs:        e.Timeout.Milliseconds(),
		ProcessingTimeMs: e.ProcessingTime.Milliseconds(),
	})
}

// Patch moves a pending entry to a terminal status.
type Patch struct {
	Status         Status
	ProcessingTime time.Duration
	Response       json.RawMessage
	Error          string
}

// Query filters entries. Zero fields do not filter.
type Query struct {
	APIKeyID  string
	Service   string
	Status    Status
	StartTime *time.Time // inclusive, on CreatedAt
	EndTime   *time.Time // inclusive, on CreatedAt

	// Limit defaults to 100.
	Limit  int
	Offset int
}

// DefaultQueryLimit caps Query results when Limit is zero.
const DefaultQueryLimit = 100

// Storage persists request log entries.
// Implementations must be thread-safe.
type Storage interface {
	// Create inserts a new entry. The request ID must be unique.
	Create(ctx context.Context, entry *Entry) error

	// UpdateByRequestID applies patch to a pending entry. Returns
	// ErrNotFound for unknown IDs and ErrAlreadyTerminal when the entry has
	// already reached a terminal status.
	UpdateByRequestID(ctx context.Context, requestID string, patch *Patch) error

	// Get returns one entry or ErrNotFound.
	Get(ctx context.Context, requestID string) (*Entry, error)

	// Query returns entries newest first.
	Query(ctx context.Context, query *Query) ([]*Entry, error)

	// Count returns the number of entries matching query, ignoring pagination.
	Count(ctx context.Context, query *Query) (int64, error)

	// DeleteBefore removes terminal entries created before t. Pending
	// entries are kept.
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the backend.
	Close() error
}
