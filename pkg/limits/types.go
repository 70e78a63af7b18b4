package limits

import (
	"errors"
	"strconv"
	"time"
)

// Decision is the outcome of one admission check.
// A denial is a normal result, not an error.
type Decision struct {
	// Allowed indicates if the request may proceed.
	Allowed bool

	// Limited is true when at least one window carried a limit. Only limited
	// decisions populate the fields below.
	Limited bool

	// LimitType is the window that denied the request, or on allow the window
	// reported as most restrictive.
	LimitType Window

	// Limit is the limit of LimitType.
	Limit int64

	// Remaining is how many more requests LimitType admits. Always 0 on deny.
	Remaining int64

	// ResetAt is the start of the next LimitType window.
	ResetAt time.Time

	// Source is the scope that LimitType's limit came from.
	Source ScopeKind

	// ScopeKey is the counter owner, e.g. "endpoint:billing/invoice@v1".
	ScopeKey string

	// FailOpen is set when the request was admitted because the counter
	// store could not be consulted.
	FailOpen bool
}

// Headers returns the X-RateLimit-* values for a limited decision.
func (d *Decision) Headers() map[string]string {
	if d == nil || !d.Limited || d.FailOpen {
		return nil
	}
	return map[string]string{
		"X-RateLimit-Limit":     strconv.FormatInt(d.Limit, 10),
		"X-RateLimit-Remaining": strconv.FormatInt(d.Remaining, 10),
		"X-RateLimit-Reset":     strconv.FormatInt(d.ResetAt.Unix(), 10),
	}
}

var (
	// ErrInvalidPriority is returned for priority lists with unknown or
	// duplicate scope kinds.
	ErrInvalidPriority = errors.New("invalid scope priority")

	// ErrNoScopeKey is returned when no scope in the chain can own a counter.
	ErrNoScopeKey = errors.New("no scope available for counter key")

	// ErrStoreUnavailable wraps counter store failures when fail-open is off.
	ErrStoreUnavailable = errors.New("usage counter store unavailable")
)
