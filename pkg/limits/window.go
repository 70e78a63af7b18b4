package limits

import (
	"fmt"
	"time"

	"mercator-hq/broker/pkg/directory"
)

// Window is a fixed-size counting bucket.
type Window string

const (
	// WindowMinute counts requests per wall-clock minute.
	WindowMinute Window = "minute"

	// WindowHour counts requests per wall-clock hour.
	WindowHour Window = "hour"

	// WindowDay counts requests per calendar day.
	WindowDay Window = "day"
)

// Windows lists every window kind in evaluation order, shortest first.
var Windows = []Window{WindowMinute, WindowHour, WindowDay}

// Start truncates t to the start of the window containing it, in t's
// location. Days start at local midnight, not at a UTC boundary.
func (w Window) Start(t time.Time) time.Time {
	switch w {
	case WindowMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
	case WindowHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case WindowDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	default:
		panic(fmt.Sprintf("limits: unknown window %q", string(w)))
	}
}

// Next returns the start of the window after the one containing t.
func (w Window) Next(t time.Time) time.Time {
	start := w.Start(t)
	switch w {
	case WindowMinute:
		return start.Add(time.Minute)
	case WindowHour:
		return start.Add(time.Hour)
	default:
		next := start.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, next.Location())
	}
}

// Duration is the nominal length of the window.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// Valid reports whether w is a known window kind.
func (w Window) Valid() bool {
	return w == WindowMinute || w == WindowHour || w == WindowDay
}

// limitOf returns the limit l sets for w, nil when unlimited.
func (w Window) limitOf(l directory.Limits) *int64 {
	switch w {
	case WindowMinute:
		return l.PerMinute
	case WindowHour:
		return l.PerHour
	case WindowDay:
		return l.PerDay
	}
	return nil
}
