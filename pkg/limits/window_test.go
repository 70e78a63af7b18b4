package limits

import (
	"testing"
	"time"
)

func TestWindow_StartAndNext(t *testing.T) {
	at := time.Date(2026, 3, 31, 23, 59, 42, 500, time.UTC)

	tests := []struct {
		window    Window
		wantStart time.Time
		wantNext  time.Time
	}{
		{
			window:    WindowMinute,
			wantStart: time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC),
			wantNext:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			window:    WindowHour,
			wantStart: time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC),
			wantNext:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			window:    WindowDay,
			wantStart: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			wantNext:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.window), func(t *testing.T) {
			if got := tt.window.Start(at); !got.Equal(tt.wantStart) {
				t.Errorf("Start() = %v, want %v", got, tt.wantStart)
			}
			if got := tt.window.Next(at); !got.Equal(tt.wantNext) {
				t.Errorf("Next() = %v, want %v", got, tt.wantNext)
			}
		})
	}
}

func TestWindow_StartUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	// 21:30 UTC is 02:30 the next day at UTC+5.
	at := time.Date(2026, 6, 10, 21, 30, 0, 0, time.UTC).In(loc)

	start := WindowDay.Start(at)
	want := time.Date(2026, 6, 11, 0, 0, 0, 0, loc)
	if !start.Equal(want) {
		t.Errorf("WindowDay.Start() = %v, want local midnight %v", start, want)
	}
}

func TestWindow_StartIsStableWithinWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC)
	for _, w := range Windows {
		first := w.Start(base)
		last := w.Start(w.Next(base).Add(-time.Nanosecond))
		if !first.Equal(last) {
			t.Errorf("%s: window start moved within the window: %v != %v", w, first, last)
		}
	}
}

func TestWindow_Valid(t *testing.T) {
	for _, w := range Windows {
		if !w.Valid() {
			t.Errorf("%s.Valid() = false", w)
		}
	}
	if Window("week").Valid() {
		t.Error("week.Valid() = true")
	}
}
