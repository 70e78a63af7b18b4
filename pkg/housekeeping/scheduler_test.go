package housekeeping

import (
	"context"
	"testing"
	"time"
)

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{
			name:        "every fifteen minutes",
			schedule:    "*/15 * * * *",
			wantRunning: true,
		},
		{
			name:        "daily",
			schedule:    "0 3 * * *",
			wantRunning: true,
		},
		{
			name:     "empty schedule",
			schedule: "",
		},
		{
			name:      "invalid schedule",
			schedule:  "invalid cron",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pruner := NewPruner(nil, nil, &Config{Schedule: tt.schedule})
			scheduler := NewScheduler(pruner)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := scheduler.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", scheduler.IsRunning(), tt.wantRunning)
			}
			if tt.wantRunning && scheduler.NextRun() == nil {
				t.Error("NextRun() returned nil for running scheduler")
			}

			scheduler.Stop()
			if scheduler.IsRunning() {
				t.Error("scheduler still running after Stop()")
			}
		})
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	scheduler := NewScheduler(NewPruner(nil, nil, DefaultConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	for i := 0; i < 100 && scheduler.IsRunning(); i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if scheduler.IsRunning() {
		t.Error("scheduler still running after context cancel")
	}
}
