package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// MinCounterRetention is the shortest counter retention accepted. Anything
// shorter could remove a day window that is still live.
const MinCounterRetention = 48 * time.Hour

// CounterCleaner removes usage counters whose window started before a
// cutoff. Implemented by the limits counter stores.
type CounterCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
}

// LogPruner removes terminal request log entries created before a cutoff.
// Implemented by the requestlog storages.
type LogPruner interface {
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)
}

// Config contains configuration for the pruner.
type Config struct {
	// Schedule is a cron expression for running the pruner.
	// Empty disables scheduled pruning.
	// Example: "*/15 * * * *" (every 15 minutes)
	Schedule string

	// CounterRetention is how long counters are kept after their window
	// started. Values below MinCounterRetention are raised to it.
	CounterRetention time.Duration

	// LogRetention is how long terminal request log entries are kept.
	// 0 means keep entries forever.
	LogRetention time.Duration
}

// DefaultConfig returns the default housekeeping configuration.
func DefaultConfig() *Config {
	return &Config{
		Schedule:         "*/15 * * * *",
		CounterRetention: 72 * time.Hour,
		LogRetention:     30 * 24 * time.Hour,
	}
}

// Result reports what a pruning cycle removed.
type Result struct {
	Counters int
	Entries  int64
}

// Pruner deletes expired usage counters and old request log entries.
type Pruner struct {
	counters CounterCleaner
	logs     LogPruner
	config   *Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewPruner creates a pruner. Either target may be nil to skip it.
func NewPruner(counters CounterCleaner, logs LogPruner, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	if config.CounterRetention < MinCounterRetention {
		config.CounterRetention = MinCounterRetention
	}

	return &Pruner{
		counters: counters,
		logs:     logs,
		config:   config,
		logger:   slog.Default().With("component", "housekeeping.pruner"),
		now:      time.Now,
	}
}

// Config returns the pruner configuration.
func (p *Pruner) Config() *Config {
	return p.config
}

// Prune runs one cleanup cycle. Both targets are attempted even if the first
// fails; the errors are joined.
func (p *Pruner) Prune(ctx context.Context) (Result, error) {
	var (
		res  Result
		errs []error
	)
	now := p.now()

	if p.counters != nil {
		cutoff := now.Add(-p.config.CounterRetention)
		n, err := p.counters.Cleanup(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune counters: %w", err))
		} else {
			res.Counters = n
			p.logger.Debug("pruned usage counters",
				"deleted_count", n,
				"cutoff_time", cutoff,
			)
		}
	}

	if p.logs != nil && p.config.LogRetention > 0 {
		cutoff := now.Add(-p.config.LogRetention)
		n, err := p.logs.DeleteBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune request log: %w", err))
		} else {
			res.Entries = n
			p.logger.Debug("pruned request log entries",
				"deleted_count", n,
				"cutoff_time", cutoff,
			)
		}
	}

	if res.Counters > 0 || res.Entries > 0 {
		p.logger.Info("housekeeping completed",
			"counters_deleted", res.Counters,
			"entries_deleted", res.Entries,
		)
	}

	return res, errors.Join(errs...)
}
