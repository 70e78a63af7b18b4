package gitsync

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"mercator-hq/broker/pkg/directory"
)

// Syncer polls a Repository and applies new documents to a Static.
type Syncer struct {
	repo     *Repository
	target   *directory.Static
	interval time.Duration
	onReload []func()
	logger   *slog.Logger

	mu       sync.RWMutex
	applied  string // commit whose document is live
	rejected string // newest commit whose document failed to load
	lastErr  error
	metrics  SyncMetrics

	done chan struct{}
}

// NewSyncer creates a syncer for target, which currently holds the document
// from commit applied. Each function in onReload runs after a successful
// reload.
func NewSyncer(repo *Repository, target *directory.Static, applied string, interval time.Duration, onReload ...func()) *Syncer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Syncer{
		repo:     repo,
		target:   target,
		interval: interval,
		onReload: onReload,
		logger:   slog.Default().With("component", "directory.git"),
		applied:  applied,
		done:     make(chan struct{}),
	}
}

// Run polls until ctx is cancelled. Poll errors are logged and retried on
// the next tick.
func (s *Syncer) Run(ctx context.Context) error {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("directory sync started",
		"poll_interval", s.interval,
		"commit", shortSHA(s.Applied()))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("directory sync stopped")
			return nil
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Error("directory sync failed", "error", err)
			}
		}
	}
}

// Done is closed when Run returns.
func (s *Syncer) Done() <-chan struct{} {
	return s.done
}

// Sync fetches once and applies the tip of the branch if it changed the
// document. A document that fails to parse is rejected and the live one is
// kept; the rejected commit is not retried.
func (s *Syncer) Sync(ctx context.Context) error {
	s.mu.Lock()
	s.metrics.Polls++
	s.mu.Unlock()

	if _, err := s.repo.Fetch(ctx); err != nil {
		s.setErr(err)
		return err
	}
	tip, err := s.repo.Head()
	if err != nil {
		s.setErr(err)
		return err
	}

	s.mu.RLock()
	applied, rejected := s.applied, s.rejected
	s.mu.RUnlock()
	switch tip.SHA {
	case applied:
		s.setErr(nil)
		return nil
	case rejected:
		return nil
	}

	changed, err := s.repo.ChangedFiles(applied, tip.SHA)
	if err != nil {
		s.setErr(err)
		return err
	}
	if !slices.Contains(changed, s.repo.DocumentPath()) {
		s.mu.Lock()
		s.applied = tip.SHA
		s.metrics.SkippedCommits++
		s.lastErr = nil
		s.mu.Unlock()
		s.logger.Debug("commit does not touch the directory document, skipping",
			"commit", tip.Short(),
			"changed_files", len(changed))
		return nil
	}

	if err := s.apply(tip); err != nil {
		s.mu.Lock()
		s.rejected = tip.SHA
		s.metrics.RejectedCommits++
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Error("directory document rejected, keeping previous commit",
			"commit", tip.Short(),
			"author", tip.Author,
			"live_commit", shortSHA(applied),
			"error", err)
		return err
	}
	return nil
}

func (s *Syncer) apply(tip *CommitInfo) error {
	data, err := s.repo.ReadDocument(tip.SHA)
	if err != nil {
		return err
	}
	doc, err := directory.ParseDocument(data)
	if err != nil {
		return fmt.Errorf("%s at %s: %w", s.repo.DocumentPath(), tip.Short(), err)
	}
	if err := s.target.Replace(doc); err != nil {
		return err
	}
	for _, fn := range s.onReload {
		fn()
	}

	s.mu.Lock()
	from := s.applied
	s.applied = tip.SHA
	s.rejected = ""
	s.lastErr = nil
	s.metrics.Reloads++
	s.metrics.LastReloadTime = time.Now()
	s.mu.Unlock()

	s.logger.Info("directory reloaded from git",
		"from_commit", shortSHA(from),
		"to_commit", tip.Short(),
		"api_keys", len(doc.APIKeys),
		"services", len(doc.Services))
	return nil
}

func (s *Syncer) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Applied returns the commit whose document is live.
func (s *Syncer) Applied() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

// Check reports the outcome of the last poll. It is used as a readiness
// check: a failing fetch or a rejected commit means the live document may
// be stale.
func (s *Syncer) Check(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Metrics returns a copy of the sync metrics.
func (s *Syncer) Metrics() SyncMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}
