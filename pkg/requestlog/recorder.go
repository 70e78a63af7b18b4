package requestlog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config contains configuration for the Recorder.
type Config struct {
	// WriteTimeout bounds each storage write. Writes run on a context
	// detached from the caller so a cancelled HTTP request still gets its
	// entry recorded.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// MaxErrorLength truncates stored error messages.
	// Default: 1024
	MaxErrorLength int
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		WriteTimeout:   5 * time.Second,
		MaxErrorLength: 1024,
	}
}

// Recorder writes request lifecycle entries to a Storage.
//
// Every method logs its own failures; callers may ignore the returned error
// without losing visibility. A failed log write must never fail the request
// it describes.
type Recorder struct {
	storage Storage
	config  *Config
	logger  *slog.Logger
	now     func() time.Time

	writeErrors        *prometheus.CounterVec
	terminalViolations prometheus.Counter
}

// NewRecorder creates a recorder over storage. reg may be nil.
func NewRecorder(storage Storage, config *Config, reg prometheus.Registerer) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.MaxErrorLength == 0 {
		config.MaxErrorLength = 1024
	}

	factory := promauto.With(reg)
	return &Recorder{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "requestlog.recorder"),
		now:     time.Now,
		writeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_requestlog_write_errors_total",
				Help: "Request log writes that failed, by operation",
			},
			[]string{"operation"},
		),
		terminalViolations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "broker_requestlog_terminal_violations_total",
				Help: "Attempts to modify a request log entry that was already terminal",
			},
		),
	}
}

// Storage returns the underlying storage for read access.
func (r *Recorder) Storage() Storage {
	return r.storage
}

// Begin records a pending entry for an accepted async request.
func (r *Recorder) Begin(ctx context.Context, entry *Entry) error {
	entry.Status = StatusPending
	entry.CompletedAt = nil
	return r.create(ctx, entry)
}

// Record writes an entry that is already terminal, as produced by the sync
// path.
func (r *Recorder) Record(ctx context.Context, entry *Entry) error {
	if !entry.Status.IsTerminal() {
		r.logger.Error("Record called with non-terminal status",
			"request_id", entry.RequestID,
			"status", entry.Status,
		)
		return ValidatePatch(&Patch{Status: entry.Status})
	}
	completed := r.now()
	entry.CompletedAt = &completed
	entry.Error = r.truncate(entry.Error)
	return r.create(ctx, entry)
}

// Complete moves a pending entry to its terminal status.
func (r *Recorder) Complete(ctx context.Context, requestID string, patch *Patch) error {
	if err := ValidatePatch(patch); err != nil {
		r.logger.Error("invalid request log patch", "request_id", requestID, "error", err)
		return err
	}
	patch.Error = r.truncate(patch.Error)

	ctx, cancel := r.writeContext(ctx)
	defer cancel()

	err := r.storage.UpdateByRequestID(ctx, requestID, patch)
	switch {
	case err == nil:
		r.logger.Debug("request log entry completed",
			"request_id", requestID,
			"status", patch.Status,
			"processing_time", patch.ProcessingTime,
		)
		return nil
	case errors.Is(err, ErrAlreadyTerminal):
		r.terminalViolations.Inc()
		r.logger.Error("attempt to modify terminal request log entry",
			"request_id", requestID,
			"status", patch.Status,
		)
		return err
	default:
		r.writeErrors.WithLabelValues("update").Inc()
		r.logger.Error("failed to complete request log entry",
			"request_id", requestID,
			"error", err,
		)
		return err
	}
}

func (r *Recorder) create(ctx context.Context, entry *Entry) error {
	now := r.now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	if err := ValidateEntry(entry); err != nil {
		r.logger.Error("invalid request log entry", "request_id", entry.RequestID, "error", err)
		return err
	}

	ctx, cancel := r.writeContext(ctx)
	defer cancel()

	if err := r.storage.Create(ctx, entry); err != nil {
		r.writeErrors.WithLabelValues("create").Inc()
		r.logger.Error("failed to write request log entry",
			"request_id", entry.RequestID,
			"status", entry.Status,
			"error", err,
		)
		return err
	}

	r.logger.Debug("request log entry written",
		"request_id", entry.RequestID,
		"service", entry.Service,
		"status", entry.Status,
		"async", entry.Async,
	)
	return nil
}

func (r *Recorder) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.config.WriteTimeout)
}

func (r *Recorder) truncate(s string) string {
	if len(s) <= r.config.MaxErrorLength {
		return s
	}
	return s[:r.config.MaxErrorLength] + "...[truncated]"
}
