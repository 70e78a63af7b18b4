package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/broker/pkg/requestlog"
)

// Config controls dispatcher timeouts.
type Config struct {
	// DefaultTimeout applies to sync requests that do not carry one.
	// Default: 30 seconds
	DefaultTimeout time.Duration

	// MaxTimeout caps caller-supplied timeouts.
	// Default: 5 minutes
	MaxTimeout time.Duration

	// AsyncTimeout bounds the handler context of async requests. Zero means
	// no bound.
	AsyncTimeout time.Duration
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultTimeout: 30 * time.Second,
		MaxTimeout:     5 * time.Minute,
	}
}

// EffectiveTimeout resolves a caller timeout against the defaults.
func (c *Config) EffectiveTimeout(requested time.Duration) time.Duration {
	t := requested
	if t <= 0 {
		t = c.DefaultTimeout
	}
	if c.MaxTimeout > 0 && t > c.MaxTimeout {
		t = c.MaxTimeout
	}
	return t
}

// Dispatcher executes admitted requests against their handlers and records
// each outcome in the request log.
type Dispatcher struct {
	handler  Handler
	recorder *requestlog.Recorder
	config   *Config
	metrics  *metrics
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// New creates a dispatcher. A nil config uses DefaultConfig. reg may be nil.
func New(handler Handler, recorder *requestlog.Recorder, config *Config, reg prometheus.Registerer) *Dispatcher {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = defaults.DefaultTimeout
	}
	if config.MaxTimeout <= 0 {
		config.MaxTimeout = defaults.MaxTimeout
	}

	return &Dispatcher{
		handler:  handler,
		recorder: recorder,
		config:   config,
		metrics:  newMetrics(reg),
		logger:   slog.Default().With("component", "dispatch"),
		now:      time.Now,
	}
}

// Config returns the dispatcher configuration.
func (d *Dispatcher) Config() *Config {
	return d.config
}

// Dispatch routes req to Async or Sync.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Result, error) {
	if req.Async {
		return d.Async(ctx, req)
	}
	return d.Sync(ctx, req)
}

// Async records a pending entry and runs the handler in the background. It
// returns as soon as the request is accepted.
func (d *Dispatcher) Async(ctx context.Context, req *Request) (*Result, error) {
	if !d.acquire() {
		return nil, ErrShuttingDown
	}

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	timeout := d.config.AsyncTimeout

	entry := d.entry(req, timeout)
	owned := true
	err := d.create(ctx, entry, d.recorder.Begin)
	req.RequestID = entry.RequestID
	if err != nil {
		// Run anyway; a missing log entry must not drop accepted work.
		owned = false
		d.logger.Warn("async request accepted without pending log entry",
			"request_id", req.RequestID,
			"error", err,
		)
	}

	d.metrics.inflight.Inc()
	go func() {
		defer d.wg.Done()
		defer d.metrics.inflight.Dec()
		d.runAsync(context.WithoutCancel(ctx), req, timeout, owned)
	}()

	d.logger.Debug("async request accepted",
		"request_id", req.RequestID,
		"service", req.Service,
	)

	return &Result{
		RequestID: req.RequestID,
		Status:    requestlog.StatusPending,
		Timeout:   timeout,
	}, nil
}

func (d *Dispatcher) runAsync(ctx context.Context, req *Request, timeout time.Duration, owned bool) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := d.now()
	resp, err := d.invoke(ctx, req)
	elapsed := d.now().Sub(start)

	patch := &requestlog.Patch{
		Status:         requestlog.StatusSuccess,
		ProcessingTime: elapsed,
		Response:       resp,
	}
	if err != nil {
		patch.Status = requestlog.StatusError
		patch.Response = nil
		patch.Error = err.Error()
		d.logger.Warn("async handler failed",
			"request_id", req.RequestID,
			"service", req.Service,
			"error", err,
		)
	}

	d.metrics.observe("async", patch.Status, elapsed)
	if !owned {
		// Completing by ID would patch whatever entry holds it.
		d.logger.Warn("async outcome not recorded",
			"request_id", req.RequestID,
			"service", req.Service,
			"status", patch.Status,
		)
		return
	}
	_ = d.recorder.Complete(ctx, req.RequestID, patch)
}

// Sync runs the handler and waits for it up to the effective timeout. The
// outcome is recorded as a terminal entry before Sync returns. On timeout the
// handler context is cancelled and any late result is discarded.
func (d *Dispatcher) Sync(ctx context.Context, req *Request) (*Result, error) {
	if !d.acquire() {
		return nil, ErrShuttingDown
	}
	defer d.wg.Done()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	timeout := d.config.EffectiveTimeout(req.Timeout)

	type outcome struct {
		resp []byte
		err  error
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome, 1)
	start := d.now()
	go func() {
		resp, err := d.invoke(handlerCtx, req)
		done <- outcome{resp: resp, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		out      outcome
		timedOut bool
	)
	select {
	case out = <-done:
	case <-timer.C:
		timedOut = true
	case <-ctx.Done():
		timedOut = true
	}
	elapsed := d.now().Sub(start)
	if elapsed > timeout {
		timedOut = true
	}

	entry := d.entry(req, timeout)
	entry.ProcessingTime = elapsed
	result := &Result{
		RequestID:      req.RequestID,
		ProcessingTime: elapsed,
		Timeout:        timeout,
	}

	var err error
	switch {
	case timedOut:
		entry.Status = requestlog.StatusTimeout
		entry.Error = fmt.Sprintf("request exceeded timeout of %s", timeout)
		err = ErrTimeout
		d.logger.Warn("sync request timed out",
			"request_id", req.RequestID,
			"service", req.Service,
			"timeout", timeout,
			"elapsed", elapsed,
		)
	case out.err != nil:
		entry.Status = requestlog.StatusError
		entry.Error = out.err.Error()
		err = out.err
	default:
		entry.Status = requestlog.StatusSuccess
		entry.Response = out.resp
		result.Response = out.resp
	}
	result.Status = entry.Status

	d.metrics.observe("sync", entry.Status, elapsed)
	_ = d.create(ctx, entry, d.recorder.Record)
	result.RequestID = entry.RequestID

	return result, err
}

// create writes entry with write. Request IDs may come from the caller, so
// an ID that is already logged is replaced by a fresh one and the write is
// retried once. entry carries the ID that was written.
func (d *Dispatcher) create(ctx context.Context, entry *requestlog.Entry, write func(context.Context, *requestlog.Entry) error) error {
	err := write(ctx, entry)
	if !errors.Is(err, requestlog.ErrDuplicate) {
		return err
	}
	fresh := uuid.NewString()
	d.logger.Warn("request id already logged, issuing a new one",
		"request_id", entry.RequestID,
		"new_request_id", fresh,
		"service", entry.Service,
	)
	entry.RequestID = fresh
	return write(ctx, entry)
}

// invoke calls the handler and converts failures and panics into
// HandlerError values.
func (d *Dispatcher) invoke(ctx context.Context, req *Request) (resp []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.panics.Inc()
			d.logger.Error("handler panicked",
				"request_id", req.RequestID,
				"service", req.Service,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			resp = nil
			err = &HandlerError{Service: req.Service, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if d.handler == nil {
		return nil, &HandlerError{Service: req.Service, Err: ErrNoHandler}
	}

	out, err := d.handler.Invoke(ctx, req.Service, req.Payload)
	if err != nil {
		var he *HandlerError
		if errors.As(err, &he) {
			return nil, err
		}
		return nil, &HandlerError{Service: req.Service, Err: err}
	}
	return out, nil
}

func (d *Dispatcher) entry(req *Request, timeout time.Duration) *requestlog.Entry {
	return &requestlog.Entry{
		RequestID: req.RequestID,
		Service:   req.Service,
		Endpoint:  req.Endpoint,
		Payload:   req.Payload,
		Async:     req.Async,
		Timeout:   timeout,
		APIKeyID:  req.APIKeyID,
		ClientIP:  req.ClientIP,
	}
}

func (d *Dispatcher) acquire() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return false
	}
	d.wg.Add(1)
	return true
}

// Close stops accepting requests and waits for in-flight work, including
// background async handlers, until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher drained")
		return nil
	case <-ctx.Done():
		d.logger.Warn("dispatcher close timed out with requests in flight")
		return ctx.Err()
	}
}
