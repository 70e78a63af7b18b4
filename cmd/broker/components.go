package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mercator-hq/broker/pkg/config"
	"mercator-hq/broker/pkg/directory"
	"mercator-hq/broker/pkg/directory/gitsync"
	"mercator-hq/broker/pkg/dispatch"
	"mercator-hq/broker/pkg/housekeeping"
	"mercator-hq/broker/pkg/limits"
	counterstore "mercator-hq/broker/pkg/limits/storage"
	"mercator-hq/broker/pkg/requestlog"
	logstore "mercator-hq/broker/pkg/requestlog/storage"
	"mercator-hq/broker/pkg/server"
	"mercator-hq/broker/pkg/telemetry"
)

// components are the long-lived parts of a running broker.
type components struct {
	static  *directory.Static
	cache   *directory.Cached
	catalog directory.Catalog
	watcher *directory.Watcher
	syncer  *gitsync.Syncer

	counters   counterstore.Store
	requests   requestlog.Storage
	engine     *limits.Engine
	dispatcher *dispatch.Dispatcher
	scheduler  *housekeeping.Scheduler

	logger *slog.Logger
}

// buildComponents opens the stores and builds the directory, admission
// engine, dispatcher and housekeeping from cfg. On error everything opened
// so far is closed.
func buildComponents(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) (*components, error) {
	c := &components{logger: slog.Default().With("component", "broker")}
	if err := c.build(ctx, cfg, tel); err != nil {
		_ = c.close()
		return nil, err
	}
	registerHealthChecks(tel, c)
	return c, nil
}

func (c *components) build(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) error {
	doc, repo, commit, err := loadDirectory(ctx, cfg.Directory)
	if err != nil {
		return fmt.Errorf("failed to load directory: %w", err)
	}
	if c.static, err = directory.NewStatic(doc); err != nil {
		return fmt.Errorf("failed to load directory: %w", err)
	}
	c.catalog = c.static

	var onReload []func()
	if cfg.Directory.CacheTTL > 0 {
		c.cache = directory.NewCached(c.static, cfg.Directory.CacheTTL)
		c.catalog = c.cache
		onReload = append(onReload, c.cache.Invalidate)
	}
	if repo != nil {
		c.syncer = gitsync.NewSyncer(repo, c.static, commit, cfg.Directory.Git.PollInterval, onReload...)
	}
	if c.counters, err = openCounterStore(cfg.Counters); err != nil {
		return err
	}
	if c.requests, err = openRequestLog(cfg.RequestLog); err != nil {
		return err
	}

	c.engine, err = limits.NewEngine(limits.EngineConfig{
		Store:           c.counters,
		LimitPriority:   limits.ParsePriority(cfg.Throttle.LimitPriority),
		CounterPriority: limits.ParsePriority(cfg.Throttle.CounterScopePriority),
		Disabled:        !cfg.Throttle.Enabled,
		FailOpen:        cfg.Throttle.FailOpen,
		Metrics:         limits.NewMetrics(tel.Metrics.Registerer()),
	})
	if err != nil {
		return fmt.Errorf("failed to create admission engine: %w", err)
	}

	handler, err := buildHandler(cfg.Dispatch)
	if err != nil {
		return err
	}
	recorder := requestlog.NewRecorder(c.requests, &requestlog.Config{
		WriteTimeout:   cfg.RequestLog.WriteTimeout,
		MaxErrorLength: cfg.RequestLog.MaxErrorLength,
	}, tel.Metrics.Registerer())
	c.dispatcher = dispatch.New(handler, recorder, &dispatch.Config{
		DefaultTimeout: cfg.Dispatch.DefaultTimeout,
		MaxTimeout:     cfg.Dispatch.MaxTimeout,
		AsyncTimeout:   cfg.Dispatch.AsyncTimeout,
	}, tel.Metrics.Registerer())

	pruner := housekeeping.NewPruner(c.counters, c.requests, &housekeeping.Config{
		Schedule:         cfg.Housekeeping.Schedule,
		CounterRetention: cfg.Housekeeping.CounterRetention,
		LogRetention:     cfg.Housekeeping.LogRetention,
	})
	c.scheduler = housekeeping.NewScheduler(pruner)

	// Created last: the watcher's file handle is only released by Run.
	if cfg.Directory.Watch && c.syncer == nil {
		c.watcher, err = directory.NewWatcher(cfg.Directory.FilePath, c.static, cfg.Directory.WatchDebounce, onReload...)
		if err != nil {
			return fmt.Errorf("failed to watch directory: %w", err)
		}
	}
	return nil
}

// deps returns the server dependencies.
func (c *components) deps(tel *telemetry.Telemetry) server.Deps {
	return server.Deps{
		Directory:  c.catalog,
		Admitter:   c.engine,
		Dispatcher: c.dispatcher,
		Requests:   c.requests,
		Telemetry:  tel,
	}
}

// start runs the directory watcher or Git sync and the housekeeping
// scheduler until ctx is cancelled.
func (c *components) start(ctx context.Context) error {
	if c.watcher != nil {
		go func() {
			if err := c.watcher.Run(ctx); err != nil {
				c.logger.Error("directory watcher stopped", "error", err)
			}
		}()
	}
	if c.syncer != nil {
		go func() {
			if err := c.syncer.Run(ctx); err != nil {
				c.logger.Error("directory sync stopped", "error", err)
			}
		}()
	}
	if err := c.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start housekeeping: %w", err)
	}
	return nil
}

// close stops background work and closes the stores. The dispatcher is
// drained by the server before this runs.
func (c *components) close() error {
	var errs []error
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if c.cache != nil {
		c.cache.Stop()
	}
	if c.requests != nil {
		if err := c.requests.Close(); err != nil {
			errs = append(errs, fmt.Errorf("request log: %w", err))
		}
	}
	if c.counters != nil {
		if err := c.counters.Close(); err != nil {
			errs = append(errs, fmt.Errorf("counter store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// loadDirectory reads the directory document from the file or, with Git sync
// enabled, from the tip of the tracked branch. The repository and commit are
// only set for Git.
func loadDirectory(ctx context.Context, cfg config.DirectoryConfig) (*directory.Document, *gitsync.Repository, string, error) {
	if !cfg.Git.Enabled {
		doc, err := directory.LoadFile(cfg.FilePath)
		return doc, nil, "", err
	}

	repo, err := gitsync.NewRepository(cfg.Git)
	if err != nil {
		return nil, nil, "", err
	}
	if err := repo.Clone(ctx); err != nil {
		return nil, nil, "", err
	}
	doc, head, err := repo.Document()
	if err != nil {
		return nil, nil, "", err
	}
	return doc, repo, head.SHA, nil
}

func openCounterStore(cfg config.CountersConfig) (counterstore.Store, error) {
	switch cfg.Backend {
	case "memory":
		return counterstore.NewMemoryStore(), nil
	case "sqlite":
		if err := ensureParentDir(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		store, err := counterstore.NewSQLiteStoreWithConfig(counterstore.SQLiteStoreConfig{
			Path:               cfg.SQLite.Path,
			BusyTimeout:        cfg.SQLite.BusyTimeout,
			CheckpointInterval: cfg.SQLite.CheckpointInterval,
			MaxOpenConns:       cfg.SQLite.MaxOpenConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open counter store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported counters backend: %s", cfg.Backend)
	}
}

func openRequestLog(cfg config.RequestLogConfig) (requestlog.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return logstore.NewMemoryStorage(), nil
	case "sqlite":
		if err := ensureParentDir(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		store, err := logstore.NewSQLiteStorage(&logstore.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open request log: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported request_log backend: %s", cfg.Backend)
	}
}

// buildHandler maps dispatch.handlers onto a registry. Services without an
// entry use the fallback, if any.
func buildHandler(cfg config.DispatchConfig) (*dispatch.Registry, error) {
	registry := dispatch.NewRegistry()
	for service, hc := range cfg.Handlers {
		h, err := newHandler(hc)
		if err != nil {
			return nil, fmt.Errorf("dispatch.handlers.%s: %w", service, err)
		}
		registry.Register(service, h)
	}
	switch cfg.Fallback {
	case "":
	case "echo":
		registry.SetFallback(dispatch.EchoHandler{})
	default:
		return nil, fmt.Errorf("dispatch.fallback: unsupported handler type %q", cfg.Fallback)
	}
	return registry, nil
}

func newHandler(hc config.HandlerConfig) (dispatch.Handler, error) {
	switch hc.Type {
	case "echo":
		return dispatch.EchoHandler{}, nil
	case "http":
		h, err := dispatch.NewHTTPHandler(dispatch.HTTPHandlerConfig{
			URL:              hc.URL,
			Headers:          hc.Headers,
			Timeout:          hc.Timeout,
			MaxResponseBytes: hc.MaxResponseBytes,
		})
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unsupported handler type %q", hc.Type)
	}
}

// registerHealthChecks wires readiness. The counter store and directory are
// critical; the request log only degrades readiness because its failures
// never fail a request.
func registerHealthChecks(tel *telemetry.Telemetry, c *components) {
	tel.Health.RegisterCheck("counters", c.counters.Ping, true)
	tel.Health.RegisterCheck("request_log", c.requests.Ping, false)
	tel.Health.RegisterCheck("directory", func(ctx context.Context) error {
		_, err := c.catalog.ListServices(ctx)
		return err
	}, true)
	if c.syncer != nil {
		tel.Health.RegisterCheck("directory_sync", c.syncer.Check, false)
	}
}

func ensureParentDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
