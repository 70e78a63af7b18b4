package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const counterSchema = `
CREATE TABLE IF NOT EXISTS usage_counters (
	scope TEXT NOT NULL,
	window_kind TEXT NOT NULL,
	window_start INTEGER NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	last_updated INTEGER NOT NULL,
	PRIMARY KEY (scope, window_kind, window_start)
);

CREATE INDEX IF NOT EXISTS idx_usage_counters_window_start ON usage_counters(window_start);
`

// SQLiteStore implements Store on a SQLite database.
//
// Get-or-create and increment are each a single upsert statement, so they
// are atomic without any in-process lock, including across processes that
// share the database file.
type SQLiteStore struct {
	db               *sql.DB
	checkpointPeriod time.Duration
	done             chan struct{}
	closeOnce        sync.Once

	getOrCreateStmt *sql.Stmt
	incrementStmt   *sql.Stmt
	cleanupStmt     *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite counter store.
type SQLiteStoreConfig struct {
	// Path is the database file. ":memory:" is allowed for tests.
	Path string

	// BusyTimeout is how long to wait for a lock held by another connection.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// MaxOpenConns caps the connection pool. Default: 4 (1 for ":memory:").
	MaxOpenConns int
}

// NewSQLiteStore opens a SQLite counter store with default settings.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{Path: path})
}

// NewSQLiteStoreWithConfig opens a SQLite counter store.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.Path == ":memory:" {
		// Every connection to ":memory:" is a separate database.
		cfg.MaxOpenConns = 1
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "open", Cause: err}
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(counterSchema); err != nil {
		db.Close()
		return nil, &StorageError{Backend: "sqlite", Operation: "init schema", Cause: err}
	}

	s := &SQLiteStore{
		db:               db,
		checkpointPeriod: cfg.CheckpointInterval,
		done:             make(chan struct{}),
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	go s.checkpointLoop()

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	// The no-op update makes RETURNING yield the existing row on conflict.
	s.getOrCreateStmt, err = s.db.Prepare(`
		INSERT INTO usage_counters (scope, window_kind, window_start, count, last_updated)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (scope, window_kind, window_start) DO UPDATE SET
			count = usage_counters.count
		RETURNING count, last_updated
	`)
	if err != nil {
		return &StorageError{Backend: "sqlite", Operation: "prepare get-or-create", Cause: err}
	}

	s.incrementStmt, err = s.db.Prepare(`
		INSERT INTO usage_counters (scope, window_kind, window_start, count, last_updated)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (scope, window_kind, window_start) DO UPDATE SET
			count = usage_counters.count + 1,
			last_updated = excluded.last_updated
		RETURNING count
	`)
	if err != nil {
		return &StorageError{Backend: "sqlite", Operation: "prepare increment", Cause: err}
	}

	s.cleanupStmt, err = s.db.Prepare(`DELETE FROM usage_counters WHERE window_start < ?`)
	if err != nil {
		return &StorageError{Backend: "sqlite", Operation: "prepare cleanup", Cause: err}
	}

	return nil
}

// GetOrCreate implements Store.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, key Key) (*Counter, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var count, lastUpdated int64
	err := s.getOrCreateStmt.QueryRowContext(ctx,
		key.Scope, key.Window, key.WindowStart.Unix(), time.Now().UnixNano(),
	).Scan(&count, &lastUpdated)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "get-or-create", Cause: err}
	}

	return &Counter{
		Scope:       key.Scope,
		Window:      key.Window,
		WindowStart: time.Unix(key.WindowStart.Unix(), 0),
		Count:       count,
		LastUpdated: time.Unix(0, lastUpdated),
	}, nil
}

// Increment implements Store.
func (s *SQLiteStore) Increment(ctx context.Context, key Key) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	var count int64
	err := s.incrementStmt.QueryRowContext(ctx,
		key.Scope, key.Window, key.WindowStart.Unix(), time.Now().UnixNano(),
	).Scan(&count)
	if err != nil {
		return 0, &StorageError{Backend: "sqlite", Operation: "increment", Cause: err}
	}
	return count, nil
}

// Cleanup implements Store.
func (s *SQLiteStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.cleanupStmt.ExecContext(ctx, olderThan.Unix())
	if err != nil {
		return 0, &StorageError{Backend: "sqlite", Operation: "cleanup", Cause: err}
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, &StorageError{Backend: "sqlite", Operation: "cleanup", Cause: err}
	}
	return int(deleted), nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &StorageError{Backend: "sqlite", Operation: "ping", Cause: err}
	}
	return nil
}

// Close releases the database. Close is idempotent.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{s.getOrCreateStmt, s.incrementStmt, s.cleanupStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}

		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})

	return closeErr
}

func (s *SQLiteStore) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
