package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"mercator-hq/broker/pkg/requestlog"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" is allowed for tests.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/requests.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements requestlog.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens (and if needed creates) a SQLite request log.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		return nil, requestlog.NewStorageError("sqlite", "open", errors.New("path cannot be empty"))
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}
	if config.Path == ":memory:" {
		config.MaxOpenConns = 1
		config.MaxIdleConns = 1
	}

	logger := slog.Default().With("component", "requestlog.storage.sqlite")

	// Connection-level pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		config.Path, config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, requestlog.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite request log initialized",
		"path", config.Path,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return requestlog.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return requestlog.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return requestlog.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return requestlog.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Create implements requestlog.Storage.
func (s *SQLiteStorage) Create(ctx context.Context, entry *requestlog.Entry) error {
	if err := requestlog.ValidateEntry(entry); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_log (
			request_id, service, endpoint, payload, async, timeout_ns,
			status, processing_time_ns, response, error,
			api_key_id, client_ip,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.Service, nullString(entry.Endpoint), nullBytes(entry.Payload),
		entry.Async, int64(entry.Timeout),
		string(entry.Status), int64(entry.ProcessingTime), nullBytes(entry.Response), nullString(entry.Error),
		nullString(entry.APIKeyID), nullString(entry.ClientIP),
		entry.CreatedAt.UnixNano(), entry.UpdatedAt.UnixNano(), nullTime(entry.CompletedAt),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %s", requestlog.ErrDuplicate, entry.RequestID)
		}
		return requestlog.NewStorageError("sqlite", "create", err)
	}
	return nil
}

// UpdateByRequestID implements requestlog.Storage. The status guard in the
// WHERE clause makes the pending to terminal transition happen at most once
// even under concurrent writers.
func (s *SQLiteStorage) UpdateByRequestID(ctx context.Context, requestID string, patch *requestlog.Patch) error {
	if err := requestlog.ValidatePatch(patch); err != nil {
		return err
	}

	now := time.Now().UnixNano()
	result, err := s.db.ExecContext(ctx, `
		UPDATE request_log SET
			status = ?, processing_time_ns = ?, response = ?, error = ?,
			updated_at = ?, completed_at = ?
		WHERE request_id = ? AND status = ?`,
		string(patch.Status), int64(patch.ProcessingTime), nullBytes(patch.Response), nullString(patch.Error),
		now, now,
		requestID, string(requestlog.StatusPending),
	)
	if err != nil {
		return requestlog.NewStorageError("sqlite", "update", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return requestlog.NewStorageError("sqlite", "update", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: the entry is either missing or already terminal.
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM request_log WHERE request_id = ?`, requestID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", requestlog.ErrNotFound, requestID)
	}
	if err != nil {
		return requestlog.NewStorageError("sqlite", "update", err)
	}
	return fmt.Errorf("%w: %s is %s", requestlog.ErrAlreadyTerminal, requestID, status)
}

// Get implements requestlog.Storage.
func (s *SQLiteStorage) Get(ctx context.Context, requestID string) (*requestlog.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM request_log WHERE request_id = ?", requestID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", requestlog.ErrNotFound, requestID)
	}
	if err != nil {
		return nil, requestlog.NewStorageError("sqlite", "get", err)
	}
	return e, nil
}

// Query implements requestlog.Storage.
func (s *SQLiteStorage) Query(ctx context.Context, query *requestlog.Query) ([]*requestlog.Entry, error) {
	if query == nil {
		query = &requestlog.Query{}
	}

	whereClause, args := buildWhereClause(query)
	sqlQuery := "SELECT " + selectColumns + " FROM request_log"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}
	sqlQuery += " ORDER BY created_at DESC"

	limit := requestlog.DefaultQueryLimit
	if query.Limit > 0 {
		limit = query.Limit
	}
	sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, requestlog.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	entries := []*requestlog.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, requestlog.NewStorageError("sqlite", "scan", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, requestlog.NewStorageError("sqlite", "query", err)
	}

	return entries, nil
}

// Count implements requestlog.Storage.
func (s *SQLiteStorage) Count(ctx context.Context, query *requestlog.Query) (int64, error) {
	if query == nil {
		query = &requestlog.Query{}
	}

	whereClause, args := buildWhereClause(query)
	sqlQuery := "SELECT COUNT(*) FROM request_log"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, requestlog.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// DeleteBefore implements requestlog.Storage.
func (s *SQLiteStorage) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM request_log WHERE created_at < ? AND status != ?`,
		t.UnixNano(), string(requestlog.StatusPending),
	)
	if err != nil {
		return 0, requestlog.NewStorageError("sqlite", "delete", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, requestlog.NewStorageError("sqlite", "delete", err)
	}
	return n, nil
}

// Ping implements requestlog.Storage.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return requestlog.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return requestlog.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite request log closed")
	return nil
}

// buildWhereClause builds a SQL WHERE clause (without the keyword) and its
// arguments from query filters.
func buildWhereClause(q *requestlog.Query) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if q.APIKeyID != "" {
		conditions = append(conditions, "api_key_id = ?")
		args = append(args, q.APIKeyID)
	}
	if q.Service != "" {
		conditions = append(conditions, "service = ?")
		args = append(args, q.Service)
	}
	if q.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.StartTime != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, q.EndTime.UnixNano())
	}

	return strings.Join(conditions, " AND "), args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*requestlog.Entry, error) {
	var (
		e                                   requestlog.Entry
		endpoint, payload, response, errMsg sql.NullString
		apiKeyID, clientIP                  sql.NullString
		status                              string
		timeoutNs, processingNs             int64
		createdAt, updatedAt                int64
		completedAt                         sql.NullInt64
	)

	err := row.Scan(
		&e.RequestID, &e.Service, &endpoint, &payload, &e.Async, &timeoutNs,
		&status, &processingNs, &response, &errMsg,
		&apiKeyID, &clientIP,
		&createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Endpoint = endpoint.String
	if payload.Valid {
		e.Payload = []byte(payload.String)
	}
	e.Timeout = time.Duration(timeoutNs)
	e.Status = requestlog.Status(status)
	e.ProcessingTime = time.Duration(processingNs)
	if response.Valid {
		e.Response = []byte(response.String)
	}
	e.Error = errMsg.String
	e.APIKeyID = apiKeyID.String
	e.ClientIP = clientIP.String
	e.CreatedAt = time.Unix(0, createdAt)
	e.UpdatedAt = time.Unix(0, updatedAt)
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		e.CompletedAt = &t
	}

	return &e, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
