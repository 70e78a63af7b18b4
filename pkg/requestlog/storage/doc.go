// Package storage provides request log backends.
//
//   - SQLite: embedded database (github.com/mattn/go-sqlite3) with WAL mode,
//     indexes on created_at, api_key_id, service and status
//   - Memory: in-memory map for tests
//
// Both enforce the pending to terminal transition themselves: an update only
// applies to a pending entry, so a late or duplicate completion is rejected
// with requestlog.ErrAlreadyTerminal instead of overwriting the outcome.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path: "data/requests.db",
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	entries, err := store.Query(ctx, &requestlog.Query{
//	    APIKeyID: keyID,
//	    Status:   requestlog.StatusError,
//	    Limit:    50,
//	})
package storage
