// Package storage provides persistence backends for usage counters.
//
// # Overview
//
// A counter is keyed by (scope, window kind, window start) and only ever
// grows. Two implementations are provided:
//
//   - MemoryStore: in-process map, lost on restart, single instance only
//   - SQLiteStore: file-backed, safe to share between broker processes on
//     one host
//
// # Usage
//
//	store, err := storage.NewSQLiteStore("/var/lib/broker/counters.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	key := storage.Key{Scope: "service:billing", Window: "minute", WindowStart: start}
//	count, err := store.Increment(ctx, key)
//
// # Thread Safety
//
// Both backends are safe for concurrent use. Increment is atomic per key:
// the SQLite backend uses a single upsert statement, the memory backend a
// short critical section with no I/O.
package storage
