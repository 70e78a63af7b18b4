// Package requestlog records the lifecycle of every dispatched request.
//
// Each request gets exactly one Entry. Async requests are created pending
// and later completed; sync requests are written once, already terminal.
// Once an entry is terminal (success, error or timeout) it is immutable:
// storage backends enforce this with a conditional update and report
// ErrAlreadyTerminal.
//
// # Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{Path: "data/requests.db"})
//	rec := requestlog.NewRecorder(store, nil, prometheus.DefaultRegisterer)
//
//	_ = rec.Begin(ctx, &requestlog.Entry{RequestID: id, Service: "billing", Async: true})
//	// ... later, from the background task
//	_ = rec.Complete(ctx, id, &requestlog.Patch{Status: requestlog.StatusSuccess})
package requestlog
