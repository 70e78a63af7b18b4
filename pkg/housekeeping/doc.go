// Package housekeeping removes state the admission and dispatch paths leave
// behind: usage counters for windows that ended long ago and terminal request
// log entries past their retention.
//
// The admission engine never deletes counters itself. A Scheduler runs the
// Pruner on a cron schedule:
//
//	pruner := housekeeping.NewPruner(counterStore, logStorage, &housekeeping.Config{
//	    Schedule:         "*/15 * * * *",
//	    CounterRetention: 72 * time.Hour,
//	    LogRetention:     30 * 24 * time.Hour,
//	})
//	if err := housekeeping.NewScheduler(pruner).Start(ctx); err != nil {
//	    return err
//	}
//
// Pending request log entries are never pruned.
package housekeeping
