// Package checkpoint persists execution snapshots so a run can be resumed.
//
// Core types:
//   - Snapshot: serializable run state, pending queue and loop counters
//   - Store: save/load/list/delete by execution id (last write wins)
//
// Implementations:
//   - MemoryStore: in-process map, for tests and short-lived hosts
//   - FileStore: one JSON file per execution
//   - SQLiteStore: single table via database/sql and modernc.org/sqlite
//   - BadgerStore: embedded key-value store
//
// Example usage:
//
//	store, err := checkpoint.Open("sqlite", ".agentgraph/checkpoints.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	snap, err := store.Load(ctx, executionID)
//	if errors.Is(err, checkpoint.ErrNotFound) {
//	    // nothing to resume
//	}
//
// Prune applies a RetentionConfig to any store. Paused and running snapshots
// are never pruned.
package checkpoint
