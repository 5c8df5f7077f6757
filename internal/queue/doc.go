// Package queue persists labeling work items in SQLite and exposes the
// operations the dispatcher uses to drive them from pending to done or error.
//
// The Store owns a single table, samples, keyed by file path. Registration is
// insert-or-ignore so re-running against the same data directory rebuilds the
// pending set without touching rows that already finished. Batches are handed
// out in insertion order and are never marked as in flight: a crash between a
// fetch and the matching commit simply re-offers the same paths on the next
// run, which gives at-least-once processing.
//
// Only one dispatcher may drive a Store at a time. The runner enforces this
// with a lock file next to the database; read-only commands (status, list,
// health) do not need the lock.
//
// Schema changes ship as embedded SQL files under migrations/, named by
// semantic version and applied in version order.
package queue
