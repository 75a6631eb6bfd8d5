// Package store persists objects and their revision logs.
//
// Every object has a current-state record (objects table) and an
// append-only log of committed operations keyed by (object_id, revision).
// Both change in a single AppendIfRevision call, which succeeds only if
// the stored revision still equals the caller's expected revision.
//
// # Implementations
//
//   - MemoryStore: map guarded by a mutex, for tests and single-node runs
//   - SQLStore: database/sql over SQLite, Postgres or MySQL
//
// SQL queries are built with squirrel so one code path serves all three
// dialects. Schema changes live in the migrations subpackage.
//
// # Errors
//
// Callers branch on ErrNotFound, ErrConflict and ErrUnavailable with
// errors.Is. Driver errors are classified per dialect: unique-key
// violations and deadlocks become ErrConflict, lost connections and lock
// timeouts become ErrUnavailable.
//
// # SQLite configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Log ordering always uses the revision column, never timestamps.
package store
