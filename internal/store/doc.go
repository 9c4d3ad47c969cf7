// Package store provides a SQLite-backed journal of engine runs.
//
// Store implements engine.Recorder. Attached with engine.WithRecorder, it
// keeps:
//   - runs: one row per run token with its latest outcome
//   - events: every recorded event, keyed by a ULID
//   - failures: every frozen run, open until a resumption consumes it
//
// # Ordering
//
// Events are read back ORDER BY seq ASC, id ASC COLLATE BINARY. seq is the
// engine's logical clock, never wall time. ULIDs only break ties.
//
// The journal is an audit trail. Failure contexts hold live futures and
// effects and cannot be rebuilt from it; resumption always goes through
// the engine's in-memory registry.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
