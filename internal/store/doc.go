// Package store provides the SQLite-backed checksum ledger.
//
// The ledger keeps, per simulation run, the checksum chain the World Store
// produced: one row per tick with the base checksum, the resulting
// checksum and the live entity count. A replay run compares its own chain
// against the latest record run of the same recording and reports the
// first tick that diverges.
//
// # Critical Patterns
//
// Logical Ordering
//   - Runs are ordered by seq (AUTOINCREMENT), ticks by tick
//   - No query orders by wall-clock time
//
// Idempotent Writes
//   - ON CONFLICT(run_id, tick) DO NOTHING
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Checksums are stored as their 16-digit hex wire form.
package store
