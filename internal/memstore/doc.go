// Package memstore provides in-memory implementations of the storage,
// queue, lock, and gather contracts. They honor the same invariants as
// the Postgres-backed implementations (dedupe-key refresh, visibility
// redelivery, lease expiry, idempotent child completion) but hold
// everything in process memory, which makes them suitable for tests and
// single-process development runs only.
package memstore
