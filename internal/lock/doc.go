// Package lock defines the lease-based distributed mutex used to keep
// two workers from processing the same resource concurrently.
// Implementations live in internal/platform/postgres and
// internal/memstore.
package lock
