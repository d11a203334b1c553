// Package postgres provides the PostgreSQL-backed implementations of the
// pipeline's persistence contracts: the content item and source stores,
// the durable job queue, the lease-based resource locker, and the
// scatter-gather group store. Schema changes live in the embedded goose
// migrations and are applied with Migrate.
package postgres
