// Package store defines the persistence contracts for the ingestion
// pipeline: typed read/upsert/query operations over content items and
// sources, plus the shared DBTX abstraction and sentinel errors used by
// every implementation. Concrete implementations live in
// internal/platform/postgres and internal/memstore.
package store
