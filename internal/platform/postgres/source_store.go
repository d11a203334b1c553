package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/platform/logger"
	"github.com/currents-app/currents/internal/store"
)

// PostgresSourceStore implements the store.SourceStore interface using
// PostgreSQL.
type PostgresSourceStore struct {
	db store.DBTX
}

var _ store.SourceStore = (*PostgresSourceStore)(nil)

// NewPostgresSourceStore creates a new PostgresSourceStore.
func NewPostgresSourceStore(db store.DBTX) *PostgresSourceStore {
	return &PostgresSourceStore{
		db: db,
	}
}

// GetSource retrieves a source by ID.
func (s *PostgresSourceStore) GetSource(ctx context.Context, id uuid.UUID) (*domain.Source, error) {
	query := `
		SELECT id, owner_id, feed_url, poll_interval_seconds, last_polled_at, created_at, updated_at
		FROM sources
		WHERE id = $1
	`

	source, err := scanSource(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrSourceNotFound
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return source, nil
}

// CreateSource persists a new source.
func (s *PostgresSourceStore) CreateSource(ctx context.Context, source *domain.Source) error {
	log := logger.FromContext(ctx)

	if err := source.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO sources (id, owner_id, feed_url, poll_interval_seconds, last_polled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		source.ID,
		source.OwnerID,
		source.FeedURL,
		source.PollIntervalSeconds,
		source.LastPolledAt,
		source.CreatedAt,
		source.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create source",
			"source_id", source.ID,
			"error", err)
		return fmt.Errorf("failed to create source: %w", MapError(err))
	}
	return nil
}

// ListDueSources returns up to limit sources due at or before now, most
// overdue first. A source that has never been polled is due immediately.
func (s *PostgresSourceStore) ListDueSources(ctx context.Context, now time.Time, limit int) ([]*domain.Source, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT id, owner_id, feed_url, poll_interval_seconds, last_polled_at, created_at, updated_at
		FROM sources
		WHERE COALESCE(last_polled_at + make_interval(secs => poll_interval_seconds), created_at) <= $1
		ORDER BY COALESCE(last_polled_at + make_interval(secs => poll_interval_seconds), created_at) ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		log.Error("failed to query due sources", "error", err)
		return nil, fmt.Errorf("failed to query due sources: %w", err)
	}
	defer rows.Close()

	var sources []*domain.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}
	return sources, nil
}

// MarkPolled records a completed poll, pushing the next due time forward.
func (s *PostgresSourceStore) MarkPolled(ctx context.Context, id uuid.UUID, polledAt time.Time) error {
	query := `
		UPDATE sources
		SET last_polled_at = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, polledAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark source polled: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "source"); err != nil {
		return store.ErrSourceNotFound
	}
	return nil
}

func scanSource(row rowScanner) (*domain.Source, error) {
	var (
		source       domain.Source
		lastPolledAt sql.NullTime
	)
	if err := row.Scan(
		&source.ID,
		&source.OwnerID,
		&source.FeedURL,
		&source.PollIntervalSeconds,
		&lastPolledAt,
		&source.CreatedAt,
		&source.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastPolledAt.Valid {
		at := lastPolledAt.Time
		source.LastPolledAt = &at
	}
	return &source, nil
}
