package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/domain"
)

// SourceStore defines the persistence contract for feed sources.
type SourceStore interface {
	// GetSource retrieves a source by ID.
	// Returns ErrSourceNotFound if the source does not exist.
	GetSource(ctx context.Context, id uuid.UUID) (*domain.Source, error)

	// CreateSource persists a new source.
	CreateSource(ctx context.Context, source *domain.Source) error

	// ListDueSources returns up to limit sources whose next poll time is
	// at or before now, ordered by how overdue they are. Each scan tick
	// makes at most one due decision per source.
	ListDueSources(ctx context.Context, now time.Time, limit int) ([]*domain.Source, error)

	// MarkPolled records a completed poll, moving the source's next due
	// time forward. Returns ErrSourceNotFound if the source is gone.
	MarkPolled(ctx context.Context, id uuid.UUID, polledAt time.Time) error
}
