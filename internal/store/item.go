package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/domain"
)

// ItemStore defines the persistence contract for content items.
// Stage flags are written exclusively through MarkStage so that the
// ordering invariant is enforced in one place.
type ItemStore interface {
	// GetItem retrieves an item by ID.
	// Returns ErrItemNotFound if the item does not exist.
	GetItem(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error)

	// UpsertItem inserts the item, or refreshes title/body/URL when an
	// item with the same (source, URL) already exists. The returned item
	// reflects the stored row; created reports whether a new row was
	// inserted. Re-ingesting the same article must never reset its stage
	// flags.
	UpsertItem(ctx context.Context, item *domain.ContentItem) (stored *domain.ContentItem, created bool, err error)

	// MarkStage records one stage attempt's outcome. It is the only
	// writer of stage flags and enforces the transition invariants:
	// the prior stage must be success, and a success is never
	// overwritten. Recording an identical terminal state twice is a
	// no-op so retried deliveries stay safe.
	// Returns ErrItemNotFound when the item was deleted upstream.
	MarkStage(ctx context.Context, itemID uuid.UUID, stage domain.Stage, result domain.StageResult) error

	// ResetStagesFrom clears the given stage and all later stages back
	// to unset. Explicit external re-processing only; never called by
	// the automatic flow.
	ResetStagesFrom(ctx context.Context, itemID uuid.UUID, stage domain.Stage) error

	// FindStageBacklog returns up to limit items eligible for the given
	// stage whose forward trigger apparently never fired: the prior
	// stage succeeded, this stage is unset, and the item is older than
	// the grace window. Ordered oldest first.
	FindStageBacklog(ctx context.Context, stage domain.Stage, olderThan time.Time, limit int) ([]*domain.ContentItem, error)

	// DeleteItem removes an item. Exposed for the external collaborator
	// that owns deletion; the pipeline itself never deletes items.
	DeleteItem(ctx context.Context, id uuid.UUID) error
}
