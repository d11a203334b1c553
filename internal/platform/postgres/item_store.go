package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/platform/logger"
	"github.com/currents-app/currents/internal/store"
)

// PostgresItemStore implements the store.ItemStore interface using PostgreSQL.
// Stage flags are stored as a JSONB map keyed by stage name; the per-item
// lease held by stage handlers serializes stage writes, so MarkStage can
// use a plain read-modify-write.
type PostgresItemStore struct {
	db store.DBTX
}

// Ensure the interface is satisfied.
var _ store.ItemStore = (*PostgresItemStore)(nil)

// NewPostgresItemStore creates a new PostgresItemStore.
func NewPostgresItemStore(db store.DBTX) *PostgresItemStore {
	return &PostgresItemStore{
		db: db,
	}
}

// GetItem retrieves an item by ID.
func (s *PostgresItemStore) GetItem(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	query := `
		SELECT id, owner_id, source_id, url, title, body, stages, created_at, updated_at
		FROM content_items
		WHERE id = $1
	`

	item, err := scanItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// UpsertItem inserts the item or refreshes the content fields of the
// existing row with the same (source, URL). Stage flags on an existing
// row are left untouched so re-ingesting never rewinds pipeline progress.
func (s *PostgresItemStore) UpsertItem(ctx context.Context, item *domain.ContentItem) (*domain.ContentItem, bool, error) {
	log := logger.FromContext(ctx)

	if err := item.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	stages, err := json.Marshal(item.Stages)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal stage flags: %w", err)
	}

	// xmax = 0 distinguishes a fresh insert from a conflict update.
	query := `
		INSERT INTO content_items (id, owner_id, source_id, url, title, body, stages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source_id, url) DO UPDATE
		SET title = EXCLUDED.title,
		    body = EXCLUDED.body,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, owner_id, source_id, url, title, body, stages, created_at, updated_at, (xmax = 0)
	`

	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, query,
		item.ID,
		item.OwnerID,
		item.SourceID,
		item.URL,
		item.Title,
		item.Body,
		stages,
		item.CreatedAt,
		now,
	)

	var (
		stored    domain.ContentItem
		rawStages []byte
		created   bool
	)
	if err := row.Scan(
		&stored.ID,
		&stored.OwnerID,
		&stored.SourceID,
		&stored.URL,
		&stored.Title,
		&stored.Body,
		&rawStages,
		&stored.CreatedAt,
		&stored.UpdatedAt,
		&created,
	); err != nil {
		log.Error("failed to upsert item",
			"item_id", item.ID,
			"source_id", item.SourceID,
			"error", err)
		return nil, false, fmt.Errorf("failed to upsert item: %w", MapError(err))
	}

	if err := json.Unmarshal(rawStages, &stored.Stages); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal stage flags: %w", err)
	}
	return &stored, created, nil
}

// MarkStage records one stage attempt's outcome. The transition rules
// live on the domain type; this method only loads, applies, and persists.
func (s *PostgresItemStore) MarkStage(ctx context.Context, itemID uuid.UUID, stage domain.Stage, result domain.StageResult) error {
	log := logger.FromContext(ctx)

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	if err := item.ApplyStageResult(stage, result); err != nil {
		return err
	}

	if err := s.writeStages(ctx, itemID, item.Stages); err != nil {
		log.Error("failed to mark stage",
			"item_id", itemID,
			"stage", stage,
			"state", result.State,
			"error", err)
		return err
	}
	return nil
}

// ResetStagesFrom clears the given stage and all later stages back to unset.
func (s *PostgresItemStore) ResetStagesFrom(ctx context.Context, itemID uuid.UUID, stage domain.Stage) error {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	if err := item.ResetStagesFrom(stage); err != nil {
		return err
	}
	return s.writeStages(ctx, itemID, item.Stages)
}

// FindStageBacklog returns up to limit items whose prior stage succeeded,
// whose given stage is still unset, and which are older than the cutoff.
func (s *PostgresItemStore) FindStageBacklog(ctx context.Context, stage domain.Stage, olderThan time.Time, limit int) ([]*domain.ContentItem, error) {
	log := logger.FromContext(ctx)

	if !domain.IsValidStage(stage) {
		return nil, domain.ErrUnknownStage
	}

	query := `
		SELECT id, owner_id, source_id, url, title, body, stages, created_at, updated_at
		FROM content_items
		WHERE created_at < $1
		  AND COALESCE(stages->$2->>'state', 'unset') = 'unset'
	`
	args := []any{olderThan, string(stage)}

	if prior, ok := domain.PriorStage(stage); ok {
		query += ` AND stages->$3->>'state' = 'success'`
		args = append(args, string(prior))
	}
	query += fmt.Sprintf(` ORDER BY created_at ASC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query stage backlog",
			"stage", stage,
			"error", err)
		return nil, fmt.Errorf("failed to query stage backlog: %w", err)
	}
	defer rows.Close()

	var items []*domain.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backlog row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backlog rows: %w", err)
	}
	return items, nil
}

// DeleteItem removes an item.
func (s *PostgresItemStore) DeleteItem(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM content_items WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "item"); err != nil {
		return store.ErrItemNotFound
	}
	return nil
}

func (s *PostgresItemStore) writeStages(ctx context.Context, itemID uuid.UUID, stages map[domain.Stage]domain.StageResult) error {
	raw, err := json.Marshal(stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stage flags: %w", err)
	}

	query := `
		UPDATE content_items
		SET stages = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, raw, time.Now().UTC(), itemID)
	if err != nil {
		return fmt.Errorf("failed to write stage flags: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "item"); err != nil {
		return store.ErrItemNotFound
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.ContentItem, error) {
	var (
		item      domain.ContentItem
		rawStages []byte
	)
	if err := row.Scan(
		&item.ID,
		&item.OwnerID,
		&item.SourceID,
		&item.URL,
		&item.Title,
		&item.Body,
		&rawStages,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawStages, &item.Stages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stage flags: %w", err)
	}
	return &item, nil
}
