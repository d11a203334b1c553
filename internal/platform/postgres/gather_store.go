package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/gather"
	"github.com/currents-app/currents/internal/platform/logger"
	"github.com/currents-app/currents/internal/store"
)

// PostgresGatherStore implements the gather.Store interface using
// PostgreSQL. Child completions are rows with a (group_id, child_id)
// primary key, so a duplicate report is an ON CONFLICT no-op, and the
// callback flag flips through a conditional update that only one caller
// can win.
type PostgresGatherStore struct {
	db store.DBTX
}

var _ gather.Store = (*PostgresGatherStore)(nil)

// NewPostgresGatherStore creates a new PostgresGatherStore.
func NewPostgresGatherStore(db store.DBTX) *PostgresGatherStore {
	return &PostgresGatherStore{
		db: db,
	}
}

// CreateGroup persists a new group record.
func (s *PostgresGatherStore) CreateGroup(ctx context.Context, group *gather.Group) error {
	log := logger.FromContext(ctx)

	callback, err := json.Marshal(group.Callback)
	if err != nil {
		return fmt.Errorf("failed to marshal gather callback: %w", err)
	}

	query := `
		INSERT INTO gather_groups (id, expected, succeeded, callback, callback_enqueued, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = s.db.ExecContext(ctx, query,
		group.ID,
		group.Expected,
		group.Succeeded,
		callback,
		group.CallbackEnqueued,
		group.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create gather group",
			"group_id", group.ID,
			"error", err)
		return fmt.Errorf("failed to create gather group: %w", MapError(err))
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (s *PostgresGatherStore) GetGroup(ctx context.Context, id uuid.UUID) (*gather.Group, error) {
	query := `
		SELECT id, expected, succeeded, callback, callback_enqueued, created_at
		FROM gather_groups
		WHERE id = $1
	`

	var (
		group       gather.Group
		rawCallback []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&group.ID,
		&group.Expected,
		&group.Succeeded,
		&rawCallback,
		&group.CallbackEnqueued,
		&group.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gather group: %w", err)
	}

	if err := json.Unmarshal(rawCallback, &group.Callback); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gather callback: %w", err)
	}
	return &group, nil
}

// RecordChildDone adds childID to the group's completed set and returns
// the resulting completed and expected counts. The primary key on
// (group_id, child_id) makes duplicate reports no-ops, so the success
// tally never double-counts.
func (s *PostgresGatherStore) RecordChildDone(ctx context.Context, groupID uuid.UUID, childID string, success bool) (int, int, error) {
	log := logger.FromContext(ctx)

	insert := `
		INSERT INTO gather_children (group_id, child_id, success, completed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, child_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, insert, groupID, childID, success, time.Now().UTC())
	if err != nil {
		if IsForeignKeyViolation(err) {
			return 0, 0, store.ErrGroupNotFound
		}
		log.Error("failed to record gather child",
			"group_id", groupID,
			"child_id", childID,
			"error", err)
		return 0, 0, fmt.Errorf("failed to record gather child: %w", MapError(err))
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if inserted > 0 && success {
		tally := `UPDATE gather_groups SET succeeded = succeeded + 1 WHERE id = $1`
		if _, err := s.db.ExecContext(ctx, tally, groupID); err != nil {
			return 0, 0, fmt.Errorf("failed to update gather success tally: %w", MapError(err))
		}
	}

	count := `
		SELECT (SELECT count(*) FROM gather_children WHERE group_id = $1), expected
		FROM gather_groups
		WHERE id = $1
	`
	var completed, expected int
	err = s.db.QueryRowContext(ctx, count, groupID).Scan(&completed, &expected)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, store.ErrGroupNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count gather children: %w", err)
	}
	return completed, expected, nil
}

// TryMarkCallbackEnqueued flips the group's one-time callback flag.
// The conditional update affects a row only for the first caller.
func (s *PostgresGatherStore) TryMarkCallbackEnqueued(ctx context.Context, groupID uuid.UUID) (bool, error) {
	query := `
		UPDATE gather_groups
		SET callback_enqueued = TRUE
		WHERE id = $1 AND callback_enqueued = FALSE
	`

	result, err := s.db.ExecContext(ctx, query, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to mark gather callback: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
