package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/lock"
	"github.com/currents-app/currents/internal/platform/logger"
	"github.com/currents-app/currents/internal/store"
)

// PostgresLocker implements the lock.Locker interface using a leases
// table. Acquisition is a single atomic upsert that only steals a lease
// whose expiry has passed, so expiry is the sole crash-recovery path.
type PostgresLocker struct {
	db store.DBTX
}

var _ lock.Locker = (*PostgresLocker)(nil)

// NewPostgresLocker creates a new PostgresLocker.
func NewPostgresLocker(db store.DBTX) *PostgresLocker {
	return &PostgresLocker{
		db: db,
	}
}

// Acquire takes the lease on resourceKey for ttl. The conditional upsert
// succeeds only when no row exists or the existing lease has expired;
// otherwise zero rows are affected and the lock is busy.
func (l *PostgresLocker) Acquire(ctx context.Context, resourceKey string, ttl time.Duration) (string, error) {
	log := logger.FromContext(ctx)

	token := uuid.NewString()
	now := time.Now().UTC()

	query := `
		INSERT INTO resource_leases (resource_key, owner_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (resource_key) DO UPDATE
		SET owner_token = EXCLUDED.owner_token,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = EXCLUDED.updated_at
		WHERE resource_leases.expires_at <= $4
	`

	result, err := l.db.ExecContext(ctx, query, resourceKey, token, now.Add(ttl), now)
	if err != nil {
		log.Error("failed to acquire lease",
			"resource_key", resourceKey,
			"error", err)
		return "", fmt.Errorf("failed to acquire lease: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return "", lock.ErrLockBusy
	}
	return token, nil
}

// Release frees the lease if ownerToken still holds it.
func (l *PostgresLocker) Release(ctx context.Context, resourceKey, ownerToken string) (bool, error) {
	query := `
		DELETE FROM resource_leases
		WHERE resource_key = $1 AND owner_token = $2
	`

	result, err := l.db.ExecContext(ctx, query, resourceKey, ownerToken)
	if err != nil {
		return false, fmt.Errorf("failed to release lease: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Renew extends an owned, still-live lease by ttl.
func (l *PostgresLocker) Renew(ctx context.Context, resourceKey, ownerToken string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	query := `
		UPDATE resource_leases
		SET expires_at = $1, updated_at = $2
		WHERE resource_key = $3 AND owner_token = $4 AND expires_at > $2
	`

	result, err := l.db.ExecContext(ctx, query, now.Add(ttl), now, resourceKey, ownerToken)
	if err != nil {
		return false, fmt.Errorf("failed to renew lease: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
