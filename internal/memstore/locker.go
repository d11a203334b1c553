package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/lock"
)

// Locker is an in-memory lock.Locker. Expired leases are reclaimed on
// the next Acquire, matching the store-backed implementation's
// expiry-only recovery.
type Locker struct {
	mu     sync.Mutex
	leases map[string]lease
}

type lease struct {
	token     string
	expiresAt time.Time
}

var _ lock.Locker = (*Locker)(nil)

// NewLocker creates an in-memory lease locker.
func NewLocker() *Locker {
	return &Locker{leases: make(map[string]lease)}
}

// Acquire takes the lease if no live one exists.
func (l *Locker) Acquire(_ context.Context, resourceKey string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if current, ok := l.leases[resourceKey]; ok && now.Before(current.expiresAt) {
		return "", lock.ErrLockBusy
	}

	token := uuid.NewString()
	l.leases[resourceKey] = lease{token: token, expiresAt: now.Add(ttl)}
	return token, nil
}

// Release frees the lease if the token still owns it.
func (l *Locker) Release(_ context.Context, resourceKey, ownerToken string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.leases[resourceKey]
	if !ok || current.token != ownerToken {
		return false, nil
	}
	delete(l.leases, resourceKey)
	return true, nil
}

// Renew extends an owned lease.
func (l *Locker) Renew(_ context.Context, resourceKey, ownerToken string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.leases[resourceKey]
	if !ok || current.token != ownerToken || !time.Now().Before(current.expiresAt) {
		return false, nil
	}
	current.expiresAt = time.Now().Add(ttl)
	l.leases[resourceKey] = current
	return true, nil
}
