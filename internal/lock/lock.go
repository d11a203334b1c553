package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockBusy is returned by Acquire when another owner holds a live
// lease on the resource. It is not a failure: callers skip the work and
// rely on the next trigger or the reconciliation scan.
var ErrLockBusy = errors.New("resource lock is held by another owner")

// Locker is a lease-based mutex keyed by resource. A lease that expires
// is acquirable by a new owner; lease expiry is the only crash-recovery
// mechanism, there is no heartbeat eviction. The TTL must exceed the
// protected work's worst-case duration by a safety margin so a slow but
// alive worker is never preempted.
type Locker interface {
	// Acquire takes the lease on resourceKey for ttl, returning an owner
	// token. Atomic compare-and-set: succeeds only if no live lease
	// exists. Returns ErrLockBusy when the resource is held.
	Acquire(ctx context.Context, resourceKey string, ttl time.Duration) (string, error)

	// Release frees the lease if ownerToken matches the current holder.
	// Returns false (not an error) otherwise, so a slow retried worker
	// can never release a lock it no longer owns.
	Release(ctx context.Context, resourceKey, ownerToken string) (bool, error)

	// Renew extends an owned lease by ttl. Long-running stage executions
	// call this to avoid losing the lock mid-work. Returns false if the
	// caller is no longer the holder.
	Renew(ctx context.Context, resourceKey, ownerToken string, ttl time.Duration) (bool, error)
}
