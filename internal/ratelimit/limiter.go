package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSlotTimeout is returned when no slot became available within the
// caller's wait budget. Stages treat this as a deferral, not a failure:
// the job goes back to the queue with a short delay.
var ErrSlotTimeout = errors.New("timed out waiting for rate limit slot")

// Limiter enforces a minimum interval between requests to the same
// remote host, shared across all workers. State is a last-grant-time map
// keyed by host, guarded by a per-key compare-and-swap, so contention on
// one host never blocks requests to another.
type Limiter struct {
	hosts sync.Map // hostKey -> *atomic.Int64 (unix nanos of last grant)
}

// New creates a Limiter with no recorded grants.
func New() *Limiter {
	return &Limiter{}
}

// WaitForSlot blocks the calling worker until at least minInterval has
// elapsed since the last granted slot for hostKey, claiming the slot on
// return. Returns ErrSlotTimeout once waiting would exceed maxWait, and
// the context error if ctx is cancelled first.
func (l *Limiter) WaitForSlot(ctx context.Context, hostKey string, minInterval, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	entry := l.entryFor(hostKey)

	for {
		last := entry.Load()
		now := time.Now()
		next := time.Unix(0, last).Add(minInterval)

		if !now.Before(next) {
			if entry.CompareAndSwap(last, now.UnixNano()) {
				return nil
			}
			// Lost the slot to another worker; re-evaluate.
			continue
		}

		wait := next.Sub(now)
		if now.Add(wait).After(deadline) {
			return ErrSlotTimeout
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Limiter) entryFor(hostKey string) *atomic.Int64 {
	if v, ok := l.hosts.Load(hostKey); ok {
		return v.(*atomic.Int64)
	}
	v, _ := l.hosts.LoadOrStore(hostKey, new(atomic.Int64))
	return v.(*atomic.Int64)
}
