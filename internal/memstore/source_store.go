package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/store"
)

// SourceStore is an in-memory store.SourceStore.
type SourceStore struct {
	mu      sync.RWMutex
	sources map[uuid.UUID]*domain.Source
}

var _ store.SourceStore = (*SourceStore)(nil)

// NewSourceStore creates an empty in-memory source store.
func NewSourceStore() *SourceStore {
	return &SourceStore{sources: make(map[uuid.UUID]*domain.Source)}
}

// GetSource retrieves a source by ID.
func (s *SourceStore) GetSource(_ context.Context, id uuid.UUID) (*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	source, ok := s.sources[id]
	if !ok {
		return nil, store.ErrSourceNotFound
	}
	return cloneSource(source), nil
}

// CreateSource persists a new source.
func (s *SourceStore) CreateSource(_ context.Context, source *domain.Source) error {
	if err := source.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sources[source.ID] = cloneSource(source)
	return nil
}

// ListDueSources returns sources due at or before now, most overdue
// first.
func (s *SourceStore) ListDueSources(_ context.Context, now time.Time, limit int) ([]*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*domain.Source
	for _, source := range s.sources {
		if source.IsDue(now) {
			due = append(due, cloneSource(source))
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].DueAt().Before(due[j].DueAt())
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// MarkPolled records a completed poll.
func (s *SourceStore) MarkPolled(_ context.Context, id uuid.UUID, polledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.sources[id]
	if !ok {
		return store.ErrSourceNotFound
	}
	source.MarkPolled(polledAt)
	return nil
}

func cloneSource(source *domain.Source) *domain.Source {
	clone := *source
	if source.LastPolledAt != nil {
		at := *source.LastPolledAt
		clone.LastPolledAt = &at
	}
	return &clone
}
