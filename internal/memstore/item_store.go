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

// ItemStore is an in-memory store.ItemStore.
type ItemStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*domain.ContentItem
}

// Ensure the interface is satisfied.
var _ store.ItemStore = (*ItemStore)(nil)

// NewItemStore creates an empty in-memory item store.
func NewItemStore() *ItemStore {
	return &ItemStore{items: make(map[uuid.UUID]*domain.ContentItem)}
}

// GetItem retrieves an item by ID.
func (s *ItemStore) GetItem(_ context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	return cloneItem(item), nil
}

// UpsertItem inserts the item or refreshes the content fields of the
// existing row with the same (source, URL). Stage flags on an existing
// row are never touched.
func (s *ItemStore) UpsertItem(_ context.Context, item *domain.ContentItem) (*domain.ContentItem, bool, error) {
	if err := item.Validate(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.SourceID == item.SourceID && existing.URL == item.URL {
			existing.Title = item.Title
			existing.Body = item.Body
			existing.UpdatedAt = time.Now().UTC()
			return cloneItem(existing), false, nil
		}
	}

	stored := cloneItem(item)
	s.items[stored.ID] = stored
	return cloneItem(stored), true, nil
}

// MarkStage records one stage attempt's outcome under the store lock,
// delegating the transition rules to the domain type.
func (s *ItemStore) MarkStage(_ context.Context, itemID uuid.UUID, stage domain.Stage, result domain.StageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return store.ErrItemNotFound
	}
	return item.ApplyStageResult(stage, result)
}

// ResetStagesFrom clears the given stage and all later stages.
func (s *ItemStore) ResetStagesFrom(_ context.Context, itemID uuid.UUID, stage domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return store.ErrItemNotFound
	}
	return item.ResetStagesFrom(stage)
}

// FindStageBacklog returns items whose prior stage succeeded, whose
// given stage is unset, and which are older than the cutoff, oldest
// first.
func (s *ItemStore) FindStageBacklog(_ context.Context, stage domain.Stage, olderThan time.Time, limit int) ([]*domain.ContentItem, error) {
	if !domain.IsValidStage(stage) {
		return nil, domain.ErrUnknownStage
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var backlog []*domain.ContentItem
	for _, item := range s.items {
		if !item.CreatedAt.Before(olderThan) {
			continue
		}
		if item.StageResultFor(stage).State != domain.StageUnset {
			continue
		}
		if prior, ok := domain.PriorStage(stage); ok {
			if item.StageResultFor(prior).State != domain.StageSuccess {
				continue
			}
		}
		backlog = append(backlog, cloneItem(item))
	}

	sort.Slice(backlog, func(i, j int) bool {
		return backlog[i].CreatedAt.Before(backlog[j].CreatedAt)
	})
	if limit > 0 && len(backlog) > limit {
		backlog = backlog[:limit]
	}
	return backlog, nil
}

// DeleteItem removes an item.
func (s *ItemStore) DeleteItem(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return store.ErrItemNotFound
	}
	delete(s.items, id)
	return nil
}

func cloneItem(item *domain.ContentItem) *domain.ContentItem {
	clone := *item
	clone.Stages = make(map[domain.Stage]domain.StageResult, len(item.Stages))
	for stage, result := range item.Stages {
		if result.CompletedAt != nil {
			at := *result.CompletedAt
			result.CompletedAt = &at
		}
		clone.Stages[stage] = result
	}
	return &clone
}
