package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/gather"
	"github.com/currents-app/currents/internal/store"
)

// GatherStore is an in-memory gather.Store. All mutations happen under
// one mutex, which gives the atomicity the contract requires.
type GatherStore struct {
	mu       sync.Mutex
	groups   map[uuid.UUID]*gather.Group
	children map[uuid.UUID]map[string]bool
}

var _ gather.Store = (*GatherStore)(nil)

// NewGatherStore creates an empty in-memory gather store.
func NewGatherStore() *GatherStore {
	return &GatherStore{
		groups:   make(map[uuid.UUID]*gather.Group),
		children: make(map[uuid.UUID]map[string]bool),
	}
}

// CreateGroup persists a new group record.
func (s *GatherStore) CreateGroup(_ context.Context, group *gather.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *group
	s.groups[group.ID] = &stored
	s.children[group.ID] = make(map[string]bool)
	return nil
}

// GetGroup retrieves a group by ID.
func (s *GatherStore) GetGroup(_ context.Context, id uuid.UUID) (*gather.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[id]
	if !ok {
		return nil, store.ErrGroupNotFound
	}
	clone := *group
	return &clone, nil
}

// RecordChildDone adds the child to the completed set. Duplicate reports
// for the same child change nothing.
func (s *GatherStore) RecordChildDone(_ context.Context, groupID uuid.UUID, childID string, success bool) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[groupID]
	if !ok {
		return 0, 0, store.ErrGroupNotFound
	}

	done := s.children[groupID]
	if _, reported := done[childID]; !reported {
		done[childID] = success
		if success {
			group.Succeeded++
		}
	}
	return len(done), group.Expected, nil
}

// TryMarkCallbackEnqueued flips the one-time callback flag.
func (s *GatherStore) TryMarkCallbackEnqueued(_ context.Context, groupID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[groupID]
	if !ok {
		return false, store.ErrGroupNotFound
	}
	if group.CallbackEnqueued {
		return false, nil
	}
	group.CallbackEnqueued = true
	return true, nil
}
