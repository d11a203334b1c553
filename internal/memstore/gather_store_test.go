package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/currents-app/currents/internal/gather"
	"github.com/currents-app/currents/internal/store"
)

func newGroup(t *testing.T, s *GatherStore, expected int) *gather.Group {
	t.Helper()
	group := &gather.Group{
		ID:        uuid.New(),
		Expected:  expected,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateGroup(context.Background(), group))
	return group
}

func TestGatherStoreRecordChildDone(t *testing.T) {
	ctx := context.Background()
	s := NewGatherStore()
	group := newGroup(t, s, 3)

	completed, expected, err := s.RecordChildDone(ctx, group.ID, "image-0", true)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 3, expected)

	t.Run("duplicate report does not double count", func(t *testing.T) {
		completed, _, err := s.RecordChildDone(ctx, group.ID, "image-0", true)
		require.NoError(t, err)
		assert.Equal(t, 1, completed)

		got, err := s.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Succeeded)
	})

	t.Run("failures complete without counting as success", func(t *testing.T) {
		completed, _, err := s.RecordChildDone(ctx, group.ID, "image-1", false)
		require.NoError(t, err)
		assert.Equal(t, 2, completed)

		got, err := s.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Succeeded)
	})

	t.Run("unknown group", func(t *testing.T) {
		_, _, err := s.RecordChildDone(ctx, uuid.New(), "image-0", true)
		assert.ErrorIs(t, err, store.ErrGroupNotFound)
	})
}

func TestGatherStoreCallbackFlag(t *testing.T) {
	ctx := context.Background()
	s := NewGatherStore()
	group := newGroup(t, s, 2)

	won, err := s.TryMarkCallbackEnqueued(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, won)

	// Exactly one caller wins; every later flip attempt loses.
	won, err = s.TryMarkCallbackEnqueued(ctx, group.ID)
	require.NoError(t, err)
	assert.False(t, won)

	_, err = s.TryMarkCallbackEnqueued(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrGroupNotFound)
}

func TestGatherStoreGetGroup(t *testing.T) {
	ctx := context.Background()
	s := NewGatherStore()
	group := newGroup(t, s, 1)

	got, err := s.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, group.Expected, got.Expected)

	_, err = s.GetGroup(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrGroupNotFound)
}
