package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/store"
)

func storedItem(t *testing.T, s *ItemStore, url string) *domain.ContentItem {
	t.Helper()
	item, err := domain.NewContentItem(uuid.New(), uuid.New(), url, "Title", "<p>body</p>")
	require.NoError(t, err)
	stored, created, err := s.UpsertItem(context.Background(), item)
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

func TestItemStoreGet(t *testing.T) {
	ctx := context.Background()
	s := NewItemStore()
	item := storedItem(t, s, "https://example.com/a")

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)

	_, err = s.GetItem(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestItemStoreUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewItemStore()
	original := storedItem(t, s, "https://example.com/a")

	require.NoError(t, s.MarkStage(ctx, original.ID, domain.StageNormalize, domain.StageResult{State: domain.StageSuccess}))

	// Re-ingesting the same (source, URL) refreshes content only.
	duplicate, err := domain.NewContentItem(original.OwnerID, original.SourceID, original.URL, "Updated title", "new body")
	require.NoError(t, err)

	stored, created, err := s.UpsertItem(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, original.ID, stored.ID)
	assert.Equal(t, "Updated title", stored.Title)
	assert.Equal(t, domain.StageSuccess, stored.StageResultFor(domain.StageNormalize).State,
		"re-ingest must not reset stage flags")
}

func TestItemStoreMarkStage(t *testing.T) {
	ctx := context.Background()
	s := NewItemStore()
	item := storedItem(t, s, "https://example.com/a")

	require.NoError(t, s.MarkStage(ctx, item.ID, domain.StageNormalize, domain.StageResult{State: domain.StageSuccess}))

	err := s.MarkStage(ctx, item.ID, domain.StageCrossRef, domain.StageResult{State: domain.StageSuccess})
	assert.ErrorIs(t, err, domain.ErrStageOrder)

	err = s.MarkStage(ctx, uuid.New(), domain.StageNormalize, domain.StageResult{State: domain.StageSuccess})
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestItemStoreResetStagesFrom(t *testing.T) {
	ctx := context.Background()
	s := NewItemStore()
	item := storedItem(t, s, "https://example.com/a")

	for _, stage := range domain.StageOrder {
		require.NoError(t, s.MarkStage(ctx, item.ID, stage, domain.StageResult{State: domain.StageSuccess}))
	}
	require.NoError(t, s.ResetStagesFrom(ctx, item.ID, domain.StageEmbed))

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageSuccess, got.StageResultFor(domain.StageNormalize).State)
	assert.Equal(t, domain.StageUnset, got.StageResultFor(domain.StageEmbed).State)
	assert.Equal(t, domain.StageUnset, got.StageResultFor(domain.StageCrossRef).State)
}

func TestItemStoreFindStageBacklog(t *testing.T) {
	ctx := context.Background()
	s := NewItemStore()
	cutoff := time.Now().Add(time.Minute)

	// Eligible for embed: normalize succeeded, embed unset.
	eligible := storedItem(t, s, "https://example.com/eligible")
	require.NoError(t, s.MarkStage(ctx, eligible.ID, domain.StageNormalize, domain.StageResult{State: domain.StageSuccess}))

	// Not eligible: normalize never ran.
	storedItem(t, s, "https://example.com/fresh")

	// Not eligible: embed already succeeded.
	finished := storedItem(t, s, "https://example.com/finished")
	require.NoError(t, s.MarkStage(ctx, finished.ID, domain.StageNormalize, domain.StageResult{State: domain.StageSuccess}))
	require.NoError(t, s.MarkStage(ctx, finished.ID, domain.StageEmbed, domain.StageResult{State: domain.StageSuccess}))

	backlog, err := s.FindStageBacklog(ctx, domain.StageEmbed, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, eligible.ID, backlog[0].ID)

	t.Run("cutoff excludes newer items", func(t *testing.T) {
		backlog, err := s.FindStageBacklog(ctx, domain.StageEmbed, time.Now().Add(-time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, backlog)
	})

	t.Run("first stage needs no prior success", func(t *testing.T) {
		backlog, err := s.FindStageBacklog(ctx, domain.StageNormalize, cutoff, 10)
		require.NoError(t, err)
		require.Len(t, backlog, 1)
	})

	t.Run("unknown stage", func(t *testing.T) {
		_, err := s.FindStageBacklog(ctx, domain.Stage("bogus"), cutoff, 10)
		assert.ErrorIs(t, err, domain.ErrUnknownStage)
	})
}

func TestItemStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewItemStore()
	item := storedItem(t, s, "https://example.com/a")

	require.NoError(t, s.DeleteItem(ctx, item.ID))
	_, err := s.GetItem(ctx, item.ID)
	assert.ErrorIs(t, err, store.ErrItemNotFound)

	assert.ErrorIs(t, s.DeleteItem(ctx, item.ID), store.ErrItemNotFound)
}

func TestSourceStore(t *testing.T) {
	ctx := context.Background()
	s := NewSourceStore()

	source, err := domain.NewSource(uuid.New(), "https://example.com/feed.xml", 900)
	require.NoError(t, err)
	require.NoError(t, s.CreateSource(ctx, source))

	t.Run("get", func(t *testing.T) {
		got, err := s.GetSource(ctx, source.ID)
		require.NoError(t, err)
		assert.Equal(t, source.FeedURL, got.FeedURL)

		_, err = s.GetSource(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrSourceNotFound)
	})

	t.Run("never polled source is due", func(t *testing.T) {
		due, err := s.ListDueSources(ctx, time.Now(), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, source.ID, due[0].ID)
	})

	t.Run("marking polled pushes the due time out", func(t *testing.T) {
		require.NoError(t, s.MarkPolled(ctx, source.ID, time.Now()))

		due, err := s.ListDueSources(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		due, err = s.ListDueSources(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, due, 1)
	})

	t.Run("mark polled on a missing source", func(t *testing.T) {
		assert.ErrorIs(t, s.MarkPolled(ctx, uuid.New(), time.Now()), store.ErrSourceNotFound)
	})
}
