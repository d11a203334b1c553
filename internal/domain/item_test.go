package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestItem(t *testing.T) *ContentItem {
	t.Helper()
	item, err := NewContentItem(uuid.New(), uuid.New(), "https://example.com/post", "Post", "<p>body</p>")
	require.NoError(t, err)
	return item
}

func TestNewContentItem(t *testing.T) {
	t.Run("creates item with all stages unset", func(t *testing.T) {
		item := newTestItem(t)

		assert.NotEqual(t, uuid.Nil, item.ID)
		for _, stage := range StageOrder {
			assert.Equal(t, StageUnset, item.StageResultFor(stage).State)
		}
	})

	t.Run("rejects missing owner", func(t *testing.T) {
		_, err := NewContentItem(uuid.Nil, uuid.New(), "https://example.com", "t", "b")
		assert.ErrorIs(t, err, ErrEmptyItemOwnerID)
	})

	t.Run("rejects missing URL", func(t *testing.T) {
		_, err := NewContentItem(uuid.New(), uuid.New(), "", "t", "b")
		assert.ErrorIs(t, err, ErrEmptyItemURL)
	})
}

func TestCanAttempt(t *testing.T) {
	t.Run("first stage is attemptable on a fresh item", func(t *testing.T) {
		item := newTestItem(t)
		assert.NoError(t, item.CanAttempt(StageNormalize))
	})

	t.Run("later stage requires prior success", func(t *testing.T) {
		item := newTestItem(t)

		err := item.CanAttempt(StageEmbed)
		assert.ErrorIs(t, err, ErrStageOrder)

		require.NoError(t, item.ApplyStageResult(StageNormalize, StageResult{State: StageSuccess}))
		assert.NoError(t, item.CanAttempt(StageEmbed))
	})

	t.Run("succeeded stage is final", func(t *testing.T) {
		item := newTestItem(t)
		require.NoError(t, item.ApplyStageResult(StageNormalize, StageResult{State: StageSuccess}))

		err := item.CanAttempt(StageNormalize)
		assert.ErrorIs(t, err, ErrStageFinal)
	})

	t.Run("failed stage may be re-attempted", func(t *testing.T) {
		item := newTestItem(t)
		require.NoError(t, item.ApplyStageResult(StageNormalize, StageResult{State: StageFailure, Reason: "boom"}))

		assert.NoError(t, item.CanAttempt(StageNormalize))
	})

	t.Run("unknown stage", func(t *testing.T) {
		item := newTestItem(t)
		assert.ErrorIs(t, item.CanAttempt(Stage("publish")), ErrUnknownStage)
	})
}

func TestApplyStageResult(t *testing.T) {
	t.Run("records success with completion time", func(t *testing.T) {
		item := newTestItem(t)

		err := item.ApplyStageResult(StageNormalize, StageResult{State: StageSuccess, Count: 3})
		require.NoError(t, err)

		result := item.StageResultFor(StageNormalize)
		assert.Equal(t, StageSuccess, result.State)
		assert.Equal(t, 3, result.Count)
		require.NotNil(t, result.CompletedAt)
		assert.WithinDuration(t, time.Now().UTC(), *result.CompletedAt, time.Minute)
	})

	t.Run("rejects out of order transitions", func(t *testing.T) {
		item := newTestItem(t)

		err := item.ApplyStageResult(StageEmbed, StageResult{State: StageSuccess})
		assert.ErrorIs(t, err, ErrStageOrder)

		err = item.ApplyStageResult(StageCrossRef, StageResult{State: StageFailure, Reason: "nope"})
		assert.ErrorIs(t, err, ErrStageOrder)
	})

	t.Run("success is monotone", func(t *testing.T) {
		item := newTestItem(t)
		require.NoError(t, item.ApplyStageResult(StageNormalize, StageResult{State: StageSuccess}))

		err := item.ApplyStageResult(StageNormalize, StageResult{State: StageFailure, Reason: "late failure"})
		assert.ErrorIs(t, err, ErrStageFinal)
		assert.Equal(t, StageSuccess, item.StageResultFor(StageNormalize).State)
	})

	t.Run("re-marking the same success is a no-op", func(t *testing.T) {
		item := newTestItem(t)
		require.NoError(t, item.ApplyStageResult(StageNormalize, StageResult{State: StageSuccess, Count: 2}))
		first := item.StageResultFor(StageNormalize)

		// A redelivered job records the same terminal state again.
		require.NoError(t, item.ApplyStageResult(StageNormalize, StageResult{State: StageSuccess, Count: 2}))
		assert.Equal(t, first, item.StageResultFor(StageNormalize))
	})

	t.Run("failure may be overwritten by success", func(t *testing.T) {
		item := newTestItem(t)
		require.NoError(t, item.ApplyStageResult(StageNormalize, StageResult{State: StageFailure, Reason: "transient"}))

		require.NoError(t, item.ApplyStageResult(StageNormalize, StageResult{State: StageSuccess}))
		assert.Equal(t, StageSuccess, item.StageResultFor(StageNormalize).State)
	})

	t.Run("rejects unset as a target state", func(t *testing.T) {
		item := newTestItem(t)
		err := item.ApplyStageResult(StageNormalize, StageResult{State: StageUnset})
		assert.ErrorIs(t, err, ErrInvalidStageState)
	})

	t.Run("full pipeline run", func(t *testing.T) {
		item := newTestItem(t)
		for _, stage := range StageOrder {
			require.NoError(t, item.ApplyStageResult(stage, StageResult{State: StageSuccess}))
		}
		for _, stage := range StageOrder {
			assert.Equal(t, StageSuccess, item.StageResultFor(stage).State)
		}
	})
}

func TestResetStagesFrom(t *testing.T) {
	t.Run("clears the given stage and everything after it", func(t *testing.T) {
		item := newTestItem(t)
		for _, stage := range StageOrder {
			require.NoError(t, item.ApplyStageResult(stage, StageResult{State: StageSuccess}))
		}

		require.NoError(t, item.ResetStagesFrom(StageEmbed))

		assert.Equal(t, StageSuccess, item.StageResultFor(StageNormalize).State)
		assert.Equal(t, StageUnset, item.StageResultFor(StageEmbed).State)
		assert.Equal(t, StageUnset, item.StageResultFor(StageCrossRef).State)
	})

	t.Run("reset from the first stage wipes everything", func(t *testing.T) {
		item := newTestItem(t)
		require.NoError(t, item.ApplyStageResult(StageNormalize, StageResult{State: StageSuccess}))

		require.NoError(t, item.ResetStagesFrom(StageNormalize))
		for _, stage := range StageOrder {
			assert.Equal(t, StageUnset, item.StageResultFor(stage).State)
		}
	})

	t.Run("reset makes the stage attemptable again", func(t *testing.T) {
		item := newTestItem(t)
		require.NoError(t, item.ApplyStageResult(StageNormalize, StageResult{State: StageSuccess}))
		require.NoError(t, item.ResetStagesFrom(StageNormalize))

		assert.NoError(t, item.CanAttempt(StageNormalize))
	})

	t.Run("unknown stage", func(t *testing.T) {
		item := newTestItem(t)
		assert.ErrorIs(t, item.ResetStagesFrom(Stage("bogus")), ErrUnknownStage)
	})
}

func TestStageHelpers(t *testing.T) {
	t.Run("prior stage", func(t *testing.T) {
		_, ok := PriorStage(StageNormalize)
		assert.False(t, ok)

		prior, ok := PriorStage(StageEmbed)
		assert.True(t, ok)
		assert.Equal(t, StageNormalize, prior)
	})

	t.Run("next stage", func(t *testing.T) {
		next, ok := NextStage(StageNormalize)
		assert.True(t, ok)
		assert.Equal(t, StageEmbed, next)

		_, ok = NextStage(StageCrossRef)
		assert.False(t, ok)
	})

	t.Run("stage validity", func(t *testing.T) {
		for _, stage := range StageOrder {
			assert.True(t, IsValidStage(stage))
		}
		assert.False(t, IsValidStage(Stage("render")))
	})
}
