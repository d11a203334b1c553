package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/currents-app/currents/internal/api"
	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/job"
)

func TestCreateSource(t *testing.T) {
	t.Run("valid subscription", func(t *testing.T) {
		f := newAPIFixture(t)
		ownerID := uuid.NewString()

		rec := f.request(t, http.MethodPost, "/api/sources", map[string]any{
			"owner_id":              ownerID,
			"feed_url":              "https://example.com/feed.xml",
			"poll_interval_seconds": 900,
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp api.SourceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, ownerID, resp.OwnerID)
		assert.Equal(t, "https://example.com/feed.xml", resp.FeedURL)
		assert.Nil(t, resp.LastPolledAt)

		// The source is retrievable immediately.
		stored, err := f.sources.GetSource(context.Background(), uuid.MustParse(resp.ID))
		require.NoError(t, err)
		assert.Equal(t, 900, stored.PollIntervalSeconds)
	})

	t.Run("validation failures", func(t *testing.T) {
		f := newAPIFixture(t)
		cases := []struct {
			name string
			body map[string]any
		}{
			{"missing owner", map[string]any{
				"feed_url": "https://example.com/feed.xml", "poll_interval_seconds": 900,
			}},
			{"bad feed URL", map[string]any{
				"owner_id": uuid.NewString(), "feed_url": "not a url", "poll_interval_seconds": 900,
			}},
			{"non-positive interval", map[string]any{
				"owner_id": uuid.NewString(), "feed_url": "https://example.com/feed.xml", "poll_interval_seconds": -5,
			}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				rec := f.request(t, http.MethodPost, "/api/sources", tc.body)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			})
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.request(t, http.MethodPost, "/api/sources", "not an object")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetSource(t *testing.T) {
	f := newAPIFixture(t)
	source, err := domain.NewSource(uuid.New(), "https://example.com/feed.xml", 600)
	require.NoError(t, err)
	require.NoError(t, f.sources.CreateSource(context.Background(), source))

	t.Run("found", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/sources/"+source.ID.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp api.SourceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, source.ID.String(), resp.ID)
	})

	t.Run("not found", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/sources/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPollSource(t *testing.T) {
	t.Run("schedules an immediate poll", func(t *testing.T) {
		f := newAPIFixture(t)
		source, err := domain.NewSource(uuid.New(), "https://example.com/feed.xml", 600)
		require.NoError(t, err)
		require.NoError(t, f.sources.CreateSource(context.Background(), source))

		rec := f.request(t, http.MethodPost, "/api/sources/"+source.ID.String()+"/poll", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)

		jobs := f.queue.Snapshot()
		require.Len(t, jobs, 1)
		assert.Equal(t, job.KindSourcePoll, jobs[0].Kind)
		assert.Equal(t, job.PriorityImmediate, jobs[0].Priority)

		// A second trigger refreshes the pending poll instead of
		// stacking another.
		rec = f.request(t, http.MethodPost, "/api/sources/"+source.ID.String()+"/poll", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Len(t, f.queue.Snapshot(), 1)
	})

	t.Run("unknown source", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.request(t, http.MethodPost, "/api/sources/"+uuid.NewString()+"/poll", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, f.queue.Snapshot())
	})
}
