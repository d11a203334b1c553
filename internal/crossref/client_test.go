package crossref

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/currents-app/currents/internal/domain"
)

func crossrefItem(t *testing.T, title string) *domain.ContentItem {
	t.Helper()
	item, err := domain.NewContentItem(uuid.New(), uuid.New(), "https://example.com/post", "x", "body")
	require.NoError(t, err)
	item.Title = title
	return item
}

func worksServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCrossReference(t *testing.T) {
	ctx := context.Background()

	t.Run("counts works with a DOI", func(t *testing.T) {
		server := worksServer(t, http.StatusOK, `{
			"message": {"items": [
				{"DOI": "10.1000/a"},
				{"DOI": ""},
				{"DOI": "10.1000/b"}
			]}
		}`)
		client := NewClient(server.URL, nil)

		outcome := client.CrossReference(ctx, crossrefItem(t, "Attention Is All You Need"))
		require.True(t, outcome.Success)
		assert.Equal(t, 2, outcome.Count)
	})

	t.Run("no matches is still a success", func(t *testing.T) {
		server := worksServer(t, http.StatusOK, `{"message": {"items": []}}`)
		client := NewClient(server.URL, nil)

		outcome := client.CrossReference(ctx, crossrefItem(t, "obscure title"))
		require.True(t, outcome.Success)
		assert.Zero(t, outcome.Count)
	})

	t.Run("sends the title as the bibliographic query", func(t *testing.T) {
		var query string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.Query().Get("query.bibliographic")
			_, _ = w.Write([]byte(`{"message": {"items": []}}`))
		}))
		t.Cleanup(server.Close)
		client := NewClient(server.URL, nil)

		client.CrossReference(ctx, crossrefItem(t, "A Specific Title"))
		assert.Equal(t, "A Specific Title", query)
	})

	t.Run("missing title is permanent", func(t *testing.T) {
		client := NewClient("https://api.crossref.org", nil)

		outcome := client.CrossReference(ctx, crossrefItem(t, "  "))
		assert.False(t, outcome.Success)
		assert.False(t, outcome.Retryable)
	})

	t.Run("server errors are transient", func(t *testing.T) {
		for _, status := range []int{http.StatusInternalServerError, http.StatusTooManyRequests} {
			server := worksServer(t, status, "")
			client := NewClient(server.URL, nil)

			outcome := client.CrossReference(ctx, crossrefItem(t, "title"))
			assert.False(t, outcome.Success, "status %d", status)
			assert.True(t, outcome.Retryable, "status %d", status)
		}
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		server := worksServer(t, http.StatusNotFound, "")
		client := NewClient(server.URL, nil)

		outcome := client.CrossReference(ctx, crossrefItem(t, "title"))
		assert.False(t, outcome.Success)
		assert.False(t, outcome.Retryable)
	})

	t.Run("malformed response is permanent", func(t *testing.T) {
		server := worksServer(t, http.StatusOK, `{"message": {`)
		client := NewClient(server.URL, nil)

		outcome := client.CrossReference(ctx, crossrefItem(t, "title"))
		assert.False(t, outcome.Success)
		assert.False(t, outcome.Retryable)
	})

	t.Run("unreachable host is transient", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", nil)

		outcome := client.CrossReference(ctx, crossrefItem(t, "title"))
		assert.False(t, outcome.Success)
		assert.True(t, outcome.Retryable)
	})
}
