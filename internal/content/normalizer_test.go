package content

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/memstore"
)

func normalizedItem(t *testing.T, body string) (*memstore.ItemStore, *domain.ContentItem) {
	t.Helper()
	items := memstore.NewItemStore()
	item, err := domain.NewContentItem(uuid.New(), uuid.New(), "https://example.com/post", "Post", body)
	require.NoError(t, err)
	stored, _, err := items.UpsertItem(context.Background(), item)
	require.NoError(t, err)
	return items, stored
}

func TestNormalizeCleansMarkup(t *testing.T) {
	ctx := context.Background()
	items, item := normalizedItem(t, `<html><head>
		<style>body { color: red }</style>
		<script>alert("hi")</script>
	</head><body>
		<p>Hello   world.</p>
		<noscript>fallback</noscript>
		<iframe src="https://ads.example.com"></iframe>
		<p>Second	paragraph.</p>
	</body></html>`)

	normalizer := NewHTMLNormalizer(items)
	result := normalizer.Normalize(ctx, item)

	require.True(t, result.Success)
	stored, err := items.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello world. Second paragraph.", stored.Body)
}

func TestNormalizeCollectsImages(t *testing.T) {
	ctx := context.Background()
	items, item := normalizedItem(t, `<body>
		<img src="/images/a.png"/>
		<img src="https://cdn.example.com/b.jpg"/>
		<img src="/images/a.png"/>
		<img src="data:image/png;base64,AAAA"/>
		<img alt="no source"/>
	</body>`)

	normalizer := NewHTMLNormalizer(items)
	result := normalizer.Normalize(ctx, item)

	require.True(t, result.Success)
	assert.Equal(t, []string{
		"https://example.com/images/a.png",
		"https://cdn.example.com/b.jpg",
	}, result.ImageURLs, "relative URLs resolve, duplicates and data URIs drop")
	assert.Equal(t, 2, result.Count)
}

func TestNormalizeEmptyBodyIsPermanent(t *testing.T) {
	items := memstore.NewItemStore()
	item, err := domain.NewContentItem(uuid.New(), uuid.New(), "https://example.com/post", "Post", "body")
	require.NoError(t, err)
	item.Body = "   \n\t  "

	normalizer := NewHTMLNormalizer(items)
	result := normalizer.Normalize(context.Background(), item)

	assert.False(t, result.Success)
	assert.False(t, result.Retryable)
}

func TestNormalizePlainText(t *testing.T) {
	ctx := context.Background()
	items, item := normalizedItem(t, "Just plain text, no markup at all.")

	normalizer := NewHTMLNormalizer(items)
	result := normalizer.Normalize(ctx, item)

	require.True(t, result.Success)
	assert.Empty(t, result.ImageURLs)

	stored, err := items.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Just plain text, no markup at all.", stored.Body)
}
