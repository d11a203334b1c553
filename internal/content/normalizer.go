package content

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/pipeline"
	"github.com/currents-app/currents/internal/platform/logger"
	"github.com/currents-app/currents/internal/store"
)

// HTMLNormalizer cleans an item's raw HTML body into plain text,
// persists the cleaned body, and reports the image references found in
// the markup. Image references become fan-out children handled one job
// per image.
type HTMLNormalizer struct {
	items store.ItemStore
}

var _ pipeline.Normalizer = (*HTMLNormalizer)(nil)

// NewHTMLNormalizer creates a normalizer persisting through the given
// item store.
func NewHTMLNormalizer(items store.ItemStore) *HTMLNormalizer {
	return &HTMLNormalizer{items: items}
}

// Normalize parses the item body, strips markup and boilerplate
// elements, and collects the image URLs referenced by the document.
// A malformed or empty body is a permanent failure.
func (n *HTMLNormalizer) Normalize(ctx context.Context, item *domain.ContentItem) pipeline.NormalizeResult {
	log := logger.FromContext(ctx)

	if strings.TrimSpace(item.Body) == "" {
		return pipeline.NormalizeResult{
			Outcome: pipeline.Failed("item has no content to normalize", false),
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(item.Body))
	if err != nil {
		return pipeline.NormalizeResult{
			Outcome: pipeline.Failed(fmt.Sprintf("failed to parse item HTML: %v", err), false),
		}
	}

	doc.Find("script, style, noscript, iframe").Remove()

	imageURLs := collectImageURLs(doc, item.URL)
	cleaned := collapseWhitespace(doc.Text())

	item.Body = cleaned
	if _, _, err := n.items.UpsertItem(ctx, item); err != nil {
		log.Error("failed to persist normalized body",
			"item_id", item.ID,
			"error", err)
		return pipeline.NormalizeResult{
			Outcome: pipeline.Failed(fmt.Sprintf("failed to persist normalized body: %v", err), true),
		}
	}

	return pipeline.NormalizeResult{
		Outcome:   pipeline.Succeeded(len(imageURLs)),
		ImageURLs: imageURLs,
	}
}

// collectImageURLs gathers the document's img sources, resolved against
// the item URL and deduplicated in document order.
func collectImageURLs(doc *goquery.Document, itemURL string) []string {
	base, _ := url.Parse(itemURL)

	var urls []string
	seen := make(map[string]struct{})
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		if base != nil {
			if ref, err := url.Parse(src); err == nil {
				src = base.ResolveReference(ref).String()
			}
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		urls = append(urls, src)
	})
	return urls
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
