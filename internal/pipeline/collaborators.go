package pipeline

import (
	"context"

	"github.com/currents-app/currents/internal/domain"
)

// Outcome is the structured result every domain collaborator returns.
// Expected failure modes (network errors, missing config, empty input)
// come back as Success=false with a reason; collaborators never panic
// and reserve Go errors for infrastructure-level surprises.
type Outcome struct {
	Success bool
	// Retryable marks a failure as transient. Permanent failures
	// (malformed input, remote 404, invalid configuration) are recorded
	// immediately without retry.
	Retryable bool
	// Count is the stage-specific unit count: normalized images,
	// embedded chunks, or linked references.
	Count int
	// Reason describes the failure, empty on success.
	Reason string
}

// Succeeded builds a successful Outcome with the given unit count.
func Succeeded(count int) Outcome {
	return Outcome{Success: true, Count: count}
}

// Failed builds a failed Outcome.
func Failed(reason string, retryable bool) Outcome {
	return Outcome{Success: false, Reason: reason, Retryable: retryable}
}

// FeedEntry is one item returned by a feed fetch. Feed parsing itself is
// a collaborator concern; the pipeline only consumes the result.
type FeedEntry struct {
	URL   string
	Title string
	Body  string
}

// FeedFetcher retrieves and parses a feed, returning its entries.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, feedURL string) ([]FeedEntry, error)
}

// NormalizeResult is the normalize stage's outcome plus the image
// references discovered in the item, which become fan-out children.
type NormalizeResult struct {
	Outcome
	ImageURLs []string
}

// Normalizer performs whole-item content normalization and discovers the
// item's image references.
type Normalizer interface {
	Normalize(ctx context.Context, item *domain.ContentItem) NormalizeResult
}

// ImageNormalizer normalizes a single image reference. Runs as a gather
// child, one job per image.
type ImageNormalizer interface {
	NormalizeImage(ctx context.Context, item *domain.ContentItem, imageURL string) Outcome
}

// Embedder produces vector embeddings for an item's content. Count on
// the returned Outcome is the number of embedded chunks.
type Embedder interface {
	Embed(ctx context.Context, item *domain.ContentItem) Outcome
}

// CrossReferencer extracts and links external repository references from
// an item. Count on the returned Outcome is the number of linked
// references.
type CrossReferencer interface {
	CrossReference(ctx context.Context, item *domain.ContentItem) Outcome
}
