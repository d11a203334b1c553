package generation

import (
	"context"
)

// EmbeddingGenerator defines the interface for turning text chunks into
// vector embeddings. This interface serves as a boundary between the
// application core and external AI/LLM services, following the
// hexagonal architecture pattern.
type EmbeddingGenerator interface {
	// EmbedChunks produces one embedding vector per input chunk, in
	// input order.
	//
	// Returns ErrEmptyContent when chunks is empty, ErrTransientFailure
	// for errors worth retrying, and ErrInvalidResponse when the model
	// returns an unusable result.
	EmbedChunks(ctx context.Context, chunks []string) ([][]float32, error)
}
