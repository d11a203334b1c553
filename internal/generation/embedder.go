package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/pipeline"
)

// chunkSize is the approximate chunk length in characters. Chunks break
// on word boundaries, so actual chunks run slightly short.
const chunkSize = 2000

// StageEmbedder adapts an EmbeddingGenerator to the pipeline's embed
// stage: it chunks the item body, embeds the chunks, and translates
// generator errors into stage outcomes.
type StageEmbedder struct {
	generator EmbeddingGenerator
}

var _ pipeline.Embedder = (*StageEmbedder)(nil)

// NewStageEmbedder creates a StageEmbedder over the given generator.
func NewStageEmbedder(generator EmbeddingGenerator) *StageEmbedder {
	return &StageEmbedder{generator: generator}
}

// Embed chunks the item body and produces one embedding per chunk. An
// item with no body is a permanent failure; generator errors map to the
// stage's transient/permanent split via ErrTransientFailure.
func (e *StageEmbedder) Embed(ctx context.Context, item *domain.ContentItem) pipeline.Outcome {
	chunks := ChunkText(item.Body, chunkSize)
	if len(chunks) == 0 {
		return pipeline.Failed("item has no content to embed", false)
	}

	vectors, err := e.generator.EmbedChunks(ctx, chunks)
	if err != nil {
		retryable := errors.Is(err, ErrTransientFailure)
		return pipeline.Failed(fmt.Sprintf("embedding failed: %v", err), retryable)
	}
	return pipeline.Succeeded(len(vectors))
}

// ChunkText splits text into word-boundary chunks of at most maxLen
// characters. Words longer than maxLen get a chunk of their own.
func ChunkText(text string, maxLen int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var (
		chunks  []string
		current strings.Builder
	)
	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > maxLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
