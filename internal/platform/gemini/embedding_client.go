package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/currents-app/currents/internal/config"
	"github.com/currents-app/currents/internal/generation"
)

// EmbeddingClient implements the generation.EmbeddingGenerator interface
// using Google's Gemini embedding models.
type EmbeddingClient struct {
	// logger is used for structured logging
	logger *slog.Logger

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the embedding model to use
	model string
}

var _ generation.EmbeddingGenerator = (*EmbeddingClient)(nil)

// NewEmbeddingClient creates a new EmbeddingClient with the provided
// dependencies.
func NewEmbeddingClient(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*EmbeddingClient, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	// Validate configuration
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("%w: embedding model cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &EmbeddingClient{
		logger: logger,
		client: client,
		model:  cfg.EmbeddingModel,
	}, nil
}

// EmbedChunks produces one embedding vector per input chunk. API errors
// are reported as transient; the pipeline's queue-level backoff decides
// when to give up.
func (c *EmbeddingClient) EmbedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, generation.ErrEmptyContent
	}

	contents := make([]*genai.Content, 0, len(chunks))
	for _, chunk := range chunks {
		contents = append(contents, genai.NewContentFromText(chunk, genai.RoleUser))
	}

	c.logger.DebugContext(ctx, "requesting embeddings",
		"model", c.model,
		"chunks", len(chunks))

	resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, nil)
	if err != nil {
		c.logger.ErrorContext(ctx, "Gemini embedding call failed",
			"model", c.model,
			"error", err)
		return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}
	if resp == nil || len(resp.Embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d",
			generation.ErrInvalidResponse, len(chunks), embeddingCount(resp))
	}

	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, embedding := range resp.Embeddings {
		if embedding == nil || len(embedding.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding vector", generation.ErrInvalidResponse)
		}
		vectors = append(vectors, embedding.Values)
	}
	return vectors, nil
}

func embeddingCount(resp *genai.EmbedContentResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Embeddings)
}
