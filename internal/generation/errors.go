package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrEmbeddingFailed is returned when embedding fails for any general reason
	ErrEmbeddingFailed = errors.New("failed to generate embeddings from text")

	// ErrInvalidResponse is returned when the model response is empty or malformed
	ErrInvalidResponse = errors.New("invalid response from embedding model")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during embedding")

	// ErrInvalidConfig is returned when the embedding client configuration is invalid
	ErrInvalidConfig = errors.New("invalid embedding configuration")

	// ErrEmptyContent is returned when there is no text to embed
	ErrEmptyContent = errors.New("no content to embed")
)
