package ai

import "errors"

var (
	// ErrInvalidConfig indicates an unusable AI configuration.
	ErrInvalidConfig = errors.New("invalid ai config")

	// ErrMalformedResponse indicates a model response that could not be parsed.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrEmbeddingCount indicates an embedding batch whose size does not match its input.
	ErrEmbeddingCount = errors.New("embedding count mismatch")
)
