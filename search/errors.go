package search

import "errors"

var (
	// ErrTopicRepositoryRequired is returned when a topic repository is not provided.
	ErrTopicRepositoryRequired = errors.New("topic repository required")

	// ErrGroupRepositoryRequired is returned when a group repository is not provided.
	ErrGroupRepositoryRequired = errors.New("group repository required")

	// ErrEmbedderRequired is returned when a text query is made without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidLimit is returned for a non-positive result limit.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrEmptyQuery is returned for an empty query vector or text.
	ErrEmptyQuery = errors.New("empty query")

	// ErrEmptyScope is returned when a scope names no group.
	ErrEmptyScope = errors.New("empty scope")
)
