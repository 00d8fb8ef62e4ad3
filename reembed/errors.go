package reembed

import "errors"

var (
	// ErrTopicRepositoryRequired is returned when no topic repository is given.
	ErrTopicRepositoryRequired = errors.New("topic repository is required")

	// ErrEmbedderRequired is returned when no embedder is given.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrInvalidBatchSize is returned for a batch size below one.
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")
)
