package ai

import (
	"context"

	"github.com/poiesic/tripkb/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice holds exactly one vector per input, in input order,
	// all of the same dimensionality.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// TopicExtractor turns a de-identified conversation transcript into topics.
// Implementations must be thread-safe for concurrent use.
type TopicExtractor interface {
	// ExtractTopics analyzes a transcript in which every participant appears
	// as an @user_<n> token and returns the topics discussed. The returned
	// topics reference participants only through those tokens.
	// Returns an empty slice when nothing worth keeping was discussed.
	ExtractTopics(ctx context.Context, transcript string) ([]core.Topic, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder and TopicExtractor instances,
// ensuring they share configuration and resources such as rate limits.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// TopicExtractor returns the topic extraction service.
	TopicExtractor() TopicExtractor

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
