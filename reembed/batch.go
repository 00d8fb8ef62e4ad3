package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/tripkb/ai"
	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/retry"
	"github.com/poiesic/tripkb/storage"
)

// BatchProcessor re-embeds one batch of topics.
type BatchProcessor struct {
	topics   storage.TopicRepository
	embedder ai.Embedder
	policy   retry.Policy
	logger   *slog.Logger
}

// NewBatchProcessor creates a batch processor. Embedding calls are retried
// according to policy.
func NewBatchProcessor(topics storage.TopicRepository, embedder ai.Embedder, policy retry.Policy, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		topics:   topics,
		embedder: embedder,
		policy:   policy,
		logger:   logger,
	}
}

// Process embeds each topic's document and replaces its stored vector.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.KBTopicRecord) error {
	if len(records) == 0 {
		return nil
	}

	documents := make([]string, len(records))
	for i, record := range records {
		documents[i] = core.TopicDocument(record.Subject, record.Summary)
	}

	policy := bp.policy
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		bp.logger.Warn("embedding batch failed, retrying", "attempt", attempt, "wait", wait, "err", err)
	}

	var vectors [][]float32
	err := retry.Do(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = bp.embedder.EmbedTexts(ctx, documents)
		return err
	}, policy)
	if err != nil {
		return fmt.Errorf("embedding batch: %w", err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("%w: got %d vectors for %d topics", ai.ErrEmbeddingCount, len(vectors), len(records))
	}

	updates := make([]*core.KBTopicRecord, len(records))
	for i, record := range records {
		updates[i] = &core.KBTopicRecord{Id: record.Id, Vector: core.NormalizeVector(vectors[i])}
	}
	if err := bp.topics.UpdateTopicVectors(ctx, updates...); err != nil {
		return fmt.Errorf("updating vectors: %w", err)
	}
	return nil
}
