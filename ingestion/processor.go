package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/tripkb/ai"
	"github.com/poiesic/tripkb/chunking"
	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/deid"
	"github.com/poiesic/tripkb/retry"
	"github.com/poiesic/tripkb/storage"
)

// chunkProcessor turns one chunk into persisted topics.
type chunkProcessor struct {
	topics    storage.TopicRepository
	extractor ai.TopicExtractor
	embedder  ai.Embedder
	botID     string
	policy    retry.Policy
	watermark WatermarkPolicy
	now       func() time.Time
	metrics   *metrics
}

// process extracts, re-identifies, embeds and persists the chunk's topics,
// advancing the group watermark in the same write. A chunk without topics
// only advances the watermark. final marks the last chunk of the run. It
// returns the number of topics stored and the new watermark, which is zero
// when the write left it unchanged.
func (p *chunkProcessor) process(ctx context.Context, groupID string, chunk chunking.Chunk, final bool, logger *slog.Logger) (int, time.Time, error) {
	mapping := deid.BuildMapping(chunk.Messages, p.botID)
	transcript := deid.Transcript(chunk.Messages, mapping)

	var extracted []core.Topic
	err := retry.Do(ctx, func(ctx context.Context) error {
		var err error
		extracted, err = p.extractor.ExtractTopics(ctx, transcript)
		return err
	}, p.policyFor("extract", logger))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("extracting topics: %w", err)
	}

	records, err := p.buildRecords(ctx, groupID, chunk, mapping, extracted, logger)
	if err != nil {
		return 0, time.Time{}, err
	}

	watermark := p.watermarkFor(chunk, final)
	write := storage.ChunkWrite{
		GroupID:    groupID,
		Records:    records,
		MessageIDs: chunk.MessageIDs(),
		Watermark:  watermark,
	}
	if err := p.topics.UpsertChunk(ctx, write); err != nil {
		return 0, time.Time{}, fmt.Errorf("persisting chunk: %w", err)
	}

	logger.Debug("chunk persisted",
		"messages", len(chunk.Messages),
		"overlap", chunk.Overlap,
		"speakers", mapping.Len(),
		"topics", len(records))
	return len(records), watermark, nil
}

func (p *chunkProcessor) buildRecords(ctx context.Context, groupID string, chunk chunking.Chunk, mapping *deid.SpeakerMapping, extracted []core.Topic, logger *slog.Logger) ([]*core.KBTopicRecord, error) {
	if len(extracted) == 0 {
		return nil, nil
	}

	topics := make([]core.Topic, 0, len(extracted))
	speakers := make([][]string, 0, len(extracted))
	seen := make(map[core.ID]bool, len(extracted))
	for _, t := range extracted {
		topic, refs := mapping.Deanonymize(t)
		id := core.TopicID(groupID, chunk.StartTime, topic.Subject)
		if seen[id] {
			logger.Warn("dropping topic with repeated subject", "subject", topic.Subject)
			continue
		}
		seen[id] = true
		topics = append(topics, topic)
		speakers = append(speakers, refs)
	}

	documents := make([]string, len(topics))
	for i := range topics {
		documents[i] = topics[i].Document()
	}

	var vectors [][]float32
	err := retry.Do(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = p.embedder.EmbedTexts(ctx, documents)
		if err == nil && len(vectors) != len(documents) {
			err = fmt.Errorf("%w: got %d vectors for %d documents", ai.ErrEmbeddingCount, len(vectors), len(documents))
		}
		return err
	}, p.policyFor("embed", logger))
	if err != nil {
		return nil, fmt.Errorf("embedding topics: %w", err)
	}

	records := make([]*core.KBTopicRecord, len(topics))
	for i := range topics {
		record, err := core.NewKBTopicRecord(groupID, chunk.StartTime, topics[i], speakers[i], core.NormalizeVector(vectors[i]))
		if err != nil {
			return nil, fmt.Errorf("encoding topic %q: %w", topics[i].Subject, err)
		}
		records[i] = record
	}
	return records, nil
}

func (p *chunkProcessor) policyFor(operation string, logger *slog.Logger) retry.Policy {
	policy := p.policy
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		p.metrics.retries.WithLabelValues(operation).Inc()
		logger.Warn("collaborator call failed, retrying",
			"operation", operation, "attempt", attempt, "wait", wait, "err", err)
	}
	return policy
}

func (p *chunkProcessor) watermarkFor(chunk chunking.Chunk, final bool) time.Time {
	if p.watermark == WatermarkLastMessage {
		// Messages are loaded with timestamp >= watermark, so step past the last one
		return chunk.EndTime().Add(time.Microsecond)
	}
	// "now" is past every unprocessed message, so it may only be written
	// once the run's last chunk is persisted.
	if !final {
		return time.Time{}
	}
	return p.now().UTC()
}
