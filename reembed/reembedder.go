// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/tripkb/ai"
	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/retry"
	"github.com/poiesic/tripkb/storage"
)

// Config holds configuration for a re-embedding pass.
type Config struct {
	// BatchSize is the number of topics embedded per call.
	BatchSize int

	// ReportInterval is how many topics pass between progress lines.
	ReportInterval int

	// Retry governs embedding calls.
	Retry retry.Policy
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		Retry:          retry.DefaultPolicy(),
	}
}

// Report summarizes a completed pass.
type Report struct {
	Topics   int
	Duration time.Duration
}

// Reembedder recomputes the vectors of every stored topic.
type Reembedder struct {
	topics    storage.TopicRepository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress receives the status line, typically os.Stderr; nil discards it.
func NewReembedder(topics storage.TopicRepository, embedder ai.Embedder, config *Config, progress io.Writer, logger *slog.Logger) (*Reembedder, error) {
	if topics == nil {
		return nil, ErrTopicRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize < 1 {
		return nil, ErrInvalidBatchSize
	}
	if err := config.Retry.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reembed")

	return &Reembedder{
		topics:    topics,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(topics, embedder, config.Retry, logger),
		logger:    logger,
	}, nil
}

// Run re-embeds every stored topic. Topics already updated stay updated if
// a later batch fails, so a failed pass can simply be run again.
func (r *Reembedder) Run(ctx context.Context) (*Report, error) {
	total, err := r.topics.CountTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting topics: %w", err)
	}
	if total == 0 {
		r.logger.Info("no topics to re-embed")
		return &Report{}, nil
	}

	r.logger.Info("re-embedding topics", "topics", total, "batchSize", r.config.BatchSize)
	tracker := NewProgress(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.topics.ForEachTopic(ctx, r.config.BatchSize, func(batch []*core.KBTopicRecord) error {
		if err := r.processor.Process(ctx, batch); err != nil {
			return fmt.Errorf("batch at topic %d: %w", processed, err)
		}
		processed += len(batch)
		tracker.Add(len(batch))
		return nil
	})
	if err != nil {
		r.logger.Error("re-embedding stopped", "processed", processed, "err", err)
		return &Report{Topics: processed, Duration: tracker.Elapsed()}, err
	}
	tracker.Finish()

	report := &Report{Topics: processed, Duration: tracker.Elapsed()}
	r.logger.Info("re-embedding complete", "topics", processed, "duration", report.Duration.Round(time.Millisecond))
	return report, nil
}
