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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/tripkb/ai"
	"github.com/poiesic/tripkb/chunking"
	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/retry"
	"github.com/poiesic/tripkb/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// WatermarkPolicy selects what a group's watermark advances to after a chunk.
type WatermarkPolicy int

const (
	// WatermarkNow advances to the time the group's last chunk was
	// persisted. Earlier chunks leave the watermark unchanged, so a run
	// that fails partway is retried from its first chunk. Messages that
	// arrive late with older timestamps are never ingested.
	WatermarkNow WatermarkPolicy = iota

	// WatermarkLastMessage advances just past the chunk's last message, so
	// a run after downtime resumes exactly where the previous one stopped.
	WatermarkLastMessage
)

func (p WatermarkPolicy) String() string {
	switch p {
	case WatermarkNow:
		return "now"
	case WatermarkLastMessage:
		return "last_message"
	}
	return fmt.Sprintf("WatermarkPolicy(%d)", int(p))
}

// ParseWatermarkPolicy parses "now" or "last_message". The empty string
// selects WatermarkNow.
func ParseWatermarkPolicy(s string) (WatermarkPolicy, error) {
	switch s {
	case "", "now":
		return WatermarkNow, nil
	case "last_message":
		return WatermarkLastMessage, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWatermarkPolicy, s)
}

// GroupResult summarizes one group's ingestion.
type GroupResult struct {
	GroupID   string
	Messages  int       // Messages loaded since the previous watermark
	Chunks    int       // Chunks persisted
	Topics    int       // Topics persisted
	Watermark time.Time // Watermark after the last persisted chunk; zero if none
}

// RunReport summarizes a scheduler run.
type RunReport struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Groups   []GroupResult
}

// Scheduler orchestrates ingestion across managed groups.
type Scheduler struct {
	messages   storage.MessageRepository
	groups     storage.GroupRepository
	processor  *chunkProcessor
	pool       *ants.Pool
	poolSize   int
	chunking   chunking.Options
	registerer prometheus.Registerer
	metrics    *metrics
	logger     *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler) error

// WithPoolSize sets how many groups are processed concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(s *Scheduler) error {
		if size < 1 {
			size = 1
		}
		s.poolSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "ingestion")
		return nil
	}
}

// WithBotID sets the bot's own identifier. Its messages are not ingested and
// its mentions are never assigned a user token.
func WithBotID(id string) Option {
	return func(s *Scheduler) error {
		s.processor.botID = id
		return nil
	}
}

// WithChunking sets the segmentation parameters.
func WithChunking(opts chunking.Options) Option {
	return func(s *Scheduler) error {
		s.chunking = opts
		return nil
	}
}

// WithRetryPolicy sets the backoff used for extraction and embedding calls.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(s *Scheduler) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		s.processor.policy = policy
		return nil
	}
}

// WithWatermarkPolicy selects how watermarks advance.
func WithWatermarkPolicy(policy WatermarkPolicy) Option {
	return func(s *Scheduler) error {
		if policy != WatermarkNow && policy != WatermarkLastMessage {
			return fmt.Errorf("%w: %v", ErrUnknownWatermarkPolicy, policy)
		}
		s.processor.watermark = policy
		return nil
	}
}

// WithRegisterer registers the scheduler's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Scheduler) error {
		s.registerer = reg
		return nil
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) error {
		s.processor.now = now
		return nil
	}
}

// NewScheduler creates a new ingestion scheduler.
func NewScheduler(
	messages storage.MessageRepository,
	groups storage.GroupRepository,
	topics storage.TopicRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Scheduler, error) {
	if messages == nil {
		return nil, ErrMessageRepositoryRequired
	}
	if groups == nil {
		return nil, ErrGroupRepositoryRequired
	}
	if topics == nil {
		return nil, ErrTopicRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	m := newMetrics()
	s := &Scheduler{
		messages: messages,
		groups:   groups,
		processor: &chunkProcessor{
			topics:    topics,
			extractor: provider.TopicExtractor(),
			embedder:  provider.Embedder(),
			policy:    retry.DefaultPolicy(),
			watermark: WatermarkNow,
			now:       time.Now,
			metrics:   m,
		},
		poolSize: poolSize,
		chunking: chunking.DefaultOptions(),
		metrics:  m,
		logger:   slog.Default().With("component", "ingestion"),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.registerer != nil {
		if err := m.register(s.registerer); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(s.poolSize)
	if err != nil {
		return nil, err
	}
	s.pool = pool

	s.logger.Info("ingestion scheduler ready",
		"poolSize", s.poolSize,
		"watermark", s.processor.watermark,
		"gapHours", s.chunking.GapHours,
		"minSize", s.chunking.MinSize,
		"maxSize", s.chunking.MaxSize,
		"overlap", s.chunking.Overlap)
	return s, nil
}

// Run calls RunOnce immediately and then every interval until ctx is done.
// A failed run is logged and does not stop the loop.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("ingestion run failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce ingests every managed group once. Groups run concurrently; a
// failing group does not stop the others. The returned error joins the
// failures of every group.
func (s *Scheduler) RunOnce(ctx context.Context) (*RunReport, error) {
	report := &RunReport{RunID: uuid.NewString(), Started: time.Now()}
	logger := s.logger.With("run", report.RunID)
	defer func() {
		report.Duration = time.Since(report.Started)
		s.metrics.runDuration.Observe(report.Duration.Seconds())
	}()

	groups, err := s.groups.ListManagedGroups(ctx)
	if err != nil {
		return report, fmt.Errorf("listing groups: %w", err)
	}
	logger.Info("ingestion run started", "groups", len(groups))

	report.Groups = make([]GroupResult, len(groups))
	errs := make([]error, len(groups))

	var wg sync.WaitGroup
	for i, group := range groups {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			report.Groups[i], errs[i] = s.ingestGroup(ctx, group, logger)
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			report.Groups[i] = GroupResult{GroupID: group.ID}
			errs[i] = fmt.Errorf("group %s: %w", group.ID, err)
		}
	}
	wg.Wait()

	err = errors.Join(errs...)
	logger.Info("ingestion run finished", "groups", len(groups), "failed", countErrors(errs))
	return report, err
}

// IngestGroup ingests a single group synchronously.
func (s *Scheduler) IngestGroup(ctx context.Context, group *core.Group) (GroupResult, error) {
	return s.ingestGroup(ctx, group, s.logger)
}

func (s *Scheduler) ingestGroup(ctx context.Context, group *core.Group, logger *slog.Logger) (GroupResult, error) {
	result := GroupResult{GroupID: group.ID}
	logger = logger.With("group", group.ID)

	newest, err := s.messages.GetMessagesSince(ctx, group.ID, group.LastIngest, s.processor.botID)
	if err != nil {
		s.metrics.groups.WithLabelValues(outcomeFailed).Inc()
		return result, fmt.Errorf("group %s: loading messages: %w", group.ID, err)
	}
	if len(newest) == 0 {
		logger.Debug("no new messages")
		s.metrics.groups.WithLabelValues(outcomeSkipped).Inc()
		return result, nil
	}

	// Loaded newest first
	messages := make([]core.Message, len(newest))
	for i, m := range newest {
		messages[len(newest)-1-i] = *m
	}
	result.Messages = len(messages)

	chunks := chunking.Segment(messages, s.chunking)
	logger.Info("ingesting group", "since", group.LastIngest, "messages", len(messages), "chunks", len(chunks))

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			s.metrics.groups.WithLabelValues(outcomeFailed).Inc()
			return result, fmt.Errorf("group %s: %w", group.ID, err)
		}

		topics, watermark, err := s.processor.process(ctx, group.ID, chunk, i == len(chunks)-1, logger.With("chunk", i))
		if err != nil {
			s.metrics.chunks.WithLabelValues(outcomeFailed).Inc()
			s.metrics.groups.WithLabelValues(outcomeFailed).Inc()
			logger.Error("chunk failed, aborting group", "chunk", i, "err", err)
			return result, fmt.Errorf("group %s: chunk %d: %w", group.ID, i, err)
		}

		outcome := outcomePersisted
		if topics == 0 {
			outcome = outcomeEmpty
		}
		s.metrics.chunks.WithLabelValues(outcome).Inc()
		s.metrics.topics.Add(float64(topics))

		result.Chunks++
		result.Topics += topics
		if !watermark.IsZero() {
			result.Watermark = watermark
		}
	}

	s.metrics.groups.WithLabelValues(outcomeOK).Inc()
	logger.Info("group ingested", "chunks", result.Chunks, "topics", result.Topics, "watermark", result.Watermark)
	return result, nil
}

// Release releases the worker pool.
// The scheduler should not be used after calling Release.
func (s *Scheduler) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

func countErrors(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
