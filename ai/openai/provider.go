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

package openai

import (
	"log/slog"

	"github.com/poiesic/tripkb/ai"
	"golang.org/x/time/rate"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// The embedder and topic extractor share one rate limiter.
type Provider struct {
	config    *ai.Config
	limiter   *rate.Limiter
	embedder  *Embedder
	extractor *TopicExtractor
	logger    *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	limiter := newLimiter(config)

	embedder, err := newEmbedder(config, limiter)
	if err != nil {
		return nil, err
	}

	extractor, err := newTopicExtractor(config, limiter)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-provider")
	logger.Debug("created provider",
		"embeddingModel", config.EmbeddingModel,
		"extractorModel", config.ExtractorModel,
		"requestsPerMinute", config.RequestsPerMinute)

	return &Provider{
		config:    config,
		limiter:   limiter,
		embedder:  embedder,
		extractor: extractor,
		logger:    logger,
	}, nil
}

// newLimiter builds the limiter every call waits on. A zero rate means unlimited.
func newLimiter(config *ai.Config) *rate.Limiter {
	if config.RequestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(config.RequestsPerMinute)/60.0), config.Burst)
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// TopicExtractor returns the topic extraction service.
func (p *Provider) TopicExtractor() ai.TopicExtractor {
	return p.extractor
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
