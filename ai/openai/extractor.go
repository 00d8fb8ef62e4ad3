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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/tripkb/ai"
	"github.com/poiesic/tripkb/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// maxParseAttempts bounds how often a malformed response is regenerated.
const maxParseAttempts = 3

// TopicExtractor implements ai.TopicExtractor using OpenAI-compatible chat APIs.
type TopicExtractor struct {
	client    llms.Model
	limiter   *rate.Limiter
	maxTokens int
	logger    *slog.Logger
}

// extraction is the wrapper structure for the LLM's JSON response.
type extraction struct {
	Topics []core.Topic `json:"topics"`
}

// newTopicExtractor is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newTopicExtractor(config *ai.Config, limiter *rate.Limiter) (*TopicExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ExtractorHost),
		openai.WithToken(config.Token()),
		openai.WithModel(config.ExtractorModel),
	)
	if err != nil {
		return nil, err
	}

	return &TopicExtractor{
		client:    client,
		limiter:   limiter,
		maxTokens: config.MaxTokens,
		logger:    slog.Default().With("component", "openai-extractor"),
	}, nil
}

// NewTopicExtractor creates a new topic extractor using the provided configuration.
// It has its own rate limiter; use NewProvider to share one with embedding.
//
// Returns ai.TopicExtractor interface to enforce abstraction.
func NewTopicExtractor(config *ai.Config) (ai.TopicExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newTopicExtractor(config, newLimiter(config))
}

// ExtractTopics asks the model for the topics of a transcript. Responses
// that do not parse are regenerated a few times. Topics that violate the
// enumerations or score ranges are dropped with a warning.
func (e *TopicExtractor) ExtractTopics(ctx context.Context, transcript string) ([]core.Topic, error) {
	if strings.TrimSpace(transcript) == "" {
		return []core.Topic{}, nil
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(topicSystemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(transcript)},
		},
	}
	options := []llms.CallOption{llms.WithTemperature(0.0), llms.WithJSONMode()}
	if e.maxTokens > 0 {
		options = append(options, llms.WithMaxTokens(e.maxTokens))
	}

	var topics []core.Topic
	var lastErr error
	for attempt := 0; attempt < maxParseAttempts; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		response, err := e.client.GenerateContent(ctx, content, options...)
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, err
		}

		if len(response.Choices) < 1 {
			e.logger.Debug("no choices returned from model")
			return []core.Topic{}, nil
		}

		responseText := cleanResponse(response.Choices[0].Content)
		topics, err = parseTopics(responseText)
		if err != nil {
			lastErr = err
			e.logger.Warn("error parsing extractor response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}

		lastErr = nil
		break
	}

	if lastErr != nil {
		e.logger.Error("failed to parse extractor response after retries", "err", lastErr)
		return nil, lastErr
	}

	valid := make([]core.Topic, 0, len(topics))
	for i := range topics {
		topics[i].Subject = strings.TrimSpace(topics[i].Subject)
		if err := core.ValidateTopic(&topics[i]); err != nil {
			e.logger.Warn("dropping invalid topic", "subject", topics[i].Subject, "err", err)
			continue
		}
		valid = append(valid, topics[i])
	}

	e.logger.Debug("extracted topics", "total", len(topics), "valid", len(valid))
	return valid, nil
}

// parseTopics accepts the documented {"topics": [...]} object and, as a
// fallback, a bare array of topics.
func parseTopics(text string) ([]core.Topic, error) {
	var result extraction
	objErr := json.Unmarshal([]byte(text), &result)
	if objErr == nil {
		return result.Topics, nil
	}

	var topics []core.Topic
	if err := json.Unmarshal([]byte(text), &topics); err == nil {
		return topics, nil
	}
	return nil, fmt.Errorf("%w: %w", ai.ErrMalformedResponse, objErr)
}
