package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/tripkb/core"
)

// MockTopicExtractor is an ai.TopicExtractor with injectable behavior.
// It is safe for concurrent use.
type MockTopicExtractor struct {
	// ExtractTopicsFunc is called by ExtractTopics if set.
	// If nil, every transcript yields one topic quoting its first line.
	ExtractTopicsFunc func(ctx context.Context, transcript string) ([]core.Topic, error)

	mu          sync.Mutex
	callCount   int
	transcripts []string
}

func NewMockTopicExtractor() *MockTopicExtractor {
	return &MockTopicExtractor{}
}

// WithExtractTopicsFunc replaces the default behavior.
func (m *MockTopicExtractor) WithExtractTopicsFunc(fn func(ctx context.Context, transcript string) ([]core.Topic, error)) *MockTopicExtractor {
	m.ExtractTopicsFunc = fn
	return m
}

// WithTopics makes every call return topics.
func (m *MockTopicExtractor) WithTopics(topics ...core.Topic) *MockTopicExtractor {
	return m.WithExtractTopicsFunc(func(context.Context, string) ([]core.Topic, error) {
		return topics, nil
	})
}

func (m *MockTopicExtractor) ExtractTopics(ctx context.Context, transcript string) ([]core.Topic, error) {
	m.mu.Lock()
	m.callCount++
	m.transcripts = append(m.transcripts, transcript)
	fn := m.ExtractTopicsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, transcript)
	}

	first, _, _ := strings.Cut(strings.TrimSpace(transcript), "\n")
	if first == "" {
		return []core.Topic{}, nil
	}
	return []core.Topic{{Subject: "conversation", Summary: first}}, nil
}

func (m *MockTopicExtractor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Transcripts returns every transcript received, in call order.
func (m *MockTopicExtractor) Transcripts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.transcripts...)
}

func (m *MockTopicExtractor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.transcripts = nil
	m.ExtractTopicsFunc = nil
}
