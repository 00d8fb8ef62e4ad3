package mock

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/poiesic/tripkb/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	vectors, err := m.EmbedTexts(ctx, []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, vectors[0], vectors[2])
	assert.NotEqual(t, vectors[0], vectors[1])
	assert.Len(t, vectors[0], DefaultDimension)

	var norm float64
	for _, v := range vectors[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	single, err := m.EmbedText(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, vectors[0], single)

	assert.Equal(t, 2, m.CallCount())
	assert.Equal(t, [][]string{{"a", "b", "a"}, {"a"}}, m.Inputs())

	failure := errors.New("down")
	m.WithEmbedTextsFunc(func(context.Context, []string) ([][]float32, error) { return nil, failure })
	_, err = m.EmbedTexts(ctx, []string{"x"})
	assert.ErrorIs(t, err, failure)

	m.Reset()
	assert.Zero(t, m.CallCount())
	assert.Empty(t, m.Inputs())
}

func TestMockTopicExtractor(t *testing.T) {
	m := NewMockTopicExtractor()
	ctx := context.Background()

	topics, err := m.ExtractTopics(ctx, "line one\nline two")
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, "line one", topics[0].Summary)

	topics, err = m.ExtractTopics(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, topics)

	m.WithTopics(core.Topic{Subject: "Flights", Summary: "booked"})
	topics, err = m.ExtractTopics(ctx, "anything")
	require.NoError(t, err)
	assert.Equal(t, "Flights", topics[0].Subject)

	assert.Equal(t, 3, m.CallCount())
	assert.Equal(t, []string{"line one\nline two", "", "anything"}, m.Transcripts())
}

func TestMock_ConcurrentUse(t *testing.T) {
	provider := NewMockProvider().(*MockProvider)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = provider.Embedder().EmbedText(context.Background(), "x")
			_, _ = provider.TopicExtractor().ExtractTopics(context.Background(), "x")
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, provider.GetMockEmbedder().CallCount())
	assert.Equal(t, 8, provider.GetMockExtractor().CallCount())
	assert.NoError(t, provider.Close())
	assert.Equal(t, 1, provider.CloseCount())
}
