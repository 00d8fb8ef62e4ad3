package openai

import (
	"context"
	"log/slog"
	"testing"

	"github.com/poiesic/tripkb/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeEmbeddings struct {
	vectors [][]float32
	calls   int
}

func (f *fakeEmbeddings) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	return f.vectors, nil
}

func (f *fakeEmbeddings) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vectors[0], nil
}

func newTestEmbedder(f *fakeEmbeddings) *Embedder {
	return &Embedder{embedder: f, limiter: rate.NewLimiter(rate.Inf, 0), logger: slog.Default()}
}

func TestEmbedder_EmbedTexts(t *testing.T) {
	fake := &fakeEmbeddings{vectors: [][]float32{{1, 0}, {0, 1}}}
	embedder := newTestEmbedder(fake)

	vectors, err := embedder.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)

	t.Run("empty batch skips the server", func(t *testing.T) {
		vectors, err := embedder.EmbedTexts(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
		assert.Equal(t, 1, fake.calls)
	})

	t.Run("count mismatch", func(t *testing.T) {
		_, err := embedder.EmbedTexts(context.Background(), []string{"a", "b", "c"})
		assert.ErrorIs(t, err, ai.ErrEmbeddingCount)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		bad := newTestEmbedder(&fakeEmbeddings{vectors: [][]float32{{1, 0}, {1}}})
		_, err := bad.EmbedTexts(context.Background(), []string{"a", "b"})
		assert.ErrorIs(t, err, ai.ErrEmbeddingCount)
	})
}

func TestEmbedder_RateLimited(t *testing.T) {
	fake := &fakeEmbeddings{vectors: [][]float32{{1}}}
	embedder := &Embedder{embedder: fake, limiter: rate.NewLimiter(rate.Limit(0.001), 1), logger: slog.Default()}

	_, err := embedder.EmbedText(context.Background(), "a")
	require.NoError(t, err)

	// The single token is spent, so a cancelled context fails the wait.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = embedder.EmbedText(ctx, "b")
	assert.Error(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider(ai.NewConfig(ai.WithHost("http://localhost:11434")))
	require.NoError(t, err)
	defer provider.Close()

	assert.NotNil(t, provider.Embedder())
	assert.NotNil(t, provider.TopicExtractor())

	_, err = NewProvider(ai.NewConfig(ai.WithExtractorModel("")))
	assert.ErrorIs(t, err, ai.ErrInvalidConfig)
}
