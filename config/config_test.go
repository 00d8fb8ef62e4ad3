package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/tripkb/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
database: /var/lib/tripkb
bot_id: "15550001"
ai:
  embedding_host: http://embed:8080
  extractor_model: gpt-4o-mini
  requests_per_minute: 120
ingestion:
  interval: 5m
  pool_size: 2
  watermark: last_message
  chunking:
    min_size: 10
  retry:
    max_attempts: 3
    base_delay: 1s
reembed:
  batch_size: 50
groups:
  - id: lisbon
    name: Lisbon 2025
    community_keys: [iberia]
    destination: Lisbon
    trip_start: "2025-09-01"
    trip_end: "2025-09-08"
  - id: porto
    managed: false
    community_keys: [iberia]
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Database, cfg.Database)
	assert.Equal(t, 30*time.Minute, cfg.Ingestion.Interval)
	assert.Equal(t, 25, cfg.Ingestion.Chunking.MinSize)
	assert.Equal(t, 6, cfg.Ingestion.Retry.MaxAttempts)
	assert.Empty(t, cfg.Groups)

	policy, err := cfg.Ingestion.WatermarkPolicy()
	require.NoError(t, err)
	assert.Equal(t, ingestion.WatermarkNow, policy)
}

func TestParse_File(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/tripkb", cfg.Database)
	assert.Equal(t, "15550001", cfg.BotID)
	assert.Equal(t, "http://embed:8080/v1", cfg.AI.EmbeddingHost)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.ExtractorModel)
	assert.Equal(t, Default().AI.EmbeddingModel, cfg.AI.EmbeddingModel, "unset keys keep defaults")
	assert.Equal(t, 120, cfg.AI.RequestsPerMinute)

	assert.Equal(t, 5*time.Minute, cfg.Ingestion.Interval)
	assert.Equal(t, 2, cfg.Ingestion.PoolSize)
	policy, err := cfg.Ingestion.WatermarkPolicy()
	require.NoError(t, err)
	assert.Equal(t, ingestion.WatermarkLastMessage, policy)

	opts := cfg.Ingestion.ChunkingOptions()
	assert.Equal(t, 10, opts.MinSize)
	assert.Equal(t, 200, opts.MaxSize)
	assert.Equal(t, 2.0, opts.GapHours)

	retry := cfg.Ingestion.RetryPolicy()
	assert.Equal(t, 3, retry.MaxAttempts)
	assert.Equal(t, time.Second, retry.BaseDelay)
	assert.Equal(t, 90*time.Second, retry.MaxDelay)

	assert.Equal(t, 50, cfg.Reembed.BatchSize)
	assert.Equal(t, 100, cfg.Reembed.ReportInterval)

	groups, err := cfg.CoreGroups()
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "lisbon", groups[0].ID)
	assert.True(t, groups[0].Managed)
	assert.Equal(t, []string{"iberia"}, groups[0].CommunityKeys)
	assert.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), groups[0].TripStart)
	assert.Equal(t, time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC), groups[0].TripEnd)
	assert.True(t, groups[0].LastIngest.IsZero())
	assert.False(t, groups[1].Managed)
	assert.True(t, groups[1].TripStart.IsZero())
}

func TestParse_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TRIPKB_DATABASE", "/tmp/override")
	t.Setenv("TRIPKB_AI__EMBEDDING_MODEL", "nomic-embed-text")
	t.Setenv("TRIPKB_INGESTION__POOL_SIZE", "8")
	t.Setenv("TRIPKB_INGESTION__RETRY__MAX_DELAY", "2m")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override", cfg.Database)
	assert.Equal(t, "nomic-embed-text", cfg.AI.EmbeddingModel)
	assert.Equal(t, 8, cfg.Ingestion.PoolSize)
	assert.Equal(t, 2*time.Minute, cfg.Ingestion.Retry.MaxDelay)
	assert.Equal(t, "15550001", cfg.BotID, "file values without overrides survive")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty database", `database: " "`},
		{"zero interval", "ingestion:\n  interval: 0s"},
		{"pool size", "ingestion:\n  pool_size: 0"},
		{"watermark", "ingestion:\n  watermark: latest"},
		{"chunking", "ingestion:\n  chunking:\n    min_size: 0"},
		{"retry", "ingestion:\n  retry:\n    multiplier: 0.5"},
		{"batch size", "reembed:\n  batch_size: 0"},
		{"group without id", "groups:\n  - name: nameless"},
		{"duplicate group", "groups:\n  - id: a\n  - id: a"},
		{"bad date", "groups:\n  - id: a\n    trip_start: 01/09/2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParse_BadAIConfig(t *testing.T) {
	_, err := Parse([]byte("ai:\n  embedding_model: \"\""))
	assert.Error(t, err)
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("database: [unterminated"))
	assert.ErrorContains(t, err, "parsing config")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tripkb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tripkb", cfg.Database)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Database, cfg.Database)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "database", envKey("TRIPKB_DATABASE"))
	assert.Equal(t, "ai.embedding_host", envKey("TRIPKB_AI__EMBEDDING_HOST"))
	assert.Equal(t, "ingestion.chunking.gap_hours", envKey("TRIPKB_INGESTION__CHUNKING__GAP_HOURS"))
}
