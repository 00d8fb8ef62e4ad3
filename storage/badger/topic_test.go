package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func topicRecord(group, subject string, start time.Time, vector []float32) *core.KBTopicRecord {
	return &core.KBTopicRecord{
		Id:        core.TopicID(group, start, subject),
		GroupID:   group,
		StartTime: start,
		Vector:    vector,
		Subject:   subject,
		Summary:   "summary of " + subject,
	}
}

func saveGroups(t *testing.T, repos *Repositories, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, repos.Groups.SaveGroups(context.Background(), &core.Group{ID: id, Managed: true}))
	}
}

func TestTopicRepository_UpsertChunk(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	saveGroups(t, repos, "g1")

	rec := topicRecord("g1", "Flights", base, []float32{1, 0})
	watermark := base.Add(time.Hour)
	write := storage.ChunkWrite{
		GroupID:    "g1",
		Records:    []*core.KBTopicRecord{rec},
		MessageIDs: []string{"m1", "m2"},
		Watermark:  watermark,
	}
	require.NoError(t, repos.Topics.UpsertChunk(ctx, write))

	got, err := repos.Topics.GetTopic(ctx, rec.Id)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	links, err := repos.Topics.GetTopicMessageIDs(ctx, rec.Id)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, links)

	group, err := repos.Groups.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, watermark, group.LastIngest)

	t.Run("same chunk twice is one record", func(t *testing.T) {
		again := topicRecord("g1", "Flights", base, []float32{1, 0})
		write.Records = []*core.KBTopicRecord{again}
		require.NoError(t, repos.Topics.UpsertChunk(ctx, write))

		count, err := repos.Topics.CountTopics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		got, err := repos.Topics.GetTopic(ctx, rec.Id)
		require.NoError(t, err)
		assert.Equal(t, rec, got)

		links, err := repos.Topics.GetTopicMessageIDs(ctx, rec.Id)
		require.NoError(t, err)
		assert.Len(t, links, 2)
	})
}

func TestTopicRepository_UpsertChunkAtomic(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	// The group is missing, so the watermark update fails and nothing is written.
	rec := topicRecord("ghost", "Flights", base, []float32{1, 0})
	err := repos.Topics.UpsertChunk(ctx, storage.ChunkWrite{
		GroupID:    "ghost",
		Records:    []*core.KBTopicRecord{rec},
		MessageIDs: []string{"m1"},
		Watermark:  base,
	})
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = repos.Topics.GetTopic(ctx, rec.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	links, err := repos.Topics.GetTopicMessageIDs(ctx, rec.Id)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestTopicRepository_UpsertChunkRejectsForeignRecords(t *testing.T) {
	repos := setupRepos(t)
	err := repos.Topics.UpsertChunk(context.Background(), storage.ChunkWrite{
		GroupID: "g1",
		Records: []*core.KBTopicRecord{topicRecord("g2", "x", base, nil)},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestTopicRepository_FindSimilar(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	saveGroups(t, repos, "g1", "g2", "g3")

	near := topicRecord("g1", "near", base, []float32{1, 0.1})
	far := topicRecord("g1", "far", base, []float32{0, 1})
	mid := topicRecord("g2", "mid", base, []float32{1, 1})
	noVector := topicRecord("g1", "novector", base, nil)
	outOfScope := topicRecord("g3", "other", base, []float32{1, 0})
	// Left over from an embedding model with another dimension
	stale := topicRecord("g1", "stale", base, []float32{1, 0, 0})
	near.Locations = `[{"name":"a","type":"cafe","context":"visited"}]`
	far.Locations = `[{"name":"b","type":"cafe","context":"visited"}]`

	for _, rec := range []*core.KBTopicRecord{near, far, mid, noVector, outOfScope, stale} {
		require.NoError(t, repos.Topics.UpsertChunk(ctx, storage.ChunkWrite{GroupID: rec.GroupID, Records: []*core.KBTopicRecord{rec}}))
	}

	query := []float32{1, 0}

	t.Run("ranks by ascending distance within scope", func(t *testing.T) {
		results, err := repos.Topics.FindSimilar(ctx, storage.TopicQuery{Vector: query, GroupIDs: []string{"g1", "g2"}, Limit: 10})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "near", results[0].Record.Subject)
		assert.Equal(t, "mid", results[1].Record.Subject)
		assert.Equal(t, "far", results[2].Record.Subject)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
		}
	})

	t.Run("filter applies before limit", func(t *testing.T) {
		hasLocations := func(r *core.KBTopicRecord) bool { return r.Locations != "" }
		results, err := repos.Topics.FindSimilar(ctx, storage.TopicQuery{
			Vector: []float32{0, 1}, GroupIDs: []string{"g1", "g2"}, Filter: hasLocations, Limit: 2,
		})
		require.NoError(t, err)
		require.Len(t, results, 2, "mid is closer than near but filtered out")
		assert.Equal(t, "far", results[0].Record.Subject)
		assert.Equal(t, "near", results[1].Record.Subject)
	})

	t.Run("skips vectors of another dimension", func(t *testing.T) {
		results, err := repos.Topics.FindSimilar(ctx, storage.TopicQuery{Vector: []float32{0, 0, 1}, GroupIDs: []string{"g1"}, Limit: 10})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "stale", results[0].Record.Subject)
		assert.InDelta(t, 1, results[0].Distance, 1e-6)
	})

	t.Run("duplicate scope entries do not duplicate results", func(t *testing.T) {
		results, err := repos.Topics.FindSimilar(ctx, storage.TopicQuery{Vector: query, GroupIDs: []string{"g2", "g2"}, Limit: 10})
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("invalid queries", func(t *testing.T) {
		for _, q := range []storage.TopicQuery{
			{Vector: query, GroupIDs: []string{"g1"}, Limit: 0},
			{Vector: nil, GroupIDs: []string{"g1"}, Limit: 1},
			{Vector: query, Limit: 1},
		} {
			_, err := repos.Topics.FindSimilar(ctx, q)
			assert.ErrorIs(t, err, storage.ErrInvalidQuery)
		}
	})
}

func TestTopicRepository_RecentTopics(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	saveGroups(t, repos, "g1", "g2")

	for i := 0; i < 5; i++ {
		group := "g1"
		if i%2 == 1 {
			group = "g2"
		}
		rec := topicRecord(group, fmt.Sprintf("t%d", i), base.Add(time.Duration(i)*time.Hour), nil)
		if i != 3 {
			rec.Sentiment = `{"overall":"neutral","excitement":0,"concern":0,"agreement":0}`
		}
		require.NoError(t, repos.Topics.UpsertChunk(ctx, storage.ChunkWrite{GroupID: group, Records: []*core.KBTopicRecord{rec}}))
	}

	hasSentiment := func(r *core.KBTopicRecord) bool { return r.Sentiment != "" }
	got, err := repos.Topics.RecentTopics(ctx, []string{"g1", "g2"}, hasSentiment, 3)
	require.NoError(t, err)
	subjects := make([]string, len(got))
	for i, r := range got {
		subjects[i] = r.Subject
	}
	assert.Equal(t, []string{"t4", "t2", "t1"}, subjects)

	_, err = repos.Topics.RecentTopics(ctx, []string{"g1"}, nil, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestTopicRepository_ForEachAndUpdateVectors(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	saveGroups(t, repos, "g1")

	var records []*core.KBTopicRecord
	for i := 0; i < 7; i++ {
		records = append(records, topicRecord("g1", fmt.Sprintf("t%d", i), base, []float32{1}))
	}
	require.NoError(t, repos.Topics.UpsertChunk(ctx, storage.ChunkWrite{GroupID: "g1", Records: records}))

	var batchSizes []int
	seen := map[core.ID]bool{}
	err := repos.Topics.ForEachTopic(ctx, 3, func(batch []*core.KBTopicRecord) error {
		batchSizes = append(batchSizes, len(batch))
		for _, r := range batch {
			seen[r.Id] = true
			r.Vector = []float32{0, 2}
		}
		return repos.Topics.UpdateTopicVectors(ctx, batch...)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, batchSizes)
	assert.Len(t, seen, 7)

	got, err := repos.Topics.GetTopic(ctx, records[0].Id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 2}, got.Vector)
	assert.Equal(t, records[0].Subject, got.Subject)

	err = repos.Topics.UpdateTopicVectors(ctx, &core.KBTopicRecord{Id: 1})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = repos.Topics.ForEachTopic(ctx, 0, func([]*core.KBTopicRecord) error { return nil })
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}
