package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupRepository_SaveAndGet(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	group := &core.Group{ID: "g1", Name: "Lisbon", Managed: true, CommunityKeys: []string{"lisbon"}, Destination: "Lisbon"}
	require.NoError(t, repos.Groups.SaveGroups(ctx, group))

	got, err := repos.Groups.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, group, got)

	_, err = repos.Groups.GetGroup(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGroupRepository_SaveKeepsWatermark(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	require.NoError(t, repos.Groups.SaveGroups(ctx, &core.Group{ID: "g1"}))
	require.NoError(t, repos.Groups.SetLastIngest(ctx, "g1", base))

	require.NoError(t, repos.Groups.SaveGroups(ctx, &core.Group{ID: "g1", Name: "renamed"}))

	got, err := repos.Groups.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, base, got.LastIngest)
}

func TestGroupRepository_SetLastIngestMissing(t *testing.T) {
	repos := setupRepos(t)
	err := repos.Groups.SetLastIngest(context.Background(), "g1", time.Now())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGroupRepository_ListAndRelated(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	require.NoError(t, repos.Groups.SaveGroups(ctx,
		&core.Group{ID: "g3", Managed: true, CommunityKeys: []string{"family"}},
		&core.Group{ID: "g1", Managed: true, CommunityKeys: []string{"lisbon", "family"}},
		&core.Group{ID: "g2", Managed: false, CommunityKeys: []string{"lisbon"}},
		&core.Group{ID: "g4", Managed: true},
	))

	all, err := repos.Groups.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "g1", all[0].ID)

	managed, err := repos.Groups.ListManagedGroups(ctx)
	require.NoError(t, err)
	ids := make([]string, len(managed))
	for i, g := range managed {
		ids[i] = g.ID
	}
	assert.Equal(t, []string{"g1", "g3", "g4"}, ids)

	related, err := repos.Groups.RelatedGroupIDs(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"g2", "g3"}, related)

	related, err = repos.Groups.RelatedGroupIDs(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, related)

	related, err = repos.Groups.RelatedGroupIDs(ctx, "g4")
	require.NoError(t, err)
	assert.Empty(t, related)
}
