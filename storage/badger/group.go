package badger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/storage"
)

// GroupRepository implements storage.GroupRepository for BadgerDB.
type GroupRepository struct {
	backend *Backend
}

var _ storage.GroupRepository = (*GroupRepository)(nil)

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(backend *Backend) *GroupRepository {
	return &GroupRepository{backend: backend}
}

// Close is a no-op; the backend is owned by the caller.
func (r *GroupRepository) Close() error {
	return nil
}

// SaveGroups creates or replaces groups.
func (r *GroupRepository) SaveGroups(ctx context.Context, groups ...*core.Group) error {
	for _, group := range groups {
		if err := core.ValidateGroup(group); err != nil {
			return err
		}
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, group := range groups {
			key := makeGroupKey(group.ID)
			existing, err := readGroup(tx, key)
			if err != nil {
				return err
			}
			toStore := *group
			if toStore.LastIngest.IsZero() && existing != nil {
				toStore.LastIngest = existing.LastIngest
			}
			if err := tx.Set(key, storage.MarshalGroup(&toStore)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetGroup retrieves a group by ID.
func (r *GroupRepository) GetGroup(ctx context.Context, id string) (*core.Group, error) {
	var result *core.Group
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readGroup(tx, makeGroupKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: group %s", storage.ErrNotFound, id)
		}
		return nil
	}, false)
	return result, err
}

// ListGroups returns every group ordered by ID.
func (r *GroupRepository) ListGroups(ctx context.Context) ([]*core.Group, error) {
	return r.listGroups(func(*core.Group) bool { return true })
}

// ListManagedGroups returns managed groups ordered by ID.
func (r *GroupRepository) ListManagedGroups(ctx context.Context) ([]*core.Group, error) {
	return r.listGroups(func(g *core.Group) bool { return g.Managed })
}

// RelatedGroupIDs returns the other groups that share a community key.
func (r *GroupRepository) RelatedGroupIDs(ctx context.Context, id string) ([]string, error) {
	group, err := r.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(group.CommunityKeys) == 0 {
		return nil, nil
	}

	related, err := r.listGroups(func(g *core.Group) bool {
		if g.ID == id {
			return false
		}
		for _, key := range g.CommunityKeys {
			if slices.Contains(group.CommunityKeys, key) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(related))
	for i, g := range related {
		ids[i] = g.ID
	}
	return ids, nil
}

// SetLastIngest updates a group's watermark.
func (r *GroupRepository) SetLastIngest(ctx context.Context, id string, watermark time.Time) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := setWatermark(tx, id, watermark); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

func (r *GroupRepository) listGroups(keep func(*core.Group) bool) ([]*core.Group, error) {
	var results []*core.Group
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(groupPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var group *core.Group
			err := iter.Item().Value(func(val []byte) error {
				var err error
				group, err = storage.UnmarshalGroup(val)
				return err
			})
			if err != nil {
				return err
			}
			if keep(group) {
				results = append(results, group)
			}
		}
		return nil
	}, false)
	return results, err
}

// setWatermark rewrites the group record inside an open write transaction.
func setWatermark(tx *badger.Txn, id string, watermark time.Time) error {
	key := makeGroupKey(id)
	group, err := readGroup(tx, key)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("%w: group %s", storage.ErrNotFound, id)
	}
	group.LastIngest = watermark.UTC()
	return tx.Set(key, storage.MarshalGroup(group))
}

func readGroup(tx *badger.Txn, key []byte) (*core.Group, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var group *core.Group
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		group, unmarshalErr = storage.UnmarshalGroup(val)
		return unmarshalErr
	})
	return group, err
}
