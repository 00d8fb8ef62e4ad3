package badger

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/storage"
)

// TopicRepository implements storage.TopicRepository for BadgerDB.
type TopicRepository struct {
	backend *Backend
}

var _ storage.TopicRepository = (*TopicRepository)(nil)

// NewTopicRepository creates a new TopicRepository.
func NewTopicRepository(backend *Backend) *TopicRepository {
	return &TopicRepository{backend: backend}
}

// Close is a no-op; the backend is owned by the caller.
func (r *TopicRepository) Close() error {
	return nil
}

// UpsertChunk writes topics, links and the watermark atomically.
func (r *TopicRepository) UpsertChunk(ctx context.Context, write storage.ChunkWrite) error {
	for _, record := range write.Records {
		if record.GroupID != write.GroupID {
			return fmt.Errorf("%w: topic %d belongs to group %q, not %q",
				storage.ErrInvalidQuery, record.Id, record.GroupID, write.GroupID)
		}
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range write.Records {
			if err := tx.Set(makeTopicKey(record.Id), storage.MarshalTopic(record)); err != nil {
				return err
			}
			if err := tx.Set(makeTopicGroupKey(record.GroupID, record.Id), nil); err != nil {
				return err
			}
			for _, messageID := range write.MessageIDs {
				if err := tx.Set(makeTopicLinkKey(record.Id, messageID), nil); err != nil {
					return err
				}
			}
		}
		if !write.Watermark.IsZero() {
			if err := setWatermark(tx, write.GroupID, write.Watermark); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetTopic retrieves a topic by ID.
func (r *TopicRepository) GetTopic(ctx context.Context, id core.ID) (*core.KBTopicRecord, error) {
	var result *core.KBTopicRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readTopic(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: topic %d", storage.ErrNotFound, id)
		}
		return nil
	}, false)
	return result, err
}

// GetTopicMessageIDs returns the messages linked to a topic in key order.
func (r *TopicRepository) GetTopicMessageIDs(ctx context.Context, id core.ID) ([]string, error) {
	var ids []string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeTopicLinkPrefix(id)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			ids = append(ids, string(iter.Item().Key()[len(prefix):]))
		}
		return nil
	}, false)
	return ids, err
}

// FindSimilar scans the topics of every group in scope, drops those that
// fail the filter, and ranks the rest by cosine distance.
func (r *TopicRepository) FindSimilar(ctx context.Context, query storage.TopicQuery) ([]*core.TopicMatch, error) {
	if query.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if len(query.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}
	if len(query.GroupIDs) == 0 {
		return nil, fmt.Errorf("%w: no groups in scope", storage.ErrInvalidQuery)
	}

	var results []*core.TopicMatch
	mismatched := 0
	err := r.scanGroups(ctx, query.GroupIDs, func(record *core.KBTopicRecord) {
		if len(record.Vector) == 0 {
			return
		}
		if len(record.Vector) != len(query.Vector) {
			mismatched++
			return
		}
		if query.Filter != nil && !query.Filter(record) {
			return
		}
		results = append(results, &core.TopicMatch{
			Record:   record,
			Distance: cosineDistance(query.Vector, record.Vector),
		})
	})
	if err != nil {
		return nil, err
	}
	if mismatched > 0 {
		r.backend.logger.Warn("skipped topics embedded with a different dimension, run reembed",
			"topics", mismatched, "dimension", len(query.Vector))
	}

	slices.SortFunc(results, func(a, b *core.TopicMatch) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Record.Id, b.Record.Id)
	})

	if len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// RecentTopics returns the newest matching topics of the given groups.
func (r *TopicRepository) RecentTopics(ctx context.Context, groupIDs []string, filter storage.TopicFilter, limit int) ([]*core.KBTopicRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var results []*core.KBTopicRecord
	err := r.scanGroups(ctx, groupIDs, func(record *core.KBTopicRecord) {
		if filter == nil || filter(record) {
			results = append(results, record)
		}
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.KBTopicRecord) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Id, b.Id)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ForEachTopic pages through all topics in ID order. Each page is read in
// its own transaction, so fn may write to the repository.
func (r *TopicRepository) ForEachTopic(ctx context.Context, batchSize int, fn func([]*core.KBTopicRecord) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", storage.ErrInvalidQuery)
	}

	prefix := []byte(topicPrefix)
	cursor := prefix
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var batch []*core.KBTopicRecord
		var lastKey []byte
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			iter := tx.NewIterator(opts)
			defer iter.Close()

			for iter.Seek(cursor); iter.Valid() && len(batch) < batchSize; iter.Next() {
				item := iter.Item()
				var record *core.KBTopicRecord
				if err := item.Value(func(val []byte) error {
					var err error
					record, err = storage.UnmarshalTopic(val)
					return err
				}); err != nil {
					return err
				}
				batch = append(batch, record)
				lastKey = item.KeyCopy(nil)
			}
			return nil
		}, false)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		// Topic keys have a fixed length, so this is the next possible key
		cursor = append(lastKey, 0x00)
	}
}

// CountTopics counts stored topics without reading their values.
func (r *TopicRepository) CountTopics(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(topicPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// UpdateTopicVectors replaces the vectors of existing topics.
func (r *TopicRepository) UpdateTopicVectors(ctx context.Context, records ...*core.KBTopicRecord) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			existing, err := readTopic(tx, record.Id)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("%w: topic %d", storage.ErrNotFound, record.Id)
			}
			existing.Vector = record.Vector
			if err := tx.Set(makeTopicKey(record.Id), storage.MarshalTopic(existing)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// scanGroups visits every topic owned by the given groups once.
func (r *TopicRepository) scanGroups(ctx context.Context, groupIDs []string, visit func(*core.KBTopicRecord)) error {
	seen := make(map[string]bool, len(groupIDs))
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, groupID := range groupIDs {
			if seen[groupID] {
				continue
			}
			seen[groupID] = true

			prefix := makeTopicGroupPrefix(groupID)
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			iter := tx.NewIterator(opts)

			for iter.Rewind(); iter.Valid(); iter.Next() {
				if err := ctx.Err(); err != nil {
					iter.Close()
					return err
				}
				record, err := readTopic(tx, topicKeyID(iter.Item().Key()))
				if err != nil {
					iter.Close()
					return err
				}
				if record != nil {
					visit(record)
				}
			}
			iter.Close()
		}
		return nil
	}, false)
}

func readTopic(tx *badger.Txn, id core.ID) (*core.KBTopicRecord, error) {
	item, err := tx.Get(makeTopicKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *core.KBTopicRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalTopic(val)
		return unmarshalErr
	})
	return record, err
}
