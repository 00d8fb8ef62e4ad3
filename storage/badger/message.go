package badger

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/storage"
)

// MessageRepository implements storage.MessageRepository for BadgerDB.
type MessageRepository struct {
	backend *Backend
	seq     *badger.Sequence
}

var _ storage.MessageRepository = (*MessageRepository)(nil)

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(backend *Backend) (*MessageRepository, error) {
	seq, err := backend.GetSequence(messageSeq)
	if err != nil {
		return nil, err
	}

	return &MessageRepository{
		backend: backend,
		seq:     seq,
	}, nil
}

// Close releases the insertion sequence.
func (r *MessageRepository) Close() error {
	return r.seq.Release()
}

// AddMessages stores messages that are not stored yet.
func (r *MessageRepository) AddMessages(ctx context.Context, messages ...*core.Message) (int, error) {
	for _, msg := range messages {
		if err := core.ValidateMessage(msg); err != nil {
			return 0, err
		}
	}

	added := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, msg := range messages {
			key := makeMessageKey(msg.GroupID, msg.ID)
			if _, err := tx.Get(key); err == nil {
				continue
			} else if err != badger.ErrKeyNotFound {
				return err
			}

			// The sequence orders messages that share a timestamp
			seq, err := r.seq.Next()
			if err != nil {
				return err
			}

			if err := tx.Set(key, storage.MarshalMessage(msg)); err != nil {
				return err
			}
			dateKey := makeMessageDateKey(msg.GroupID, msg.Timestamp, seq)
			if err := tx.Set(dateKey, []byte(msg.ID)); err != nil {
				return err
			}
			added++
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return added, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepository) GetMessage(ctx context.Context, groupID, id string) (*core.Message, error) {
	var result *core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readMessage(tx, makeMessageKey(groupID, id))
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: message %s/%s", storage.ErrNotFound, groupID, id)
		}
		return nil
	}, false)
	return result, err
}

// GetMessagesSince walks the group's date index backwards from the newest
// message and stops at the first message older than since.
func (r *MessageRepository) GetMessagesSince(ctx context.Context, groupID string, since time.Time, excludeSender string) ([]*core.Message, error) {
	var results []*core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeMessageDatePrefix(groupID)

		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek past the last possible key of this group
		seekKey := append(bytes.Clone(prefix), bytes.Repeat([]byte{0xff}, 16)...)

		for iter.Seek(seekKey); iter.ValidForPrefix(prefix); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := iter.Item().Key()
			if !since.IsZero() && messageDateKeyTime(key) < since.UnixMicro() {
				break
			}

			id, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			msg, err := readMessage(tx, makeMessageKey(groupID, string(id)))
			if err != nil {
				return err
			}
			if msg == nil || msg.SenderID == excludeSender {
				continue
			}
			results = append(results, msg)
		}
		return nil
	}, false)

	return results, err
}

func readMessage(tx *badger.Txn, key []byte) (*core.Message, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var msg *core.Message
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		msg, unmarshalErr = storage.UnmarshalMessage(val)
		return unmarshalErr
	})
	return msg, err
}
