package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/tripkb/core"
)

// Key prefixes for different data types. Every prefix ends in ':' so no
// prefix is a prefix of another.
const (
	messagePrefix     = "msg:"
	messageDatePrefix = "msgd:"
	messageSeq        = "msgseq"
	groupPrefix       = "grp:"
	topicPrefix       = "kbt:"
	topicGroupPrefix  = "kbtg:"
	topicLinkPrefix   = "kbtm:"
)

// sep terminates variable-length string components inside composite keys.
const sep = 0x00

// makeMessageKey generates a key for a message.
// Format: prefix group 0x00 id
func makeMessageKey(groupID, id string) []byte {
	buf := make([]byte, 0, len(messagePrefix)+len(groupID)+1+len(id))
	buf = append(buf, messagePrefix...)
	buf = append(buf, groupID...)
	buf = append(buf, sep)
	return append(buf, id...)
}

// makeMessageDatePrefix generates the per-group prefix of the date index.
// Format: prefix group 0x00
func makeMessageDatePrefix(groupID string) []byte {
	buf := make([]byte, 0, len(messageDatePrefix)+len(groupID)+1)
	buf = append(buf, messageDatePrefix...)
	buf = append(buf, groupID...)
	return append(buf, sep)
}

// makeMessageDateKey generates a composite key for the date index.
// Format: prefix group 0x00 timestamp seq
func makeMessageDateKey(groupID string, timestamp time.Time, seq uint64) []byte {
	prefix := makeMessageDatePrefix(groupID)
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// messageDateKeyTime extracts the timestamp from a date index key.
func messageDateKeyTime(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(key)-16:]))
}

// makeGroupKey generates a key for a group by ID.
func makeGroupKey(id string) []byte {
	return append([]byte(groupPrefix), id...)
}

// makeTopicKey generates a key for a topic by ID.
func makeTopicKey(id core.ID) []byte {
	buf := make([]byte, len(topicPrefix)+8)
	offset := copy(buf, topicPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// topicKeyID extracts the topic ID from a topic or index key.
func topicKeyID(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// makeTopicGroupPrefix generates the per-group prefix of the topic index.
// Format: prefix group 0x00
func makeTopicGroupPrefix(groupID string) []byte {
	buf := make([]byte, 0, len(topicGroupPrefix)+len(groupID)+1)
	buf = append(buf, topicGroupPrefix...)
	buf = append(buf, groupID...)
	return append(buf, sep)
}

// makeTopicGroupKey generates a composite key for the group index.
// Format: prefix group 0x00 topicID
func makeTopicGroupKey(groupID string, id core.ID) []byte {
	prefix := makeTopicGroupPrefix(groupID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeTopicLinkPrefix generates the prefix of a topic's message links.
// Format: prefix topicID
func makeTopicLinkPrefix(id core.ID) []byte {
	buf := make([]byte, len(topicLinkPrefix)+8)
	offset := copy(buf, topicLinkPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeTopicLinkKey generates a key linking a topic to a source message.
// Format: prefix topicID messageID
func makeTopicLinkKey(id core.ID, messageID string) []byte {
	return append(makeTopicLinkPrefix(id), messageID...)
}
