package storage

import (
	"context"
	"time"

	"github.com/poiesic/tripkb/core"
)

// Repository provides operations shared by all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close releases resources held by the repository.
	Close() error
}

// TopicFilter selects topics. Filters run before ranking so that a limit
// applies to matching topics only.
type TopicFilter func(record *core.KBTopicRecord) bool

// TopicQuery describes a similarity search over stored topics.
type TopicQuery struct {
	// Vector is the query embedding.
	Vector []float32

	// GroupIDs restricts candidates to topics owned by these groups.
	// Must not be empty.
	GroupIDs []string

	// Filter is applied to each candidate before ranking. Nil accepts all.
	Filter TopicFilter

	// Limit caps the number of results; it must be positive.
	Limit int
}

// ChunkWrite is everything persisted for one processed chunk.
type ChunkWrite struct {
	GroupID    string
	Records    []*core.KBTopicRecord
	MessageIDs []string  // Linked to every record
	Watermark  time.Time // New last_ingest for the group; zero leaves it unchanged
}

// MessageRepository stores chat messages delivered by the transport.
type MessageRepository interface {
	Repository

	// AddMessages stores messages. Messages are immutable: a message whose
	// (group, id) already exists is skipped. Returns the number stored.
	AddMessages(ctx context.Context, messages ...*core.Message) (int, error)

	// GetMessage retrieves a message by group and ID.
	// Returns ErrNotFound if it does not exist.
	GetMessage(ctx context.Context, groupID, id string) (*core.Message, error)

	// GetMessagesSince returns messages of a group with timestamp >= since
	// whose sender is not excludeSender, newest first. Messages with equal
	// timestamps come out in reverse insertion order.
	GetMessagesSince(ctx context.Context, groupID string, since time.Time, excludeSender string) ([]*core.Message, error)
}

// GroupRepository stores groups and their ingestion watermarks.
type GroupRepository interface {
	Repository

	// SaveGroups creates or replaces groups. A zero LastIngest never
	// overwrites a watermark that is already stored.
	SaveGroups(ctx context.Context, groups ...*core.Group) error

	// GetGroup retrieves a group by ID.
	// Returns ErrNotFound if it does not exist.
	GetGroup(ctx context.Context, id string) (*core.Group, error)

	// ListGroups returns all groups ordered by ID.
	ListGroups(ctx context.Context) ([]*core.Group, error)

	// ListManagedGroups returns groups flagged as managed, ordered by ID.
	ListManagedGroups(ctx context.Context) ([]*core.Group, error)

	// RelatedGroupIDs returns the IDs of other groups sharing a community
	// key with the given group, ordered by ID.
	RelatedGroupIDs(ctx context.Context, id string) ([]string, error)

	// SetLastIngest updates a group's watermark.
	// Returns ErrNotFound if the group does not exist.
	SetLastIngest(ctx context.Context, id string, watermark time.Time) error
}

// TopicRepository is the knowledge store for extracted topics.
type TopicRepository interface {
	Repository

	// UpsertChunk writes a chunk's topics, their message links and the
	// group watermark in one transaction. Records with an existing ID are
	// overwritten. Either everything becomes visible or nothing does.
	UpsertChunk(ctx context.Context, write ChunkWrite) error

	// GetTopic retrieves a topic by ID.
	// Returns ErrNotFound if it does not exist.
	GetTopic(ctx context.Context, id core.ID) (*core.KBTopicRecord, error)

	// GetTopicMessageIDs returns the IDs of messages linked to a topic.
	GetTopicMessageIDs(ctx context.Context, id core.ID) ([]string, error)

	// FindSimilar ranks topics by ascending cosine distance to the query
	// vector. Topics without a vector are not candidates.
	FindSimilar(ctx context.Context, query TopicQuery) ([]*core.TopicMatch, error)

	// RecentTopics returns the newest topics of the given groups that pass
	// filter, ordered by start time descending.
	RecentTopics(ctx context.Context, groupIDs []string, filter TopicFilter, limit int) ([]*core.KBTopicRecord, error)

	// ForEachTopic calls fn with batches of up to batchSize topics until all
	// topics are visited or fn returns an error.
	ForEachTopic(ctx context.Context, batchSize int, fn func([]*core.KBTopicRecord) error) error

	// CountTopics returns the number of stored topics.
	CountTopics(ctx context.Context) (int, error)

	// UpdateTopicVectors replaces the vectors of existing topics.
	// Returns ErrNotFound if any topic does not exist.
	UpdateTopicVectors(ctx context.Context, records ...*core.KBTopicRecord) error
}
