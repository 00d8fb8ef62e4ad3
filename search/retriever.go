package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/tripkb/ai"
	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/storage"
)

// Predicate filters candidate topics before ranking.
type Predicate = storage.TopicFilter

// HasLocations keeps topics with a stored locations field.
func HasLocations(r *core.KBTopicRecord) bool { return r.Locations != "" }

// HasEvents keeps topics with a stored events field.
func HasEvents(r *core.KBTopicRecord) bool { return r.Events != "" }

// HasPreferences keeps topics with a stored preferences field.
func HasPreferences(r *core.KBTopicRecord) bool { return r.Preferences != "" }

// HasSentiment keeps topics with a stored sentiment field.
func HasSentiment(r *core.KBTopicRecord) bool { return r.Sentiment != "" }

// All keeps topics that pass every predicate. Nil predicates are ignored.
func All(predicates ...Predicate) Predicate {
	return func(r *core.KBTopicRecord) bool {
		for _, p := range predicates {
			if p != nil && !p(r) {
				return false
			}
		}
		return true
	}
}

// Scope is the set of groups a search spans.
type Scope struct {
	GroupID         string
	RelatedGroupIDs []string // Community groups sharing a trip with GroupID
}

// GroupIDs lists the group and its related groups without duplicates.
func (s Scope) GroupIDs() []string {
	ids := make([]string, 0, 1+len(s.RelatedGroupIDs))
	seen := make(map[string]bool, cap(ids))
	for _, id := range append([]string{s.GroupID}, s.RelatedGroupIDs...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// Retriever answers similarity queries over stored topics.
type Retriever struct {
	topics   storage.TopicRepository
	groups   storage.GroupRepository
	embedder ai.Embedder
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "retriever")
		return nil
	}
}

// WithEmbedder enables text queries.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(r *Retriever) error {
		if embedder == nil {
			return ErrEmbedderRequired
		}
		r.embedder = embedder
		return nil
	}
}

// NewRetriever creates a Retriever.
func NewRetriever(topics storage.TopicRepository, groups storage.GroupRepository, opts ...Option) (*Retriever, error) {
	if topics == nil {
		return nil, ErrTopicRepositoryRequired
	}
	if groups == nil {
		return nil, ErrGroupRepositoryRequired
	}

	r := &Retriever{
		topics: topics,
		groups: groups,
		logger: slog.Default().With("component", "retriever"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ScopeFor builds the scope of a group from its community keys. An
// unknown group is searched on its own.
func (r *Retriever) ScopeFor(ctx context.Context, groupID string) (Scope, error) {
	if groupID == "" {
		return Scope{}, ErrEmptyScope
	}
	related, err := r.groups.RelatedGroupIDs(ctx, groupID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Debug("group not registered, searching it alone", "group", groupID)
			return Scope{GroupID: groupID}, nil
		}
		return Scope{}, err
	}
	return Scope{GroupID: groupID, RelatedGroupIDs: related}, nil
}

// Search returns up to limit topics in scope that satisfy predicate, in
// non-decreasing cosine distance from vector. A nil predicate keeps every
// topic.
func (r *Retriever) Search(ctx context.Context, vector []float32, scope Scope, predicate Predicate, limit int) ([]*core.TopicMatch, error) {
	return r.SearchWithMonitor(ctx, vector, scope, predicate, limit, nil)
}

// SearchWithMonitor is Search reporting its stages to monitor.
func (r *Retriever) SearchWithMonitor(ctx context.Context, vector []float32, scope Scope, predicate Predicate, limit int, monitor SearchMonitor) ([]*core.TopicMatch, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(scope, limit)

	groupIDs, err := validate(scope, limit)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, ErrEmptyQuery
	}
	return r.search(ctx, vector, groupIDs, predicate, limit, monitor)
}

// SearchText embeds query and searches with the resulting vector.
func (r *Retriever) SearchText(ctx context.Context, query string, scope Scope, predicate Predicate, limit int) ([]*core.TopicMatch, error) {
	return r.SearchTextWithMonitor(ctx, query, scope, predicate, limit, nil)
}

// SearchTextWithMonitor is SearchText reporting its stages to monitor.
func (r *Retriever) SearchTextWithMonitor(ctx context.Context, query string, scope Scope, predicate Predicate, limit int, monitor SearchMonitor) ([]*core.TopicMatch, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(scope, limit)

	if r.embedder == nil {
		return nil, ErrEmbedderRequired
	}
	groupIDs, err := validate(scope, limit)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterQueryEmbedding(len(vector))

	return r.search(ctx, vector, groupIDs, predicate, limit, monitor)
}

func (r *Retriever) search(ctx context.Context, vector []float32, groupIDs []string, predicate Predicate, limit int, monitor SearchMonitor) ([]*core.TopicMatch, error) {
	monitor.AfterScopeResolution(groupIDs)

	matches, err := r.topics.FindSimilar(ctx, storage.TopicQuery{
		Vector:   vector,
		GroupIDs: groupIDs,
		Filter:   predicate,
		Limit:    limit,
	})
	if err != nil {
		r.logger.Error("error querying for similar topics", "groups", groupIDs, "err", err)
		return nil, err
	}

	r.logger.Debug("search complete", "groups", len(groupIDs), "matches", len(matches))
	monitor.Finish(matches)
	return matches, nil
}

// Recent returns up to limit topics in scope that satisfy predicate,
// newest chunk first.
func (r *Retriever) Recent(ctx context.Context, scope Scope, predicate Predicate, limit int) ([]*core.KBTopicRecord, error) {
	groupIDs, err := validate(scope, limit)
	if err != nil {
		return nil, err
	}
	return r.topics.RecentTopics(ctx, groupIDs, predicate, limit)
}

func validate(scope Scope, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	groupIDs := scope.GroupIDs()
	if len(groupIDs) == 0 {
		return nil, ErrEmptyScope
	}
	return groupIDs, nil
}
