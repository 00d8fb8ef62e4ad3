package search

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/storage"
)

// Feature limits and mood thresholds.
const (
	locationCandidates      = 10
	locationResults         = 5
	eventCandidates         = 15
	eventResults            = 10
	preferenceCandidates    = 20
	sentimentCandidates     = 10
	nudgeCandidates         = 5
	recommendationLocations = 10
	recommendationResults   = 8
	topEmotions             = 5
	concernNudgeThreshold   = 0.7
	concernTopicThreshold   = 0.6
	agreementNudgeThreshold = 0.3
	agreementTopicThreshold = 0.4
)

// LocationHit is a place found in a topic.
type LocationHit struct {
	core.Location
	TopicID  core.ID
	Summary  string
	Speakers []string
}

// EventHit is a plan found in a topic.
type EventHit struct {
	core.Event
	TopicID core.ID
	Summary string
}

// PreferenceHit is a member preference found in a topic. MentionedBy is the
// pseudonymous token of the chunk the topic was extracted from.
type PreferenceHit struct {
	core.Preference
	TopicID core.ID
}

// SentimentHit is the mood of one topic.
type SentimentHit struct {
	core.Sentiment
	TopicID   core.ID
	Subject   string
	StartTime time.Time
}

// NudgeKind names the reason a group might need help.
type NudgeKind string

const (
	NudgeConcern      NudgeKind = "concern"
	NudgeDisagreement NudgeKind = "disagreement"
)

// Nudge suggests the group needs support on Subject.
type Nudge struct {
	Kind    NudgeKind
	Subject string
}

// Mood aggregates the sentiment of a group's recent topics.
type Mood struct {
	Topics        []SentimentHit
	AvgExcitement float64
	AvgConcern    float64
	AvgAgreement  float64
	TopEmotions   []string // Most frequent key emotions, most common first
	Nudge         *Nudge   // Nil when nothing calls for intervention
}

// TripContext is what the group record says about the trip.
type TripContext struct {
	Destination string
	Start       time.Time
	End         time.Time
}

// Recommendation gathers what a recommender needs to know about a group.
type Recommendation struct {
	Trip        TripContext
	Preferences []PreferenceHit
	Locations   []LocationHit
}

// Locations returns the distinct places discussed in the topics most
// similar to query, de-duplicated by lower-cased name.
func (r *Retriever) Locations(ctx context.Context, query string, scope Scope) ([]LocationHit, error) {
	hits, err := r.locations(ctx, query, scope, locationCandidates)
	if err != nil {
		return nil, err
	}
	return truncate(hits, locationResults), nil
}

func (r *Retriever) locations(ctx context.Context, query string, scope Scope, candidates int) ([]LocationHit, error) {
	matches, err := r.SearchText(ctx, query, scope, HasLocations, candidates)
	if err != nil {
		return nil, err
	}

	var hits []LocationHit
	seen := make(map[string]bool)
	for _, match := range matches {
		locations, err := match.Record.DecodeLocations()
		if err != nil {
			r.skipMalformed(match.Record, "locations", err)
			continue
		}
		for _, l := range locations {
			key := strings.ToLower(l.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			hits = append(hits, LocationHit{
				Location: l,
				TopicID:  match.Record.Id,
				Summary:  match.Record.Summary,
				Speakers: match.Record.SpeakerList(),
			})
		}
	}
	return hits, nil
}

// Events returns the distinct plans discussed in the topics most similar to
// query, de-duplicated by lower-cased title and ordered by date then time.
// Events without a date sort last.
func (r *Retriever) Events(ctx context.Context, query string, scope Scope) ([]EventHit, error) {
	matches, err := r.SearchText(ctx, query, scope, HasEvents, eventCandidates)
	if err != nil {
		return nil, err
	}

	var hits []EventHit
	seen := make(map[string]bool)
	for _, match := range matches {
		events, err := match.Record.DecodeEvents()
		if err != nil {
			r.skipMalformed(match.Record, "events", err)
			continue
		}
		for _, e := range events {
			key := strings.ToLower(e.Title)
			if seen[key] {
				continue
			}
			seen[key] = true
			hits = append(hits, EventHit{Event: e, TopicID: match.Record.Id, Summary: match.Record.Summary})
		}
	}

	slices.SortStableFunc(hits, func(a, b EventHit) int {
		if c := compareOptional(a.Date, b.Date); c != 0 {
			return c
		}
		return compareOptional(a.Time, b.Time)
	})
	return truncate(hits, eventResults), nil
}

// compareOptional orders strings ascending with nil after every value.
func compareOptional(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*a, *b)
}

// Preferences returns the distinct preferences expressed in the topics most
// similar to query. Duplicates share category, lower-cased preference and
// speaker. Speaker tokens are only meaningful within one chunk, so
// preferences from different chunks are never merged.
func (r *Retriever) Preferences(ctx context.Context, query string, scope Scope) ([]PreferenceHit, error) {
	matches, err := r.SearchText(ctx, query, scope, HasPreferences, preferenceCandidates)
	if err != nil {
		return nil, err
	}

	var hits []PreferenceHit
	seen := make(map[preferenceKey]bool)
	for _, match := range matches {
		preferences, err := match.Record.DecodePreferences()
		if err != nil {
			r.skipMalformed(match.Record, "preferences", err)
			continue
		}
		for _, p := range preferences {
			key := preferenceKey{
				group:      match.Record.GroupID,
				start:      match.Record.StartTime.UnixMicro(),
				category:   p.Category,
				preference: strings.ToLower(p.Preference),
				speaker:    p.MentionedBy,
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			hits = append(hits, PreferenceHit{Preference: p, TopicID: match.Record.Id})
		}
	}
	return hits, nil
}

// preferenceKey identifies a preference within the chunk a topic came from.
type preferenceKey struct {
	group      string
	start      int64
	category   string
	preference string
	speaker    string
}

// Sentiments returns the sentiment of up to limit of the newest topics in scope.
func (r *Retriever) Sentiments(ctx context.Context, scope Scope, limit int) ([]SentimentHit, error) {
	records, err := r.Recent(ctx, scope, HasSentiment, limit)
	if err != nil {
		return nil, err
	}

	hits := make([]SentimentHit, 0, len(records))
	for _, record := range records {
		sentiment, err := record.DecodeSentiment()
		if err != nil {
			r.skipMalformed(record, "sentiment", err)
			continue
		}
		hits = append(hits, SentimentHit{
			Sentiment: *sentiment,
			TopicID:   record.Id,
			Subject:   record.Subject,
			StartTime: record.StartTime,
		})
	}
	return hits, nil
}

// GroupMood summarizes the sentiment of the group's recent topics. It
// returns a nil Mood when no recent topic carries sentiment.
func (r *Retriever) GroupMood(ctx context.Context, scope Scope) (*Mood, error) {
	hits, err := r.Sentiments(ctx, scope, sentimentCandidates)
	if err != nil {
		return nil, err
	}
	return summarizeMood(hits), nil
}

// ProactiveNudge checks the group's few latest topics for widespread
// concern or disagreement. It returns nil when the group seems fine.
func (r *Retriever) ProactiveNudge(ctx context.Context, scope Scope) (*Nudge, error) {
	hits, err := r.Sentiments(ctx, scope, nudgeCandidates)
	if err != nil {
		return nil, err
	}
	mood := summarizeMood(hits)
	if mood == nil {
		return nil, nil
	}
	return mood.Nudge, nil
}

func summarizeMood(hits []SentimentHit) *Mood {
	if len(hits) == 0 {
		return nil
	}

	mood := &Mood{Topics: hits}
	counts := make(map[string]int)
	var order []string
	for _, h := range hits {
		mood.AvgExcitement += h.Excitement
		mood.AvgConcern += h.Concern
		mood.AvgAgreement += h.Agreement
		for _, e := range h.KeyEmotions {
			if counts[e] == 0 {
				order = append(order, e)
			}
			counts[e]++
		}
	}
	n := float64(len(hits))
	mood.AvgExcitement /= n
	mood.AvgConcern /= n
	mood.AvgAgreement /= n

	slices.SortStableFunc(order, func(a, b string) int { return cmp.Compare(counts[b], counts[a]) })
	mood.TopEmotions = truncate(order, topEmotions)

	if mood.AvgConcern > concernNudgeThreshold {
		if i := slices.IndexFunc(hits, func(h SentimentHit) bool { return h.Concern > concernTopicThreshold }); i >= 0 {
			mood.Nudge = &Nudge{Kind: NudgeConcern, Subject: hits[i].Subject}
			return mood
		}
	}
	if mood.AvgAgreement < agreementNudgeThreshold {
		if i := slices.IndexFunc(hits, func(h SentimentHit) bool { return h.Agreement < agreementTopicThreshold }); i >= 0 {
			mood.Nudge = &Nudge{Kind: NudgeDisagreement, Subject: hits[i].Subject}
		}
	}
	return mood
}

// Recommendations gathers the group's trip context, stated preferences and
// the places most relevant to query.
func (r *Retriever) Recommendations(ctx context.Context, query string, scope Scope) (*Recommendation, error) {
	rec := &Recommendation{}

	group, err := r.groups.GetGroup(ctx, scope.GroupID)
	switch {
	case err == nil:
		rec.Trip = TripContext{Destination: group.Destination, Start: group.TripStart, End: group.TripEnd}
	case errors.Is(err, storage.ErrNotFound):
		r.logger.Debug("no trip context for group", "group", scope.GroupID)
	default:
		return nil, err
	}

	if rec.Preferences, err = r.Preferences(ctx, query, scope); err != nil {
		return nil, err
	}
	locations, err := r.locations(ctx, query, scope, recommendationLocations)
	if err != nil {
		return nil, err
	}
	rec.Locations = truncate(locations, recommendationResults)
	return rec, nil
}

func (r *Retriever) skipMalformed(record *core.KBTopicRecord, field string, err error) {
	r.logger.Warn("skipping topic with malformed field", "topic", record.Id, "field", field, "err", err)
}

func truncate[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
