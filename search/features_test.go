package search

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/tripkb/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetriever_Locations(t *testing.T) {
	f := newFixture(t, &core.Group{ID: "a"})
	f.add(t, "a", "dinner", 0, func(r *core.KBTopicRecord) {
		r.Speakers = "alice,bob"
		r.Locations = `[{"name":"Time Out Market","type":"food hall","context":"recommended"},
			{"name":"LX Factory","type":"market","context":"planned"}]`
	})
	f.add(t, "a", "broken", 0.1, func(r *core.KBTopicRecord) { r.Locations = `[{"name":` })
	f.add(t, "a", "repeat", 0.2, func(r *core.KBTopicRecord) {
		r.Locations = `[{"name":"time out market","type":"food hall","context":"visited"},
			{"name":"Belem Tower","type":"landmark","context":"asked_about"}]`
	})
	f.add(t, "a", "no places", 0, nil)

	hits, err := f.retriever.Locations(context.Background(), "where to eat", Scope{GroupID: "a"})
	require.NoError(t, err)

	names := make([]string, len(hits))
	for i, h := range hits {
		names[i] = h.Name
	}
	assert.Equal(t, []string{"Time Out Market", "LX Factory", "Belem Tower"}, names)
	assert.Equal(t, core.LocationRecommended, hits[0].Context, "first-seen topic wins")
	assert.Equal(t, []string{"alice", "bob"}, hits[0].Speakers)
	assert.Equal(t, "about dinner", hits[0].Summary)
}

func TestRetriever_LocationsTopFive(t *testing.T) {
	f := newFixture(t, &core.Group{ID: "a"})
	f.add(t, "a", "many", 0, func(r *core.KBTopicRecord) {
		r.Locations = `[{"name":"1","type":"x","context":"visited"},{"name":"2","type":"x","context":"visited"},
			{"name":"3","type":"x","context":"visited"},{"name":"4","type":"x","context":"visited"},
			{"name":"5","type":"x","context":"visited"},{"name":"6","type":"x","context":"visited"}]`
	})

	hits, err := f.retriever.Locations(context.Background(), "q", Scope{GroupID: "a"})
	require.NoError(t, err)
	assert.Len(t, hits, locationResults)
}

func TestRetriever_Events(t *testing.T) {
	f := newFixture(t, &core.Group{ID: "a"})
	f.add(t, "a", "plans", 0, func(r *core.KBTopicRecord) {
		r.Events = `[{"title":"Fado night","date":null,"time":null,"type":"activity","context":"suggested"},
			{"title":"Flight home","date":"2025-06-20","time":"09:00","type":"flight","context":"confirmed"},
			{"title":"Sintra tour","date":"2025-06-14","time":null,"type":"tour","context":"tentative"}]`
	})
	f.add(t, "a", "more plans", 0.3, func(r *core.KBTopicRecord) {
		r.Events = `[{"title":"flight home","date":"2025-06-19","time":"10:00","type":"flight","context":"cancelled"},
			{"title":"Dinner","date":"2025-06-14","time":"20:00","type":"reservation","context":"confirmed"}]`
	})

	hits, err := f.retriever.Events(context.Background(), "schedule", Scope{GroupID: "a"})
	require.NoError(t, err)

	titles := make([]string, len(hits))
	for i, h := range hits {
		titles[i] = h.Title
	}
	assert.Equal(t, []string{"Dinner", "Sintra tour", "Flight home", "Fado night"}, titles)
	assert.Equal(t, "confirmed", hits[2].Context)
}

func TestRetriever_Preferences(t *testing.T) {
	f := newFixture(t, &core.Group{ID: "a"})
	f.add(t, "a", "food", 0, func(r *core.KBTopicRecord) {
		r.Preferences = `[{"category":"food","preference":"Vegetarian","sentiment":"positive","mentioned_by":"alice"},
			{"category":"food","preference":"vegetarian","sentiment":"positive","mentioned_by":"bob"}]`
	})
	f.add(t, "a", "food again", 0.1, func(r *core.KBTopicRecord) {
		r.Preferences = `[{"category":"food","preference":"vegetarian","sentiment":"positive","mentioned_by":"alice"},
			{"category":"budget","preference":"cheap","sentiment":"positive","mentioned_by":"alice"}]`
	})

	hits, err := f.retriever.Preferences(context.Background(), "food", Scope{GroupID: "a"})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "Vegetarian", hits[0].Preference.Preference)
	assert.Equal(t, "bob", hits[1].MentionedBy)
	assert.Equal(t, "cheap", hits[2].Preference.Preference)
}

func TestRetriever_PreferencesAcrossChunks(t *testing.T) {
	f := newFixture(t, &core.Group{ID: "a"})
	f.add(t, "a", "monday", 0, func(r *core.KBTopicRecord) {
		r.Preferences = `[{"category":"food","preference":"sushi","sentiment":"positive","mentioned_by":"@user_1"}]`
	})
	// A later chunk numbers its speakers afresh
	f.add(t, "a", "tuesday", 0.1, func(r *core.KBTopicRecord) {
		r.StartTime = start.Add(24 * time.Hour)
		r.Preferences = `[{"category":"food","preference":"Sushi","sentiment":"negative","mentioned_by":"@user_1"}]`
	})

	hits, err := f.retriever.Preferences(context.Background(), "food", Scope{GroupID: "a"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "positive", hits[0].Sentiment)
	assert.Equal(t, "negative", hits[1].Sentiment)
}

func addMood(t *testing.T, f *fixture, subject string, age time.Duration, sentiment string) {
	t.Helper()
	rec := f.add(t, "a", subject, 0, func(r *core.KBTopicRecord) {
		r.StartTime = start.Add(-age)
		r.Id = core.TopicID("a", r.StartTime, subject)
		r.Sentiment = sentiment
	})
	require.NotZero(t, rec.Id)
}

func TestRetriever_GroupMood(t *testing.T) {
	f := newFixture(t, &core.Group{ID: "a"})
	addMood(t, f, "hotel", time.Hour,
		`{"overall":"negative","excitement":0.1,"concern":0.9,"agreement":0.8,"key_emotions":["worried","frustrated"]}`)
	addMood(t, f, "flights", 2*time.Hour,
		`{"overall":"negative","excitement":0.2,"concern":0.8,"agreement":0.6,"key_emotions":["worried"]}`)
	addMood(t, f, "old", 48*time.Hour,
		`{"overall":"positive","excitement":0.9,"concern":0.5,"agreement":0.9,"key_emotions":["excited"]}`)
	addMood(t, f, "garbled", 3*time.Hour, `{"overall":`)

	mood, err := f.retriever.GroupMood(context.Background(), Scope{GroupID: "a"})
	require.NoError(t, err)
	require.NotNil(t, mood)

	require.Len(t, mood.Topics, 3)
	assert.Equal(t, "hotel", mood.Topics[0].Subject)
	assert.Equal(t, "old", mood.Topics[2].Subject)
	assert.InDelta(t, (0.9+0.8+0.5)/3, mood.AvgConcern, 1e-9)
	assert.InDelta(t, (0.8+0.6+0.9)/3, mood.AvgAgreement, 1e-9)
	assert.Equal(t, []string{"worried", "frustrated", "excited"}, mood.TopEmotions)
	assert.Equal(t, &Nudge{Kind: NudgeConcern, Subject: "hotel"}, mood.Nudge)
}

func TestSummarizeMood(t *testing.T) {
	assert.Nil(t, summarizeMood(nil))

	hit := func(subject string, concern, agreement float64) SentimentHit {
		return SentimentHit{Subject: subject, Sentiment: core.Sentiment{Concern: concern, Agreement: agreement}}
	}

	t.Run("disagreement", func(t *testing.T) {
		mood := summarizeMood([]SentimentHit{hit("budget", 0.2, 0.5), hit("dates", 0.1, 0.1), hit("hotel", 0.1, 0.2)})
		assert.Equal(t, &Nudge{Kind: NudgeDisagreement, Subject: "dates"}, mood.Nudge)
	})

	t.Run("calm group", func(t *testing.T) {
		mood := summarizeMood([]SentimentHit{hit("beach", 0.1, 0.9), hit("food", 0.3, 0.7)})
		assert.Nil(t, mood.Nudge)
	})

	t.Run("concern without a standout topic", func(t *testing.T) {
		mood := summarizeMood([]SentimentHit{hit("x", 0.71, 0.9)})
		assert.Equal(t, &Nudge{Kind: NudgeConcern, Subject: "x"}, mood.Nudge)
	})
}

func TestRetriever_ProactiveNudge(t *testing.T) {
	f := newFixture(t, &core.Group{ID: "a"})

	nudge, err := f.retriever.ProactiveNudge(context.Background(), Scope{GroupID: "a"})
	require.NoError(t, err)
	assert.Nil(t, nudge)

	addMood(t, f, "visa", time.Hour, `{"overall":"negative","excitement":0,"concern":0.95,"agreement":0.5,"key_emotions":[]}`)
	nudge, err = f.retriever.ProactiveNudge(context.Background(), Scope{GroupID: "a"})
	require.NoError(t, err)
	assert.Equal(t, &Nudge{Kind: NudgeConcern, Subject: "visa"}, nudge)
}

func TestRetriever_Recommendations(t *testing.T) {
	tripStart := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, &core.Group{ID: "a", Destination: "Lisbon", TripStart: tripStart, TripEnd: tripStart.AddDate(0, 0, 8)})
	f.add(t, "a", "food", 0, func(r *core.KBTopicRecord) {
		r.Preferences = `[{"category":"food","preference":"seafood","sentiment":"negative","mentioned_by":"alice"}]`
		r.Locations = `[{"name":"Cervejaria Ramiro","type":"restaurant","context":"warned_against"}]`
	})

	rec, err := f.retriever.Recommendations(context.Background(), "where should we eat", Scope{GroupID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", rec.Trip.Destination)
	assert.Equal(t, tripStart, rec.Trip.Start)
	require.Len(t, rec.Preferences, 1)
	require.Len(t, rec.Locations, 1)
	assert.Equal(t, core.LocationWarnedAgainst, rec.Locations[0].Context)

	t.Run("unregistered group has no trip context", func(t *testing.T) {
		rec, err := f.retriever.Recommendations(context.Background(), "q", Scope{GroupID: "ghost"})
		require.NoError(t, err)
		assert.Zero(t, rec.Trip)
		assert.Empty(t, rec.Locations)
	})
}
