package core

import (
	"testing"
	"time"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same ID", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)
			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestTopicID(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("stable for identical key", func(t *testing.T) {
		if TopicID("g1", start, "Dinner plans") != TopicID("g1", start, "Dinner plans") {
			t.Error("TopicID() not stable")
		}
	})

	t.Run("timezone does not change the id", func(t *testing.T) {
		local := start.In(time.FixedZone("IST", 2*60*60))
		if TopicID("g1", start, "Dinner plans") != TopicID("g1", local, "Dinner plans") {
			t.Error("TopicID() depends on location of the timestamp")
		}
	})

	t.Run("each key part matters", func(t *testing.T) {
		base := TopicID("g1", start, "Dinner plans")
		variants := []ID{
			TopicID("g2", start, "Dinner plans"),
			TopicID("g1", start.Add(time.Second), "Dinner plans"),
			TopicID("g1", start, "Dinner plan"),
		}
		for i, v := range variants {
			if v == base {
				t.Errorf("variant %d collided with base id", i)
			}
		}
	})

	t.Run("separator prevents concatenation collisions", func(t *testing.T) {
		if TopicID("g1", start, "ab") == TopicID("g1a", start, "b") {
			t.Error("TopicID() collided across key boundaries")
		}
	})
}

func TestTopicDocument(t *testing.T) {
	topic := Topic{Subject: "Hotel", Summary: "@user_1 booked it"}
	if got, want := topic.Document(), "# Hotel\n@user_1 booked it"; got != want {
		t.Errorf("Document() = %q, want %q", got, want)
	}
}

func TestNewKBTopicRecord(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	date := "2025-03-04"

	t.Run("encodes present sub-objects", func(t *testing.T) {
		topic := Topic{
			Subject:   "Flights",
			Summary:   "@111 booked the flight",
			Locations: []Location{{Name: "Lisbon", Type: "city", Context: LocationPlanned}},
			Events:    []Event{{Title: "Flight to Lisbon", Date: &date, Type: "flight", Context: "confirmed"}},
			Sentiment: &Sentiment{Overall: "positive", Excitement: 0.9, Concern: 0.1, Agreement: 0.8},
		}
		record, err := NewKBTopicRecord("g1", start, topic, []string{"111", "222"}, []float32{1, 0})
		if err != nil {
			t.Fatalf("NewKBTopicRecord() error = %v", err)
		}
		if record.Id != TopicID("g1", start, "Flights") {
			t.Error("record id does not follow TopicID")
		}
		if record.Speakers != "111,222" {
			t.Errorf("Speakers = %q", record.Speakers)
		}
		if record.Preferences != "" {
			t.Errorf("Preferences = %q, want absent", record.Preferences)
		}

		locations, err := record.DecodeLocations()
		if err != nil || len(locations) != 1 || locations[0].Name != "Lisbon" {
			t.Errorf("DecodeLocations() = %v, %v", locations, err)
		}
		events, err := record.DecodeEvents()
		if err != nil || len(events) != 1 || *events[0].Date != date || events[0].Time != nil {
			t.Errorf("DecodeEvents() = %v, %v", events, err)
		}
		sentiment, err := record.DecodeSentiment()
		if err != nil || sentiment == nil || sentiment.Excitement != 0.9 {
			t.Errorf("DecodeSentiment() = %v, %v", sentiment, err)
		}
	})

	t.Run("absent fields decode empty", func(t *testing.T) {
		record, err := NewKBTopicRecord("g1", start, Topic{Subject: "Chat"}, nil, nil)
		if err != nil {
			t.Fatalf("NewKBTopicRecord() error = %v", err)
		}
		if record.SpeakerList() != nil {
			t.Errorf("SpeakerList() = %v, want nil", record.SpeakerList())
		}
		prefs, err := record.DecodePreferences()
		if err != nil || prefs != nil {
			t.Errorf("DecodePreferences() = %v, %v", prefs, err)
		}
		sentiment, err := record.DecodeSentiment()
		if err != nil || sentiment != nil {
			t.Errorf("DecodeSentiment() = %v, %v", sentiment, err)
		}
	})

	t.Run("malformed stored json reports an error", func(t *testing.T) {
		record := &KBTopicRecord{Locations: "{not json"}
		if _, err := record.DecodeLocations(); err == nil {
			t.Error("DecodeLocations() expected error")
		}
	})
}
