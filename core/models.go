package core

import (
	"encoding/binary"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for persisted topics.
// It is derived from content so the same input always maps to the same ID.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// TopicID returns the identifier of a topic extracted from the chunk of
// groupID that starts at startTime. Re-extracting the same chunk with the
// same subject yields the same ID.
func TopicID(groupID string, startTime time.Time, subject string) ID {
	var b strings.Builder
	b.WriteString(groupID)
	b.WriteByte(0x1f)
	b.WriteString(strconv.FormatInt(startTime.UTC().UnixMicro(), 10))
	b.WriteByte(0x1f)
	b.WriteString(subject)
	return IDFromContent(b.String())
}

// Message is a single chat message as delivered by the transport.
// Messages are immutable once stored.
type Message struct {
	ID        string
	GroupID   string
	SenderID  string
	Timestamp time.Time
	Text      string // Empty when the message carried no text (media, reactions)
}

// Group is a managed chat group and its ingestion watermark.
type Group struct {
	ID            string
	Name          string
	Managed       bool
	CommunityKeys []string  // Groups sharing any key form one retrieval scope
	LastIngest    time.Time // Zero until the first successful ingestion
	Destination   string
	TripStart     time.Time
	TripEnd       time.Time
}

// Location contexts.
const (
	LocationRecommended   = "recommended"
	LocationWarnedAgainst = "warned_against"
	LocationVisited       = "visited"
	LocationPlanned       = "planned"
	LocationAskedAbout    = "asked_about"
)

// Location is a place mentioned in a topic.
type Location struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Context string `json:"context"`
}

// Event is a plan or booking mentioned in a topic.
// Date is YYYY-MM-DD and Time is HH:MM when known.
type Event struct {
	Title   string  `json:"title"`
	Date    *string `json:"date"`
	Time    *string `json:"time"`
	Type    string  `json:"type"`
	Context string  `json:"context"`
}

// Preference is something a group member likes or dislikes.
type Preference struct {
	Category    string `json:"category"`
	Preference  string `json:"preference"`
	Sentiment   string `json:"sentiment"`
	MentionedBy string `json:"mentioned_by"`
}

// Sentiment summarizes the mood of a topic. Scores are in [0,1].
type Sentiment struct {
	Overall     string   `json:"overall"`
	Excitement  float64  `json:"excitement"`
	Concern     float64  `json:"concern"`
	Agreement   float64  `json:"agreement"`
	KeyEmotions []string `json:"key_emotions"`
}

// Topic is one unit of knowledge extracted from a conversation chunk.
type Topic struct {
	Subject     string       `json:"subject"`
	Summary     string       `json:"summary"`
	Locations   []Location   `json:"locations"`
	Events      []Event      `json:"events"`
	Preferences []Preference `json:"preferences"`
	Sentiment   *Sentiment   `json:"sentiment"`
}

// Document returns the text that is embedded for the topic.
func (t *Topic) Document() string {
	return TopicDocument(t.Subject, t.Summary)
}

// TopicDocument formats a subject and summary the way topics are embedded.
func TopicDocument(subject, summary string) string {
	return "# " + subject + "\n" + summary
}

// KBTopicRecord is a topic as persisted in the knowledge store.
// Structured sub-objects are kept as JSON text; an empty string means absent.
type KBTopicRecord struct {
	Id          ID
	GroupID     string
	StartTime   time.Time
	Vector      []float32
	Speakers    string // Comma-joined real sender IDs referenced by the topic
	Subject     string
	Summary     string
	Locations   string
	Events      string
	Preferences string
	Sentiment   string
}

// NewKBTopicRecord freezes a de-anonymized topic into its persisted form.
func NewKBTopicRecord(groupID string, startTime time.Time, topic Topic, speakers []string, vector []float32) (*KBTopicRecord, error) {
	record := &KBTopicRecord{
		Id:        TopicID(groupID, startTime, topic.Subject),
		GroupID:   groupID,
		StartTime: startTime.UTC(),
		Vector:    vector,
		Speakers:  strings.Join(speakers, ","),
		Subject:   topic.Subject,
		Summary:   topic.Summary,
	}

	var err error
	if len(topic.Locations) > 0 {
		if record.Locations, err = encodeField(topic.Locations); err != nil {
			return nil, err
		}
	}
	if len(topic.Events) > 0 {
		if record.Events, err = encodeField(topic.Events); err != nil {
			return nil, err
		}
	}
	if len(topic.Preferences) > 0 {
		if record.Preferences, err = encodeField(topic.Preferences); err != nil {
			return nil, err
		}
	}
	if topic.Sentiment != nil {
		if record.Sentiment, err = encodeField(topic.Sentiment); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// SpeakerList splits the stored speaker field.
func (r *KBTopicRecord) SpeakerList() []string {
	if r.Speakers == "" {
		return nil
	}
	return strings.Split(r.Speakers, ",")
}

// DecodeLocations parses the stored locations. Absent fields decode to nil.
func (r *KBTopicRecord) DecodeLocations() ([]Location, error) {
	var out []Location
	return out, decodeField(r.Locations, &out)
}

// DecodeEvents parses the stored events.
func (r *KBTopicRecord) DecodeEvents() ([]Event, error) {
	var out []Event
	return out, decodeField(r.Events, &out)
}

// DecodePreferences parses the stored preferences.
func (r *KBTopicRecord) DecodePreferences() ([]Preference, error) {
	var out []Preference
	return out, decodeField(r.Preferences, &out)
}

// DecodeSentiment parses the stored sentiment. Returns nil when absent.
func (r *KBTopicRecord) DecodeSentiment() (*Sentiment, error) {
	if r.Sentiment == "" {
		return nil, nil
	}
	var out Sentiment
	if err := decodeField(r.Sentiment, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TopicMatch is a retrieval hit. Distance is the cosine distance to the query.
type TopicMatch struct {
	Record   *KBTopicRecord
	Distance float32
}

func encodeField(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeField(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
