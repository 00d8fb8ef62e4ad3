package deid

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/poiesic/tripkb/core"
)

// BotToken is the token reserved for the bot's own identifier.
const BotToken = "bot"

const tokenPrefix = "user_"

var (
	mentionPattern = regexp.MustCompile(`@(\d+)`)
	tokenPattern   = regexp.MustCompile(`@user_\d+`)
)

// SpeakerMapping is a bijection between real identifiers and tokens.
type SpeakerMapping struct {
	toToken  map[string]string
	toReal   map[string]string
	order    []string
	replacer *strings.Replacer
}

// BuildMapping assigns tokens to every sender of messages in first-seen
// order, then to every @<digits> mention that has not been seen yet.
// botID, when set, is mapped to BotToken and never consumes a number.
func BuildMapping(messages []core.Message, botID string) *SpeakerMapping {
	m := &SpeakerMapping{
		toToken: make(map[string]string),
		toReal:  make(map[string]string),
	}
	if botID != "" {
		m.toToken[botID] = BotToken
		m.toReal[BotToken] = botID
		m.order = append(m.order, botID)
	}

	for _, msg := range messages {
		m.assign(msg.SenderID)
	}
	for _, msg := range messages {
		for _, match := range mentionPattern.FindAllStringSubmatch(msg.Text, -1) {
			m.assign(match[1])
		}
	}

	// Longest identifiers first so @123 never shadows @1234.
	keys := slices.Clone(m.order)
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	pairs := make([]string, 0, len(keys)*2)
	for _, id := range keys {
		pairs = append(pairs, "@"+id, "@"+m.toToken[id])
	}
	m.replacer = strings.NewReplacer(pairs...)
	return m
}

func (m *SpeakerMapping) assign(id string) {
	if id == "" {
		return
	}
	if _, ok := m.toToken[id]; ok {
		return
	}
	n := len(m.order) + 1
	if _, ok := m.toReal[BotToken]; ok {
		n--
	}
	token := tokenPrefix + strconv.Itoa(n)
	m.toToken[id] = token
	m.toReal[token] = id
	m.order = append(m.order, id)
}

// Token returns the token assigned to a real identifier.
func (m *SpeakerMapping) Token(id string) (string, bool) {
	t, ok := m.toToken[id]
	return t, ok
}

// Real returns the real identifier behind a token.
func (m *SpeakerMapping) Real(token string) (string, bool) {
	r, ok := m.toReal[token]
	return r, ok
}

// Len returns the number of mapped identifiers, the bot included.
func (m *SpeakerMapping) Len() int {
	return len(m.order)
}

// Anonymize replaces every @<real-id> in text with @<token>. All
// replacements are made against the original text in a single pass.
func (m *SpeakerMapping) Anonymize(text string) string {
	return m.replacer.Replace(text)
}

// Deanonymize rewrites @user_<n> tokens in the topic's subject and summary
// back to real identifiers. It returns the rewritten topic and the real
// identifiers that were referenced, in first-reference order. Tokens the
// mapping does not know are left untouched.
func (m *SpeakerMapping) Deanonymize(topic core.Topic) (core.Topic, []string) {
	text := topic.Subject + "\n" + topic.Summary
	reverse := m.referenced(text)

	speakers := make([]string, 0, len(reverse))
	seen := make(map[string]bool, len(reverse))
	for _, token := range tokenPattern.FindAllString(text, -1) {
		id, ok := reverse[token]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		speakers = append(speakers, id)
	}

	rewrite := func(s string) string {
		return tokenPattern.ReplaceAllStringFunc(s, func(token string) string {
			if id, ok := reverse[token]; ok {
				return "@" + id
			}
			return token
		})
	}
	topic.Subject = rewrite(topic.Subject)
	topic.Summary = rewrite(topic.Summary)
	return topic, speakers
}

// referenced builds the minimal reverse map, keyed by "@user_<n>", for the
// tokens present in text.
func (m *SpeakerMapping) referenced(text string) map[string]string {
	reverse := make(map[string]string)
	for _, token := range tokenPattern.FindAllString(text, -1) {
		if id, ok := m.toReal[strings.TrimPrefix(token, "@")]; ok {
			reverse[token] = id
		}
	}
	return reverse
}
