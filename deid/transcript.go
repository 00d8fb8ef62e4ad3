package deid

import (
	"strings"
	"time"

	"github.com/poiesic/tripkb/core"
)

const unknownToken = "unknown"

// Transcript renders messages as "<timestamp>: @<token>: <text>" lines
// with identifiers anonymized. Messages without text are skipped.
func Transcript(messages []core.Message, mapping *SpeakerMapping) string {
	var b strings.Builder
	for _, msg := range messages {
		if msg.Text == "" {
			continue
		}
		token, ok := mapping.Token(msg.SenderID)
		if !ok {
			token = unknownToken
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(msg.Timestamp.UTC().Format(time.RFC3339))
		b.WriteString(": @")
		b.WriteString(token)
		b.WriteString(": ")
		b.WriteString(mapping.Anonymize(msg.Text))
	}
	return b.String()
}
