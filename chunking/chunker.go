package chunking

import (
	"slices"
	"time"

	"github.com/poiesic/tripkb/core"
)

// Options controls segmentation.
type Options struct {
	// GapHours starts a new segment when consecutive messages are at least
	// this many hours apart.
	GapHours float64

	// MinSize is the size a merged segment must reach before it is flushed.
	MinSize int

	// MaxSize caps a segment; longer segments are cut into MaxSize windows.
	// Zero or negative disables splitting.
	MaxSize int

	// Overlap is the number of trailing messages of the previous segment
	// prepended to each following segment as context.
	Overlap int
}

// DefaultOptions returns the segmentation settings used by ingestion.
func DefaultOptions() Options {
	return Options{
		GapHours: 2.0,
		MinSize:  25,
		MaxSize:  200,
		Overlap:  5,
	}
}

// Chunk is one unit of extraction. Messages holds the overlap prefix
// followed by the chunk's own messages.
type Chunk struct {
	Messages  []core.Message
	Overlap   int       // Number of leading messages borrowed from the previous chunk
	StartTime time.Time // Timestamp of the first non-overlap message
}

// Own returns the messages that belong to this chunk, without overlap.
func (c Chunk) Own() []core.Message {
	return c.Messages[c.Overlap:]
}

// MessageIDs returns the IDs of every message in the chunk, overlap included.
func (c Chunk) MessageIDs() []string {
	ids := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		ids[i] = m.ID
	}
	return ids
}

// EndTime returns the timestamp of the last message in the chunk.
func (c Chunk) EndTime() time.Time {
	return c.Messages[len(c.Messages)-1].Timestamp
}

// Segment sorts messages by timestamp and cuts them into chunks.
// The input slice is not modified.
func Segment(messages []core.Message, opts Options) []Chunk {
	if len(messages) == 0 {
		return nil
	}

	sorted := slices.Clone(messages)
	slices.SortStableFunc(sorted, func(a, b core.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	// Too little history to bother: one chunk, no splitting, no overlap.
	if len(sorted) < opts.MinSize {
		return []Chunk{newChunk(sorted, 0)}
	}

	segments := splitOnGaps(sorted, opts.GapHours)
	segments = mergeSmall(segments, opts.MinSize)
	segments = splitLarge(segments, opts.MaxSize)
	return addOverlap(segments, opts.Overlap)
}

// splitOnGaps starts a new segment whenever two consecutive messages are
// gapHours or more apart.
func splitOnGaps(sorted []core.Message, gapHours float64) [][]core.Message {
	var segments [][]core.Message
	start := 0
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Timestamp.Sub(sorted[i-1].Timestamp).Hours() >= gapHours {
			segments = append(segments, sorted[start:i])
			start = i
		}
	}
	return append(segments, sorted[start:])
}

// mergeSmall accumulates segments into a buffer. The buffer grows while it
// is under minSize; once it has reached minSize the next segment flushes it
// and starts a new buffer. The leftover buffer is always flushed.
func mergeSmall(segments [][]core.Message, minSize int) [][]core.Message {
	var merged [][]core.Message
	var buffer []core.Message
	for _, segment := range segments {
		if len(buffer) < minSize {
			buffer = append(buffer, segment...)
			continue
		}
		merged = append(merged, buffer)
		buffer = slices.Clone(segment)
	}
	if len(buffer) > 0 {
		merged = append(merged, buffer)
	}
	return merged
}

// splitLarge cuts segments longer than maxSize into maxSize windows with a
// trailing remainder.
func splitLarge(segments [][]core.Message, maxSize int) [][]core.Message {
	if maxSize <= 0 {
		return segments
	}
	var out [][]core.Message
	for _, segment := range segments {
		for len(segment) > maxSize {
			out = append(out, segment[:maxSize])
			segment = segment[maxSize:]
		}
		if len(segment) > 0 {
			out = append(out, segment)
		}
	}
	return out
}

// addOverlap prepends the tail of each post-split segment to its successor.
func addOverlap(segments [][]core.Message, overlap int) []Chunk {
	chunks := make([]Chunk, 0, len(segments))
	for i, segment := range segments {
		if i == 0 || overlap <= 0 {
			chunks = append(chunks, newChunk(segment, 0))
			continue
		}
		prev := segments[i-1]
		tail := prev[max(0, len(prev)-overlap):]
		msgs := make([]core.Message, 0, len(tail)+len(segment))
		msgs = append(msgs, tail...)
		msgs = append(msgs, segment...)
		chunks = append(chunks, newChunk(msgs, len(tail)))
	}
	return chunks
}

func newChunk(msgs []core.Message, overlap int) Chunk {
	own := slices.Clone(msgs)
	return Chunk{
		Messages:  own,
		Overlap:   overlap,
		StartTime: own[overlap].Timestamp,
	}
}
