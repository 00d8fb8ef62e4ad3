package chunking

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/poiesic/tripkb/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func atHours(hours ...float64) []core.Message {
	msgs := make([]core.Message, len(hours))
	for i, h := range hours {
		msgs[i] = core.Message{
			ID:        fmt.Sprintf("m%d", i),
			GroupID:   "g1",
			SenderID:  "111",
			Timestamp: epoch.Add(time.Duration(h * float64(time.Hour))),
			Text:      fmt.Sprintf("message %d", i),
		}
	}
	return msgs
}

func ids(msgs []core.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestSegment_Empty(t *testing.T) {
	assert.Empty(t, Segment(nil, DefaultOptions()))
	assert.Empty(t, Segment([]core.Message{}, DefaultOptions()))
}

func TestSegment_BelowMinSize(t *testing.T) {
	msgs := atHours(0, 10, 20)
	chunks := Segment(msgs, Options{GapHours: 2, MinSize: 5, MaxSize: 2, Overlap: 1})

	require.Len(t, chunks, 1, "small input stays in one chunk")
	assert.Equal(t, []string{"m0", "m1", "m2"}, ids(chunks[0].Messages))
	assert.Equal(t, 0, chunks[0].Overlap)
	assert.Equal(t, msgs[0].Timestamp, chunks[0].StartTime)
}

func TestSegment_MergeScenario(t *testing.T) {
	msgs := atHours(0, 1, 2, 3, 50)
	chunks := Segment(msgs, Options{GapHours: 2, MinSize: 3, MaxSize: 200, Overlap: 5})

	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"m0", "m1", "m2", "m3"}, ids(chunks[0].Messages))
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, ids(chunks[1].Messages))
	assert.Equal(t, 4, chunks[1].Overlap)
	assert.Equal(t, []string{"m4"}, ids(chunks[1].Own()))
	assert.Equal(t, msgs[4].Timestamp, chunks[1].StartTime, "start time ignores overlap")
}

func TestSegment_ShortBurstsCoalesce(t *testing.T) {
	// Three gap-separated bursts of two; the first two merge to reach MinSize.
	msgs := atHours(0, 0.1, 5, 5.1, 10, 10.1)
	chunks := Segment(msgs, Options{GapHours: 2, MinSize: 3, MaxSize: 100, Overlap: 0})

	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"m0", "m1", "m2", "m3"}, ids(chunks[0].Messages))
	assert.Equal(t, []string{"m4", "m5"}, ids(chunks[1].Messages))
}

func TestSegment_GapThresholdInclusive(t *testing.T) {
	msgs := atHours(0, 2, 4)
	segments := splitOnGaps(msgs, 2)
	assert.Len(t, segments, 3, "a gap exactly equal to the threshold splits")

	segments = splitOnGaps(atHours(0, 1.99, 3.98), 2)
	assert.Len(t, segments, 1)
}

func TestSegment_SplitLarge(t *testing.T) {
	hours := make([]float64, 7)
	for i := range hours {
		hours[i] = float64(i) * 0.01
	}
	chunks := Segment(atHours(hours...), Options{GapHours: 2, MinSize: 2, MaxSize: 3, Overlap: 2})

	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"m0", "m1", "m2"}, ids(chunks[0].Messages))
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, ids(chunks[1].Messages))
	assert.Equal(t, []string{"m4", "m5", "m6"}, ids(chunks[2].Messages))
	assert.Equal(t, 2, chunks[2].Overlap)
}

func TestSegment_SortsStably(t *testing.T) {
	msgs := atHours(3, 0, 0, 1)
	msgs[1].ID, msgs[2].ID = "first", "second"
	chunks := Segment(msgs, Options{GapHours: 2, MinSize: 10, MaxSize: 10})

	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"first", "second", "m3", "m0"}, ids(chunks[0].Messages))
	assert.Equal(t, "m0", msgs[0].ID, "input is not reordered")
}

func TestSegment_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(400)
		hours := make([]float64, n)
		cur := 0.0
		for i := range hours {
			if rng.Intn(10) == 0 {
				cur += 1 + rng.Float64()*6
			} else {
				cur += rng.Float64() * 0.2
			}
			hours[i] = cur
		}
		opts := Options{
			GapHours: 2,
			MinSize:  1 + rng.Intn(30),
			Overlap:  rng.Intn(6),
		}
		opts.MaxSize = opts.MinSize + rng.Intn(60)
		msgs := atHours(hours...)

		chunks := Segment(msgs, opts)

		t.Run(fmt.Sprintf("case %d", iter), func(t *testing.T) {
			// Total coverage: own portions reproduce the input exactly once.
			var covered []string
			for _, c := range chunks {
				covered = append(covered, ids(c.Own())...)
				assert.Equal(t, c.Own()[0].Timestamp, c.StartTime)
				if n >= opts.MinSize {
					assert.LessOrEqual(t, len(c.Own()), opts.MaxSize)
				}
			}
			if n == 0 {
				assert.Empty(t, covered)
			} else {
				assert.Equal(t, ids(msgs), covered)
			}

			if n < opts.MinSize {
				return
			}

			// Size law on merged segments.
			merged := mergeSmall(splitOnGaps(msgs, opts.GapHours), opts.MinSize)
			for i, seg := range merged[:len(merged)-1] {
				assert.GreaterOrEqual(t, len(seg), opts.MinSize, "segment %d", i)
			}

			// Gap law.
			gaps := splitOnGaps(msgs, opts.GapHours)
			for i := 1; i < len(gaps); i++ {
				last := gaps[i-1][len(gaps[i-1])-1]
				first := gaps[i][0]
				assert.GreaterOrEqual(t, first.Timestamp.Sub(last.Timestamp).Hours(), opts.GapHours)
			}
		})
	}
}

func TestChunk_MessageIDs(t *testing.T) {
	chunks := Segment(atHours(0, 1, 2, 3, 50), Options{GapHours: 2, MinSize: 3, MaxSize: 200, Overlap: 1})
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"m3", "m4"}, chunks[1].MessageIDs())
	assert.Equal(t, chunks[1].Messages[1].Timestamp, chunks[1].EndTime())
}
