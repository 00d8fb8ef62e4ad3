package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress writes a single updating status line for a re-embedding pass.
type Progress struct {
	mu       sync.Mutex
	w        io.Writer
	total    int
	done     int
	every    int
	reported int
	started  time.Time
	now      func() time.Time
}

// NewProgress reports to w after every `every` topics out of total.
// An interval below one reports on every update.
func NewProgress(w io.Writer, total, every int) *Progress {
	if every < 1 {
		every = 1
	}
	return &Progress{w: w, total: total, every: every, now: time.Now}
}

// Start resets the counters and the clock.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = p.now()
	p.done = 0
	p.reported = 0
}

// Add records n more topics as done, clamped to the total.
func (p *Progress) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return
	}
	p.done = min(p.done+n, p.total)
	if p.done-p.reported >= p.every {
		p.line()
		p.reported = p.done
	}
}

// Finish writes the final line followed by a newline.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return
	}
	p.line()
	fmt.Fprintln(p.w)
}

// Done returns the number of topics recorded so far.
func (p *Progress) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Elapsed returns the time since Start, or zero before it.
func (p *Progress) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return 0
	}
	return p.now().Sub(p.started)
}

// Must hold mu.
func (p *Progress) line() {
	pct := 100.0
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total) * 100
	}
	rate := 0.0
	if secs := p.now().Sub(p.started).Seconds(); secs > 0 {
		rate = float64(p.done) / secs
	}
	fmt.Fprintf(p.w, "\rRe-embedded %d/%d topics (%.1f%%), %.1f topics/s", p.done, p.total, pct, rate)
}
