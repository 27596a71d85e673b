// Package transcript accumulates finalized lecture transcription for the
// lifetime of a recording session.
package transcript

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Entry is one finalized transcript event.
type Entry struct {
	Timestamp  time.Time
	Text       string
	Confidence float64
}

// Accumulator is an append-only transcript buffer. A single writer (the
// session pump) appends finalized text; the voice detector and the
// auto-question scheduler read from it. The buffer only shrinks on an
// explicit session Reset.
type Accumulator struct {
	mu            sync.RWMutex
	buf           strings.Builder
	entries       []Entry
	intervalStart int // byte offset of content not yet consumed by the scheduler
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append stores a finalized transcript. Interim results must not be
// appended; they are display-only.
func (a *Accumulator) Append(text string, confidence float64) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.buf.Len() > 0 {
		a.buf.WriteByte(' ')
	}
	a.buf.WriteString(text)
	a.entries = append(a.entries, Entry{
		Timestamp:  time.Now(),
		Text:       text,
		Confidence: confidence,
	})
}

// Snapshot returns the full accumulated transcript.
func (a *Accumulator) Snapshot() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.buf.String()
}

// Len returns the accumulated transcript length in bytes.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.buf.Len()
}

// Tail returns the last n bytes of the transcript, adjusted backward to a
// rune boundary so multi-byte characters are never split.
func (a *Accumulator) Tail(n int) string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.buf.String()
	if n >= len(s) {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// IntervalContent returns text accumulated since the last ConsumeInterval.
func (a *Accumulator) IntervalContent() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.buf.String()[a.intervalStart:]
}

// ConsumeInterval returns the unconsumed text and marks the current
// buffer end as the start of the next scheduler interval. The text
// itself is retained in the buffer for question context.
func (a *Accumulator) ConsumeInterval() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	content := a.buf.String()[a.intervalStart:]
	a.intervalStart = a.buf.Len()
	return content
}

// Reset clears the buffer for a new recording session.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Reset()
	a.entries = nil
	a.intervalStart = 0
}

// Entries returns a copy of all entries.
func (a *Accumulator) Entries() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make([]Entry, len(a.entries))
	copy(result, a.entries)
	return result
}
