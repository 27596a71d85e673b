// Package voice detects instructor trigger phrases inside the growing
// transcript buffer.
package voice

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
)

// DefaultTriggerPhrases are near-duplicate phrasings of the insert
// command, tolerating transcription variance. All matching happens on
// normalized text.
var DefaultTriggerPhrases = []string{
	"insert a question",
	"insert question",
	"inserta question",
	"add a question",
	"add a question here",
	"ask a question now",
	"question checkpoint",
}

// scanOverlap is how far back before the last scanned offset a check
// reaches, so a phrase split across two transcript events still matches.
const scanOverlap = 64

// Detector scans the transcript buffer for trigger phrases. On a match it
// fires once, then suppresses further matches for the debounce window.
// The matched text is never removed from the buffer; it stays part of the
// lecture content used for question context.
type Detector struct {
	mu        sync.Mutex
	phrases   []string
	debounce  time.Duration
	lastFired time.Time
	scanFrom  int  // byte offset into the raw buffer already covered
	overlap   bool // rescan the trailing overlap; off right after a match
	now       func() time.Time
}

// NewDetector creates a detector. Empty phrases selects the defaults.
func NewDetector(phrases []string, debounce time.Duration) *Detector {
	if len(phrases) == 0 {
		phrases = DefaultTriggerPhrases
	}
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := Normalize(p); n != "" {
			normalized = append(normalized, n)
		}
	}
	return &Detector{
		phrases:  normalized,
		debounce: debounce,
		now:      time.Now,
	}
}

// Check scans the buffer for a trigger phrase and reports whether the
// command should fire. At most one fire per debounce window.
func (d *Detector) Check(buffer string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.now().Sub(d.lastFired) < d.debounce {
		return false
	}

	start := d.scanFrom
	if d.overlap {
		// Reach back so a phrase split across two transcript events
		// still matches. Skipped right after a fire so the consumed
		// utterance cannot re-trigger.
		start -= scanOverlap
	}
	if start < 0 || start > len(buffer) {
		start = 0
	}

	region := Normalize(buffer[start:])
	for _, phrase := range d.phrases {
		if strings.Contains(region, phrase) {
			d.lastFired = d.now()
			d.scanFrom = len(buffer)
			d.overlap = false
			slog.Info("voice command detected", "phrase", phrase)
			return true
		}
	}

	d.scanFrom = len(buffer)
	d.overlap = true
	return false
}

// Reset re-arms the detector for a new recording session.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastFired = time.Time{}
	d.scanFrom = 0
	d.overlap = false
}

// Normalize lowercases text and strips punctuation, collapsing runs of
// whitespace to single spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			space = false
		case unicode.IsSpace(r):
			if !space {
				b.WriteByte(' ')
				space = true
			}
		default:
			// punctuation dropped entirely
		}
	}
	return strings.TrimRight(b.String(), " ")
}
