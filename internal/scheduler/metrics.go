package scheduler

import (
	"sync"
	"time"
)

// Skip reason codes recorded when a tick does not send.
const (
	ReasonCooldownActive      = "cooldown_active"
	ReasonNotRecording        = "not_recording"
	ReasonNoStudents          = "no_students"
	ReasonDisabled            = "disabled"
	ReasonQuotaExhausted      = "quota_exhausted"
	ReasonInsufficientContent = "insufficient_content"
	ReasonLowQuality          = "low_quality"
)

// SkipReason records one skipped tick.
type SkipReason struct {
	At     time.Time `json:"at"`
	Code   string    `json:"code"`
	Detail string    `json:"detail"`
}

// Metrics accumulates per-session scheduler outcomes. It lives for the
// duration of one recording session and resets when the session stops.
type Metrics struct {
	mu          sync.Mutex
	sentCount   int
	skipCount   int
	qualitySum  float64
	skipReasons []SkipReason
}

// RecordSent counts one sent question and folds its quality score into
// the running mean.
func (m *Metrics) RecordSent(quality float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentCount++
	m.qualitySum += quality
}

// RecordSkip counts one skipped tick with its first failing gate.
func (m *Metrics) RecordSkip(at time.Time, code, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipCount++
	m.skipReasons = append(m.skipReasons, SkipReason{At: at, Code: code, Detail: detail})
}

// Sent returns the sent-question count.
func (m *Metrics) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sentCount
}

// Skipped returns the skipped-tick count.
func (m *Metrics) Skipped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skipCount
}

// AverageQuality returns the running mean quality of sent questions,
// zero when nothing has been sent.
func (m *Metrics) AverageQuality() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sentCount == 0 {
		return 0
	}
	return m.qualitySum / float64(m.sentCount)
}

// SkipReasons returns the ordered skip history.
func (m *Metrics) SkipReasons() []SkipReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SkipReason, len(m.skipReasons))
	copy(out, m.skipReasons)
	return out
}

// Reset clears all counters for a new session.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentCount = 0
	m.skipCount = 0
	m.qualitySum = 0
	m.skipReasons = nil
}
