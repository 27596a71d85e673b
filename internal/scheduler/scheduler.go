// Package scheduler evaluates, on a fixed cadence, whether the content
// accumulated since the last interval boundary warrants an automatic
// question, gated by recording state, audience, quota, cooldown, and a
// content quality heuristic.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/classlive/platform/internal/observability/metrics"
	"github.com/classlive/platform/internal/question"
)

// ContentSource exposes the transcript accumulated since the last
// consumed interval.
type ContentSource interface {
	IntervalContent() string
	ConsumeInterval() string
}

// SendFunc requests generation and delivery of one question from the
// given interval content.
type SendFunc func(ctx context.Context, content string) error

// Config holds scheduler gate thresholds.
type Config struct {
	Enabled          bool
	MinIntervalChars int
	MinQualityScore  float64
}

// Scheduler is the auto-question trigger. Each Tick walks an ordered
// gate list; the first failing gate decides the skip reason and later
// gates are not evaluated.
type Scheduler struct {
	cfg      Config
	limiter  *question.Limiter
	source   ContentSource
	send     SendFunc
	metrics  *Metrics
	prom     *metrics.Metrics
	students func() int
	record   func() bool
	now      func() time.Time
}

// New creates a scheduler. The students and recording callbacks are
// consulted on every tick.
func New(cfg Config, limiter *question.Limiter, source ContentSource, send SendFunc, students func() int, recording func() bool) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		limiter:  limiter,
		source:   source,
		send:     send,
		metrics:  &Metrics{},
		prom:     metrics.Default,
		students: students,
		record:   recording,
		now:      time.Now,
	}
}

// Metrics returns the per-session outcome counters.
func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// SetEnabled toggles the instructor-facing feature flag.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.cfg.Enabled = enabled
}

// Tick evaluates the gates once. A skip is a normal steady-state
// outcome, not an error; only the send path can return one.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()

	if remaining := s.limiter.CooldownRemaining(); remaining > 0 {
		s.skip(now, ReasonCooldownActive, fmt.Sprintf("Cooldown active, %ds remaining", int(remaining.Seconds()+0.5)))
		return nil
	}
	if !s.record() {
		s.skip(now, ReasonNotRecording, "Recording is not active")
		return nil
	}
	if s.students() == 0 {
		s.skip(now, ReasonNoStudents, "No students connected")
		return nil
	}
	if !s.cfg.Enabled {
		s.skip(now, ReasonDisabled, "Auto questions disabled by instructor")
		return nil
	}
	if s.limiter.QuotaExhausted() {
		s.skip(now, ReasonQuotaExhausted, "Daily quota reached")
		return nil
	}

	content := s.source.IntervalContent()
	if len(content) < s.cfg.MinIntervalChars {
		s.skip(now, ReasonInsufficientContent,
			fmt.Sprintf("Interval content %d chars, need %d", len(content), s.cfg.MinIntervalChars))
		return nil
	}

	quality := QualityScore(content)
	if quality < s.cfg.MinQualityScore {
		s.skip(now, ReasonLowQuality,
			fmt.Sprintf("Quality %.2f below threshold %.2f", quality, s.cfg.MinQualityScore))
		return nil
	}

	// All gates passed. Acquire arms the shared cooldown and counts
	// against the daily quota before anything is sent, so a voice or
	// manual trigger racing this tick is gated by the cooldown.
	if err := s.limiter.Acquire(); err != nil {
		s.skip(now, ReasonCooldownActive, "Lost the cooldown race to another trigger")
		return nil
	}

	content = s.source.ConsumeInterval()
	s.metrics.RecordSent(quality)
	s.prom.QuestionsSent.WithLabelValues("auto").Inc()
	slog.Info("auto question triggered", "quality", quality, "chars", len(content))

	if err := s.send(ctx, content); err != nil {
		slog.Warn("auto question send failed", "error", err)
		return err
	}
	return nil
}

func (s *Scheduler) skip(at time.Time, code, detail string) {
	s.metrics.RecordSkip(at, code, detail)
	s.prom.QuestionsSkipped.WithLabelValues(code).Inc()
	slog.Debug("auto question skipped", "reason", code, "detail", detail)
}
