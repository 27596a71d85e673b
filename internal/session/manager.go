// Package session owns the live lecture pipeline: it wires microphone
// capture into the relay stream, folds transcript events into the
// accumulator, and drives the voice, scheduled, and manual question
// paths through the shared limiter.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/classlive/platform/internal/audio"
	"github.com/classlive/platform/internal/errors"
	"github.com/classlive/platform/internal/observability/metrics"
	"github.com/classlive/platform/internal/pubsub"
	"github.com/classlive/platform/internal/question"
	"github.com/classlive/platform/internal/relay"
	"github.com/classlive/platform/internal/scheduler"
	"github.com/classlive/platform/internal/syncx"
	"github.com/classlive/platform/internal/trace"
	"github.com/classlive/platform/internal/transcript"
	"github.com/classlive/platform/internal/voice"
)

// Event kinds broadcast on the session bus.
const (
	EventRecordingStarted = "recording_started"
	EventRecordingStopped = "recording_stopped"
	EventQuestionSent     = "question_sent"
	EventQuestionFailed   = "question_failed"
	EventRelayError       = "relay_error"
	EventTranscriptFinal  = "transcript_final"
)

// Event is one session notification.
type Event struct {
	Kind      string    `json:"kind"`
	LectureID string    `json:"lecture_id"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Capture abstracts the microphone session.
type Capture interface {
	Start(ctx context.Context) error
	Stop()
	Output() <-chan audio.Chunk
}

// Stream abstracts the relay client.
type Stream interface {
	Connect(ctx context.Context) error
	SendAudio(relay.Chunk)
	Disconnect()
	State() relay.State
}

// StreamFactory builds a relay stream with the manager's handlers
// installed.
type StreamFactory func(h relay.Handlers) Stream

// Config holds the manager's tunables.
type Config struct {
	VoiceDebounce    time.Duration
	TriggerPhrases   []string
	AutoInterval     time.Duration
	AutoEnabled      bool
	MinIntervalChars int
	MinQualityScore  float64
	VoiceContextTail int
}

// Deps are the collaborators supplied at construction.
type Deps struct {
	Capture   Capture
	NewStream StreamFactory
	Generator question.Generator
	Delivery  question.Delivery
	Limiter   *question.Limiter
}

// Status is the externally visible session snapshot.
type Status struct {
	Recording  bool      `json:"recording"`
	LectureID  string    `json:"lecture_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	RelayState string    `json:"relay_state"`
	Students   int       `json:"students"`
}

type state struct {
	recording bool
	lectureID string
	startedAt time.Time
	students  int
}

// Manager runs at most one recording session at a time.
type Manager struct {
	cfg  Config
	deps Deps

	acc      *transcript.Accumulator
	detector *voice.Detector
	sched    *scheduler.Scheduler
	bus      *pubsub.Bus[Event]
	guard    *syncx.RWGuard[state]
	prom     *metrics.Metrics

	// lc serializes Start and Stop and guards the fields below.
	lc         sync.Mutex
	stream     Stream
	runner     *scheduler.Runner
	cancelPump context.CancelFunc
}

// NewManager creates an idle manager.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.VoiceContextTail <= 0 {
		cfg.VoiceContextTail = 2000
	}
	m := &Manager{
		cfg:      cfg,
		deps:     deps,
		acc:      transcript.NewAccumulator(),
		detector: voice.NewDetector(cfg.TriggerPhrases, cfg.VoiceDebounce),
		bus:      pubsub.New[Event](),
		guard:    syncx.NewGuard(state{}),
		prom:     metrics.Default,
	}
	m.sched = scheduler.New(
		scheduler.Config{
			Enabled:          cfg.AutoEnabled,
			MinIntervalChars: cfg.MinIntervalChars,
			MinQualityScore:  cfg.MinQualityScore,
		},
		deps.Limiter,
		m.acc,
		m.sendGenerated(question.OriginAuto),
		m.StudentCount,
		m.Recording,
	)
	return m
}

// Events returns the session notification bus.
func (m *Manager) Events() *pubsub.Bus[Event] { return m.bus }

// SchedulerMetrics exposes per-session auto-question outcomes.
func (m *Manager) SchedulerMetrics() *scheduler.Metrics { return m.sched.Metrics() }

// Recording reports whether a session is active.
func (m *Manager) Recording() bool {
	return m.guard.Get().recording
}

// StudentCount returns the connected student count.
func (m *Manager) StudentCount() int {
	return m.guard.Get().students
}

// SetStudentCount records the audience size reported by the server.
func (m *Manager) SetStudentCount(n int) {
	m.guard.Write(func(s *state) { s.students = n })
	m.prom.ConnectedStudents.Set(float64(n))
}

// SetAutoQuestions toggles the instructor feature flag.
func (m *Manager) SetAutoQuestions(enabled bool) {
	m.sched.SetEnabled(enabled)
}

// Status returns the current session snapshot.
func (m *Manager) Status() Status {
	s := m.guard.Get()
	m.lc.Lock()
	stream := m.stream
	m.lc.Unlock()
	relayState := relay.StateIdle
	if stream != nil {
		relayState = stream.State()
	}
	return Status{
		Recording:  s.recording,
		LectureID:  s.lectureID,
		StartedAt:  s.startedAt,
		RelayState: relayState.String(),
		Students:   s.students,
	}
}

// Start begins a recording session for the lecture. The transcript
// buffer, detector arming, and scheduler counters all reset so the new
// session starts clean.
func (m *Manager) Start(ctx context.Context, lectureID string) error {
	m.lc.Lock()
	defer m.lc.Unlock()

	already := m.guard.Update(func(s *state) any {
		if s.recording {
			return true
		}
		s.recording = true
		s.lectureID = lectureID
		s.startedAt = time.Now()
		return false
	}).(bool)
	if already {
		return errors.New(errors.CodeInvalidArgument, "a recording session is already active")
	}

	m.acc.Reset()
	m.detector.Reset()
	m.sched.Metrics().Reset()

	m.stream = m.deps.NewStream(relay.Handlers{
		OnTranscript: func(ev relay.TranscriptEvent) { m.handleTranscript(ctx, ev) },
		OnError: func(err error) {
			m.publish(EventRelayError, err.Error())
		},
	})

	if err := m.deps.Capture.Start(ctx); err != nil {
		m.teardown("")
		return err
	}
	if err := m.stream.Connect(ctx); err != nil {
		m.deps.Capture.Stop()
		m.teardown("")
		return err
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	m.cancelPump = cancel
	go m.pump(pumpCtx, m.stream)

	m.runner = scheduler.NewRunner(m.cfg.AutoInterval, func(tctx context.Context) {
		if err := m.sched.Tick(tctx); err != nil {
			m.publish(EventQuestionFailed, err.Error())
		}
	})
	m.runner.Start(ctx)

	slog.Info("recording session started", "lecture", lectureID)
	m.publish(EventRecordingStarted, "")
	return nil
}

// Stop is the single authoritative teardown path: it halts the
// scheduler, closes the relay stream, and releases the audio device.
// Safe to call from any state.
func (m *Manager) Stop() {
	m.lc.Lock()
	defer m.lc.Unlock()

	wasRecording := m.guard.Update(func(s *state) any {
		r := s.recording
		s.recording = false
		return r
	}).(bool)
	if !wasRecording {
		return
	}

	if m.runner != nil {
		m.runner.Stop()
		m.runner = nil
	}
	if m.cancelPump != nil {
		m.cancelPump()
		m.cancelPump = nil
	}
	if m.stream != nil {
		m.stream.Disconnect()
	}
	m.deps.Capture.Stop()

	lecture := m.guard.Get().lectureID
	slog.Info("recording session stopped", "lecture", lecture,
		"sent", m.sched.Metrics().Sent(), "skipped", m.sched.Metrics().Skipped())
	m.publish(EventRecordingStopped, "")
}

// pump forwards captured chunks into the relay stream.
func (m *Manager) pump(ctx context.Context, stream Stream) {
	out := m.deps.Capture.Output()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-out:
			if !ok {
				return
			}
			stream.SendAudio(relay.Chunk{
				Seq:        chunk.Seq,
				Data:       chunk.Data,
				CapturedAt: chunk.CapturedAt,
			})
		}
	}
}

// handleTranscript appends final transcripts and runs voice command
// detection over the grown buffer.
func (m *Manager) handleTranscript(ctx context.Context, ev relay.TranscriptEvent) {
	if !ev.IsFinal {
		return
	}
	m.acc.Append(ev.Text, ev.Confidence)
	m.prom.TranscriptsFinal.Inc()
	m.publish(EventTranscriptFinal, ev.Text)

	if m.detector.Check(m.acc.Snapshot()) {
		slog.Info("voice command detected")
		go m.TriggerQuestion(ctx, question.OriginVoice)
	}
}

// TriggerQuestion runs the voice/manual send path: acquire the shared
// limiter, then generate from the recent transcript tail and deliver.
// Cooldown and quota rejections are expected outcomes, surfaced as a
// notice rather than an error state.
func (m *Manager) TriggerQuestion(ctx context.Context, origin question.Origin) error {
	if !m.Recording() {
		return errors.New(errors.CodeInvalidArgument, "no active recording session")
	}
	if err := m.deps.Limiter.Acquire(); err != nil {
		slog.Info("question suppressed", "origin", origin, "reason", err)
		m.prom.QuestionsSkipped.WithLabelValues(errors.CodeOf(err).String()).Inc()
		return err
	}
	m.prom.QuestionsSent.WithLabelValues(string(origin)).Inc()
	return m.generateAndDeliver(ctx, origin, m.acc.Tail(m.cfg.VoiceContextTail))
}

// sendGenerated adapts the post-gate send path for the scheduler, which
// acquires the limiter itself.
func (m *Manager) sendGenerated(origin question.Origin) scheduler.SendFunc {
	return func(ctx context.Context, content string) error {
		return m.generateAndDeliver(ctx, origin, content)
	}
}

func (m *Manager) generateAndDeliver(ctx context.Context, origin question.Origin, contextText string) error {
	// Scheduler ticks arrive untraced; delivered messages still carry ids.
	ctx, _ = trace.EnsureContext(ctx)
	qtype := question.TypeMultipleChoice
	q, err := m.deps.Generator.Generate(ctx, contextText, qtype)
	if err != nil {
		m.publish(EventQuestionFailed, err.Error())
		return err
	}
	q.Origin = origin
	q.LectureID = m.guard.Get().lectureID

	if err := m.deps.Delivery.Deliver(ctx, q); err != nil {
		m.publish(EventQuestionFailed, err.Error())
		return err
	}
	m.publish(EventQuestionSent, string(origin))
	return nil
}

func (m *Manager) publish(kind, detail string) {
	m.bus.Publish(Event{
		Kind:      kind,
		LectureID: m.guard.Get().lectureID,
		Detail:    detail,
		At:        time.Now(),
	})
}

func (m *Manager) teardown(lectureID string) {
	m.guard.Write(func(s *state) {
		s.recording = false
		s.lectureID = lectureID
	})
}
