package scheduler

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/classlive/platform/internal/question"
)

type fakeSource struct {
	content  string
	consumed int
}

func (s *fakeSource) IntervalContent() string { return s.content }

func (s *fakeSource) ConsumeInterval() string {
	s.consumed++
	return s.content
}

const richContent = "Today we examine how mitochondria convert nutrient energy into adenosine " +
	"triphosphate through oxidative phosphorylation, why the electron transport chain " +
	"establishes a proton gradient across the inner membrane, and how ATP synthase " +
	"exploits that gradient to drive phosphorylation of ADP during cellular respiration"

type schedFixture struct {
	sched    *Scheduler
	source   *fakeSource
	limiter  *question.Limiter
	students int
	record   bool
	sends    int
	sendErr  error
}

func newFixture(t *testing.T) *schedFixture {
	t.Helper()
	f := &schedFixture{
		source:   &fakeSource{content: richContent},
		limiter:  question.NewLimiter(time.Minute, 50),
		students: 5,
		record:   true,
	}
	f.sched = New(
		Config{Enabled: true, MinIntervalChars: 100, MinQualityScore: 0.35},
		f.limiter,
		f.source,
		func(context.Context, string) error { f.sends++; return f.sendErr },
		func() int { return f.students },
		func() bool { return f.record },
	)
	return f
}

func lastSkip(t *testing.T, m *Metrics) SkipReason {
	t.Helper()
	reasons := m.SkipReasons()
	if len(reasons) == 0 {
		t.Fatal("expected a recorded skip")
	}
	return reasons[len(reasons)-1]
}

func TestTickSendsWhenAllGatesPass(t *testing.T) {
	f := newFixture(t)
	if err := f.sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if f.sends != 1 {
		t.Errorf("expected 1 send, got %d", f.sends)
	}
	if f.source.consumed != 1 {
		t.Errorf("expected interval consumption, got %d", f.source.consumed)
	}
	m := f.sched.Metrics()
	if m.Sent() != 1 || m.Skipped() != 0 {
		t.Errorf("unexpected counters: sent=%d skipped=%d", m.Sent(), m.Skipped())
	}
	if m.AverageQuality() < 0.35 {
		t.Errorf("expected quality above threshold, got %.2f", m.AverageQuality())
	}
	if f.limiter.CooldownRemaining() <= 0 {
		t.Error("expected cooldown to be armed after send")
	}
	if f.limiter.SentToday() != 1 {
		t.Errorf("expected quota consumption, got %d", f.limiter.SentToday())
	}
}

func TestCooldownGatesBeforeEverything(t *testing.T) {
	f := newFixture(t)
	if err := f.limiter.Acquire(); err != nil {
		t.Fatalf("arming cooldown failed: %v", err)
	}
	// Even a perfect interval must not fire inside the cooldown.
	if err := f.sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if f.sends != 0 {
		t.Errorf("expected no send during cooldown, got %d", f.sends)
	}
	if got := lastSkip(t, f.sched.Metrics()).Code; got != ReasonCooldownActive {
		t.Errorf("expected %s, got %s", ReasonCooldownActive, got)
	}
}

func TestNoStudentsSkipsRegardlessOfQuality(t *testing.T) {
	f := newFixture(t)
	f.students = 0
	if err := f.sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if f.sends != 0 {
		t.Error("expected skip with empty audience")
	}
	skip := lastSkip(t, f.sched.Metrics())
	if skip.Code != ReasonNoStudents {
		t.Errorf("expected %s, got %s", ReasonNoStudents, skip.Code)
	}
	if skip.Detail != "No students connected" {
		t.Errorf("unexpected detail %q", skip.Detail)
	}
}

func TestNotRecordingSkips(t *testing.T) {
	f := newFixture(t)
	f.record = false
	f.students = 0 // recording gate comes first
	_ = f.sched.Tick(context.Background())
	if got := lastSkip(t, f.sched.Metrics()).Code; got != ReasonNotRecording {
		t.Errorf("expected %s, got %s", ReasonNotRecording, got)
	}
}

func TestDisabledSkips(t *testing.T) {
	f := newFixture(t)
	f.sched.SetEnabled(false)
	_ = f.sched.Tick(context.Background())
	if got := lastSkip(t, f.sched.Metrics()).Code; got != ReasonDisabled {
		t.Errorf("expected %s, got %s", ReasonDisabled, got)
	}
}

// A reached quota stops gate evaluation before content is examined.
func TestQuotaReachedStopsEvaluation(t *testing.T) {
	f := newFixture(t)
	f.limiter = question.NewLimiter(0, 1)
	if err := f.limiter.Acquire(); err != nil {
		t.Fatalf("consuming quota failed: %v", err)
	}
	f.sched.limiter = f.limiter
	f.source.content = "" // would fail the content gate if reached

	_ = f.sched.Tick(context.Background())
	skip := lastSkip(t, f.sched.Metrics())
	if skip.Code != ReasonQuotaExhausted {
		t.Errorf("expected %s, got %s", ReasonQuotaExhausted, skip.Code)
	}
	if skip.Detail != "Daily quota reached" {
		t.Errorf("unexpected detail %q", skip.Detail)
	}
}

func TestShortContentSkips(t *testing.T) {
	f := newFixture(t)
	f.source.content = "too short"
	_ = f.sched.Tick(context.Background())
	if got := lastSkip(t, f.sched.Metrics()).Code; got != ReasonInsufficientContent {
		t.Errorf("expected %s, got %s", ReasonInsufficientContent, got)
	}
}

func TestLowQualityContentSkips(t *testing.T) {
	f := newFixture(t)
	// Long enough but one word repeated, near-zero lexical density.
	f.source.content = strings.Repeat("um ", 60)
	_ = f.sched.Tick(context.Background())
	if f.sends != 0 {
		t.Error("expected skip for repetitive content")
	}
	if got := lastSkip(t, f.sched.Metrics()).Code; got != ReasonLowQuality {
		t.Errorf("expected %s, got %s", ReasonLowQuality, got)
	}
}

func TestConsecutiveTicksRespectCooldown(t *testing.T) {
	f := newFixture(t)
	if err := f.sched.Tick(context.Background()); err != nil {
		t.Fatalf("first tick failed: %v", err)
	}
	if err := f.sched.Tick(context.Background()); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}
	if f.sends != 1 {
		t.Errorf("expected exactly 1 send across back-to-back ticks, got %d", f.sends)
	}
}

func TestQualityScore(t *testing.T) {
	if got := QualityScore(""); got != 0 {
		t.Errorf("empty text scored %v", got)
	}
	rich := QualityScore(richContent)
	poor := QualityScore(strings.Repeat("um ", 60))
	if rich <= poor {
		t.Errorf("varied content (%.2f) should outscore repetition (%.2f)", rich, poor)
	}
	if rich < 0.35 {
		t.Errorf("lecture-grade content scored %.2f, below the default threshold", rich)
	}
	if poor >= 0.35 {
		t.Errorf("repetitive filler scored %.2f, above the default threshold", poor)
	}
}

func TestRunnerTicksAndStops(t *testing.T) {
	var ticks atomic.Int32
	r := NewRunner(5*time.Millisecond, func(context.Context) { ticks.Add(1) })
	r.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if ticks.Load() < 3 {
		t.Fatal("runner never ticked")
	}

	r.Stop()
	settled := ticks.Load()
	time.Sleep(25 * time.Millisecond)
	if ticks.Load() != settled {
		t.Error("runner kept ticking after stop")
	}
	r.Stop() // idempotent
}
