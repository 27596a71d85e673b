package resilience

import (
	stderrors "errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 3, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	failErr := stderrors.New("boom")

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return failErr })
	}

	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Execute(func() error { return nil }); !stderrors.Is(err, ErrOpen) {
		t.Errorf("Execute() = %v, want ErrOpen", err)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	failErr := stderrors.New("boom")

	_ = b.Execute(func() error { return failErr })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return failErr })

	if b.State() != Closed {
		t.Errorf("state = %v, want closed (success reset the count)", b.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 2})

	_ = b.Execute(func() error { return stderrors.New("boom") })
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(5 * time.Millisecond)

	// Two successes in half-open close the circuit
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe 1 = %v, want nil", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe 2 = %v, want nil", err)
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 2})

	_ = b.Execute(func() error { return stderrors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	_ = b.Execute(func() error { return stderrors.New("still broken") })
	if b.State() != Open {
		t.Errorf("state = %v, want open", b.State())
	}
}

func TestBreakerHook(t *testing.T) {
	var transitions []BreakerState
	b := NewBreaker(BreakerConfig{Threshold: 1, ResetTimeout: time.Hour, HalfOpenSuccesses: 1}).
		WithHook(func(from, to BreakerState) { transitions = append(transitions, to) })

	_ = b.Execute(func() error { return stderrors.New("boom") })

	if len(transitions) != 1 || transitions[0] != Open {
		t.Errorf("transitions = %v, want [open]", transitions)
	}
}

func TestExecuteWithResult(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig())

	got, err := ExecuteWithResult(b, func() (int, error) { return 42, nil })
	if err != nil || got != 42 {
		t.Errorf("ExecuteWithResult() = (%d, %v), want (42, nil)", got, err)
	}
}
