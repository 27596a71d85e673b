package transcript

import (
	"strings"
	"testing"
)

func TestAppendAndSnapshot(t *testing.T) {
	a := NewAccumulator()
	a.Append("the krebs cycle", 0.95)
	a.Append("produces ATP", 0.91)

	if got := a.Snapshot(); got != "the krebs cycle produces ATP" {
		t.Errorf("Snapshot() = %q", got)
	}
	if len(a.Entries()) != 2 {
		t.Errorf("entries = %d, want 2", len(a.Entries()))
	}
}

func TestAppendIgnoresEmpty(t *testing.T) {
	a := NewAccumulator()
	a.Append("   ", 0.5)
	a.Append("", 0.5)

	if a.Len() != 0 {
		t.Errorf("Len() = %d, want 0", a.Len())
	}
}

func TestTail(t *testing.T) {
	a := NewAccumulator()
	a.Append("abcdefghij", 1)

	if got := a.Tail(4); got != "ghij" {
		t.Errorf("Tail(4) = %q, want ghij", got)
	}
	if got := a.Tail(100); got != "abcdefghij" {
		t.Errorf("Tail(100) = %q, want full buffer", got)
	}
}

func TestTailRuneBoundary(t *testing.T) {
	a := NewAccumulator()
	a.Append("π equals 3.14159", 1)

	// A cut inside the two-byte π must move forward past it
	got := a.Tail(a.Len() - 1)
	if strings.ContainsRune(got, '�') || !strings.HasSuffix(got, "3.14159") {
		t.Errorf("Tail() = %q, split a rune", got)
	}
}

func TestIntervalConsumption(t *testing.T) {
	a := NewAccumulator()
	a.Append("first interval content", 1)

	if got := a.IntervalContent(); got != "first interval content" {
		t.Errorf("IntervalContent() = %q", got)
	}

	if got := a.ConsumeInterval(); got != "first interval content" {
		t.Errorf("ConsumeInterval() = %q", got)
	}
	if got := a.IntervalContent(); got != "" {
		t.Errorf("IntervalContent() after consume = %q, want empty", got)
	}

	a.Append("second interval", 1)
	if got := a.IntervalContent(); got != " second interval" {
		t.Errorf("IntervalContent() = %q", got)
	}

	// Consuming never removes lecture content
	if !strings.Contains(a.Snapshot(), "first interval content") {
		t.Error("Snapshot() lost consumed content")
	}
}

func TestReset(t *testing.T) {
	a := NewAccumulator()
	a.Append("old session", 1)
	a.ConsumeInterval()
	a.Reset()

	if a.Len() != 0 || len(a.Entries()) != 0 {
		t.Errorf("Reset() left Len=%d entries=%d", a.Len(), len(a.Entries()))
	}
	a.Append("new", 1)
	if got := a.IntervalContent(); got != "new" {
		t.Errorf("IntervalContent() after reset = %q, want new", got)
	}
}
