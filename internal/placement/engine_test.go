package placement

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"testing"

	"github.com/classlive/platform/internal/question"
)

type fakeGenerator struct {
	fail  bool
	calls atomic.Int32
}

func (g *fakeGenerator) Generate(_ context.Context, contextText string, qt question.Type) (question.Question, error) {
	g.calls.Add(1)
	if g.fail {
		return question.Question{}, fmt.Errorf("generator unavailable")
	}
	return question.Question{
		ID:     fmt.Sprintf("gen-%d", g.calls.Load()),
		Prompt: "What did the lecturer just explain?",
		Type:   qt,
	}, nil
}

// fillerTranscript produces low-load segments spanning the duration.
func fillerTranscript(duration float64) []TranscriptSegment {
	var segs []TranscriptSegment
	for start := 0.0; start < duration; start += 30 {
		segs = append(segs, TranscriptSegment{
			Text:  "and so on and so forth as we said before",
			Start: start,
			End:   math.Min(start+30, duration),
		})
	}
	return segs
}

func assertInvariants(t *testing.T, points []PausePoint, n int, minStart float64) {
	t.Helper()
	if len(points) != n {
		t.Fatalf("expected exactly %d points, got %d", n, len(points))
	}
	for i, p := range points {
		if p.TimestampSeconds < minStart {
			t.Errorf("point %d at %.0fs violates minimum start %.0fs", i, p.TimestampSeconds, minStart)
		}
		if p.OrderIndex != i {
			t.Errorf("point %d has order index %d", i, p.OrderIndex)
		}
		if p.CognitiveLoadScore < 1 || p.CognitiveLoadScore > 10 {
			t.Errorf("point %d score %d outside 1..10", i, p.CognitiveLoadScore)
		}
		if p.Question.Prompt == "" {
			t.Errorf("point %d has no question", i)
		}
		if i > 0 {
			gap := p.TimestampSeconds - points[i-1].TimestampSeconds
			if gap < minSpacingSeconds {
				t.Errorf("points %d and %d only %.0fs apart", i-1, i, gap)
			}
		}
	}
}

// A ten minute lecture with no demanding moments still yields five
// evenly spread synthetic checkpoints.
func TestAllSyntheticPlacement(t *testing.T) {
	gen := &fakeGenerator{fail: true}
	e := NewEngine(gen)

	points, err := e.Analyze(context.Background(), AnalyzeRequest{
		LectureID:     "lec-1",
		Transcript:    fillerTranscript(600),
		QuestionCount: 5,
	})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	assertInvariants(t, points, 5, 60)

	for i, p := range points {
		if p.TimestampSeconds > 600 {
			t.Errorf("point %d at %.0fs beyond lecture end", i, p.TimestampSeconds)
		}
		if p.ReasonText != "Evenly spaced checkpoint" {
			t.Errorf("point %d reason %q", i, p.ReasonText)
		}
		if p.QuestionType != question.TypeTakeaway {
			t.Errorf("point %d type %s", i, p.QuestionType)
		}
		if p.Question.Prompt != fallbackPrompts[question.TypeTakeaway] {
			t.Errorf("point %d expected fallback question, got %q", i, p.Question.Prompt)
		}
	}
}

func TestHighLoadMomentsSelected(t *testing.T) {
	segs := fillerTranscript(1200)
	segs = append(segs,
		TranscriptSegment{
			Text:  "This quantity is defined as the marginal rate, and the formula we derive gives the equilibrium",
			Start: 290, End: 300,
		},
		TranscriptSegment{
			Text:  "The concept of elasticity is called price responsiveness, known as the core of demand theory",
			Start: 590, End: 600,
		},
	)

	gen := &fakeGenerator{}
	points, err := NewEngine(gen).Analyze(context.Background(), AnalyzeRequest{
		LectureID:     "lec-2",
		Transcript:    segs,
		QuestionCount: 2,
	})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	assertInvariants(t, points, 2, 120) // minStart = 10% of 1200s

	if points[0].TimestampSeconds != 300 || points[1].TimestampSeconds != 600 {
		t.Errorf("expected scored moments at 300s and 600s, got %.0f and %.0f",
			points[0].TimestampSeconds, points[1].TimestampSeconds)
	}
	if points[0].ReasonText != "Formula or derivation introduced" {
		t.Errorf("unexpected reason %q", points[0].ReasonText)
	}
	if points[0].QuestionType != question.TypeShortAnswer {
		t.Errorf("unexpected type %s", points[0].QuestionType)
	}
	if points[1].ReasonText != "New concept introduced" {
		t.Errorf("unexpected reason %q", points[1].ReasonText)
	}
	if points[0].Question.ID == "" || points[0].Question.Origin != question.OriginBatch {
		t.Errorf("generated question not attached: %+v", points[0].Question)
	}
}

// A demanding moment inside the opening orientation window must not
// receive a question.
func TestMinimumStartOffset(t *testing.T) {
	segs := fillerTranscript(600)
	segs = append(segs, TranscriptSegment{
		Text:  "This is defined as the key formula we derive from the theorem",
		Start: 20, End: 30,
	})

	points, err := NewEngine(&fakeGenerator{}).Analyze(context.Background(), AnalyzeRequest{
		LectureID:     "lec-3",
		Transcript:    segs,
		QuestionCount: 3,
	})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	assertInvariants(t, points, 3, 60)
	for _, p := range points {
		if p.TimestampSeconds == 30 {
			t.Error("early moment placed despite minimum start offset")
		}
	}
}

// Two demanding moments closer than the spacing floor keep only the
// higher-load one.
func TestSpacingEvictsWeakerMoment(t *testing.T) {
	segs := fillerTranscript(1200)
	segs = append(segs,
		TranscriptSegment{
			// Formula, concept, and jargon: scores near the ceiling.
			Text:  "The fundamental theorem is defined as follows and the formula we derive characterizes equilibrium thermodynamics comprehensively",
			Start: 390, End: 400,
		},
		TranscriptSegment{
			Text:  "Moving on, the concept of marginal utility is called usefulness",
			Start: 440, End: 450,
		},
	)

	points, err := NewEngine(&fakeGenerator{}).Analyze(context.Background(), AnalyzeRequest{
		LectureID:     "lec-4",
		Transcript:    segs,
		QuestionCount: 1,
	})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	if points[0].TimestampSeconds != 400 {
		t.Errorf("expected the higher-load moment at 400s, got %.0f", points[0].TimestampSeconds)
	}
}

func TestSurplusKeepsHighestThenResorts(t *testing.T) {
	segs := fillerTranscript(3000)
	// Three spaced moments with distinct loads; request two.
	segs = append(segs,
		TranscriptSegment{Text: "in summary this baseline is known as the reference case", Start: 590, End: 600},
		TranscriptSegment{Text: "the formula we derive from the theorem is defined as the proof of the equation", Start: 1190, End: 1200},
		TranscriptSegment{Text: "this is defined as the concept of entropy known as disorder", Start: 1790, End: 1800},
	)

	points, err := NewEngine(&fakeGenerator{}).Analyze(context.Background(), AnalyzeRequest{
		LectureID:     "lec-5",
		Transcript:    segs,
		QuestionCount: 2,
	})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	// The moment at 600s carries the lowest load of the three.
	if points[0].TimestampSeconds != 1200 || points[1].TimestampSeconds != 1800 {
		t.Errorf("expected 1200s and 1800s in timestamp order, got %.0f and %.0f",
			points[0].TimestampSeconds, points[1].TimestampSeconds)
	}
}

func TestGenerationFailureUsesFallback(t *testing.T) {
	gen := &fakeGenerator{fail: true}
	points, err := NewEngine(gen).Analyze(context.Background(), AnalyzeRequest{
		LectureID:     "lec-6",
		Transcript:    fillerTranscript(900),
		QuestionCount: 4,
	})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	assertInvariants(t, points, 4, 90)
	if gen.calls.Load() != 4 {
		t.Errorf("expected one generation attempt per point, got %d", gen.calls.Load())
	}
	for i, p := range points {
		if p.Question.ID == "" {
			t.Errorf("point %d fallback question missing id", i)
		}
		if p.Question.LectureID != "lec-6" {
			t.Errorf("point %d fallback question missing lecture id", i)
		}
	}
}

func TestMedicalProfileBiasesScoring(t *testing.T) {
	seg := TranscriptSegment{
		Text:  "the patient presents with acute symptoms requiring a clinical diagnosis and treatment",
		Start: 190, End: 200,
	}
	general := scoreSegment(seg, DomainGeneral)
	medical := scoreSegment(seg, DomainMedical)
	if medical.score <= general.score {
		t.Errorf("medical profile should raise the score: general=%d medical=%d",
			general.score, medical.score)
	}
}

func TestInvalidCountRejected(t *testing.T) {
	_, err := NewEngine(&fakeGenerator{}).Analyze(context.Background(), AnalyzeRequest{
		LectureID:     "lec-7",
		QuestionCount: 0,
	})
	if err == nil {
		t.Fatal("expected error for zero question count")
	}
}
