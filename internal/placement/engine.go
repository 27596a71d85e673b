package placement

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classlive/platform/internal/errors"
	"github.com/classlive/platform/internal/observability/metrics"
	"github.com/classlive/platform/internal/question"
)

const (
	minSpacingSeconds  = 120.0
	baseMinStart       = 60.0
	minStartFraction   = 0.10
	syntheticShiftStep = 30.0
	syntheticScore     = 5
	candidateThreshold = 5
	contextWindow      = 90.0 // seconds of transcript fed to generation
	defaultFanout      = 4
)

// Engine computes pause points for one lecture. It is stateless per
// invocation and safe to run concurrently across lectures.
type Engine struct {
	gen    question.Generator
	fanout int
}

// NewEngine creates a placement engine backed by the given generator.
func NewEngine(gen question.Generator) *Engine {
	return &Engine{gen: gen, fanout: defaultFanout}
}

// Analyze returns exactly req.QuestionCount pause points, ordered by
// timestamp, each carrying a generated question. Point selection is
// deterministic for a given transcript, count, and domain profile; only
// the generated question text varies with the external gateway.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) ([]PausePoint, error) {
	if req.QuestionCount <= 0 {
		return nil, errors.New(errors.CodeInvalidArgument, "question count must be positive")
	}

	duration := transcriptDuration(req.Transcript)
	minStart := math.Max(baseMinStart, minStartFraction*duration)

	kept := selectCandidates(req.Transcript, req.DomainProfile, req.QuestionCount, minStart)
	points := make([]PausePoint, 0, req.QuestionCount)
	taken := make([]float64, 0, req.QuestionCount)
	for _, c := range kept {
		points = append(points, PausePoint{
			LectureID:          req.LectureID,
			TimestampSeconds:   c.at,
			CognitiveLoadScore: c.score,
			ReasonText:         c.reason,
			QuestionType:       c.qtype,
		})
		taken = append(taken, c.at)
	}

	if missing := req.QuestionCount - len(points); missing > 0 {
		points = append(points, synthesize(req.LectureID, missing, minStart, duration, taken)...)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].TimestampSeconds < points[j].TimestampSeconds })
	for i := range points {
		points[i].OrderIndex = i
	}

	e.generateQuestions(ctx, req, points)
	metrics.Default.PausePointBatches.Inc()
	return points, nil
}

func transcriptDuration(segments []TranscriptSegment) float64 {
	var d float64
	for _, seg := range segments {
		if seg.End > d {
			d = seg.End
		}
	}
	return d
}

// selectCandidates scores every segment, drops those before the minimum
// start offset or below the load threshold, enforces spacing favoring
// the highest-scoring moments, and caps the survivors at n re-sorted by
// timestamp.
func selectCandidates(segments []TranscriptSegment, profile DomainProfile, n int, minStart float64) []candidate {
	var scored []candidate
	for _, seg := range segments {
		c := scoreSegment(seg, profile)
		if c.at < minStart || c.score < candidateThreshold {
			continue
		}
		scored = append(scored, c)
	}

	// Highest load first so spacing conflicts evict the weaker moment.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	var kept []candidate
	for _, c := range scored {
		if len(kept) == n {
			break
		}
		conflict := false
		for _, k := range kept {
			if math.Abs(k.at-c.at) < minSpacingSeconds {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, c)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].at < kept[j].at })
	return kept
}

// synthesize fills the remaining slots with evenly spaced placeholder
// points, shifting a colliding slot forward in fixed increments, then
// backward from the end of the lecture when forward shifting runs out.
func synthesize(lectureID string, missing int, minStart, duration float64, taken []float64) []PausePoint {
	span := duration - minStart
	if span < 0 {
		span = 0
	}
	step := span / float64(missing)

	out := make([]PausePoint, 0, missing)
	for i := 0; i < missing; i++ {
		target := minStart + step*float64(i)
		at, ok := placeSlot(target, minStart, duration, taken)
		if !ok {
			// The lecture is too short for full spacing; keep the
			// count invariant and accept the crowded slot.
			at = target
		}
		taken = append(taken, at)
		out = append(out, PausePoint{
			LectureID:          lectureID,
			TimestampSeconds:   at,
			CognitiveLoadScore: syntheticScore,
			ReasonText:         "Evenly spaced checkpoint",
			QuestionType:       question.TypeTakeaway,
		})
	}
	return out
}

func placeSlot(target, minStart, duration float64, taken []float64) (float64, bool) {
	for t := target; t <= duration; t += syntheticShiftStep {
		if t >= minStart && slotFree(t, taken) {
			return t, true
		}
	}
	for t := duration; t >= minStart; t -= syntheticShiftStep {
		if slotFree(t, taken) {
			return t, true
		}
	}
	return 0, false
}

func slotFree(t float64, taken []float64) bool {
	for _, p := range taken {
		if math.Abs(t-p) < minSpacingSeconds {
			return false
		}
	}
	return true
}

// generateQuestions fans out one generation call per point, bounded by
// the worker limit. A failed generation is replaced by a deterministic
// fallback so the output count never changes.
func (e *Engine) generateQuestions(ctx context.Context, req AnalyzeRequest, points []PausePoint) {
	sem := make(chan struct{}, e.fanout)
	var wg sync.WaitGroup
	for i := range points {
		wg.Add(1)
		sem <- struct{}{}
		go func(p *PausePoint) {
			defer wg.Done()
			defer func() { <-sem }()

			contextText := contextAround(req.Transcript, p.TimestampSeconds)
			q, err := e.gen.Generate(ctx, contextText, p.QuestionType)
			if err != nil {
				slog.Warn("pause point generation failed, using fallback",
					"lecture", req.LectureID, "timestamp", p.TimestampSeconds, "error", err)
				q = fallbackQuestion(p.QuestionType)
			}
			q.LectureID = req.LectureID
			q.Origin = question.OriginBatch
			p.Question = q
		}(&points[i])
	}
	wg.Wait()
}

// contextAround joins the transcript spoken in the window leading up to
// the pause point.
func contextAround(segments []TranscriptSegment, at float64) string {
	var b strings.Builder
	for _, seg := range segments {
		if seg.End <= at && seg.End > at-contextWindow {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

var fallbackPrompts = map[question.Type]string{
	question.TypeMultipleChoice: "Which statement best summarizes the concept just covered?",
	question.TypeShortAnswer:    "In your own words, explain the result that was just derived.",
	question.TypeReflection:     "How does the topic just introduced relate to what came before it?",
	question.TypeTakeaway:       "What was the main takeaway from this section of the lecture?",
}

// fallbackQuestion is the deterministic substitute used when generation
// fails for one point.
func fallbackQuestion(t question.Type) question.Question {
	prompt, ok := fallbackPrompts[t]
	if !ok {
		prompt = fallbackPrompts[question.TypeTakeaway]
	}
	return question.Question{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Type:      t,
		CreatedAt: time.Now().UTC(),
	}
}
