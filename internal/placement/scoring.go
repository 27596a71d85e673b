package placement

import (
	"strings"

	"github.com/classlive/platform/internal/question"
)

// Content markers used by the cognitive-load heuristics. Each hit adds
// to the 1..10 score; the first matching category names the reason.
var (
	newConceptMarkers = []string{
		"is defined as", "is called", "known as", "the concept of",
		"we call this", "refers to", "introduce the idea",
	}
	formulaMarkers = []string{
		"equation", "formula", "derive", "derivation", "theorem",
		"proof", "coefficient", "equals",
	}
	transitionMarkers = []string{
		"moving on", "next topic", "let's turn to", "now let's look",
		"in summary", "to recap", "switching gears", "that brings us to",
	}
)

// medicalTerms bias scoring for clinically oriented lectures.
var medicalTerms = []string{
	"patient", "diagnosis", "symptom", "treatment", "dosage",
	"syndrome", "pathology", "clinical", "therapy", "lesion",
	"acute", "chronic", "prognosis", "etiology", "contraindication",
}

// longWordLen and densityThreshold drive the terminology-density check:
// a high share of long words marks jargon-heavy segments.
const (
	longWordLen      = 9
	densityThreshold = 0.18
)

type candidate struct {
	at      float64
	score   int
	reason  string
	qtype   question.Type
	context string
}

func countMarkers(text string, markers []string) int {
	n := 0
	for _, m := range markers {
		n += strings.Count(text, m)
	}
	return n
}

func terminologyDensity(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	long := 0
	for _, w := range words {
		if len(w) >= longWordLen {
			long++
		}
	}
	return float64(long) / float64(len(words))
}

// scoreSegment rates one transcript segment on the 1..10 cognitive-load
// scale and picks a question type matching what made it demanding.
func scoreSegment(seg TranscriptSegment, profile DomainProfile) candidate {
	text := strings.ToLower(seg.Text)

	concepts := countMarkers(text, newConceptMarkers)
	formulas := countMarkers(text, formulaMarkers)
	transitions := countMarkers(text, transitionMarkers)
	dense := terminologyDensity(text) >= densityThreshold

	score := 1
	score += 3 * min(concepts, 2)
	score += 3 * min(formulas, 2)
	score += 2 * min(transitions, 1)
	if dense {
		score += 2
	}
	if profile == DomainMedical {
		score += min(countMarkers(text, medicalTerms), 3)
	}
	if score > 10 {
		score = 10
	}

	c := candidate{at: seg.End, score: score, context: seg.Text}
	switch {
	case formulas > 0:
		c.reason = "Formula or derivation introduced"
		c.qtype = question.TypeShortAnswer
	case concepts > 0:
		c.reason = "New concept introduced"
		c.qtype = question.TypeMultipleChoice
	case transitions > 0:
		c.reason = "Topic transition"
		c.qtype = question.TypeReflection
	case dense:
		c.reason = "Terminology-dense passage"
		c.qtype = question.TypeMultipleChoice
	default:
		c.reason = "Lecture checkpoint"
		c.qtype = question.TypeTakeaway
	}
	return c
}
