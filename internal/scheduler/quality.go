package scheduler

import "strings"

// targetWords is the interval word count at which the length factor
// saturates.
const targetWords = 80

// QualityScore estimates how question-worthy a transcript interval is,
// in [0,1]. It blends lexical density (distinct words over total words)
// with a saturating length factor, so both a short rich burst and a
// long repetitive ramble score below a moderately varied interval.
func QualityScore(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}

	distinct := make(map[string]struct{}, len(words))
	for _, w := range words {
		distinct[strings.Trim(w, ".,!?;:'\"()")] = struct{}{}
	}

	density := float64(len(distinct)) / float64(len(words))
	length := float64(len(words)) / targetWords
	if length > 1 {
		length = 1
	}
	return 0.6*density + 0.4*length
}
