// Package suggest picks the closest known name for "did you mean" hints.
package suggest

import (
	"github.com/hbollon/go-edlib"
)

// MinSimilarity is the Jaro-Winkler score below which no suggestion is made.
const MinSimilarity = 0.75

// Closest returns the candidate most similar to target. Ties go to the
// smaller edit distance, then to the earlier candidate.
func Closest(target string, candidates []string) (string, bool) {
	var (
		best      string
		bestScore float32
		bestDist  int
	)
	for _, c := range candidates {
		if c == target {
			continue
		}
		score, err := edlib.StringsSimilarity(target, c, edlib.JaroWinkler)
		if err != nil || score < MinSimilarity {
			continue
		}
		dist := edlib.LevenshteinDistance(target, c)
		if best == "" || score > bestScore || (score == bestScore && dist < bestDist) {
			best, bestScore, bestDist = c, score, dist
		}
	}
	return best, best != ""
}
