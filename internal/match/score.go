package match

import "strings"

// Scoring weights. Sequence similarity rewards shared character runs (robust
// to small transcription slips); token overlap rewards shared whole words
// (robust to word reordering). The blend outperforms either alone on short
// device names.
const (
	seqWeight     = 0.55
	jaccardWeight = 0.45

	// containBonus is added when one phrase contains the other whole.
	containBonus = 0.08
	// lengthTolerance is the character-length difference tolerated before
	// the mismatch penalty applies.
	lengthTolerance = 8
	lengthPenalty   = 0.04
)

// Score rates how well a target phrase matches one candidate string.
// Both inputs must already be normalized. Result is clamped to [0, 1];
// identical strings score exactly 1.
func Score(target, candidate string) float64 {
	if target == "" || candidate == "" {
		return 0
	}
	if target == candidate {
		return 1
	}

	s := seqWeight*seqRatio(target, candidate) + jaccardWeight*tokenJaccard(target, candidate)

	if len(target) >= 3 && len(candidate) >= 3 &&
		(strings.Contains(target, candidate) || strings.Contains(candidate, target)) {
		s += containBonus
	}

	diff := len(target) - len(candidate)
	if diff < 0 {
		diff = -diff
	}
	if diff > lengthTolerance {
		s -= lengthPenalty
	}

	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// seqRatio is a similarity ratio in [0, 1] based on the longest common
// subsequence: 2*LCS / (len(a) + len(b)).
func seqRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

// tokenJaccard is intersection-over-union of the two token sets.
func tokenJaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		out[tok] = true
	}
	return out
}
