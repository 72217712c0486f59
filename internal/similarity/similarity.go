package similarity

import "math"

// Weights for the three component algorithms. Fixed by calibration against
// hand-labeled duplicate sets; must sum to 1.0.
const (
	sequenceWeight = 0.4
	editWeight     = 0.3
	tokenWeight    = 0.3
)

// Boilerplate words excluded from token-overlap comparison. These occur in
// almost every bank-feed description and carry no identity signal.
var stopWords = map[string]bool{
	"payment":     true,
	"card":        true,
	"transaction": true,
	"pos":         true,
	"atm":         true,
	"pending":     true,
	"debit":       true,
	"credit":      true,
	"purchase":    true,
	"withdrawal":  true,
	"deposit":     true,
}

// Score computes a 0-1 similarity between two strings that have already been
// normalized by the caller. Identical strings score 1.0; if exactly one is
// empty the score is 0.0; if both are empty, 1.0. Otherwise the score is a
// fixed weighted sum of a Ratcliff/Obershelp sequence ratio, a Levenshtein
// edit-distance ratio, and a stop-word-filtered token Jaccard ratio.
func Score(a, b string) float64 {
	if a == "" || b == "" {
		if a == b {
			return 1.0
		}
		return 0.0
	}

	if a == b {
		return 1.0
	}

	score := sequenceWeight*sequenceRatio(a, b) +
		editWeight*editRatio(a, b) +
		tokenWeight*tokenJaccard(a, b)

	return math.Max(0.0, math.Min(1.0, score))
}

// sequenceRatio is the Ratcliff/Obershelp matching-blocks ratio:
// 2*M / (len(a)+len(b)) where M is the total length of matching contiguous
// subsequences found by recursively splitting around the longest common
// substring.
func sequenceRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}

	matched := matchingBlocks(ra, rb)
	return 2.0 * float64(matched) / float64(total)
}

// matchingBlocks returns the total length of matching blocks between a and
// b: the longest common substring, plus the matching blocks of the pieces to
// its left and right.
func matchingBlocks(a, b []rune) int {
	aStart, bStart, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}

	matched := size
	matched += matchingBlocks(a[:aStart], b[:bStart])
	matched += matchingBlocks(a[aStart+size:], b[bStart+size:])
	return matched
}

// longestCommonSubstring finds the longest run of runes common to a and b,
// returning its start offsets and length. Uses a single-row DP table.
func longestCommonSubstring(a, b []rune) (aStart, bStart, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > size {
					size = curr[j]
					aStart = i - size
					bStart = j - size
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}

	return aStart, bStart, size
}

// editRatio is 1 - (Levenshtein distance / max(len(a), len(b))).
func editRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}

	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes the standard edit distance with unit costs for
// insert, delete, and substitute, using the two-row DP formulation.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			curr[j] = min3(
				prev[j]+1,      // delete
				curr[j-1]+1,    // insert
				prev[j-1]+cost, // substitute
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// tokenJaccard is the set-overlap ratio between the significant tokens of
// the two strings, after stop-word removal. If both token sets empty out,
// the strings are pure boilerplate and compare equal (1.0); if only one
// empties out, they share nothing significant (0.0).
func tokenJaccard(a, b string) float64 {
	setA := significantTokens(a)
	setB := significantTokens(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range setA {
		if setB[token] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func significantTokens(s string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range Tokens(s) {
		if !stopWords[token] {
			set[token] = true
		}
	}
	return set
}
