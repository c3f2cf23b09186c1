package tools

import "strings"

// DefaultMatchThreshold is the maximum normalized distance (0 is exact, 1 is
// no overlap) accepted when resolving a caller-spoken service name against
// the business catalog.
const DefaultMatchThreshold = 0.4

// BestMatch resolves input against candidates using token-aware edit
// distance. Returns the best candidate and true when its distance is within
// the threshold. A threshold <= 0 falls back to DefaultMatchThreshold.
func BestMatch(input string, candidates []string, threshold float64) (string, bool) {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	input = normalizeName(input)
	if input == "" {
		return "", false
	}

	best := ""
	bestDistance := 1.0
	for _, candidate := range candidates {
		normalized := normalizeName(candidate)
		if normalized == "" {
			continue
		}
		d := matchDistance(input, normalized)
		if d < bestDistance {
			bestDistance = d
			best = candidate
		}
	}
	if best == "" || bestDistance > threshold {
		return "", false
	}
	return best, true
}

// matchDistance combines whole-string edit distance with an average
// per-token distance, taking the better of the two. The token pass keeps
// word-order and extra filler words from dominating the score.
func matchDistance(a, b string) float64 {
	whole := normalizedLevenshtein(a, b)

	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return whole
	}
	var sum float64
	for _, token := range aTokens {
		bestToken := 1.0
		for _, other := range bTokens {
			if d := normalizedLevenshtein(token, other); d < bestToken {
				bestToken = d
			}
		}
		sum += bestToken
	}
	tokens := sum / float64(len(aTokens))
	if tokens < whole {
		return tokens
	}
	return whole
}

func normalizedLevenshtein(a, b string) float64 {
	if a == b {
		return 0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	return float64(levenshtein(a, b)) / float64(longest)
}

func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}
