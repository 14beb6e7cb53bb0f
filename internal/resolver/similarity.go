package resolver

import (
	"sort"
	"strings"
	"unicode"
)

// tokenize lower-cases s and splits it into its alphanumeric tokens,
// discarding punctuation and whitespace, per the spec's "token-set Jaccard
// over lower-cased alphanumeric tokens" definition.
func tokenize(s string) map[string]struct{} {
	lower := strings.ToLower(s)
	var b strings.Builder
	tokens := make(map[string]struct{})
	flush := func() {
		if b.Len() > 0 {
			tokens[b.String()] = struct{}{}
			b.Reset()
		}
	}
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// jaccardSimilarity computes the token-set Jaccard similarity between two
// names: |intersection| / |union|, 0 if both are empty.
func jaccardSimilarity(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	intersection := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// bestMatch scans candidates for the highest-similarity name to target,
// tie-broken by lexicographic order on canonical_name per the spec. The
// cluster-hint boost is added to the raw score of each candidate whose
// clusterBoost flag is set (capped at 1.0) before comparison, and the
// returned similarity is that boosted value, the one used for the threshold
// check.
type candidate struct {
	id            string
	canonicalName string
	clusterBoost  bool
}

func bestMatch(target string, candidates []candidate, clusterHintBoost float64) (candidate, float64, bool) {
	var best candidate
	var bestScore float64
	found := false

	for _, c := range candidates {
		score := jaccardSimilarity(target, c.canonicalName)
		if c.clusterBoost {
			score += clusterHintBoost
		}
		if score > 1.0 {
			score = 1.0
		}
		if !found || score > bestScore || (score == bestScore && c.canonicalName < best.canonicalName) {
			best = c
			bestScore = score
			found = true
		}
	}

	if !found {
		return candidate{}, 0, false
	}
	return best, bestScore, true
}

// sortedStrings returns a sorted copy of ss, leaving ss unchanged. Nothing
// in this package calls it at present.
func sortedStrings(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}
