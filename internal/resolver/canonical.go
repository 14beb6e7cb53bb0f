package resolver

import (
	"strings"
	"time"

	"github.com/normanking/docgraph/pkg/types"
)

// member is one Entity contributing to a KnowledgeNode, the unit
// canonicalization operates over.
type member struct {
	RawText        string
	NormalizedText string
	Confidence     float64
	DocumentID     string
	MentionCount   int
	CreatedAt      time.Time
}

// canonicalName picks the longest member raw_text, ties broken by earliest
// creation time, per the spec's canonicalization rule.
func canonicalName(members []member) string {
	if len(members) == 0 {
		return ""
	}
	best := members[0]
	for _, m := range members[1:] {
		if len(m.RawText) > len(best.RawText) {
			best = m
			continue
		}
		if len(m.RawText) == len(best.RawText) && m.CreatedAt.Before(best.CreatedAt) {
			best = m
		}
	}
	return best.RawText
}

// aliases returns the set of distinct member raw_texts, order-stable by
// first appearance.
func aliases(members []member) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range members {
		if !seen[m.RawText] {
			seen[m.RawText] = true
			out = append(out, m.RawText)
		}
	}
	return out
}

// avgConfidence is the arithmetic mean of member confidences.
func avgConfidence(members []member) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, m := range members {
		sum += m.Confidence
	}
	return sum / float64(len(members))
}

// documentCount is the number of distinct contributing document ids.
func documentCount(members []member) int {
	seen := make(map[string]bool)
	for _, m := range members {
		seen[m.DocumentID] = true
	}
	return len(seen)
}

// mentionCount is the sum of mentions across members.
func mentionCount(members []member) int {
	total := 0
	for _, m := range members {
		total += m.MentionCount
	}
	return total
}

// recompute derives a node's canonical fields from its full member set,
// called whenever a node grows (new merge, incremental add) or shrinks
// (incremental remove, cascade delete).
func recompute(node *types.KnowledgeNode, members []member) {
	node.CanonicalName = canonicalName(members)
	node.NormalizedName = normalize(node.CanonicalName)
	node.Aliases = aliases(members)
	node.AvgConfidence = avgConfidence(members)
	node.DocumentCount = documentCount(members)
	node.MentionCount = mentionCount(members)
}

// normalize lowercases and trims, the transform the spec requires of every
// Entity.normalized_text and, by extension, every node's normalized_name.
func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
