// Package edges builds the co-occurrence skeleton of the knowledge graph:
// for every pair of resolved nodes that share evidence, it emits a
// co_mentioned edge (document-level overlap) and, where the two nodes also
// have mentions in at least one common chunk, a co_located edge
// (chunk-level overlap). The
// classifier package later upgrades these into semantic relationship
// types; the builder never does semantic typing itself.
package edges

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/normanking/docgraph/internal/hashid"
	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
)

// maxCooccurrenceEntities bounds the O(n²) pair sweep: only the top-N
// nodes by document_count participate in co-occurrence edge building.
const maxCooccurrenceEntities = 200

// maxStoredChunkIDs caps how many shared chunk ids a co_located edge's
// metadata carries, independent of the evidence_count it reports.
const maxStoredChunkIDs = 50

// Result summarizes one Build pass.
type Result struct {
	NodesConsidered  int
	NodesPruned      int
	CoMentionedEdges int
	CoLocatedEdges   int
	EdgesSkipped     int // already existed, idempotent no-op
}

// nodeEvidence is one node's document and chunk footprint, assembled from
// its NodeEntityLinks and their member entities' mentions.
type nodeEvidence struct {
	node      *types.KnowledgeNode
	documents map[string]struct{}
	chunks    map[string]struct{}
}

// Build runs the full co-occurrence sweep over the current node
// population, attached to rootProvenanceID as the KNOWLEDGE_GRAPH
// provenance record every emitted edge anchors to.
func Build(ctx context.Context, q store.Querier, rootProvenanceID string) (Result, error) {
	total, err := store.CountKnowledgeNodes(ctx, q)
	if err != nil {
		return Result{}, err
	}

	nodes, err := store.ListAllKnowledgeNodes(ctx, q, maxCooccurrenceEntities)
	if err != nil {
		return Result{}, fmt.Errorf("list nodes for edge build: %w", err)
	}

	result := Result{NodesConsidered: len(nodes)}
	if total > len(nodes) {
		result.NodesPruned = total - len(nodes)
		log.Warn().
			Int("total_nodes", total).
			Int("retained", len(nodes)).
			Int("pruned", result.NodesPruned).
			Msg("co-occurrence builder pruned nodes to the document_count top-N cap")
	}

	evidence := make([]*nodeEvidence, 0, len(nodes))
	for _, n := range nodes {
		ev, err := collectEvidence(ctx, q, n)
		if err != nil {
			return Result{}, err
		}
		evidence = append(evidence, ev)
	}

	// Pair order must be deterministic for reproducible node identities
	// and idempotent re-runs; sort by node id, not document_count.
	sort.Slice(evidence, func(i, j int) bool { return evidence[i].node.ID < evidence[j].node.ID })

	for i := 0; i < len(evidence); i++ {
		for j := i + 1; j < len(evidence); j++ {
			a, b := evidence[i], evidence[j]
			created, skipped, err := emitPair(ctx, q, a, b, rootProvenanceID)
			if err != nil {
				return Result{}, err
			}
			result.CoMentionedEdges += created.coMentioned
			result.CoLocatedEdges += created.coLocated
			result.EdgesSkipped += skipped
		}
	}

	return result, nil
}

func collectEvidence(ctx context.Context, q store.Querier, node *types.KnowledgeNode) (*nodeEvidence, error) {
	links, err := store.GetLinksByNode(ctx, q, node.ID)
	if err != nil {
		return nil, fmt.Errorf("load links for node %s: %w", node.ID, err)
	}

	ev := &nodeEvidence{node: node, documents: map[string]struct{}{}, chunks: map[string]struct{}{}}
	for _, link := range links {
		ev.documents[link.DocumentID] = struct{}{}

		mentions, err := store.GetMentionsByEntity(ctx, q, link.EntityID)
		if err != nil {
			return nil, fmt.Errorf("load mentions for entity %s: %w", link.EntityID, err)
		}
		for _, m := range mentions {
			if m.ChunkID != "" {
				ev.chunks[m.ChunkID] = struct{}{}
			}
		}
	}
	return ev, nil
}

type pairCounts struct {
	coMentioned int
	coLocated   int
}

func emitPair(ctx context.Context, q store.Querier, a, b *nodeEvidence, rootProvenanceID string) (pairCounts, int, error) {
	var counts pairCounts
	skipped := 0

	source, target := orderPair(a.node.ID, b.node.ID)

	sharedDocs := intersect(a.documents, b.documents)
	if len(sharedDocs) == 0 {
		return counts, skipped, nil
	}

	base := float64(len(sharedDocs)) / float64(max(len(a.documents), len(b.documents)))
	base = roundTo4(base)

	existing, err := store.GetEdgeBetween(ctx, q, source, target, types.RelCoMentioned)
	if err != nil {
		return counts, skipped, fmt.Errorf("lookup existing co_mentioned edge: %w", err)
	}
	if existing == nil {
		edge := &types.KnowledgeEdge{
			ID:               hashid.New(),
			SourceNodeID:     source,
			TargetNodeID:     target,
			RelationshipType: types.RelCoMentioned,
			Weight:           base,
			EvidenceCount:    len(sharedDocs),
			DocumentIDs:      sortedKeys(sharedDocs),
			ProvenanceID:     rootProvenanceID,
		}
		if err := store.CreateKnowledgeEdge(ctx, q, edge); err != nil {
			return counts, skipped, fmt.Errorf("create co_mentioned edge: %w", err)
		}
		counts.coMentioned++
	} else {
		skipped++
	}

	sharedChunks := intersect(a.chunks, b.chunks)
	if len(sharedChunks) == 0 {
		return counts, skipped, nil
	}

	existingLocated, err := store.GetEdgeBetween(ctx, q, source, target, types.RelCoLocated)
	if err != nil {
		return counts, skipped, fmt.Errorf("lookup existing co_located edge: %w", err)
	}
	if existingLocated != nil {
		skipped++
		return counts, skipped, nil
	}

	locatedWeight := math.Min(1.0, base*1.5)
	chunkIDs := sortedKeys(sharedChunks)
	if len(chunkIDs) > maxStoredChunkIDs {
		chunkIDs = chunkIDs[:maxStoredChunkIDs]
	}
	// A co_located edge's EvidenceCount counts shared chunks, not shared
	// documents as co_mentioned's does; the two counts are not comparable.
	edge := &types.KnowledgeEdge{
		ID:               hashid.New(),
		SourceNodeID:     source,
		TargetNodeID:     target,
		RelationshipType: types.RelCoLocated,
		Weight:           roundTo4(locatedWeight),
		EvidenceCount:    len(sharedChunks),
		DocumentIDs:      sortedKeys(sharedDocs),
		Metadata:         map[string]any{"shared_chunk_ids": chunkIDs},
		ProvenanceID:     rootProvenanceID,
	}
	if err := store.CreateKnowledgeEdge(ctx, q, edge); err != nil {
		return counts, skipped, fmt.Errorf("create co_located edge: %w", err)
	}
	counts.coLocated++

	return counts, skipped, nil
}

func orderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	out := make(map[string]struct{})
	for k := range small {
		if _, ok := large[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func roundTo4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
