// Package incremental maintains the knowledge graph as individual documents
// are added or removed, without requiring a full rebuild. Both operations
// are meant to run inside a single caller-supplied transaction so a partial
// failure leaves the graph observationally unchanged.
package incremental

import (
	"context"
	"fmt"

	"github.com/normanking/docgraph/internal/edges"
	"github.com/normanking/docgraph/internal/resolver"
	"github.com/normanking/docgraph/internal/store"
)

// AddResult summarizes one AddDocument pass.
type AddResult struct {
	EntitiesResolved int
	NodesCreated     int
	NodesGrown       int
	EdgeBuild        edges.Result
}

// AddDocument resolves a document's entities against the existing node
// population and repairs every edge incident to a touched node, then emits
// any newly co-occurring pairs. force is accepted and ignored: neither this
// function nor its caller in internal/engine has a guard for it to bypass.
func AddDocument(ctx context.Context, q store.Querier, documentID string, opts resolver.Options, force bool) (AddResult, error) {
	_ = force

	entities, err := store.GetEntitiesByDocument(ctx, q, documentID)
	if err != nil {
		return AddResult{}, fmt.Errorf("load document entities: %w", err)
	}

	clusterTags, err := clusterTagSet(ctx, q, documentID)
	if err != nil {
		return AddResult{}, err
	}

	result := AddResult{}
	touched := make(map[string]struct{})
	for _, entity := range entities {
		res, err := resolver.Resolve(ctx, q, entity, clusterTags, opts)
		if err != nil {
			return AddResult{}, fmt.Errorf("resolve entity %s: %w", entity.ID, err)
		}
		result.EntitiesResolved++
		if res.Created {
			result.NodesCreated++
		} else {
			result.NodesGrown++
		}
		touched[res.NodeID] = struct{}{}
	}

	for nodeID := range touched {
		if err := edges.RecomputeIncident(ctx, q, nodeID); err != nil {
			return AddResult{}, fmt.Errorf("recompute edges for node %s: %w", nodeID, err)
		}
	}

	buildResult, err := edges.Build(ctx, q, opts.RootProvenanceID)
	if err != nil {
		return AddResult{}, fmt.Errorf("emit newly co-occurring edges: %w", err)
	}
	result.EdgeBuild = buildResult

	return result, nil
}

func clusterTagSet(ctx context.Context, q store.Querier, documentID string) (map[string]bool, error) {
	tags, err := store.GetClusterTagsByDocument(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("load cluster tags: %w", err)
	}
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	return set, nil
}

// RemoveResult summarizes one RemoveDocument pass.
type RemoveResult struct {
	EdgesPruned   int
	EdgesDeleted  int
	NodesShrunk   int
	NodesOrphaned int
}

// RemoveDocument performs the full graph-side repair for a document's
// removal: it owns deleting the document's own NodeEntityLinks, decrements
// document_count on every node that had one, shrinks every edge that
// referenced documentID, and reclaims orphans. It does not touch the
// document's own rows (entities, chunks, ocr_results, the Document row
// itself) — internal/cascade owns deleting those, reusing this function
// for its graph-side steps before it deletes the dependent rows.
func RemoveDocument(ctx context.Context, q store.Querier, documentID string) (RemoveResult, error) {
	result := RemoveResult{}

	links, err := store.GetLinksByDocument(ctx, q, documentID)
	if err != nil {
		return RemoveResult{}, fmt.Errorf("load document links: %w", err)
	}

	affectedNodes := make(map[string]struct{}, len(links))
	for _, l := range links {
		affectedNodes[l.NodeID] = struct{}{}
	}

	if err := store.DeleteLinksByDocument(ctx, q, documentID); err != nil {
		return RemoveResult{}, fmt.Errorf("delete document's node_entity_links: %w", err)
	}

	if err := pruneEdgesReferencingDocument(ctx, q, documentID, &result); err != nil {
		return RemoveResult{}, err
	}

	for nodeID := range affectedNodes {
		node, err := store.GetKnowledgeNode(ctx, q, nodeID)
		if err != nil {
			return RemoveResult{}, fmt.Errorf("load affected node %s: %w", nodeID, err)
		}
		newCount := node.DocumentCount - 1
		if newCount < 0 {
			newCount = 0
		}
		if err := store.UpdateKnowledgeNodeStats(ctx, q, node.ID, newCount, node.MentionCount, node.EdgeCount, node.AvgConfidence); err != nil {
			return RemoveResult{}, fmt.Errorf("decrement document_count for node %s: %w", node.ID, err)
		}
		result.NodesShrunk++
	}

	for nodeID := range affectedNodes {
		orphan, err := isOrphan(ctx, q, nodeID)
		if err != nil {
			return RemoveResult{}, err
		}
		if !orphan {
			continue
		}
		if err := store.DeleteEdgesByNode(ctx, q, nodeID); err != nil {
			return RemoveResult{}, fmt.Errorf("delete edges incident to orphan %s: %w", nodeID, err)
		}
		if err := store.DeleteKnowledgeNode(ctx, q, nodeID); err != nil {
			return RemoveResult{}, fmt.Errorf("delete orphan node %s: %w", nodeID, err)
		}
		result.NodesOrphaned++
	}

	return result, nil
}

// isOrphan reports whether a node has no remaining document membership and
// no remaining NodeEntityLinks, the spec's orphan test.
func isOrphan(ctx context.Context, q store.Querier, nodeID string) (bool, error) {
	node, err := store.GetKnowledgeNode(ctx, q, nodeID)
	if err != nil {
		return false, fmt.Errorf("load node %s for orphan test: %w", nodeID, err)
	}
	if node.DocumentCount > 0 {
		return false, nil
	}
	remaining, err := store.CountLinksByNode(ctx, q, nodeID)
	if err != nil {
		return false, err
	}
	return remaining == 0, nil
}

// pruneEdgesReferencingDocument walks every edge whose document_ids
// contains documentID and applies the spec's reweighting formula,
// deleting the edge outright once its document set empties.
func pruneEdgesReferencingDocument(ctx context.Context, q store.Querier, documentID string, result *RemoveResult) error {
	all, err := store.ListAllKnowledgeEdges(ctx, q)
	if err != nil {
		return fmt.Errorf("list knowledge edges: %w", err)
	}

	for _, edge := range all {
		oldLen := len(edge.DocumentIDs)
		if oldLen == 0 || !containsDoc(edge.DocumentIDs, documentID) {
			continue
		}

		newDocs := removeDoc(edge.DocumentIDs, documentID)
		if len(newDocs) == 0 {
			if err := store.DeleteKnowledgeEdge(ctx, q, edge.ID); err != nil {
				return fmt.Errorf("delete emptied edge %s: %w", edge.ID, err)
			}
			result.EdgesDeleted++
			continue
		}

		edge.DocumentIDs = newDocs
		edge.Weight = edge.Weight * float64(len(newDocs)) / float64(oldLen)
		edge.EvidenceCount = edge.EvidenceCount - 1
		if edge.EvidenceCount < 1 {
			edge.EvidenceCount = 1
		}
		if err := store.UpdateKnowledgeEdge(ctx, q, edge); err != nil {
			return fmt.Errorf("reweight edge %s: %w", edge.ID, err)
		}
		result.EdgesPruned++
	}
	return nil
}

func containsDoc(docs []string, documentID string) bool {
	for _, d := range docs {
		if d == documentID {
			return true
		}
	}
	return false
}

func removeDoc(docs []string, documentID string) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if d != documentID {
			out = append(out, d)
		}
	}
	return out
}
