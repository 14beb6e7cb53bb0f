package edges

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
)

// Evidence returns one node's current document and chunk footprint,
// exported so incremental maintenance can recompute edge weights after a
// node's membership grows or shrinks without duplicating this sweep.
func Evidence(ctx context.Context, q store.Querier, node *types.KnowledgeNode) (documents, chunks map[string]struct{}, err error) {
	ev, err := collectEvidence(ctx, q, node)
	if err != nil {
		return nil, nil, err
	}
	return ev.documents, ev.chunks, nil
}

// RecomputeIncident rewrites every co_mentioned/co_located edge incident to
// nodeID using current evidence, per the builder's weight formula. An edge
// whose pair no longer shares any evidence is deleted outright. Edges
// already upgraded to a semantic relationship type by the classifier are
// left untouched: the builder's weight formula only has meaning for the
// two raw co-occurrence types.
func RecomputeIncident(ctx context.Context, q store.Querier, nodeID string) error {
	node, err := store.GetKnowledgeNode(ctx, q, nodeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil // node itself was already reclaimed as an orphan
		}
		return fmt.Errorf("load node %s for edge recompute: %w", nodeID, err)
	}

	nodeDocs, nodeChunks, err := Evidence(ctx, q, node)
	if err != nil {
		return err
	}

	incident, err := store.GetEdgesByNode(ctx, q, nodeID)
	if err != nil {
		return fmt.Errorf("load edges incident to node %s: %w", nodeID, err)
	}

	for _, edge := range incident {
		if edge.RelationshipType != types.RelCoMentioned && edge.RelationshipType != types.RelCoLocated {
			continue
		}

		otherID := edge.TargetNodeID
		if otherID == nodeID {
			otherID = edge.SourceNodeID
		}
		other, err := store.GetKnowledgeNode(ctx, q, otherID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				if err := store.DeleteKnowledgeEdge(ctx, q, edge.ID); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("load edge endpoint %s: %w", otherID, err)
		}
		otherDocs, otherChunks, err := Evidence(ctx, q, other)
		if err != nil {
			return err
		}

		sharedDocs := intersect(nodeDocs, otherDocs)
		if len(sharedDocs) == 0 {
			if err := store.DeleteKnowledgeEdge(ctx, q, edge.ID); err != nil {
				return fmt.Errorf("delete stale edge %s: %w", edge.ID, err)
			}
			continue
		}

		base := roundTo4(float64(len(sharedDocs)) / float64(maxInt(len(nodeDocs), len(otherDocs))))

		if edge.RelationshipType == types.RelCoMentioned {
			edge.Weight = base
			edge.EvidenceCount = len(sharedDocs)
			edge.DocumentIDs = sortedKeys(sharedDocs)
			if err := store.UpdateKnowledgeEdge(ctx, q, edge); err != nil {
				return fmt.Errorf("update recomputed co_mentioned edge %s: %w", edge.ID, err)
			}
			continue
		}

		sharedChunks := intersect(nodeChunks, otherChunks)
		if len(sharedChunks) == 0 {
			if err := store.DeleteKnowledgeEdge(ctx, q, edge.ID); err != nil {
				return fmt.Errorf("delete stale co_located edge %s: %w", edge.ID, err)
			}
			continue
		}
		chunkIDs := sortedKeys(sharedChunks)
		if len(chunkIDs) > maxStoredChunkIDs {
			chunkIDs = chunkIDs[:maxStoredChunkIDs]
		}
		if edge.Metadata == nil {
			edge.Metadata = map[string]any{}
		}
		edge.Metadata["shared_chunk_ids"] = chunkIDs
		edge.Weight = roundTo4(math.Min(1.0, base*1.5))
		edge.EvidenceCount = len(sharedChunks)
		edge.DocumentIDs = sortedKeys(sharedDocs)
		if err := store.UpdateKnowledgeEdge(ctx, q, edge); err != nil {
			return fmt.Errorf("update recomputed co_located edge %s: %w", edge.ID, err)
		}
	}

	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
