package graphquery

import (
	"context"
	"fmt"

	"github.com/normanking/docgraph/internal/provenance"
	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
)

// MemberEntity is one entity resolved onto a node, annotated with the
// document it was extracted from.
type MemberEntity struct {
	Entity       *types.Entity
	DocumentName string
}

// IncidentEdge is one edge touching a node, annotated with a summary of
// the node on the other end.
type IncidentEdge struct {
	Edge          *types.KnowledgeEdge
	OtherNodeID   string
	OtherNodeName string
	OtherNodeType types.EntityType
}

// NodeDetails is the full get_node_details response.
type NodeDetails struct {
	Node       *types.KnowledgeNode
	Members    []MemberEntity
	Edges      []IncidentEdge
	Provenance []*types.ProvenanceRecord // nil unless requested
}

// DetailOptions toggles the optional, more expensive sections of
// NodeDetails.
type DetailOptions struct {
	IncludeMentions   bool
	IncludeProvenance bool
}

// GetNodeDetails assembles the full detail view for one node.
func GetNodeDetails(ctx context.Context, q store.Querier, nodeID string, opts DetailOptions) (NodeDetails, error) {
	node, err := store.GetKnowledgeNode(ctx, q, nodeID)
	if err != nil {
		return NodeDetails{}, fmt.Errorf("load node: %w", err)
	}
	details := NodeDetails{Node: node}

	if opts.IncludeMentions {
		links, err := store.GetLinksByNode(ctx, q, nodeID)
		if err != nil {
			return NodeDetails{}, fmt.Errorf("load member links: %w", err)
		}
		details.Members = make([]MemberEntity, 0, len(links))
		for _, l := range links {
			entity, err := store.GetEntity(ctx, q, l.EntityID)
			if err != nil {
				continue // entity vanished underneath a stale link; skip rather than fail the whole view
			}
			docName := ""
			if doc, err := store.GetDocument(ctx, q, l.DocumentID); err == nil {
				docName = doc.FileName
			}
			details.Members = append(details.Members, MemberEntity{Entity: entity, DocumentName: docName})
		}
	}

	edges, err := store.GetEdgesByNode(ctx, q, nodeID)
	if err != nil {
		return NodeDetails{}, fmt.Errorf("load incident edges: %w", err)
	}
	details.Edges = make([]IncidentEdge, 0, len(edges))
	for _, e := range edges {
		otherID := otherEndpoint(e, nodeID)
		summary := IncidentEdge{Edge: e, OtherNodeID: otherID}
		if other, err := store.GetKnowledgeNode(ctx, q, otherID); err == nil {
			summary.OtherNodeName = other.CanonicalName
			summary.OtherNodeType = other.EntityType
		}
		details.Edges = append(details.Edges, summary)
	}

	if opts.IncludeProvenance {
		chain, err := provenance.Chain(ctx, q, node.ProvenanceID)
		if err != nil {
			return NodeDetails{}, fmt.Errorf("load provenance chain: %w", err)
		}
		details.Provenance = chain
	}

	return details, nil
}
