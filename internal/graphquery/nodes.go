// Package graphquery implements the read-only traversal surface over the
// knowledge graph: filtered node listing, neighborhood expansion, node
// detail lookup, and bounded-depth path search.
package graphquery

import (
	"context"
	"fmt"
	"sort"

	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
)

// maxLimit is the hard cap list_nodes/expand_neighborhood accept,
// regardless of what a caller requests.
const maxLimit = 200

// NodeFilter narrows list_nodes. All fields are optional; a zero-value
// Filter lists every node up to the limit.
type NodeFilter struct {
	EntityType       types.EntityType
	NameQuery        string
	MinDocumentCount int
	DocumentID       string
	Limit            int
}

// ListNodes returns nodes matching filter, ordered by descending
// document_count, capped at 200 regardless of what Limit requests.
func ListNodes(ctx context.Context, q store.Querier, filter NodeFilter) ([]*types.KnowledgeNode, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	var candidates []*types.KnowledgeNode
	var err error
	switch {
	case filter.NameQuery != "":
		candidates, err = store.SearchKnowledgeNodesByName(ctx, q, filter.NameQuery, maxLimit)
	case filter.EntityType != "":
		candidates, err = store.ListKnowledgeNodesByType(ctx, q, filter.EntityType)
	default:
		candidates, err = store.ListAllKnowledgeNodes(ctx, q, maxLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("list candidate nodes: %w", err)
	}

	out := make([]*types.KnowledgeNode, 0, len(candidates))
	for _, n := range candidates {
		if filter.NameQuery != "" && filter.EntityType != "" && n.EntityType != filter.EntityType {
			continue
		}
		if n.DocumentCount < filter.MinDocumentCount {
			continue
		}
		if filter.DocumentID != "" {
			member, err := nodeHasDocument(ctx, q, n.ID, filter.DocumentID)
			if err != nil {
				return nil, err
			}
			if !member {
				continue
			}
		}
		out = append(out, n)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DocumentCount > out[j].DocumentCount })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func nodeHasDocument(ctx context.Context, q store.Querier, nodeID, documentID string) (bool, error) {
	links, err := store.GetLinksByNode(ctx, q, nodeID)
	if err != nil {
		return false, fmt.Errorf("load links for membership check: %w", err)
	}
	for _, l := range links {
		if l.DocumentID == documentID {
			return true, nil
		}
	}
	return false, nil
}
