package graphquery

import (
	"context"
	"fmt"

	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
)

// maxDepth is the hard cap expand_neighborhood accepts for traversal depth;
// find_paths has its own hop cap, maxHops, in paths.go.
const maxDepth = 3

// Subgraph is the induced subgraph returned by ExpandNeighborhood: every
// node discovered within max_depth of a seed, and every edge whose both
// endpoints lie in that visited set.
type Subgraph struct {
	Nodes []*types.KnowledgeNode
	Edges []*types.KnowledgeEdge
}

// adjacency maps a node id to the edges touching it, built once per call
// from the full edge set so repeated BFS steps don't re-query the store.
type adjacency map[string][]*types.KnowledgeEdge

func buildAdjacency(edges []*types.KnowledgeEdge) adjacency {
	adj := make(adjacency)
	for _, e := range edges {
		adj[e.SourceNodeID] = append(adj[e.SourceNodeID], e)
		adj[e.TargetNodeID] = append(adj[e.TargetNodeID], e)
	}
	return adj
}

func otherEndpoint(e *types.KnowledgeEdge, nodeID string) string {
	if e.SourceNodeID == nodeID {
		return e.TargetNodeID
	}
	return e.SourceNodeID
}

// ExpandNeighborhood breadth-first-expands from seedIDs along edges up to
// depth (clamped to 3), returning the induced subgraph over every node
// visited and every edge between two visited nodes, capped at limit nodes
// (clamped to 200).
func ExpandNeighborhood(ctx context.Context, q store.Querier, seedIDs []string, depth, limit int) (Subgraph, error) {
	if depth <= 0 || depth > maxDepth {
		depth = maxDepth
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	allEdges, err := store.ListAllKnowledgeEdges(ctx, q)
	if err != nil {
		return Subgraph{}, fmt.Errorf("list edges for expansion: %w", err)
	}
	adj := buildAdjacency(allEdges)

	visited := make(map[string]int) // node id -> depth at first visit
	queue := make([]string, 0, len(seedIDs))
	for _, id := range seedIDs {
		if _, ok := visited[id]; !ok {
			visited[id] = 0
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 && len(visited) < limit {
		current := queue[0]
		queue = queue[1:]
		currentDepth := visited[current]
		if currentDepth >= depth {
			continue
		}
		for _, e := range adj[current] {
			other := otherEndpoint(e, current)
			if _, ok := visited[other]; ok {
				continue
			}
			if len(visited) >= limit {
				break
			}
			visited[other] = currentDepth + 1
			queue = append(queue, other)
		}
	}

	nodes := make([]*types.KnowledgeNode, 0, len(visited))
	for id := range visited {
		n, err := store.GetKnowledgeNode(ctx, q, id)
		if err != nil {
			continue // node was deleted concurrently with this read-only traversal
		}
		nodes = append(nodes, n)
	}

	var inducedEdges []*types.KnowledgeEdge
	for _, e := range allEdges {
		_, sourceVisited := visited[e.SourceNodeID]
		_, targetVisited := visited[e.TargetNodeID]
		if sourceVisited && targetVisited {
			inducedEdges = append(inducedEdges, e)
		}
	}

	return Subgraph{Nodes: nodes, Edges: inducedEdges}, nil
}
