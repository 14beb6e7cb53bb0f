package graphquery

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/normanking/docgraph/internal/edges"
	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
)

// maxHops is the hard cap find_paths accepts for path length.
const maxHops = 6

// maxEvidenceExcerpts bounds how many chunk excerpts each edge on a path
// carries when evidence is requested.
const maxEvidenceExcerpts = 5

// maxExcerptChars truncates a chunk excerpt so one long chunk can't bloat
// a path response.
const maxExcerptChars = 300

// Path is one simple path of KnowledgeEdges connecting source to target.
type Path struct {
	NodeIDs  []string
	Edges    []*types.KnowledgeEdge
	Evidence map[string][]string // edge id -> chunk excerpts, populated only if requested
}

// PathOptions configures one FindPaths call.
type PathOptions struct {
	MaxHops            int
	RelationshipFilter map[types.RelationshipType]bool // nil/empty means no filter
	IncludeEvidence    bool
}

// FindPaths resolves source/target (either a node id or a name, FTS-first
// with a LIKE fallback) and returns every simple path between them of
// length at most opts.MaxHops (clamped to 6).
func FindPaths(ctx context.Context, q store.Querier, source, target string, opts PathOptions) ([]Path, error) {
	hops := opts.MaxHops
	if hops <= 0 || hops > maxHops {
		hops = maxHops
	}

	sourceID, err := resolveNodeRef(ctx, q, source)
	if err != nil {
		return nil, err
	}
	targetID, err := resolveNodeRef(ctx, q, target)
	if err != nil {
		return nil, err
	}

	allEdges, err := store.ListAllKnowledgeEdges(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list edges for path search: %w", err)
	}
	adj := buildAdjacency(allEdges)

	var paths []Path
	visited := map[string]bool{sourceID: true}
	walkPaths(adj, sourceID, targetID, hops, opts.RelationshipFilter, visited, []string{sourceID}, nil, &paths)

	if opts.IncludeEvidence {
		for i := range paths {
			evidence, err := pathEvidence(ctx, q, paths[i].Edges)
			if err != nil {
				return nil, err
			}
			paths[i].Evidence = evidence
		}
	}

	return paths, nil
}

// resolveNodeRef accepts either a v4-UUID node id or a name, resolving
// names via SearchKnowledgeNodesByName's own FTS-first/LIKE-fallback
// behavior and taking the top hit.
func resolveNodeRef(ctx context.Context, q store.Querier, ref string) (string, error) {
	if _, err := uuid.Parse(ref); err == nil {
		node, err := store.GetKnowledgeNode(ctx, q, ref)
		if err != nil {
			return "", types.NewAppError(types.ErrDatabaseNotFound, "node not found: "+ref, nil)
		}
		return node.ID, nil
	}

	matches, err := store.SearchKnowledgeNodesByName(ctx, q, ref, 1)
	if err != nil || len(matches) == 0 {
		return "", types.NewAppError(types.ErrDatabaseNotFound, "no node matches: "+ref, nil)
	}
	return matches[0].ID, nil
}

// walkPaths does a depth-bounded DFS over simple paths (no repeated node),
// matching find_paths' "every simple path of length ≤ max_hops" contract.
// DFS rather than pure BFS because the result set must enumerate all
// paths, not just the shortest one.
func walkPaths(adj adjacency, current, target string, hopsLeft int, filter map[types.RelationshipType]bool, visited map[string]bool, nodePath []string, edgePath []*types.KnowledgeEdge, out *[]Path) {
	if current == target && len(edgePath) > 0 {
		*out = append(*out, Path{
			NodeIDs: append([]string(nil), nodePath...),
			Edges:   append([]*types.KnowledgeEdge(nil), edgePath...),
		})
	}
	if hopsLeft == 0 {
		return
	}
	for _, e := range adj[current] {
		if len(filter) > 0 && !filter[e.RelationshipType] {
			continue
		}
		next := otherEndpoint(e, current)
		if visited[next] {
			continue
		}
		visited[next] = true
		walkPaths(adj, next, target, hopsLeft-1, filter, visited, append(nodePath, next), append(edgePath, e), out)
		delete(visited, next)
	}
}

// pathEvidence gathers up to maxEvidenceExcerpts chunk excerpts per edge,
// preferring the edge's own stored shared_chunk_ids (co_located edges)
// and falling back to recomputing the two endpoints' shared chunks.
func pathEvidence(ctx context.Context, q store.Querier, pathEdges []*types.KnowledgeEdge) (map[string][]string, error) {
	out := make(map[string][]string, len(pathEdges))
	for _, e := range pathEdges {
		chunkIDs := sharedChunkIDsFromMetadata(e)
		if len(chunkIDs) == 0 {
			ids, err := sharedChunkIDsFromEndpoints(ctx, q, e)
			if err != nil {
				return nil, err
			}
			chunkIDs = ids
		}
		if len(chunkIDs) > maxEvidenceExcerpts {
			chunkIDs = chunkIDs[:maxEvidenceExcerpts]
		}

		excerpts := make([]string, 0, len(chunkIDs))
		for _, id := range chunkIDs {
			chunk, err := store.GetChunk(ctx, q, id)
			if err != nil {
				continue
			}
			excerpts = append(excerpts, truncateExcerpt(chunk.Text))
		}
		out[e.ID] = excerpts
	}
	return out, nil
}

func sharedChunkIDsFromMetadata(e *types.KnowledgeEdge) []string {
	raw, ok := e.Metadata["shared_chunk_ids"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func sharedChunkIDsFromEndpoints(ctx context.Context, q store.Querier, e *types.KnowledgeEdge) ([]string, error) {
	source, err := store.GetKnowledgeNode(ctx, q, e.SourceNodeID)
	if err != nil {
		return nil, nil
	}
	target, err := store.GetKnowledgeNode(ctx, q, e.TargetNodeID)
	if err != nil {
		return nil, nil
	}
	_, sourceChunks, err := edges.Evidence(ctx, q, source)
	if err != nil {
		return nil, err
	}
	_, targetChunks, err := edges.Evidence(ctx, q, target)
	if err != nil {
		return nil, err
	}
	var shared []string
	for id := range sourceChunks {
		if _, ok := targetChunks[id]; ok {
			shared = append(shared, id)
		}
	}
	return shared, nil
}

func truncateExcerpt(text string) string {
	if len(text) <= maxExcerptChars {
		return text
	}
	return text[:maxExcerptChars]
}
