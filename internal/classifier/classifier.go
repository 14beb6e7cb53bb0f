// Package classifier upgrades co_mentioned/co_located edges to semantic
// relationship types through a four-stage cascade, recording an
// append-only audit trail on every successful upgrade.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/docgraph/internal/collab"
	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
)

// maxBatchSize is the largest single generative-classification request;
// maxTotalEdges hard-caps how many edges one Run call will ever touch.
// maxConcurrentBatches bounds how many batch requests are in flight against
// the generator at once; *sql.Tx tolerates concurrent callers, but the
// remote model call is what this actually throttles.
const (
	maxBatchSize         = 20
	maxTotalEdges        = 50
	maxConcurrentBatches = 4
	maxChunkChars        = 1500
	maxCtxChars          = 500
	maxSnippets          = 5
)

// relationshipClosedSet excludes co_mentioned/co_located: the generative
// stage may only assign a semantic label, never re-assert a raw
// co-occurrence type.
var relationshipClosedSet = map[types.RelationshipType]bool{
	types.RelWorksAt: true, types.RelRepresents: true, types.RelLocatedIn: true,
	types.RelFiledIn: true, types.RelCites: true, types.RelReferences: true,
	types.RelPartyTo: true, types.RelRelatedTo: true, types.RelPrecedes: true,
	types.RelOccurredAt: true, types.RelTreatedWith: true, types.RelAdministeredVia: true,
	types.RelManagedBy: true, types.RelInteractsWith: true,
}

// Options configures one classification run.
type Options struct {
	Generator collab.Generator // nil is valid: run stops after stage 3
}

// Result summarizes one Run pass.
type Result struct {
	Upgraded      int
	Unchanged     int
	EdgesSkipped  int // beyond maxTotalEdges, not attempted this run
	BatchFailures int
}

// Run classifies every co_mentioned/co_located edge currently in the
// graph, applying the rule cascade first and, where all three rule stages
// miss, batching the remainder through the generative classifier.
func Run(ctx context.Context, q store.Querier, opts Options) (Result, error) {
	all, err := store.ListAllKnowledgeEdges(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("list edges for classification: %w", err)
	}

	var candidates []*types.KnowledgeEdge
	for _, e := range all {
		if e.RelationshipType == types.RelCoMentioned || e.RelationshipType == types.RelCoLocated {
			candidates = append(candidates, e)
		}
	}

	result := Result{}
	if len(candidates) > maxTotalEdges {
		result.EdgesSkipped = len(candidates) - maxTotalEdges
		log.Warn().
			Int("candidates", len(candidates)).
			Int("cap", maxTotalEdges).
			Msg("relationship classifier truncated candidate edges to the per-run cap")
		candidates = candidates[:maxTotalEdges]
	}

	var aiQueue []*types.KnowledgeEdge
	for _, edge := range candidates {
		upgraded, err := classifyByRules(ctx, q, edge)
		if err != nil {
			return result, err
		}
		if upgraded {
			result.Upgraded++
			continue
		}
		aiQueue = append(aiQueue, edge)
	}

	if len(aiQueue) == 0 || opts.Generator == nil {
		result.Unchanged += len(aiQueue)
		return result, nil
	}

	var batches [][]*types.KnowledgeEdge
	for start := 0; start < len(aiQueue); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(aiQueue) {
			end = len(aiQueue)
		}
		batches = append(batches, aiQueue[start:end])
	}

	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentBatches)
	for _, batch := range batches {
		batch := batch
		group.Go(func() error {
			changed, err := classifyBatchAI(gctx, q, batch, opts.Generator)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Failure is isolated per batch; the batch's edges are left
				// as-is with a classification_failed marker, and the run
				// continues with the remaining batches.
				result.BatchFailures++
				if markErr := markBatchFailed(ctx, q, batch, err); markErr != nil {
					return markErr
				}
				result.Unchanged += len(batch)
				return nil
			}
			result.Upgraded += changed
			result.Unchanged += len(batch) - changed
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return result, err
	}

	return result, nil
}

// classifyByRules runs stages 1-3 against one edge; returns true if it
// upgraded the edge's relationship_type (and persisted the change).
func classifyByRules(ctx context.Context, q store.Querier, edge *types.KnowledgeEdge) (bool, error) {
	nodeA, err := store.GetKnowledgeNode(ctx, q, edge.SourceNodeID)
	if err != nil {
		return false, fmt.Errorf("load source node: %w", err)
	}
	nodeB, err := store.GetKnowledgeNode(ctx, q, edge.TargetNodeID)
	if err != nil {
		return false, fmt.Errorf("load target node: %w", err)
	}

	entitiesA, entitiesB, err := memberEntitiesOnDocuments(ctx, q, nodeA.ID, nodeB.ID, edge.DocumentIDs)
	if err != nil {
		return false, err
	}

	if relType, confidence, ok := extractionSchemaRule(entitiesA, entitiesB, nodeA.EntityType, nodeB.EntityType); ok {
		return true, applyClassification(ctx, q, edge, relType, types.ClassifiedByExtractionSchema, confidence)
	}

	tags, err := sharedClusterTags(ctx, q, edge.DocumentIDs)
	if err != nil {
		return false, err
	}
	if relType, confidence, ok := clusterHintRule(tags, nodeA.EntityType, nodeB.EntityType); ok {
		return true, applyClassification(ctx, q, edge, relType, types.ClassifiedByClusterHint, confidence)
	}

	if relType, confidence, ok := matrixLookup(nodeA.EntityType, nodeB.EntityType); ok {
		return true, applyClassification(ctx, q, edge, relType, types.ClassifiedByTypeMatrix, confidence)
	}

	return false, nil
}

func memberEntitiesOnDocuments(ctx context.Context, q store.Querier, nodeAID, nodeBID string, documentIDs []string) ([]*types.Entity, []*types.Entity, error) {
	inScope := make(map[string]bool, len(documentIDs))
	for _, d := range documentIDs {
		inScope[d] = true
	}

	load := func(nodeID string) ([]*types.Entity, error) {
		links, err := store.GetLinksByNode(ctx, q, nodeID)
		if err != nil {
			return nil, fmt.Errorf("load links for node %s: %w", nodeID, err)
		}
		var out []*types.Entity
		for _, l := range links {
			if !inScope[l.DocumentID] {
				continue
			}
			e, err := store.GetEntity(ctx, q, l.EntityID)
			if err != nil {
				continue // entity vanished underneath the link; not this rule's concern
			}
			out = append(out, e)
		}
		return out, nil
	}

	a, err := load(nodeAID)
	if err != nil {
		return nil, nil, err
	}
	b, err := load(nodeBID)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func sharedClusterTags(ctx context.Context, q store.Querier, documentIDs []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, docID := range documentIDs {
		tags, err := store.GetClusterTagsByDocument(ctx, q, docID)
		if err != nil {
			return nil, fmt.Errorf("load cluster tags for document %s: %w", docID, err)
		}
		for _, t := range tags {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// applyClassification mutates and persists an edge's relationship_type,
// appending an immutable classification_history entry in the same update.
func applyClassification(ctx context.Context, q store.Querier, edge *types.KnowledgeEdge, relType types.RelationshipType, by types.ClassifiedBy, confidence float64) error {
	entry := types.ClassificationHistoryEntry{
		OriginalType: edge.RelationshipType, ClassifiedType: relType,
		ClassifiedBy: by, Confidence: confidence, ClassifiedAt: time.Now().UTC(),
	}
	appendHistory(edge, entry)
	edge.RelationshipType = relType
	if err := store.UpdateKnowledgeEdge(ctx, q, edge); err != nil {
		return fmt.Errorf("persist classified edge %s: %w", edge.ID, err)
	}
	return nil
}

// appendHistory adds entry to edge.Metadata["classification_history"],
// round-tripping through JSON since Metadata is a loosely-typed map that
// may already carry a history slice decoded from a prior row read.
func appendHistory(edge *types.KnowledgeEdge, entry types.ClassificationHistoryEntry) {
	if edge.Metadata == nil {
		edge.Metadata = map[string]any{}
	}
	var history []types.ClassificationHistoryEntry
	if raw, ok := edge.Metadata["classification_history"]; ok {
		if b, err := json.Marshal(raw); err == nil {
			_ = json.Unmarshal(b, &history)
		}
	}
	history = append(history, entry)
	edge.Metadata["classification_history"] = history
}

func appendFailure(edge *types.KnowledgeEdge, f types.ClassificationFailure) {
	if edge.Metadata == nil {
		edge.Metadata = map[string]any{}
	}
	var failures []types.ClassificationFailure
	if raw, ok := edge.Metadata["classification_failed"]; ok {
		if b, err := json.Marshal(raw); err == nil {
			_ = json.Unmarshal(b, &failures)
		}
	}
	failures = append(failures, f)
	edge.Metadata["classification_failed"] = failures
}

func markBatchFailed(ctx context.Context, q store.Querier, batch []*types.KnowledgeEdge, cause error) error {
	attemptedAt := time.Now().UTC()
	for _, edge := range batch {
		appendFailure(edge, types.ClassificationFailure{Error: cause.Error(), AttemptedAt: attemptedAt})
		if err := store.UpdateKnowledgeEdge(ctx, q, edge); err != nil {
			return fmt.Errorf("persist classification_failed marker on edge %s: %w", edge.ID, err)
		}
	}
	return nil
}

// edgePairPrompt is one entity pair line fed to the generative classifier.
type edgePairPrompt struct {
	Index    int    `json:"index"`
	TypeA    string `json:"type_a"`
	NameA    string `json:"name_a"`
	TypeB    string `json:"type_b"`
	NameB    string `json:"name_b"`
	Snippets string `json:"evidence"`
}

type aiLabel struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// classifyBatchAI runs stage 4 for one batch, returning how many edges it
// upgraded. A generator error fails the whole batch to the caller, which
// isolates it via markBatchFailed.
func classifyBatchAI(ctx context.Context, q store.Querier, batch []*types.KnowledgeEdge, gen collab.Generator) (int, error) {
	prompts := make([]edgePairPrompt, 0, len(batch))
	for i, edge := range batch {
		nodeA, err := store.GetKnowledgeNode(ctx, q, edge.SourceNodeID)
		if err != nil {
			return 0, fmt.Errorf("load source node for batch prompt: %w", err)
		}
		nodeB, err := store.GetKnowledgeNode(ctx, q, edge.TargetNodeID)
		if err != nil {
			return 0, fmt.Errorf("load target node for batch prompt: %w", err)
		}
		snippets, err := evidenceSnippets(ctx, q, edge)
		if err != nil {
			return 0, err
		}
		prompts = append(prompts, edgePairPrompt{
			Index: i, TypeA: string(nodeA.EntityType), NameA: nodeA.CanonicalName,
			TypeB: string(nodeB.EntityType), NameB: nodeB.CanonicalName, Snippets: snippets,
		})
	}

	var sb strings.Builder
	sb.WriteString("Classify the relationship between each entity pair below. ")
	sb.WriteString("Respond with a JSON array of {\"index\": number, \"label\": string}. ")
	sb.WriteString("label must be one of: ")
	sb.WriteString(strings.Join(closedSetLabels(), ", "))
	sb.WriteString(".\n\n")
	for _, p := range prompts {
		fmt.Fprintf(&sb, "%d. %s %q <-> %s %q. Evidence: %s\n", p.Index, p.TypeA, p.NameA, p.TypeB, p.NameB, p.Snippets)
	}

	raw, err := gen.Classify(ctx, sb.String(), `[{"index": number, "label": string}]`)
	if err != nil {
		return 0, err
	}

	labels := parseAILabels(raw, len(batch))
	changed := 0
	for i, edge := range batch {
		label, ok := labels[i]
		if !ok {
			continue
		}
		relType := types.RelationshipType(label)
		if relType == types.RelCoMentioned || relType == types.RelCoLocated || !relationshipClosedSet[relType] {
			continue // unrecognized or regressive label leaves the edge unchanged
		}
		if err := applyClassification(ctx, q, edge, relType, types.ClassifiedByAI, 0); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func closedSetLabels() []string {
	out := make([]string, 0, len(relationshipClosedSet))
	for k := range relationshipClosedSet {
		out = append(out, string(k))
	}
	return out
}

// parseAILabels prefers the structured {index,label} array; if that fails
// to parse, it falls back to tolerant "N: label" line scanning, per the
// generator's best-effort output contract.
func parseAILabels(raw string, n int) map[int]string {
	out := make(map[int]string, n)

	var structured []aiLabel
	if err := json.Unmarshal([]byte(raw), &structured); err == nil {
		for _, l := range structured {
			out[l.Index] = strings.TrimSpace(l.Label)
		}
		return out
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.IndexAny(line, ".:")
		if idx <= 0 {
			continue
		}
		var i int
		if _, err := fmt.Sscanf(line[:idx], "%d", &i); err != nil {
			continue
		}
		out[i] = strings.TrimSpace(line[idx+1:])
	}
	return out
}

// evidenceSnippets gathers up to maxSnippets pieces of supporting text for
// one edge: shared chunk text where available, else mention context_text,
// each truncated to the spec's character caps.
func evidenceSnippets(ctx context.Context, q store.Querier, edge *types.KnowledgeEdge) (string, error) {
	var chunkIDs []string
	if raw, ok := edge.Metadata["shared_chunk_ids"]; ok {
		if b, err := json.Marshal(raw); err == nil {
			_ = json.Unmarshal(b, &chunkIDs)
		}
	}

	var parts []string
	for _, id := range chunkIDs {
		if len(parts) >= maxSnippets {
			break
		}
		chunk, err := store.GetChunk(ctx, q, id)
		if err != nil {
			continue
		}
		parts = append(parts, truncate(chunk.Text, maxChunkChars))
	}

	if len(parts) == 0 {
		// Fall back to mention context_text for either endpoint node.
		for _, nodeID := range []string{edge.SourceNodeID, edge.TargetNodeID} {
			if len(parts) >= maxSnippets {
				break
			}
			links, err := store.GetLinksByNode(ctx, q, nodeID)
			if err != nil {
				continue
			}
			for _, l := range links {
				if len(parts) >= maxSnippets {
					break
				}
				mentions, err := store.GetMentionsByEntity(ctx, q, l.EntityID)
				if err != nil {
					continue
				}
				for _, m := range mentions {
					if m.ContextText == "" {
						continue
					}
					parts = append(parts, truncate(m.ContextText, maxCtxChars))
					break
				}
			}
		}
	}

	return strings.Join(parts, " | "), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
