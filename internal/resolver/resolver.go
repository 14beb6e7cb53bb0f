package resolver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/normanking/docgraph/internal/collab"
	"github.com/normanking/docgraph/internal/hashid"
	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
)

// Mode is the entity-resolution strategy build_graph and incremental_add
// run under.
type Mode string

const (
	ModeExact Mode = "exact"
	ModeFuzzy Mode = "fuzzy"
	ModeAI    Mode = "ai"
)

// Options configures one resolution pass.
type Options struct {
	Mode             Mode
	FuzzyThreshold   float64
	ClusterHintBoost float64
	AIMergeConfidence float64
	Generator        collab.Generator // nil is valid: ai mode then degrades to fuzzy-only
	RootProvenanceID string           // the KNOWLEDGE_GRAPH provenance record new nodes attach to
}

// Result is the outcome of resolving one Entity.
type Result struct {
	NodeID     string
	Method     types.ResolutionMethod
	Similarity float64
	Created    bool // true if a brand-new node was created rather than merged
}

// Resolve resolves one entity against the existing node population,
// running the cascade appropriate to opts.Mode: exact always runs first;
// fuzzy falls back to it on miss; ai falls back to fuzzy on miss.
func Resolve(ctx context.Context, q store.Querier, entity *types.Entity, clusterTags map[string]bool, opts Options) (Result, error) {
	normalized := normalize(entity.NormalizedText)
	if normalized == "" {
		normalized = normalize(entity.RawText)
	}

	// Stage 1: exact.
	existing, err := store.GetKnowledgeNodeByNormalizedName(ctx, q, entity.EntityType, normalized)
	if err != nil {
		return Result{}, fmt.Errorf("exact lookup: %w", err)
	}
	if existing != nil {
		if err := mergeInto(ctx, q, existing, entity, types.ResolutionExact, 1.0); err != nil {
			return Result{}, err
		}
		return Result{NodeID: existing.ID, Method: types.ResolutionExact, Similarity: 1.0}, nil
	}

	if opts.Mode == ModeExact {
		return createNew(ctx, q, entity, opts)
	}

	// Stage 2: fuzzy.
	candidates, err := candidatesFor(ctx, q, entity.EntityType, clusterTags)
	if err != nil {
		return Result{}, err
	}
	if match, score, ok := bestMatch(entity.NormalizedText, candidates, opts.ClusterHintBoost); ok && score >= opts.FuzzyThreshold {
		node, err := store.GetKnowledgeNode(ctx, q, match.id)
		if err != nil {
			return Result{}, fmt.Errorf("load fuzzy match: %w", err)
		}
		if err := mergeInto(ctx, q, node, entity, types.ResolutionFuzzy, score); err != nil {
			return Result{}, err
		}
		return Result{NodeID: node.ID, Method: types.ResolutionFuzzy, Similarity: score}, nil
	}

	if opts.Mode == ModeFuzzy || opts.Generator == nil {
		return createNew(ctx, q, entity, opts)
	}

	// Stage 3: ai.
	nodeID, confidence, merged, err := resolveAI(ctx, q, entity, candidates, opts)
	if err != nil {
		return Result{}, err
	}
	if merged {
		node, err := store.GetKnowledgeNode(ctx, q, nodeID)
		if err != nil {
			return Result{}, fmt.Errorf("load ai match: %w", err)
		}
		if err := mergeInto(ctx, q, node, entity, types.ResolutionAI, confidence); err != nil {
			return Result{}, err
		}
		return Result{NodeID: node.ID, Method: types.ResolutionAI, Similarity: confidence}, nil
	}
	return createNew(ctx, q, entity, opts)
}

func candidatesFor(ctx context.Context, q store.Querier, entityType types.EntityType, clusterTags map[string]bool) ([]candidate, error) {
	nodes, err := store.ListKnowledgeNodesByType(ctx, q, entityType)
	if err != nil {
		return nil, fmt.Errorf("list candidate nodes: %w", err)
	}
	out := make([]candidate, 0, len(nodes))
	for _, n := range nodes {
		boost := false
		if len(clusterTags) > 0 {
			links, err := store.GetLinksByNode(ctx, q, n.ID)
			if err == nil {
				for _, l := range links {
					tags, _ := store.GetClusterTagsByDocument(ctx, q, l.DocumentID)
					for _, t := range tags {
						if clusterTags[t] {
							boost = true
							break
						}
					}
					if boost {
						break
					}
				}
			}
		}
		out = append(out, candidate{id: n.ID, canonicalName: n.CanonicalName, clusterBoost: boost})
	}
	return out, nil
}

// aiClassifyResponse is the strict JSON shape requested from the generator.
type aiClassifyResponse struct {
	MergeNodeID string  `json:"merge_node_id"`
	Confidence  float64 `json:"confidence"`
	Merge       bool    `json:"merge"`
}

func resolveAI(ctx context.Context, q store.Querier, entity *types.Entity, candidates []candidate, opts Options) (nodeID string, confidence float64, merged bool, err error) {
	if len(candidates) == 0 {
		return "", 0, false, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Entity: %q (type=%s)\nCandidate nodes:\n", entity.RawText, entity.EntityType)
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- id=%s name=%q\n", c.id, c.canonicalName)
	}
	sb.WriteString("\nDoes the entity refer to the same real-world thing as one of the candidates? Respond with JSON only.")

	raw, genErr := opts.Generator.Classify(ctx, sb.String(), `{"merge_node_id": string, "confidence": number, "merge": boolean}`)
	if genErr != nil {
		if errors.Is(genErr, collab.ErrNoGenerator) {
			return "", 0, false, nil
		}
		// Generator failure is non-critical for resolution: the spec
		// requires graceful fallback to leaving the entity unmerged.
		return "", 0, false, nil
	}

	var resp aiClassifyResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return "", 0, false, nil
	}
	if !resp.Merge || resp.Confidence < opts.AIMergeConfidence || resp.MergeNodeID == "" {
		return "", 0, false, nil
	}
	for _, c := range candidates {
		if c.id == resp.MergeNodeID {
			return resp.MergeNodeID, resp.Confidence, true, nil
		}
	}
	return "", 0, false, nil
}

// createNew inserts a brand-new KnowledgeNode for an entity with no merge
// target, plus its NodeEntityLink.
func createNew(ctx context.Context, q store.Querier, entity *types.Entity, opts Options) (Result, error) {
	node := &types.KnowledgeNode{
		ID:             hashid.New(),
		EntityType:     entity.EntityType,
		CanonicalName:  entity.RawText,
		NormalizedName: normalize(entity.NormalizedText),
		Aliases:        []string{entity.RawText},
		DocumentCount:  1,
		MentionCount:   0,
		EdgeCount:      0,
		AvgConfidence:  entity.Confidence,
		ProvenanceID:   opts.RootProvenanceID,
	}
	if err := store.CreateKnowledgeNode(ctx, q, node); err != nil {
		return Result{}, fmt.Errorf("create knowledge node: %w", err)
	}
	if err := linkEntity(ctx, q, node.ID, entity, types.ResolutionExact, 1.0); err != nil {
		return Result{}, err
	}
	return Result{NodeID: node.ID, Method: types.ResolutionExact, Similarity: 1.0, Created: true}, nil
}

// mergeInto links entity onto an already-existing node and recomputes the
// node's canonical fields over its full, now-grown membership.
func mergeInto(ctx context.Context, q store.Querier, node *types.KnowledgeNode, entity *types.Entity, method types.ResolutionMethod, similarity float64) error {
	if err := linkEntity(ctx, q, node.ID, entity, method, similarity); err != nil {
		return err
	}
	return Recompute(ctx, q, node.ID)
}

func linkEntity(ctx context.Context, q store.Querier, nodeID string, entity *types.Entity, method types.ResolutionMethod, similarity float64) error {
	link := &types.NodeEntityLink{
		ID:               hashid.New(),
		NodeID:           nodeID,
		EntityID:         entity.ID,
		DocumentID:       entity.DocumentID,
		SimilarityScore:  similarity,
		ResolutionMethod: method,
	}
	if err := store.CreateNodeEntityLink(ctx, q, link); err != nil {
		return fmt.Errorf("link entity to node: %w", err)
	}
	return nil
}

// Recompute reloads every member entity of a node and rewrites its
// canonical_name, normalized_name, aliases, avg_confidence, document_count,
// and mention_count, then persists the result. Called after any merge,
// incremental add, or incremental remove that changes a node's membership.
func Recompute(ctx context.Context, q store.Querier, nodeID string) error {
	node, err := store.GetKnowledgeNode(ctx, q, nodeID)
	if err != nil {
		return fmt.Errorf("load node for recompute: %w", err)
	}

	links, err := store.GetLinksByNode(ctx, q, nodeID)
	if err != nil {
		return fmt.Errorf("load node links: %w", err)
	}
	if len(links) == 0 {
		return nil
	}

	members := make([]member, 0, len(links))
	for _, l := range links {
		entity, err := store.GetEntity(ctx, q, l.EntityID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue // entity was deleted underneath this link; cleanup owns removing the link itself
			}
			return fmt.Errorf("load member entity: %w", err)
		}
		mentions, err := store.GetMentionsByEntity(ctx, q, entity.ID)
		if err != nil {
			return fmt.Errorf("count member mentions: %w", err)
		}
		members = append(members, member{
			RawText: entity.RawText, NormalizedText: entity.NormalizedText,
			Confidence: entity.Confidence, DocumentID: entity.DocumentID,
			MentionCount: len(mentions), CreatedAt: entity.CreatedAt,
		})
	}

	recompute(node, members)
	if len(members) > 0 {
		aliasesJSON, err := json.Marshal(node.Aliases)
		if err != nil {
			return fmt.Errorf("marshal node aliases: %w", err)
		}
		if _, err := q.ExecContext(ctx, `UPDATE knowledge_nodes SET canonical_name = ?, normalized_name = ?, aliases = ? WHERE id = ?`,
			node.CanonicalName, node.NormalizedName, string(aliasesJSON), node.ID); err != nil {
			return fmt.Errorf("persist node canonical fields: %w", err)
		}
	}
	return store.UpdateKnowledgeNodeStats(ctx, q, node.ID, node.DocumentCount, node.MentionCount, node.EdgeCount, node.AvgConfidence)
}

// ParseMode validates a caller-supplied mode string, defaulting to exact.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeExact, ModeFuzzy, ModeAI:
		return Mode(s), nil
	case "":
		return ModeExact, nil
	default:
		return "", &types.AppError{Category: types.ErrValidation, Message: fmt.Sprintf("unknown resolution mode %q", s)}
	}
}
