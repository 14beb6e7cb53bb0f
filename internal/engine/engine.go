// Package engine exposes docgraph's operations as a single typed surface:
// every call takes a plain input struct and returns a types.Envelope, the
// {success, data, error} shape every collaborator (CLI, eventual RPC
// surface) is written against. Engine owns transaction boundaries —
// callers never see a *sql.Tx.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/normanking/docgraph/internal/cascade"
	"github.com/normanking/docgraph/internal/classifier"
	"github.com/normanking/docgraph/internal/collab"
	"github.com/normanking/docgraph/internal/config"
	"github.com/normanking/docgraph/internal/edges"
	"github.com/normanking/docgraph/internal/graphquery"
	"github.com/normanking/docgraph/internal/hashid"
	"github.com/normanking/docgraph/internal/incremental"
	"github.com/normanking/docgraph/internal/provenance"
	"github.com/normanking/docgraph/internal/resolver"
	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
)

// Engine wires the graph-maintenance packages to a store and a
// configuration, and is the one place transaction boundaries are drawn.
type Engine struct {
	store      *store.Store
	cfg        *config.Config
	generator  collab.Generator
	pathSafety *PathSafety
}

// New constructs an Engine. generator may be nil: ai-mode resolution and
// the classifier's generative stage then degrade to their rule-only
// fallbacks, per their own package docs.
func New(s *store.Store, cfg *config.Config, generator collab.Generator) *Engine {
	return &Engine{
		store:      s,
		cfg:        cfg,
		generator:  generator,
		pathSafety: NewPathSafety(cfg.PathSafety.AllowedDirs),
	}
}

// envelopeFromError converts an error into a Fail envelope, preserving an
// existing AppError's category and otherwise wrapping it as ErrInternal.
func envelopeFromError(err error) types.Envelope {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return types.Fail(appErr)
	}
	return types.Fail(types.NewAppError(types.ErrInternal, err.Error(), nil))
}

// PathSafety exposes the configured allow-list resolver so callers
// ingesting a raw file (outside the ten graph operations above) validate
// its path before ever opening it.
func (e *Engine) PathSafety() *PathSafety {
	return e.pathSafety
}

func (e *Engine) resolverOptions(mode resolver.Mode, rootProvenanceID string) resolver.Options {
	return resolver.Options{
		Mode:              mode,
		FuzzyThreshold:    e.cfg.Resolver.FuzzyThreshold,
		ClusterHintBoost:  e.cfg.Resolver.ClusterHintBoost,
		AIMergeConfidence: e.cfg.Resolver.AIMergeConfidence,
		Generator:         e.generator,
		RootProvenanceID:  rootProvenanceID,
	}
}

func (e *Engine) parseMode(mode string) (resolver.Mode, error) {
	if mode == "" {
		mode = e.cfg.Resolver.DefaultMode
	}
	switch resolver.Mode(mode) {
	case resolver.ModeExact, resolver.ModeFuzzy, resolver.ModeAI:
		return resolver.Mode(mode), nil
	default:
		return "", types.NewAppError(types.ErrValidation, fmt.Sprintf("unknown resolution_mode %q", mode), nil)
	}
}

// graphProvenanceRoot creates a new KNOWLEDGE_GRAPH provenance record for
// new nodes and edges to attach to; BuildGraph calls it once per build.
// rootDocumentID anchors the record's root_document_id to a real document
// so provenance.Chain has somewhere genuine to walk to. IncrementalAdd does
// not call it: it attaches to the caller's RootProvenanceID instead.
func graphProvenanceRoot(ctx context.Context, q store.Querier, rootDocumentID string) (string, error) {
	rec := provenance.NewRecord(types.KindKnowledgeGraph, rootDocumentID, hashid.ContentHashString("graph:"+rootDocumentID), "docgraph-engine", "v1")
	return provenance.Create(ctx, q, rec)
}

// BuildGraphInput configures one build_graph call.
type BuildGraphInput struct {
	DocumentIDs           []string // empty means every complete document
	ResolutionMode        string   // "exact" | "fuzzy" | "ai"; empty uses the configured default
	ClassifyRelationships bool
	Rebuild               bool // wipe the existing graph (nodes/edges/links) before building
}

// BuildGraphOutput summarizes one build_graph call.
type BuildGraphOutput struct {
	DocumentsProcessed int
	EntitiesResolved   int
	NodesCreated       int
	NodesGrown         int
	EdgesBuilt         edges.Result
	Classification     *classifier.Result // nil unless ClassifyRelationships was requested
}

// BuildGraph resolves entities across the selected documents, builds the
// co-occurrence edge skeleton, and optionally runs relationship
// classification, all inside one transaction.
func (e *Engine) BuildGraph(ctx context.Context, in BuildGraphInput) types.Envelope {
	mode, err := e.parseMode(in.ResolutionMode)
	if err != nil {
		return envelopeFromError(err)
	}

	var out BuildGraphOutput
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if in.Rebuild {
			if err := store.DeleteAllGraphData(ctx, tx); err != nil {
				return err
			}
		} else {
			existing, err := store.CountKnowledgeNodes(ctx, tx)
			if err != nil {
				return err
			}
			if existing > 0 {
				return types.NewAppError(types.ErrValidation, "a graph already exists; pass rebuild=true to replace it", nil)
			}
		}

		docs, err := e.documentsForBuild(ctx, tx, in.DocumentIDs)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return types.NewAppError(types.ErrDocumentNotFound, "no eligible documents to build a graph from", nil)
		}

		rootProvenanceID, err := graphProvenanceRoot(ctx, tx, docs[0].ID)
		if err != nil {
			return fmt.Errorf("create graph provenance root: %w", err)
		}
		opts := e.resolverOptions(mode, rootProvenanceID)

		for _, doc := range docs {
			addResult, err := incremental.AddDocument(ctx, tx, doc.ID, opts, true)
			if err != nil {
				return fmt.Errorf("add document %s: %w", doc.ID, err)
			}
			out.DocumentsProcessed++
			out.EntitiesResolved += addResult.EntitiesResolved
			out.NodesCreated += addResult.NodesCreated
			out.NodesGrown += addResult.NodesGrown
			out.EdgesBuilt = addResult.EdgeBuild
		}

		if in.ClassifyRelationships {
			result, err := classifier.Run(ctx, tx, classifier.Options{Generator: e.generator})
			if err != nil {
				return fmt.Errorf("classify relationships: %w", err)
			}
			out.Classification = &result
		}
		return nil
	})
	if err != nil {
		return envelopeFromError(err)
	}
	return types.Ok(out)
}

// documentsForBuild resolves build_graph's document_filter: an explicit
// id list if given, else every completed document.
func (e *Engine) documentsForBuild(ctx context.Context, q store.Querier, ids []string) ([]*types.Document, error) {
	if len(ids) == 0 {
		return store.ListDocuments(ctx, q, types.DocumentComplete)
	}
	docs := make([]*types.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := store.GetDocument(ctx, q, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, types.NewAppError(types.ErrDocumentNotFound, "document not found: "+id, nil)
			}
			return nil, fmt.Errorf("load document %s: %w", id, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// QueryGraphInput mirrors query_graph's filter shape.
type QueryGraphInput struct {
	EntityName       string
	EntityType       string
	DocumentID       string
	MinDocumentCount int
	MaxDepth         int // 0 means list_nodes only, no expansion
	Limit            int
}

// QueryGraph lists nodes matching the filter and, when MaxDepth > 0,
// expands a neighborhood seeded from those nodes.
func (e *Engine) QueryGraph(ctx context.Context, in QueryGraphInput) types.Envelope {
	filter := graphquery.NodeFilter{
		EntityType:       types.EntityType(in.EntityType),
		NameQuery:        in.EntityName,
		MinDocumentCount: in.MinDocumentCount,
		DocumentID:       in.DocumentID,
		Limit:            in.Limit,
	}
	nodes, err := graphquery.ListNodes(ctx, e.store.DB(), filter)
	if err != nil {
		return envelopeFromError(err)
	}

	if in.MaxDepth <= 0 || len(nodes) == 0 {
		return types.Ok(graphquery.Subgraph{Nodes: nodes})
	}

	seeds := make([]string, len(nodes))
	for i, n := range nodes {
		seeds[i] = n.ID
	}
	sub, err := graphquery.ExpandNeighborhood(ctx, e.store.DB(), seeds, in.MaxDepth, in.Limit)
	if err != nil {
		return envelopeFromError(err)
	}
	return types.Ok(sub)
}

// NodeDetailsInput mirrors get_node_details's input.
type NodeDetailsInput struct {
	NodeID            string
	IncludeMentions   bool
	IncludeProvenance bool
}

// NodeDetails assembles the full detail view for one node.
func (e *Engine) NodeDetails(ctx context.Context, in NodeDetailsInput) types.Envelope {
	details, err := graphquery.GetNodeDetails(ctx, e.store.DB(), in.NodeID, graphquery.DetailOptions{
		IncludeMentions:   in.IncludeMentions,
		IncludeProvenance: in.IncludeProvenance,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return envelopeFromError(types.NewAppError(types.ErrDatabaseNotFound, "node not found: "+in.NodeID, nil))
		}
		return envelopeFromError(err)
	}
	return types.Ok(details)
}

// FindPathsInput mirrors find_paths's input.
type FindPathsInput struct {
	SourceEntity       string
	TargetEntity       string
	MaxHops            int
	RelationshipFilter []string
	IncludeEvidence    bool
}

// FindPaths enumerates every simple path between two nodes.
func (e *Engine) FindPaths(ctx context.Context, in FindPathsInput) types.Envelope {
	var filter map[types.RelationshipType]bool
	if len(in.RelationshipFilter) > 0 {
		filter = make(map[types.RelationshipType]bool, len(in.RelationshipFilter))
		for _, r := range in.RelationshipFilter {
			filter[types.RelationshipType(r)] = true
		}
	}
	paths, err := graphquery.FindPaths(ctx, e.store.DB(), in.SourceEntity, in.TargetEntity, graphquery.PathOptions{
		MaxHops:            in.MaxHops,
		RelationshipFilter: filter,
		IncludeEvidence:    in.IncludeEvidence,
	})
	if err != nil {
		return envelopeFromError(err)
	}
	return types.Ok(paths)
}

// GraphStatsOutput summarizes the current graph's shape.
type GraphStatsOutput struct {
	TotalNodes       int
	TotalEdges       int
	NodesByType      map[types.EntityType]int
	EdgesByType      map[types.RelationshipType]int
	AvgDocumentCount float64
}

// GraphStats reports node/edge population counts broken down by type.
func (e *Engine) GraphStats(ctx context.Context) types.Envelope {
	totalNodes, err := store.CountKnowledgeNodes(ctx, e.store.DB())
	if err != nil {
		return envelopeFromError(err)
	}
	nodesByType, err := store.NodeTypeCounts(ctx, e.store.DB())
	if err != nil {
		return envelopeFromError(err)
	}
	edgesByType, err := store.EdgeTypeCounts(ctx, e.store.DB())
	if err != nil {
		return envelopeFromError(err)
	}
	avgDocCount, err := store.AvgNodeDocumentCount(ctx, e.store.DB())
	if err != nil {
		return envelopeFromError(err)
	}

	var totalEdges int
	for _, n := range edgesByType {
		totalEdges += n
	}

	return types.Ok(GraphStatsOutput{
		TotalNodes:       totalNodes,
		TotalEdges:       totalEdges,
		NodesByType:      nodesByType,
		EdgesByType:      edgesByType,
		AvgDocumentCount: avgDocCount,
	})
}

// DeleteGraphInput requires an explicit confirmation, per the spec's
// destructive-operation guard.
type DeleteGraphInput struct {
	Confirm bool
}

// DeleteGraph wipes every node, edge, and resolution link, leaving
// documents, entities, and provenance untouched.
func (e *Engine) DeleteGraph(ctx context.Context, in DeleteGraphInput) types.Envelope {
	if !in.Confirm {
		return envelopeFromError(types.NewAppError(types.ErrValidation, "delete_graph requires confirm=true", nil))
	}
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		return store.DeleteAllGraphData(ctx, tx)
	})
	if err != nil {
		return envelopeFromError(err)
	}
	return types.Ok(nil)
}

// ClassifyRelationshipsInput mirrors classify_relationships's input.
// ClassifyRelationships does not read EdgeIDs, Limit or BatchSize: the
// classifier always sweeps every co_mentioned/co_located edge up to its own
// fixed per-run cap, in batches of its own fixed size, whatever these hold.
type ClassifyRelationshipsInput struct {
	EdgeIDs   []string
	Limit     int
	BatchSize int
}

// ClassifyRelationships runs the rule-then-generative classification
// cascade over the current edge population.
func (e *Engine) ClassifyRelationships(ctx context.Context, in ClassifyRelationshipsInput) types.Envelope {
	var result classifier.Result
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		r, err := classifier.Run(ctx, tx, classifier.Options{Generator: e.generator})
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return envelopeFromError(err)
	}
	return types.Ok(result)
}

// IncrementalAddInput mirrors incremental_add's input.
type IncrementalAddInput struct {
	DocumentID       string
	ResolutionMode   string
	RootProvenanceID string // the existing graph's KNOWLEDGE_GRAPH provenance record
	Force            bool
}

// IncrementalAdd folds one already-processed document into an existing
// graph.
func (e *Engine) IncrementalAdd(ctx context.Context, in IncrementalAddInput) types.Envelope {
	mode, err := e.parseMode(in.ResolutionMode)
	if err != nil {
		return envelopeFromError(err)
	}
	if in.RootProvenanceID == "" {
		return envelopeFromError(types.NewAppError(types.ErrValidation, "root_provenance_id is required: no existing graph to attach to", nil))
	}

	var result incremental.AddResult
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := store.GetDocument(ctx, tx, in.DocumentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NewAppError(types.ErrDocumentNotFound, "document not found: "+in.DocumentID, nil)
			}
			return err
		}
		opts := e.resolverOptions(mode, in.RootProvenanceID)
		r, err := incremental.AddDocument(ctx, tx, in.DocumentID, opts, in.Force)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return envelopeFromError(err)
	}
	return types.Ok(result)
}

// IncrementalRemoveInput mirrors incremental_remove's input.
type IncrementalRemoveInput struct {
	DocumentID string
}

// IncrementalRemove strips one document's contribution from the graph
// without touching its rows.
func (e *Engine) IncrementalRemove(ctx context.Context, in IncrementalRemoveInput) types.Envelope {
	var result incremental.RemoveResult
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		r, err := incremental.RemoveDocument(ctx, tx, in.DocumentID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return envelopeFromError(err)
	}
	return types.Ok(result)
}

// DeleteDocumentInput mirrors delete_document's input.
type DeleteDocumentInput struct {
	DocumentID string
}

// DeleteDocument cascades a document's removal across every dependent
// table, including its graph contribution, leaving its provenance behind.
func (e *Engine) DeleteDocument(ctx context.Context, in DeleteDocumentInput) types.Envelope {
	result, err := cascade.DeleteDocument(ctx, e.store, in.DocumentID)
	if err != nil {
		return envelopeFromError(err)
	}
	return types.Ok(result)
}
