package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/normanking/docgraph/pkg/types"
)

const knowledgeNodeColumns = `id, entity_type, canonical_name, normalized_name, aliases, document_count, mention_count, edge_count, avg_confidence, metadata, provenance_id, created_at, updated_at`

// CreateKnowledgeNode inserts a new resolved entity node.
func CreateKnowledgeNode(ctx context.Context, q Querier, n *types.KnowledgeNode) error {
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	aliases, err := marshalJSONArray(n.Aliases)
	if err != nil {
		return fmt.Errorf("marshal node aliases: %w", err)
	}
	metadata, err := marshalJSON(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal node metadata: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO knowledge_nodes (`+knowledgeNodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.EntityType), n.CanonicalName, n.NormalizedName, aliases,
		n.DocumentCount, n.MentionCount, n.EdgeCount, n.AvgConfidence, metadata,
		n.ProvenanceID, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert knowledge_node: %w", err)
	}
	return nil
}

func scanKnowledgeNode(row interface{ Scan(dest ...any) error }) (*types.KnowledgeNode, error) {
	var n types.KnowledgeNode
	var entityType, aliasesJSON, metadataJSON string
	if err := row.Scan(&n.ID, &entityType, &n.CanonicalName, &n.NormalizedName, &aliasesJSON,
		&n.DocumentCount, &n.MentionCount, &n.EdgeCount, &n.AvgConfidence, &metadataJSON,
		&n.ProvenanceID, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.EntityType = types.EntityType(entityType)
	aliases, err := unmarshalJSONStrings(aliasesJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal node aliases: %w", err)
	}
	n.Aliases = aliases
	metadata, err := unmarshalJSONMap(metadataJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal node metadata: %w", err)
	}
	n.Metadata = metadata
	return &n, nil
}

// GetKnowledgeNode fetches a node by id.
func GetKnowledgeNode(ctx context.Context, q Querier, id string) (*types.KnowledgeNode, error) {
	row := q.QueryRowContext(ctx, `SELECT `+knowledgeNodeColumns+` FROM knowledge_nodes WHERE id = ?`, id)
	return scanKnowledgeNode(row)
}

// GetKnowledgeNodeByNormalizedName looks up a node by its exact normalized
// name, the first stage of entity resolution.
func GetKnowledgeNodeByNormalizedName(ctx context.Context, q Querier, entityType types.EntityType, normalizedName string) (*types.KnowledgeNode, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+knowledgeNodeColumns+` FROM knowledge_nodes
		WHERE entity_type = ? AND normalized_name = ?`, string(entityType), normalizedName)
	n, err := scanKnowledgeNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

// ListKnowledgeNodesByType returns every node of one entity type, the
// candidate pool the fuzzy-resolution stage scores against.
func ListKnowledgeNodesByType(ctx context.Context, q Querier, entityType types.EntityType) ([]*types.KnowledgeNode, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+knowledgeNodeColumns+` FROM knowledge_nodes WHERE entity_type = ?`, string(entityType))
	if err != nil {
		return nil, fmt.Errorf("list knowledge_nodes by type: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeNodes(rows)
}

func scanKnowledgeNodes(rows *sql.Rows) ([]*types.KnowledgeNode, error) {
	var out []*types.KnowledgeNode
	for rows.Next() {
		n, err := scanKnowledgeNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SearchKnowledgeNodesByName runs the FTS5 full-text search list_nodes uses
// for its name filter, falling back to a LIKE scan when the query has no
// tokens FTS5 can match (e.g. pure punctuation) or the FTS5 query itself is
// malformed, matching the spec's "graceful degrade" requirement.
func SearchKnowledgeNodesByName(ctx context.Context, q Querier, query string, limit int) ([]*types.KnowledgeNode, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+prefixColumns("n", knowledgeNodeColumns)+`
		FROM knowledge_nodes_fts
		JOIN knowledge_nodes n ON n.rowid = knowledge_nodes_fts.rowid
		WHERE knowledge_nodes_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, ftsQuery(query), limit)
	if err == nil {
		defer rows.Close()
		nodes, scanErr := scanKnowledgeNodes(rows)
		if scanErr == nil {
			return nodes, nil
		}
	}

	// FTS5 MATCH failed (bad syntax) or returned nothing parseable: fall back
	// to a substring scan over canonical_name and normalized_name.
	like := "%" + query + "%"
	fallbackRows, ferr := q.QueryContext(ctx, `
		SELECT `+knowledgeNodeColumns+` FROM knowledge_nodes
		WHERE canonical_name LIKE ? OR normalized_name LIKE ?
		ORDER BY document_count DESC
		LIMIT ?`, like, like, limit)
	if ferr != nil {
		return nil, fmt.Errorf("search knowledge_nodes (fallback): %w", ferr)
	}
	defer fallbackRows.Close()
	return scanKnowledgeNodes(fallbackRows)
}

// ftsQuery quotes the raw search term as an FTS5 string literal so that
// punctuation in entity names (e.g. "O'Brien") can't be parsed as query
// syntax.
func ftsQuery(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"*`
}

// prefixColumns rewrites a "col1, col2, ..." column list into
// "prefix.col1, prefix.col2, ..." for use in a joined SELECT.
func prefixColumns(prefix, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, c := range cols {
		cols[i] = prefix + "." + c
	}
	return strings.Join(cols, ", ")
}

// CountKnowledgeNodes returns the total node population size, used by the
// edge builder to tell whether its top-200 pruning actually dropped nodes.
func CountKnowledgeNodes(ctx context.Context, q Querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count knowledge_nodes: %w", err)
	}
	return n, nil
}

// ListAllKnowledgeNodes returns up to limit nodes (at most 200; a limit
// outside 1..200 means 200), highest document_count first. Used by
// list_nodes with no name filter and by the co-occurrence edge builder.
func ListAllKnowledgeNodes(ctx context.Context, q Querier, limit int) ([]*types.KnowledgeNode, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	rows, err := q.QueryContext(ctx, `SELECT `+knowledgeNodeColumns+` FROM knowledge_nodes ORDER BY document_count DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list knowledge_nodes: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeNodes(rows)
}

// UpdateKnowledgeNodeStats rewrites a node's rollup counters, called after
// incremental add/remove-document maintenance changes its membership.
func UpdateKnowledgeNodeStats(ctx context.Context, q Querier, id string, documentCount, mentionCount, edgeCount int, avgConfidence float64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE knowledge_nodes
		SET document_count = ?, mention_count = ?, edge_count = ?, avg_confidence = ?, updated_at = ?
		WHERE id = ?`,
		documentCount, mentionCount, edgeCount, avgConfidence, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update knowledge_node stats: %w", err)
	}
	return nil
}

// AddKnowledgeNodeAlias appends a surface form to a node's alias list if not
// already present.
func AddKnowledgeNodeAlias(ctx context.Context, q Querier, id, alias string) error {
	node, err := GetKnowledgeNode(ctx, q, id)
	if err != nil {
		return err
	}
	for _, a := range node.Aliases {
		if a == alias {
			return nil
		}
	}
	node.Aliases = append(node.Aliases, alias)
	aliases, err := marshalJSONArray(node.Aliases)
	if err != nil {
		return fmt.Errorf("marshal node aliases: %w", err)
	}
	_, err = q.ExecContext(ctx, `UPDATE knowledge_nodes SET aliases = ?, updated_at = ? WHERE id = ?`,
		aliases, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update knowledge_node aliases: %w", err)
	}
	return nil
}

// DeleteKnowledgeNode removes a node row outright, used when incremental
// maintenance finds it orphaned (document_count<=0 and no remaining links).
func DeleteKnowledgeNode(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM knowledge_nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete knowledge_node: %w", err)
	}
	return nil
}

// CreateNodeEntityLink records that a raw entity has been resolved onto a
// node.
func CreateNodeEntityLink(ctx context.Context, q Querier, l *types.NodeEntityLink) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO node_entity_links (id, node_id, entity_id, document_id, similarity_score, resolution_method, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.NodeID, l.EntityID, l.DocumentID, l.SimilarityScore, string(l.ResolutionMethod), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert node_entity_link: %w", err)
	}
	return nil
}

// GetLinksByNode returns every entity resolved onto a node.
func GetLinksByNode(ctx context.Context, q Querier, nodeID string) ([]*types.NodeEntityLink, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, node_id, entity_id, document_id, similarity_score, resolution_method, created_at
		FROM node_entity_links WHERE node_id = ?`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("list node_entity_links by node: %w", err)
	}
	defer rows.Close()
	return scanNodeEntityLinks(rows)
}

// GetLinksByDocument returns every resolution link created while processing
// a document, used by incremental remove_document to find affected nodes.
func GetLinksByDocument(ctx context.Context, q Querier, documentID string) ([]*types.NodeEntityLink, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, node_id, entity_id, document_id, similarity_score, resolution_method, created_at
		FROM node_entity_links WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list node_entity_links by document: %w", err)
	}
	defer rows.Close()
	return scanNodeEntityLinks(rows)
}

func scanNodeEntityLinks(rows *sql.Rows) ([]*types.NodeEntityLink, error) {
	var out []*types.NodeEntityLink
	for rows.Next() {
		var l types.NodeEntityLink
		var method string
		if err := rows.Scan(&l.ID, &l.NodeID, &l.EntityID, &l.DocumentID, &l.SimilarityScore, &method, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ResolutionMethod = types.ResolutionMethod(method)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// DeleteLinksByDocument removes resolution links created for a document,
// used by both cascade delete and incremental remove_document.
func DeleteLinksByDocument(ctx context.Context, q Querier, documentID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM node_entity_links WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("delete node_entity_links: %w", err)
	}
	return nil
}

// CountLinksByNode reports how many entities remain resolved onto a node,
// the orphan test's second half.
func CountLinksByNode(ctx context.Context, q Querier, nodeID string) (int, error) {
	row := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM node_entity_links WHERE node_id = ?`, nodeID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count node_entity_links: %w", err)
	}
	return n, nil
}

const knowledgeEdgeColumns = `id, source_node_id, target_node_id, relationship_type, weight, evidence_count, document_ids, metadata, provenance_id, created_at, updated_at`

// CreateKnowledgeEdge inserts a new edge. Callers must order
// source_node_id < target_node_id themselves; the schema enforces it.
func CreateKnowledgeEdge(ctx context.Context, q Querier, e *types.KnowledgeEdge) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	documentIDs, err := marshalJSONArray(e.DocumentIDs)
	if err != nil {
		return fmt.Errorf("marshal edge document_ids: %w", err)
	}
	metadata, err := marshalJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal edge metadata: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO knowledge_edges (`+knowledgeEdgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceNodeID, e.TargetNodeID, string(e.RelationshipType), e.Weight, e.EvidenceCount,
		documentIDs, metadata, e.ProvenanceID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert knowledge_edge: %w", err)
	}
	return nil
}

func scanKnowledgeEdge(row interface{ Scan(dest ...any) error }) (*types.KnowledgeEdge, error) {
	var e types.KnowledgeEdge
	var relType, documentIDsJSON, metadataJSON string
	if err := row.Scan(&e.ID, &e.SourceNodeID, &e.TargetNodeID, &relType, &e.Weight, &e.EvidenceCount,
		&documentIDsJSON, &metadataJSON, &e.ProvenanceID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.RelationshipType = types.RelationshipType(relType)
	documentIDs, err := unmarshalJSONStrings(documentIDsJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal edge document_ids: %w", err)
	}
	e.DocumentIDs = documentIDs
	metadata, err := unmarshalJSONMap(metadataJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal edge metadata: %w", err)
	}
	e.Metadata = metadata
	return &e, nil
}

// GetKnowledgeEdge fetches an edge by id.
func GetKnowledgeEdge(ctx context.Context, q Querier, id string) (*types.KnowledgeEdge, error) {
	row := q.QueryRowContext(ctx, `SELECT `+knowledgeEdgeColumns+` FROM knowledge_edges WHERE id = ?`, id)
	return scanKnowledgeEdge(row)
}

// GetEdgeBetween looks up the edge between two nodes (orientation-agnostic)
// for a specific relationship type, used for idempotent upsert during
// co-occurrence edge building.
func GetEdgeBetween(ctx context.Context, q Querier, nodeA, nodeB string, relType types.RelationshipType) (*types.KnowledgeEdge, error) {
	source, target := orderNodePair(nodeA, nodeB)
	row := q.QueryRowContext(ctx, `
		SELECT `+knowledgeEdgeColumns+` FROM knowledge_edges
		WHERE source_node_id = ? AND target_node_id = ? AND relationship_type = ?`,
		source, target, string(relType))
	e, err := scanKnowledgeEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// orderNodePair returns (nodeA, nodeB) reordered so the first element sorts
// less than the second, satisfying the edges table's source<target CHECK.
func orderNodePair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// GetEdgesByNode returns every edge touching a node, in either direction.
func GetEdgesByNode(ctx context.Context, q Querier, nodeID string) ([]*types.KnowledgeEdge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+knowledgeEdgeColumns+` FROM knowledge_edges
		WHERE source_node_id = ? OR target_node_id = ?
		ORDER BY target_node_id`, nodeID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("list knowledge_edges by node: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeEdges(rows)
}

func scanKnowledgeEdges(rows *sql.Rows) ([]*types.KnowledgeEdge, error) {
	var out []*types.KnowledgeEdge
	for rows.Next() {
		e, err := scanKnowledgeEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateKnowledgeEdge rewrites an edge's weight/evidence/document set and
// metadata, used both by co-occurrence reweighting and the classifier's
// in-place relationship_type upgrade.
func UpdateKnowledgeEdge(ctx context.Context, q Querier, e *types.KnowledgeEdge) error {
	e.UpdatedAt = time.Now().UTC()
	documentIDs, err := marshalJSONArray(e.DocumentIDs)
	if err != nil {
		return fmt.Errorf("marshal edge document_ids: %w", err)
	}
	metadata, err := marshalJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal edge metadata: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		UPDATE knowledge_edges
		SET relationship_type = ?, weight = ?, evidence_count = ?, document_ids = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		string(e.RelationshipType), e.Weight, e.EvidenceCount, documentIDs, metadata, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update knowledge_edge: %w", err)
	}
	return nil
}

// DeleteEdgesByNode removes every edge touching a node, used when a node is
// reclaimed as an orphan.
func DeleteEdgesByNode(ctx context.Context, q Querier, nodeID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM knowledge_edges WHERE source_node_id = ? OR target_node_id = ?`, nodeID, nodeID)
	if err != nil {
		return fmt.Errorf("delete knowledge_edges by node: %w", err)
	}
	return nil
}

// DeleteKnowledgeEdge removes a single edge, used when incremental
// maintenance finds a co_mentioned/co_located pair no longer shares any
// evidence.
func DeleteKnowledgeEdge(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM knowledge_edges WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete knowledge_edge: %w", err)
	}
	return nil
}

// NodeTypeCounts returns the node population broken down by entity_type,
// used by graph_stats; unlike ListAllKnowledgeNodes it is not capped at 200.
func NodeTypeCounts(ctx context.Context, q Querier) (map[types.EntityType]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT entity_type, COUNT(*) FROM knowledge_nodes GROUP BY entity_type`)
	if err != nil {
		return nil, fmt.Errorf("count knowledge_nodes by type: %w", err)
	}
	defer rows.Close()
	out := make(map[types.EntityType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[types.EntityType(t)] = n
	}
	return out, rows.Err()
}

// EdgeTypeCounts returns the edge population broken down by
// relationship_type, used by graph_stats.
func EdgeTypeCounts(ctx context.Context, q Querier) (map[types.RelationshipType]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT relationship_type, COUNT(*) FROM knowledge_edges GROUP BY relationship_type`)
	if err != nil {
		return nil, fmt.Errorf("count knowledge_edges by type: %w", err)
	}
	defer rows.Close()
	out := make(map[types.RelationshipType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[types.RelationshipType(t)] = n
	}
	return out, rows.Err()
}

// AvgNodeDocumentCount returns the average document_count across all
// nodes, or 0 if the graph is empty.
func AvgNodeDocumentCount(ctx context.Context, q Querier) (float64, error) {
	var avg sql.NullFloat64
	if err := q.QueryRowContext(ctx, `SELECT AVG(document_count) FROM knowledge_nodes`).Scan(&avg); err != nil {
		return 0, fmt.Errorf("average knowledge_node document_count: %w", err)
	}
	return avg.Float64, nil
}

// DeleteAllGraphData wipes every knowledge_edges, node_entity_links, and
// knowledge_nodes row, in that order so foreign_keys=ON never rejects the
// sweep. Used by delete_graph and by build_graph's rebuild=true path;
// documents, entities, and provenance are untouched.
func DeleteAllGraphData(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM knowledge_edges`); err != nil {
		return fmt.Errorf("delete all knowledge_edges: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM node_entity_links`); err != nil {
		return fmt.Errorf("delete all node_entity_links: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM knowledge_nodes`); err != nil {
		return fmt.Errorf("delete all knowledge_nodes: %w", err)
	}
	return nil
}

// ListAllKnowledgeEdges returns the full edge set in no particular order,
// used by expand_neighborhood (BFS) and find_paths (DFS) to build an
// in-memory adjacency list.
func ListAllKnowledgeEdges(ctx context.Context, q Querier) ([]*types.KnowledgeEdge, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+knowledgeEdgeColumns+` FROM knowledge_edges`)
	if err != nil {
		return nil, fmt.Errorf("list all knowledge_edges: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeEdges(rows)
}
