package graphquery

import (
	"context"
	"testing"

	"github.com/normanking/docgraph/internal/hashid"
	"github.com/normanking/docgraph/internal/provenance"
	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedGraphProvenance(t *testing.T, ctx context.Context, s *store.Store, rootDocID string) string {
	t.Helper()
	prov := provenance.NewRecord(types.KindKnowledgeGraph, rootDocID, hashid.ContentHashString("graph:"+rootDocID), "test", "v1")
	id, err := provenance.Create(ctx, s.DB(), prov)
	require.NoError(t, err)
	return id
}

func seedNode(t *testing.T, ctx context.Context, s *store.Store, name string, entityType types.EntityType, documentCount int, provenanceID string) *types.KnowledgeNode {
	t.Helper()
	node := &types.KnowledgeNode{
		ID: hashid.New(), EntityType: entityType, CanonicalName: name,
		NormalizedName: name, Aliases: []string{name}, DocumentCount: documentCount, ProvenanceID: provenanceID,
	}
	require.NoError(t, store.CreateKnowledgeNode(ctx, s.DB(), node))
	return node
}

func seedEdge(t *testing.T, ctx context.Context, s *store.Store, a, b *types.KnowledgeNode, relType types.RelationshipType, weight float64, metadata map[string]any, provenanceID string) *types.KnowledgeEdge {
	t.Helper()
	source, target := a, b
	if source.ID > target.ID {
		source, target = target, source
	}
	edge := &types.KnowledgeEdge{
		ID: hashid.New(), SourceNodeID: source.ID, TargetNodeID: target.ID,
		RelationshipType: relType, Weight: weight, EvidenceCount: 1,
		DocumentIDs: []string{"docA"}, Metadata: metadata, ProvenanceID: provenanceID,
	}
	require.NoError(t, store.CreateKnowledgeEdge(ctx, s.DB(), edge))
	return edge
}

func TestListNodes_FiltersByEntityTypeAndMinDocumentCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	prov := seedGraphProvenance(t, ctx, s, "docA")

	seedNode(t, ctx, s, "Alice", types.EntityPerson, 2, prov)
	seedNode(t, ctx, s, "Acme", types.EntityOrganization, 1, prov)
	seedNode(t, ctx, s, "Bob", types.EntityPerson, 1, prov)

	nodes, err := ListNodes(ctx, s.DB(), NodeFilter{EntityType: types.EntityPerson, MinDocumentCount: 2})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "Alice", nodes[0].CanonicalName)
}

func TestExpandNeighborhood_RespectsDepthAndInducesSubgraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	prov := seedGraphProvenance(t, ctx, s, "docA")

	alice := seedNode(t, ctx, s, "Alice", types.EntityPerson, 1, prov)
	bob := seedNode(t, ctx, s, "Bob", types.EntityPerson, 1, prov)
	carol := seedNode(t, ctx, s, "Carol", types.EntityPerson, 1, prov)
	dave := seedNode(t, ctx, s, "Dave", types.EntityPerson, 1, prov)

	seedEdge(t, ctx, s, alice, bob, types.RelCoLocated, 0.75, nil, prov)
	seedEdge(t, ctx, s, bob, carol, types.RelCoLocated, 0.75, nil, prov)
	seedEdge(t, ctx, s, carol, dave, types.RelCoLocated, 0.75, nil, prov)

	sub, err := ExpandNeighborhood(ctx, s.DB(), []string{alice.ID}, 2, 0)
	require.NoError(t, err)
	require.Len(t, sub.Nodes, 3) // Alice, Bob, Carol within depth 2; Dave excluded
	require.Len(t, sub.Edges, 2) // Alice-Bob, Bob-Carol
}

func TestGetNodeDetails_IncludesMembersAndIncidentEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()
	prov := seedGraphProvenance(t, ctx, s, "docA")

	docProv := provenance.NewRecord(types.KindDocument, "docA", hashid.ContentHashString("docA"), "test", "v1")
	docProvID, err := provenance.Create(ctx, db, docProv)
	require.NoError(t, err)
	require.NoError(t, store.CreateDocument(ctx, db, &types.Document{
		ID: "docA", FilePath: "/docA", FileName: "complaint.pdf", FileHash: "sha256:docA",
		FileSize: 1, FileType: "application/pdf", ProvenanceID: docProvID,
	}))

	alice := seedNode(t, ctx, s, "Alice", types.EntityPerson, 1, prov)
	acme := seedNode(t, ctx, s, "Acme", types.EntityOrganization, 1, prov)
	seedEdge(t, ctx, s, alice, acme, types.RelCoMentioned, 0.5, nil, prov)

	entityProv := provenance.NewRecord(types.KindEntityExtraction, "docA", hashid.ContentHashString("Alice"), "test", "v1")
	_, err = provenance.Create(ctx, db, entityProv)
	require.NoError(t, err)
	entity := &types.Entity{
		ID: hashid.New(), DocumentID: "docA", EntityType: types.EntityPerson,
		RawText: "Alice", NormalizedText: "Alice", Confidence: 0.9, ProvenanceID: entityProv.ID,
	}
	require.NoError(t, store.CreateEntity(ctx, db, entity))
	require.NoError(t, store.CreateNodeEntityLink(ctx, db, &types.NodeEntityLink{
		ID: hashid.New(), NodeID: alice.ID, EntityID: entity.ID, DocumentID: "docA",
		SimilarityScore: 1.0, ResolutionMethod: types.ResolutionExact,
	}))

	details, err := GetNodeDetails(ctx, db, alice.ID, DetailOptions{IncludeMentions: true})
	require.NoError(t, err)
	require.Equal(t, "Alice", details.Node.CanonicalName)
	require.Len(t, details.Members, 1)
	require.Equal(t, "complaint.pdf", details.Members[0].DocumentName)
	require.Len(t, details.Edges, 1)
	require.Equal(t, "Acme", details.Edges[0].OtherNodeName)
}

func TestFindPaths_ReturnsSimplePathWithinHops(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()
	prov := seedGraphProvenance(t, ctx, s, "docA")

	alice := seedNode(t, ctx, s, "Alice", types.EntityPerson, 1, prov)
	bob := seedNode(t, ctx, s, "Bob", types.EntityPerson, 1, prov)
	carol := seedNode(t, ctx, s, "Carol", types.EntityPerson, 1, prov)

	seedEdge(t, ctx, s, alice, bob, types.RelCoLocated, 0.75, map[string]any{"shared_chunk_ids": []string{"chunk-1"}}, prov)
	seedEdge(t, ctx, s, bob, carol, types.RelCoLocated, 0.75, map[string]any{"shared_chunk_ids": []string{"chunk-2"}}, prov)

	paths, err := FindPaths(ctx, db, alice.ID, carol.ID, PathOptions{MaxHops: 2})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Equal(t, []string{alice.ID, bob.ID, carol.ID}, paths[0].NodeIDs)
}

func TestFindPaths_UnknownEndpointReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := FindPaths(ctx, s.DB(), "nonexistent-name", "also-nonexistent", PathOptions{})
	require.Error(t, err)
}
