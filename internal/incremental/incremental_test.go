package incremental

import (
	"context"
	"testing"

	"github.com/normanking/docgraph/internal/hashid"
	"github.com/normanking/docgraph/internal/provenance"
	"github.com/normanking/docgraph/internal/resolver"
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

func seedDocument(t *testing.T, ctx context.Context, s *store.Store, docID string) string {
	t.Helper()
	db := s.DB()
	docProv := provenance.NewRecord(types.KindDocument, docID, hashid.ContentHashString(docID), "test", "v1")
	docProv.RootDocumentID = docID
	_, err := provenance.Create(ctx, db, docProv)
	require.NoError(t, err)
	require.NoError(t, store.CreateDocument(ctx, db, &types.Document{
		ID: docID, FilePath: "/" + docID, FileName: docID, FileHash: "sha256:" + docID,
		FileSize: 1, FileType: "application/pdf", ProvenanceID: docProv.ID,
	}))

	graphProv := provenance.NewRecord(types.KindKnowledgeGraph, docID, hashid.ContentHashString("graph:"+docID), "incremental", "v1")
	graphID, err := provenance.Create(ctx, db, graphProv)
	require.NoError(t, err)
	return graphID
}

func seedEntity(t *testing.T, ctx context.Context, s *store.Store, documentID string, entityType types.EntityType, rawText string) *types.Entity {
	t.Helper()
	db := s.DB()
	prov := provenance.NewRecord(types.KindEntityExtraction, documentID, hashid.ContentHashString(rawText+documentID), "test", "v1")
	_, err := provenance.Create(ctx, db, prov)
	require.NoError(t, err)

	entity := &types.Entity{
		ID: hashid.New(), DocumentID: documentID, EntityType: entityType,
		RawText: rawText, NormalizedText: rawText, Confidence: 0.9, ProvenanceID: prov.ID,
	}
	require.NoError(t, store.CreateEntity(ctx, db, entity))
	return entity
}

func defaultOptions(rootProvenanceID string) resolver.Options {
	return resolver.Options{
		Mode:              resolver.ModeFuzzy,
		FuzzyThreshold:    0.85,
		ClusterHintBoost:  0.05,
		AIMergeConfidence: 0.8,
		RootProvenanceID:  rootProvenanceID,
	}
}

func TestAddDocument_CreatesNodesAndEmitsCoMentionedEdge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()

	graphProv := seedDocument(t, ctx, s, "docA")
	seedEntity(t, ctx, s, "docA", types.EntityPerson, "Alice")
	seedEntity(t, ctx, s, "docA", types.EntityOrganization, "Acme")

	result, err := AddDocument(ctx, db, "docA", defaultOptions(graphProv), false)
	require.NoError(t, err)
	require.Equal(t, 2, result.EntitiesResolved)
	require.Equal(t, 2, result.NodesCreated)
	require.Equal(t, 0, result.NodesGrown)
	require.Equal(t, 1, result.EdgeBuild.CoMentionedEdges)
}

func TestAddDocument_GrowsExistingNodeAndRecomputesPriorEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()

	graphProv := seedDocument(t, ctx, s, "docA")
	seedEntity(t, ctx, s, "docA", types.EntityPerson, "Alice")
	seedEntity(t, ctx, s, "docA", types.EntityOrganization, "Acme")
	_, err := AddDocument(ctx, db, "docA", defaultOptions(graphProv), false)
	require.NoError(t, err)

	seedDocument(t, ctx, s, "docB")
	seedEntity(t, ctx, s, "docB", types.EntityPerson, "Alice")
	seedEntity(t, ctx, s, "docB", types.EntityPerson, "Bob")

	result, err := AddDocument(ctx, db, "docB", defaultOptions(graphProv), false)
	require.NoError(t, err)
	require.Equal(t, 1, result.NodesCreated) // Bob
	require.Equal(t, 1, result.NodesGrown)   // Alice merges onto its existing node

	alice, err := store.GetKnowledgeNodeByNormalizedName(ctx, db, types.EntityPerson, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, alice.DocumentCount)

	acme, err := store.GetKnowledgeNodeByNormalizedName(ctx, db, types.EntityOrganization, "acme")
	require.NoError(t, err)
	bob, err := store.GetKnowledgeNodeByNormalizedName(ctx, db, types.EntityPerson, "bob")
	require.NoError(t, err)

	// Alice-Acme edge survives from docA and is unaffected by docB (Acme
	// never appears in docB), still weight 1/max(2,1)=0.5.
	source, target := orderNodePairForTest(alice.ID, acme.ID)
	aliceAcme, err := store.GetEdgeBetween(ctx, db, source, target, types.RelCoMentioned)
	require.NoError(t, err)
	require.NotNil(t, aliceAcme)
	require.Equal(t, 0.5, aliceAcme.Weight)

	// Alice-Bob is a brand-new co_mentioned edge from docB, weight 1/max(2,1)=0.5.
	source, target = orderNodePairForTest(alice.ID, bob.ID)
	aliceBob, err := store.GetEdgeBetween(ctx, db, source, target, types.RelCoMentioned)
	require.NoError(t, err)
	require.NotNil(t, aliceBob)
	require.Equal(t, 0.5, aliceBob.Weight)
}

func TestRemoveDocument_ShrinksEdgeWeightAndDecrementsDocumentCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()

	graphProv := seedDocument(t, ctx, s, "docA")
	seedEntity(t, ctx, s, "docA", types.EntityPerson, "Alice")
	seedEntity(t, ctx, s, "docA", types.EntityOrganization, "Acme")
	_, err := AddDocument(ctx, db, "docA", defaultOptions(graphProv), false)
	require.NoError(t, err)

	seedDocument(t, ctx, s, "docB")
	seedEntity(t, ctx, s, "docB", types.EntityPerson, "Alice")
	_, err = AddDocument(ctx, db, "docB", defaultOptions(graphProv), false)
	require.NoError(t, err)

	alice, err := store.GetKnowledgeNodeByNormalizedName(ctx, db, types.EntityPerson, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, alice.DocumentCount)

	result, err := RemoveDocument(ctx, db, "docB")
	require.NoError(t, err)
	require.Equal(t, 1, result.NodesShrunk)

	alice, err = store.GetKnowledgeNodeByNormalizedName(ctx, db, types.EntityPerson, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, alice.DocumentCount)
}

func TestRemoveDocument_ReclaimsOrphanAndDeletesIncidentEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()

	graphProv := seedDocument(t, ctx, s, "docA")
	seedEntity(t, ctx, s, "docA", types.EntityPerson, "Alice")
	seedEntity(t, ctx, s, "docA", types.EntityOrganization, "Acme")
	_, err := AddDocument(ctx, db, "docA", defaultOptions(graphProv), false)
	require.NoError(t, err)

	acme, err := store.GetKnowledgeNodeByNormalizedName(ctx, db, types.EntityOrganization, "acme")
	require.NoError(t, err)

	result, err := RemoveDocument(ctx, db, "docA")
	require.NoError(t, err)
	require.Equal(t, 2, result.NodesOrphaned) // Alice and Acme only ever appeared in docA

	_, err = store.GetKnowledgeNode(ctx, db, acme.ID)
	require.Error(t, err)

	edges, err := store.ListAllKnowledgeEdges(ctx, db)
	require.NoError(t, err)
	require.Empty(t, edges)
}

// orderNodePairForTest mirrors the package-private pairing rule the store
// enforces on source_node_id < target_node_id.
func orderNodePairForTest(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
