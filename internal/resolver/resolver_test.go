package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/normanking/docgraph/internal/hashid"
	"github.com/normanking/docgraph/internal/provenance"
	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
	"github.com/stretchr/testify/require"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedEntity(t *testing.T, ctx context.Context, s *store.Store, documentID string, entityType types.EntityType, rawText string) *types.Entity {
	t.Helper()
	prov := provenance.NewRecord(types.KindEntityExtraction, documentID, hashid.ContentHashString(rawText), "test", "v1")
	_, err := provenance.Create(ctx, s.DB(), prov)
	require.NoError(t, err)

	e := &types.Entity{
		ID: hashid.New(), DocumentID: documentID, EntityType: entityType,
		RawText: rawText, NormalizedText: normalize(rawText), Confidence: 0.9,
		ProvenanceID: prov.ID,
	}
	require.NoError(t, store.CreateEntity(ctx, s.DB(), e))
	return e
}

func seedDocument(t *testing.T, ctx context.Context, s *store.Store, id string) {
	t.Helper()
	prov := provenance.NewRecord(types.KindDocument, id, hashid.ContentHashString(id), "test", "v1")
	prov.RootDocumentID = id
	_, err := provenance.Create(ctx, s.DB(), prov)
	require.NoError(t, err)
	require.NoError(t, store.CreateDocument(ctx, s.DB(), &types.Document{
		ID: id, FilePath: "/" + id, FileName: id, FileHash: "sha256:" + id,
		FileSize: 1, FileType: "application/pdf", ProvenanceID: prov.ID,
	}))
}

func defaultOptions() Options {
	return Options{
		Mode: ModeExact, FuzzyThreshold: 0.85, ClusterHintBoost: 0.05,
		AIMergeConfidence: 0.8, RootProvenanceID: "",
	}
}

func seedGraphProvenance(t *testing.T, ctx context.Context, s *store.Store, rootDocID string) string {
	t.Helper()
	prov := provenance.NewRecord(types.KindKnowledgeGraph, rootDocID, hashid.ContentHashString("graph:"+rootDocID), "resolver", "v1")
	id, err := provenance.Create(ctx, s.DB(), prov)
	require.NoError(t, err)
	return id
}

// TestResolve_ExactMode exercises the spec's first seed scenario: Doc A has
// {Alice (person), Acme (org)}, Doc B has {Alice (person), Bob (person)}.
func TestResolve_ExactMode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedDocument(t, ctx, s, "docA")
	seedDocument(t, ctx, s, "docB")
	opts := defaultOptions()
	opts.RootProvenanceID = seedGraphProvenance(t, ctx, s, "docA")

	aliceA := seedEntity(t, ctx, s, "docA", types.EntityPerson, "Alice")
	acme := seedEntity(t, ctx, s, "docA", types.EntityOrganization, "Acme")
	aliceB := seedEntity(t, ctx, s, "docB", types.EntityPerson, "Alice")
	bob := seedEntity(t, ctx, s, "docB", types.EntityPerson, "Bob")

	rAliceA, err := Resolve(ctx, s.DB(), aliceA, nil, opts)
	require.NoError(t, err)
	require.True(t, rAliceA.Created)

	rAcme, err := Resolve(ctx, s.DB(), acme, nil, opts)
	require.NoError(t, err)
	require.True(t, rAcme.Created)
	require.NotEqual(t, rAliceA.NodeID, rAcme.NodeID)

	rAliceB, err := Resolve(ctx, s.DB(), aliceB, nil, opts)
	require.NoError(t, err)
	require.False(t, rAliceB.Created)
	require.Equal(t, rAliceA.NodeID, rAliceB.NodeID, "exact mode must merge identical normalized names of the same type")

	rBob, err := Resolve(ctx, s.DB(), bob, nil, opts)
	require.NoError(t, err)
	require.True(t, rBob.Created)

	aliceNode, err := store.GetKnowledgeNode(ctx, s.DB(), rAliceA.NodeID)
	require.NoError(t, err)
	require.Equal(t, 2, aliceNode.DocumentCount)
	require.Equal(t, "Alice", aliceNode.CanonicalName)

	acmeNode, err := store.GetKnowledgeNode(ctx, s.DB(), rAcme.NodeID)
	require.NoError(t, err)
	require.Equal(t, 1, acmeNode.DocumentCount)

	bobNode, err := store.GetKnowledgeNode(ctx, s.DB(), rBob.NodeID)
	require.NoError(t, err)
	require.Equal(t, 1, bobNode.DocumentCount)
}

func TestResolve_ExactModeRejectsDifferentType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, ctx, s, "doc1")
	opts := defaultOptions()
	opts.RootProvenanceID = seedGraphProvenance(t, ctx, s, "doc1")

	person := seedEntity(t, ctx, s, "doc1", types.EntityPerson, "Jordan")
	org := seedEntity(t, ctx, s, "doc1", types.EntityOrganization, "Jordan")

	r1, err := Resolve(ctx, s.DB(), person, nil, opts)
	require.NoError(t, err)
	r2, err := Resolve(ctx, s.DB(), org, nil, opts)
	require.NoError(t, err)
	require.NotEqual(t, r1.NodeID, r2.NodeID, "same normalized_name but different entity_type must not merge")
}

func TestResolve_FuzzyModeMergesSimilarNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, ctx, s, "doc1")
	seedDocument(t, ctx, s, "doc2")
	opts := defaultOptions()
	opts.Mode = ModeFuzzy
	opts.RootProvenanceID = seedGraphProvenance(t, ctx, s, "doc1")

	direct := seedEntity(t, ctx, s, "doc1", types.EntityPerson, "Jane Doe")
	inverted := seedEntity(t, ctx, s, "doc2", types.EntityPerson, "Doe, Jane")

	r1, err := Resolve(ctx, s.DB(), direct, nil, opts)
	require.NoError(t, err)
	r2, err := Resolve(ctx, s.DB(), inverted, nil, opts)
	require.NoError(t, err)

	require.Equal(t, r1.NodeID, r2.NodeID, "normalized names differ so exact misses, but token-set Jaccard of {jane,doe} vs {doe,jane} is 1.0, at or above the 0.85 threshold")
}

func TestJaccardSimilarity_TokenSetRatio(t *testing.T) {
	// "jane doe" vs "jane doe smith": tokens {jane,doe} vs {jane,doe,smith}; intersection 2, union 3 => 0.667
	require.InDelta(t, 2.0/3.0, jaccardSimilarity("jane doe", "jane doe smith"), 0.0001)
	// Identical strings are similarity 1.0.
	require.Equal(t, 1.0, jaccardSimilarity("Acme Corp", "acme corp"))
}

func TestCanonicalName_LongestWinsTiesByEarliestCreation(t *testing.T) {
	older := member{RawText: "Jane Doe", CreatedAt: mustTime("2026-01-01T00:00:00Z")}
	newer := member{RawText: "J. Doe", CreatedAt: mustTime("2026-01-02T00:00:00Z")}
	longest := member{RawText: "Jane Marie Doe", CreatedAt: mustTime("2026-01-03T00:00:00Z")}

	require.Equal(t, "Jane Marie Doe", canonicalName([]member{older, newer, longest}))

	tie1 := member{RawText: "Jane Doe", CreatedAt: mustTime("2026-01-01T00:00:00Z")}
	tie2 := member{RawText: "Jane Doe", CreatedAt: mustTime("2026-01-02T00:00:00Z")}
	require.Equal(t, "Jane Doe", canonicalName([]member{tie2, tie1}))
}
