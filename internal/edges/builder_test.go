package edges

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

// fixture wires up a document, its ocr_result, and n chunks, returning the
// chunk ids in creation order.
type fixture struct {
	docID     string
	chunkIDs  []string
	graphProv string
}

func seedDocumentWithChunks(t *testing.T, ctx context.Context, s *store.Store, docID string, n int) fixture {
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

	ocrProv := provenance.NewRecord(types.KindOcrResult, docID, hashid.ContentHashString("ocr:"+docID), "test", "v1")
	ocrProv.SourceID = docProv.ID
	_, err = provenance.Create(ctx, db, ocrProv)
	require.NoError(t, err)
	ocrID := hashid.New()
	require.NoError(t, store.CreateOcrResult(ctx, db, &types.OcrResult{
		ID: ocrID, DocumentID: docID, ExtractedText: "text", TextLength: 4,
		PageCount: 1, Mode: "auto", ContentHash: "sha256:ocr" + docID, ProvenanceID: ocrProv.ID,
	}))

	graphProv := provenance.NewRecord(types.KindKnowledgeGraph, docID, hashid.ContentHashString("graph:"+docID), "edges", "v1")
	graphID, err := provenance.Create(ctx, db, graphProv)
	require.NoError(t, err)

	chunkIDs := make([]string, n)
	for i := 0; i < n; i++ {
		chunkProv := provenance.NewRecord(types.KindChunk, docID, hashid.ContentHashString("chunk:"+docID+string(rune('a'+i))), "test", "v1")
		chunkProv.SourceID = ocrProv.ID
		_, err := provenance.Create(ctx, db, chunkProv)
		require.NoError(t, err)

		id := hashid.New()
		require.NoError(t, store.CreateChunk(ctx, db, &types.Chunk{
			ID: id, DocumentID: docID, OcrResultID: ocrID, Text: "chunk", TextHash: "sha256:ch" + id,
			ChunkIndex: i, CharacterStart: i * 10, CharacterEnd: i*10 + 9, ProvenanceID: chunkProv.ID,
		}))
		chunkIDs[i] = id
	}

	return fixture{docID: docID, chunkIDs: chunkIDs, graphProv: graphID}
}

// seedResolvedEntity creates an entity, resolves it directly onto nodeID
// (bypassing the resolver package, which this test doesn't exercise), and
// records a mention against chunkID when non-empty.
func seedResolvedEntity(t *testing.T, ctx context.Context, s *store.Store, nodeID, documentID, chunkID, rawText string, entityType types.EntityType) {
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

	require.NoError(t, store.CreateNodeEntityLink(ctx, db, &types.NodeEntityLink{
		ID: hashid.New(), NodeID: nodeID, EntityID: entity.ID, DocumentID: documentID,
		SimilarityScore: 1.0, ResolutionMethod: types.ResolutionExact,
	}))

	if chunkID != "" {
		require.NoError(t, store.CreateEntityMention(ctx, db, &types.EntityMention{
			ID: hashid.New(), EntityID: entity.ID, DocumentID: documentID, ChunkID: chunkID,
		}))
	}
}

func seedNode(t *testing.T, ctx context.Context, s *store.Store, canonicalName string, entityType types.EntityType, provenanceID string) string {
	t.Helper()
	node := &types.KnowledgeNode{
		ID: hashid.New(), EntityType: entityType, CanonicalName: canonicalName,
		NormalizedName: canonicalName, Aliases: []string{canonicalName}, ProvenanceID: provenanceID,
	}
	require.NoError(t, store.CreateKnowledgeNode(ctx, s.DB(), node))
	return node.ID
}

func TestBuild_EmitsCoMentionedAndCoLocated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docA := seedDocumentWithChunks(t, ctx, s, "docA", 2)
	docB := seedDocumentWithChunks(t, ctx, s, "docB", 1)

	nodeAlice := seedNode(t, ctx, s, "Alice", types.EntityPerson, docA.graphProv)
	nodeAcme := seedNode(t, ctx, s, "Acme", types.EntityOrganization, docA.graphProv)

	// Alice and Acme co-occur in docA, and share docA.chunkIDs[0] literally.
	seedResolvedEntity(t, ctx, s, nodeAlice, docA.docID, docA.chunkIDs[0], "Alice", types.EntityPerson)
	seedResolvedEntity(t, ctx, s, nodeAcme, docA.docID, docA.chunkIDs[0], "Acme", types.EntityOrganization)
	// Alice also appears in docB (no shared chunk there), Acme does not.
	seedResolvedEntity(t, ctx, s, nodeAlice, docB.docID, "", "Alice", types.EntityPerson)

	result, err := Build(ctx, s.DB(), docA.graphProv)
	require.NoError(t, err)
	require.Equal(t, 1, result.CoMentionedEdges)
	require.Equal(t, 1, result.CoLocatedEdges)
	require.Equal(t, 0, result.NodesPruned)

	source, target := orderPair(nodeAlice, nodeAcme)
	mentioned, err := store.GetEdgeBetween(ctx, s.DB(), source, target, types.RelCoMentioned)
	require.NoError(t, err)
	require.NotNil(t, mentioned)
	// shared_documents = {docA} = 1; max(docs(Alice)=2, docs(Acme)=1) = 2 => 0.5
	require.Equal(t, 0.5, mentioned.Weight)
	require.Equal(t, 1, mentioned.EvidenceCount)

	located, err := store.GetEdgeBetween(ctx, s.DB(), source, target, types.RelCoLocated)
	require.NoError(t, err)
	require.NotNil(t, located)
	// base=0.5, weight = min(1.0, 0.5*1.5) = 0.75
	require.Equal(t, 0.75, located.Weight)
	require.Equal(t, 1, located.EvidenceCount)
}

func TestBuild_SkipsPairsWithNoSharedDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docA := seedDocumentWithChunks(t, ctx, s, "docA", 1)
	docB := seedDocumentWithChunks(t, ctx, s, "docB", 1)

	nodeAlice := seedNode(t, ctx, s, "Alice", types.EntityPerson, docA.graphProv)
	nodeBob := seedNode(t, ctx, s, "Bob", types.EntityPerson, docA.graphProv)

	seedResolvedEntity(t, ctx, s, nodeAlice, docA.docID, "", "Alice", types.EntityPerson)
	seedResolvedEntity(t, ctx, s, nodeBob, docB.docID, "", "Bob", types.EntityPerson)

	result, err := Build(ctx, s.DB(), docA.graphProv)
	require.NoError(t, err)
	require.Equal(t, 0, result.CoMentionedEdges)
	require.Equal(t, 0, result.CoLocatedEdges)
}

func TestBuild_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docA := seedDocumentWithChunks(t, ctx, s, "docA", 1)
	nodeAlice := seedNode(t, ctx, s, "Alice", types.EntityPerson, docA.graphProv)
	nodeAcme := seedNode(t, ctx, s, "Acme", types.EntityOrganization, docA.graphProv)
	seedResolvedEntity(t, ctx, s, nodeAlice, docA.docID, "", "Alice", types.EntityPerson)
	seedResolvedEntity(t, ctx, s, nodeAcme, docA.docID, "", "Acme", types.EntityOrganization)

	first, err := Build(ctx, s.DB(), docA.graphProv)
	require.NoError(t, err)
	require.Equal(t, 1, first.CoMentionedEdges)

	second, err := Build(ctx, s.DB(), docA.graphProv)
	require.NoError(t, err)
	require.Equal(t, 0, second.CoMentionedEdges)
	require.Equal(t, 1, second.EdgesSkipped)
}
