package cascade

import (
	"context"
	"database/sql"
	"errors"
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

// seedFullDocument wires up a document with an OCR result, one chunk, one
// entity mentioned in that chunk, and resolves the entity onto a knowledge
// node, so DeleteDocument has a full dependent-row subtree to remove.
func seedFullDocument(t *testing.T, ctx context.Context, s *store.Store, docID string) (graphProvenanceID string) {
	t.Helper()
	db := s.DB()

	docProv := provenance.NewRecord(types.KindDocument, docID, hashid.ContentHashString(docID), "test", "v1")
	docProv.RootDocumentID = docID
	docProvID, err := provenance.Create(ctx, db, docProv)
	require.NoError(t, err)
	require.NoError(t, store.CreateDocument(ctx, db, &types.Document{
		ID: docID, FilePath: "/" + docID, FileName: docID, FileHash: "sha256:" + docID,
		FileSize: 1, FileType: "application/pdf", ProvenanceID: docProvID,
	}))

	ocrProv := provenance.NewRecord(types.KindOcrResult, docID, hashid.ContentHashString("ocr:"+docID), "test", "v1")
	ocrProv.SourceID = docProvID
	_, err = provenance.Create(ctx, db, ocrProv)
	require.NoError(t, err)
	ocrID := hashid.New()
	require.NoError(t, store.CreateOcrResult(ctx, db, &types.OcrResult{
		ID: ocrID, DocumentID: docID, ExtractedText: "Alice works at Acme", TextLength: 20,
		PageCount: 1, Mode: "auto", ContentHash: "sha256:ocr" + docID, ProvenanceID: ocrProv.ID,
	}))

	chunkProv := provenance.NewRecord(types.KindChunk, docID, hashid.ContentHashString("chunk:"+docID), "test", "v1")
	chunkProv.SourceID = ocrProv.ID
	_, err = provenance.Create(ctx, db, chunkProv)
	require.NoError(t, err)
	chunkID := hashid.New()
	require.NoError(t, store.CreateChunk(ctx, db, &types.Chunk{
		ID: chunkID, DocumentID: docID, OcrResultID: ocrID, Text: "Alice works at Acme",
		TextHash: "sha256:ch" + docID, ChunkIndex: 0, CharacterStart: 0, CharacterEnd: 19, ProvenanceID: chunkProv.ID,
	}))

	graphProv := provenance.NewRecord(types.KindKnowledgeGraph, docID, hashid.ContentHashString("graph:"+docID), "cascade", "v1")
	graphProvenanceID, err = provenance.Create(ctx, db, graphProv)
	require.NoError(t, err)

	entityProv := provenance.NewRecord(types.KindEntityExtraction, docID, hashid.ContentHashString("Alice"+docID), "test", "v1")
	_, err = provenance.Create(ctx, db, entityProv)
	require.NoError(t, err)
	entity := &types.Entity{
		ID: hashid.New(), DocumentID: docID, EntityType: types.EntityPerson,
		RawText: "Alice", NormalizedText: "Alice", Confidence: 0.9, ProvenanceID: entityProv.ID,
	}
	require.NoError(t, store.CreateEntity(ctx, db, entity))
	require.NoError(t, store.CreateEntityMention(ctx, db, &types.EntityMention{
		ID: hashid.New(), EntityID: entity.ID, DocumentID: docID, ChunkID: chunkID,
	}))

	opts := resolver.Options{Mode: resolver.ModeFuzzy, FuzzyThreshold: 0.85, ClusterHintBoost: 0.05, RootProvenanceID: graphProvenanceID}
	_, err = resolver.Resolve(ctx, db, entity, map[string]bool{}, opts)
	require.NoError(t, err)

	return graphProvenanceID
}

func TestDeleteDocument_RemovesAllDependentRowsAndGraphLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()

	seedFullDocument(t, ctx, s, "docA")

	alice, err := store.GetKnowledgeNodeByNormalizedName(ctx, db, types.EntityPerson, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, alice.DocumentCount)

	result, err := DeleteDocument(ctx, s, "docA")
	require.NoError(t, err)
	require.Equal(t, 1, result.GraphRepair.NodesOrphaned)

	_, err = store.GetDocument(ctx, db, "docA")
	require.Error(t, err)
	require.True(t, errors.Is(err, sql.ErrNoRows))

	_, err = store.GetKnowledgeNode(ctx, db, alice.ID)
	require.Error(t, err, "orphaned node must be reclaimed")

	entities, err := store.GetEntitiesByDocument(ctx, db, "docA")
	require.NoError(t, err)
	require.Empty(t, entities)

	chunks, err := store.GetChunksByDocument(ctx, db, "docA")
	require.NoError(t, err)
	require.Empty(t, chunks)

	_, err = store.GetOcrResultByDocument(ctx, db, "docA")
	require.Error(t, err)

	// Provenance is never deleted by cascade (step 10).
	docProv, err := provenance.Get(ctx, db, alice.ProvenanceID)
	require.NoError(t, err)
	require.NotNil(t, docProv)
}

func TestDeleteDocument_PreservesNodeStillLinkedFromAnotherDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()

	graphProv := seedFullDocument(t, ctx, s, "docA")

	// A second document mentions Alice too, so her node survives docA's
	// deletion with document_count decremented rather than orphaned.
	docProv := provenance.NewRecord(types.KindDocument, "docB", hashid.ContentHashString("docB"), "test", "v1")
	docProv.RootDocumentID = "docB"
	docProvID, err := provenance.Create(ctx, db, docProv)
	require.NoError(t, err)
	require.NoError(t, store.CreateDocument(ctx, db, &types.Document{
		ID: "docB", FilePath: "/docB", FileName: "docB", FileHash: "sha256:docB",
		FileSize: 1, FileType: "application/pdf", ProvenanceID: docProvID,
	}))
	entityProv := provenance.NewRecord(types.KindEntityExtraction, "docB", hashid.ContentHashString("AlicedocB"), "test", "v1")
	_, err = provenance.Create(ctx, db, entityProv)
	require.NoError(t, err)
	entity := &types.Entity{
		ID: hashid.New(), DocumentID: "docB", EntityType: types.EntityPerson,
		RawText: "Alice", NormalizedText: "Alice", Confidence: 0.9, ProvenanceID: entityProv.ID,
	}
	require.NoError(t, store.CreateEntity(ctx, db, entity))
	opts := resolver.Options{Mode: resolver.ModeFuzzy, FuzzyThreshold: 0.85, ClusterHintBoost: 0.05, RootProvenanceID: graphProv}
	_, err = resolver.Resolve(ctx, db, entity, map[string]bool{}, opts)
	require.NoError(t, err)

	alice, err := store.GetKnowledgeNodeByNormalizedName(ctx, db, types.EntityPerson, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, alice.DocumentCount)

	result, err := DeleteDocument(ctx, s, "docA")
	require.NoError(t, err)
	require.Equal(t, 0, result.GraphRepair.NodesOrphaned)

	alice, err = store.GetKnowledgeNodeByNormalizedName(ctx, db, types.EntityPerson, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, alice.DocumentCount)
}

func TestDeleteDocument_UnknownDocumentReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := DeleteDocument(ctx, s, "missing")
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, types.ErrDocumentNotFound, appErr.Category)
}
