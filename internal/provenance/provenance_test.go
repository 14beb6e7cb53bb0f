package provenance

import (
	"context"
	"errors"
	"testing"

	"github.com/normanking/docgraph/internal/hashid"
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

func TestCreate_RootDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := NewRecord(types.KindDocument, "doc-1", hashid.ContentHashString("hello"), "ingest", "v1")
	rec.RootDocumentID = rec.ID // a DOCUMENT record is its own root

	id, err := Create(ctx, s.DB(), rec)
	require.NoError(t, err)
	require.Equal(t, rec.ID, id)

	got, err := Get(ctx, s.DB(), id)
	require.NoError(t, err)
	require.Equal(t, types.KindDocument, got.Kind)
	require.Equal(t, 0, got.ChainDepth)
}

func TestCreate_RejectsWrongDepth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := NewRecord(types.KindChunk, "doc-1", hashid.ContentHashString("x"), "chunker", "v1")
	rec.ChainDepth = 0 // CHUNK must be depth 2

	_, err := Create(ctx, s.DB(), rec)
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, types.ErrInvalidChain, appErr.Category)
}

func TestCreate_RejectsMissingContentHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := NewRecord(types.KindDocument, "doc-1", "", "ingest", "v1")
	_, err := Create(ctx, s.DB(), rec)
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, types.ErrInvalidChain, appErr.Category)
}

func TestCreate_RejectsUnresolvedParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := NewRecord(types.KindOcrResult, "doc-1", hashid.ContentHashString("x"), "ocr", "v1")
	rec.ChainDepth = types.LatticeDepth[types.KindOcrResult]
	rec.SourceID = "does-not-exist"

	_, err := Create(ctx, s.DB(), rec)
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, types.ErrInvalidChain, appErr.Category)
}

func TestChain_WalksToRootViaSourceID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docRec := NewRecord(types.KindDocument, "", hashid.ContentHashString("doc"), "ingest", "v1")
	docRec.RootDocumentID = docRec.ID
	_, err := Create(ctx, s.DB(), docRec)
	require.NoError(t, err)

	ocrRec := NewRecord(types.KindOcrResult, docRec.ID, hashid.ContentHashString("ocr"), "ocr", "v1")
	ocrRec.SourceID = docRec.ID
	_, err = Create(ctx, s.DB(), ocrRec)
	require.NoError(t, err)

	chunkRec := NewRecord(types.KindChunk, docRec.ID, hashid.ContentHashString("chunk"), "chunker", "v1")
	chunkRec.SourceID = ocrRec.ID
	_, err = Create(ctx, s.DB(), chunkRec)
	require.NoError(t, err)

	chain, err := Chain(ctx, s.DB(), chunkRec.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, chunkRec.ID, chain[0].ID)
	require.Equal(t, ocrRec.ID, chain[1].ID)
	require.Equal(t, docRec.ID, chain[2].ID)
}

func TestChain_BrokenWhenAncestorMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Insert directly via store, bypassing Create's validation, to simulate
	// a record whose source_id was valid at write time but later vanished.
	rec := NewRecord(types.KindChunk, "doc-1", hashid.ContentHashString("x"), "chunker", "v1")
	rec.SourceID = "missing-ancestor"
	require.NoError(t, store.InsertProvenanceRecord(ctx, s.DB(), rec))

	_, err := Chain(ctx, s.DB(), rec.ID)
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, types.ErrProvenanceChainBroken, appErr.Category)
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := Get(ctx, s.DB(), "nonexistent")
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, types.ErrProvenanceNotFound, appErr.Category)
}
