// Package cascade deletes a document and its entire derivation subtree in
// one transaction: the graph-side repair first (reusing internal/incremental's
// remove_document logic), then the document's own dependent rows in
// dependency order. Provenance records are never deleted; they remain the
// historical ledger for data that no longer exists.
package cascade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/normanking/docgraph/internal/incremental"
	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
)

// Result summarizes one DeleteDocument pass.
type Result struct {
	GraphRepair incremental.RemoveResult
}

// DeleteDocument runs the full ordered delete for one document inside a
// single transaction. Any failure aborts the transaction, leaving the
// caller's store untouched. A failure that is already an AppError (such as
// DOCUMENT_NOT_FOUND for an unknown id) is returned as is; any other failure
// is returned as an INTEGRITY_VERIFICATION_FAILED AppError.
func DeleteDocument(ctx context.Context, s *store.Store, documentID string) (Result, error) {
	var result Result

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		doc, err := store.GetDocument(ctx, tx, documentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NewAppError(types.ErrDocumentNotFound, "document not found: "+documentID, nil)
			}
			return fmt.Errorf("load document: %w", err)
		}

		// Steps 2-8: affected/orphan node detection, NodeEntityLink
		// removal, document_count decrement, and edge pruning, identical
		// to a standalone remove_document call.
		repairResult, err := incremental.RemoveDocument(ctx, tx, documentID)
		if err != nil {
			return fmt.Errorf("graph-side repair: %w", err)
		}
		result.GraphRepair = repairResult

		// Step 9: delete dependent rows in dependency order. Provenance
		// records (step 10) are deliberately never touched.
		if err := store.DeleteMentionsByDocument(ctx, tx, documentID); err != nil {
			return fmt.Errorf("delete entity_mentions: %w", err)
		}
		if err := store.DeleteEntitiesByDocument(ctx, tx, documentID); err != nil {
			return fmt.Errorf("delete entities: %w", err)
		}
		if err := store.DeleteComparisonsByDocument(ctx, tx, documentID); err != nil {
			return fmt.Errorf("delete comparisons: %w", err)
		}
		if err := store.DeleteDocumentClustersByDocument(ctx, tx, documentID); err != nil {
			return fmt.Errorf("delete document_clusters: %w", err)
		}
		if err := store.DeleteExtractionsByDocument(ctx, tx, documentID); err != nil {
			return fmt.Errorf("delete extractions: %w", err)
		}
		if err := store.DeleteEmbeddingsAndVectorsByDocument(ctx, tx, documentID); err != nil {
			return fmt.Errorf("delete embeddings and vectors: %w", err)
		}
		if err := store.DeleteImagesByDocument(ctx, tx, documentID); err != nil {
			return fmt.Errorf("delete images: %w", err)
		}
		if err := store.DeleteChunksByDocument(ctx, tx, documentID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		if err := store.DeleteOcrResultByDocument(ctx, tx, documentID); err != nil {
			return fmt.Errorf("delete ocr_result: %w", err)
		}
		if err := store.DeleteFormFillsByFileHash(ctx, tx, doc.FileHash); err != nil {
			return fmt.Errorf("delete form_fills: %w", err)
		}
		if err := store.DeleteUploadedFileByHash(ctx, tx, doc.FileHash); err != nil {
			return fmt.Errorf("delete uploaded_file: %w", err)
		}
		if err := store.DeleteDocumentRow(ctx, tx, documentID); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}

		return nil
	})
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return Result{}, appErr
		}
		return Result{}, types.NewAppError(types.ErrIntegrityVerification, err.Error(), nil)
	}

	return result, nil
}
