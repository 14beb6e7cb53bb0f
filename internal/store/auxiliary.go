package store

import (
	"context"
	"fmt"
	"time"

	"github.com/normanking/docgraph/pkg/types"
)

// CreateFormFill inserts a form_fill row. These are keyed by
// source_file_hash, not document_id, matching cascade delete step 9's
// `form_fills WHERE source_file_hash = file_hash` lookup.
func CreateFormFill(ctx context.Context, q Querier, f *types.FormFill) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	payload, err := marshalJSON(f.Payload)
	if err != nil {
		return fmt.Errorf("marshal form_fill payload: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO form_fills (id, source_file_hash, template_name, payload, provenance_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.SourceFileHash, nullString(f.TemplateName), payload, f.ProvenanceID, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert form_fill: %w", err)
	}
	return nil
}

// DeleteFormFillsByFileHash removes form fills whose source_file_hash
// matches the deleted document's file_hash.
func DeleteFormFillsByFileHash(ctx context.Context, q Querier, fileHash string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM form_fills WHERE source_file_hash = ?`, fileHash)
	if err != nil {
		return fmt.Errorf("delete form_fills: %w", err)
	}
	return nil
}

// CreateComparison inserts a comparison row referencing two documents.
func CreateComparison(ctx context.Context, q Querier, c *types.Comparison) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	result, err := marshalJSON(c.Result)
	if err != nil {
		return fmt.Errorf("marshal comparison result: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO comparisons (id, document_id_a, document_id_b, result, provenance_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.DocumentIDA, c.DocumentIDB, result, c.ProvenanceID, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert comparison: %w", err)
	}
	return nil
}

// DeleteComparisonsByDocument removes comparisons referencing a document on
// either side, matching cascade delete step 9's "comparisons (either side)".
func DeleteComparisonsByDocument(ctx context.Context, q Querier, documentID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM comparisons WHERE document_id_a = ? OR document_id_b = ?`, documentID, documentID)
	if err != nil {
		return fmt.Errorf("delete comparisons: %w", err)
	}
	return nil
}

// CreateDocumentCluster inserts a cluster-membership row. classification_tag
// is the free-text label the classifier's cluster-hint rule matches domain
// keywords against (employment/hr, litigation/legal/court, medical/health/clinical).
func CreateDocumentCluster(ctx context.Context, q Querier, c *types.DocumentCluster) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO document_clusters (id, document_id, classification_tag, confidence, provenance_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.DocumentID, c.ClassificationTag, nullFloat(c.Confidence), c.ProvenanceID, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document_cluster: %w", err)
	}
	return nil
}

// GetClusterTagsByDocument returns the classification tags of every cluster
// a document belongs to.
func GetClusterTagsByDocument(ctx context.Context, q Querier, documentID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT classification_tag FROM document_clusters WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list cluster tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// DeleteDocumentClustersByDocument removes cluster-membership rows for a
// document.
func DeleteDocumentClustersByDocument(ctx context.Context, q Querier, documentID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM document_clusters WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("delete document_clusters: %w", err)
	}
	return nil
}

// CreateUploadedFile records an uploaded file by content hash.
func CreateUploadedFile(ctx context.Context, q Querier, fileHash, originalName, storedPath string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO uploaded_files (file_hash, original_name, stored_path, created_at)
		VALUES (?, ?, ?, ?)`,
		fileHash, nullString(originalName), nullString(storedPath), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert uploaded_file: %w", err)
	}
	return nil
}

// DeleteUploadedFileByHash removes the uploaded_files row for a deleted
// document's file_hash.
func DeleteUploadedFileByHash(ctx context.Context, q Querier, fileHash string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM uploaded_files WHERE file_hash = ?`, fileHash)
	if err != nil {
		return fmt.Errorf("delete uploaded_file: %w", err)
	}
	return nil
}

// DeleteImagesByDocument removes image rows for a document.
func DeleteImagesByDocument(ctx context.Context, q Querier, documentID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM images WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("delete images: %w", err)
	}
	return nil
}

// DeleteExtractionsByDocument removes extraction rows for a document.
func DeleteExtractionsByDocument(ctx context.Context, q Querier, documentID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM extractions WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("delete extractions: %w", err)
	}
	return nil
}

// DeleteEmbeddingsAndVectorsByDocument removes embeddings and their vector
// sidecar rows for a document.
func DeleteEmbeddingsAndVectorsByDocument(ctx context.Context, q Querier, documentID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM vectors WHERE embedding_id IN (SELECT id FROM embeddings WHERE document_id = ?)`, documentID)
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	_, err = q.ExecContext(ctx, `DELETE FROM embeddings WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}

// DeleteChunksByDocument removes chunk rows for a document.
func DeleteChunksByDocument(ctx context.Context, q Querier, documentID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// DeleteOcrResultByDocument removes the OCR result row for a document.
func DeleteOcrResultByDocument(ctx context.Context, q Querier, documentID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM ocr_results WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("delete ocr_result: %w", err)
	}
	return nil
}
