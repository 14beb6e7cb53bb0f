package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/normanking/docgraph/pkg/types"
)

// CreateOcrResult inserts the one-and-only OCR result for a document.
func CreateOcrResult(ctx context.Context, q Querier, r *types.OcrResult) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO ocr_results (id, document_id, extracted_text, text_length, page_count, quality_score, mode, cost, content_hash, provenance_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DocumentID, r.ExtractedText, r.TextLength, r.PageCount,
		nullFloat(r.QualityScore), r.Mode, nullFloat(r.Cost), r.ContentHash, r.ProvenanceID, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ocr_result: %w", err)
	}
	return nil
}

// GetOcrResultByDocument fetches the OCR result owned by a document.
func GetOcrResultByDocument(ctx context.Context, q Querier, documentID string) (*types.OcrResult, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, document_id, extracted_text, text_length, page_count, quality_score, mode, cost, content_hash, provenance_id, created_at
		FROM ocr_results WHERE document_id = ?`, documentID)

	var r types.OcrResult
	var qualityScore, cost sql.NullFloat64
	if err := row.Scan(&r.ID, &r.DocumentID, &r.ExtractedText, &r.TextLength, &r.PageCount,
		&qualityScore, &r.Mode, &cost, &r.ContentHash, &r.ProvenanceID, &r.CreatedAt); err != nil {
		return nil, err
	}
	if qualityScore.Valid {
		r.QualityScore = &qualityScore.Float64
	}
	if cost.Valid {
		r.Cost = &cost.Float64
	}
	return &r, nil
}

const chunkColumns = `id, document_id, ocr_result_id, text, text_hash, chunk_index, character_start, character_end, page_number, page_range, overlap_prev, overlap_next, embedding_status, provenance_id, created_at`

// CreateChunk inserts one chunk. chunk_index must be contiguous per
// document; callers are responsible for that ordering.
func CreateChunk(ctx context.Context, q Querier, c *types.Chunk) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.EmbeddingStatus == "" {
		c.EmbeddingStatus = types.EmbeddingPending
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO chunks (`+chunkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DocumentID, c.OcrResultID, c.Text, c.TextHash, c.ChunkIndex,
		c.CharacterStart, c.CharacterEnd, nullInt(c.PageNumber), nullString(c.PageRange),
		c.OverlapPrev, c.OverlapNext, string(c.EmbeddingStatus), c.ProvenanceID, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

func scanChunk(row interface{ Scan(dest ...any) error }) (*types.Chunk, error) {
	var c types.Chunk
	var pageNumber sql.NullInt64
	var pageRange sql.NullString
	var status string

	if err := row.Scan(&c.ID, &c.DocumentID, &c.OcrResultID, &c.Text, &c.TextHash, &c.ChunkIndex,
		&c.CharacterStart, &c.CharacterEnd, &pageNumber, &pageRange, &c.OverlapPrev, &c.OverlapNext,
		&status, &c.ProvenanceID, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.EmbeddingStatus = types.EmbeddingStatus(status)
	if pageNumber.Valid {
		n := int(pageNumber.Int64)
		c.PageNumber = &n
	}
	c.PageRange = pageRange.String
	return &c, nil
}

// GetChunksByDocument returns a document's chunks ordered by chunk_index.
func GetChunksByDocument(ctx context.Context, q Querier, documentID string) ([]*types.Chunk, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var out []*types.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChunk fetches a single chunk by id.
func GetChunk(ctx context.Context, q Querier, id string) (*types.Chunk, error) {
	row := q.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	return scanChunk(row)
}

// UpdateChunkEmbeddingStatus performs the embedder's pending->{complete,failed}
// transition. Only the embedder should call this, per the state machine.
func UpdateChunkEmbeddingStatus(ctx context.Context, q Querier, id string, status types.EmbeddingStatus) error {
	_, err := q.ExecContext(ctx, `UPDATE chunks SET embedding_status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update chunk embedding_status: %w", err)
	}
	return nil
}
