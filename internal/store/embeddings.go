package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/normanking/docgraph/pkg/types"
)

// CreateImage inserts an image row.
func CreateImage(ctx context.Context, q Querier, img *types.Image) error {
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO images (id, document_id, page_number, image_path, vlm_description, provenance_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.DocumentID, nullInt(img.PageNumber), nullString(img.ImagePath),
		nullString(img.VLMDescription), img.ProvenanceID, img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// CreateExtraction inserts an extraction row. ExtractionID is the stable
// external identifier the classifier's extraction-schema rule matches
// entities against.
func CreateExtraction(ctx context.Context, q Querier, e *types.Extraction) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	payload, err := marshalJSON(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal extraction payload: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO extractions (id, document_id, extraction_id, schema_name, payload, provenance_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DocumentID, e.ExtractionID, e.SchemaName, payload, e.ProvenanceID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert extraction: %w", err)
	}
	return nil
}

// CreateEmbedding inserts an embedding row. Exactly one of ChunkID, ImageID,
// ExtractionID must be set; the schema's CHECK constraint enforces this.
func CreateEmbedding(ctx context.Context, q Querier, e *types.Embedding) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO embeddings (id, chunk_id, image_id, extraction_id, document_id, original_text, original_text_length, model_name, model_version, content_hash, provenance_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, nullString(e.ChunkID), nullString(e.ImageID), nullString(e.ExtractionID),
		e.DocumentID, e.OriginalText, e.OriginalTextLength, e.ModelName, e.ModelVersion,
		e.ContentHash, e.ProvenanceID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// CreateVector inserts the fixed-dimension vector sidecar row atomically
// alongside its Embedding, per the spec's "written atomically with
// Embedding" invariant — callers are expected to call CreateEmbedding and
// CreateVector within the same transaction.
func CreateVector(ctx context.Context, q Querier, v *types.Vector) error {
	b, err := json.Marshal(v.Values)
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}
	_, err = q.ExecContext(ctx, `INSERT INTO vectors (embedding_id, dims, vector_json) VALUES (?, ?, ?)`,
		v.EmbeddingID, v.Dims, string(b))
	if err != nil {
		return fmt.Errorf("insert vector: %w", err)
	}
	return nil
}

// GetVector fetches the vector for a given embedding id.
func GetVector(ctx context.Context, q Querier, embeddingID string) (*types.Vector, error) {
	row := q.QueryRowContext(ctx, `SELECT embedding_id, dims, vector_json FROM vectors WHERE embedding_id = ?`, embeddingID)
	var v types.Vector
	var vectorJSON string
	if err := row.Scan(&v.EmbeddingID, &v.Dims, &vectorJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(vectorJSON), &v.Values); err != nil {
		return nil, fmt.Errorf("unmarshal vector: %w", err)
	}
	return &v, nil
}

// GetEmbeddingsByDocument returns all embeddings owned by a document.
func GetEmbeddingsByDocument(ctx context.Context, q Querier, documentID string) ([]*types.Embedding, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, chunk_id, image_id, extraction_id, document_id, original_text, original_text_length, model_name, model_version, content_hash, provenance_id, created_at
		FROM embeddings WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var out []*types.Embedding
	for rows.Next() {
		var e types.Embedding
		var chunkID, imageID, extractionID sql.NullString
		if err := rows.Scan(&e.ID, &chunkID, &imageID, &extractionID, &e.DocumentID,
			&e.OriginalText, &e.OriginalTextLength, &e.ModelName, &e.ModelVersion,
			&e.ContentHash, &e.ProvenanceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ChunkID = chunkID.String
		e.ImageID = imageID.String
		e.ExtractionID = extractionID.String
		out = append(out, &e)
	}
	return out, rows.Err()
}
