package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/normanking/docgraph/pkg/types"
)

const entityColumns = `id, document_id, entity_type, raw_text, normalized_text, confidence, metadata, provenance_id, created_at`

// CreateEntity inserts an entity row. normalized_text is expected to
// already be lowercased and trimmed by the caller (the extractor).
func CreateEntity(ctx context.Context, q Querier, e *types.Entity) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	metadata, err := marshalJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal entity metadata: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DocumentID, string(e.EntityType), e.RawText, e.NormalizedText,
		e.Confidence, metadata, e.ProvenanceID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

func scanEntity(row interface{ Scan(dest ...any) error }) (*types.Entity, error) {
	var e types.Entity
	var entityType, metadataJSON string
	if err := row.Scan(&e.ID, &e.DocumentID, &entityType, &e.RawText, &e.NormalizedText,
		&e.Confidence, &metadataJSON, &e.ProvenanceID, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.EntityType = types.EntityType(entityType)
	metadata, err := unmarshalJSONMap(metadataJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal entity metadata: %w", err)
	}
	e.Metadata = metadata
	return &e, nil
}

// GetEntity fetches a single entity by id.
func GetEntity(ctx context.Context, q Querier, id string) (*types.Entity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

// GetEntitiesByDocument returns every entity extracted from a document.
func GetEntitiesByDocument(ctx context.Context, q Querier, documentID string) ([]*types.Entity, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []*types.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEntitiesByDocument removes every entity row for a document, used by
// cascade delete after entity_mentions have been cleared.
func DeleteEntitiesByDocument(ctx context.Context, q Querier, documentID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM entities WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("delete entities: %w", err)
	}
	return nil
}

// CreateEntityMention inserts a mention row alongside its owning entity.
func CreateEntityMention(ctx context.Context, q Querier, m *types.EntityMention) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO entity_mentions (id, entity_id, document_id, chunk_id, page_number, char_start, char_end, context_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.EntityID, m.DocumentID, nullString(m.ChunkID), nullInt(m.PageNumber),
		nullInt(m.CharStart), nullInt(m.CharEnd), nullString(m.ContextText), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entity_mention: %w", err)
	}
	return nil
}

// GetMentionsByEntity returns every mention of one entity.
func GetMentionsByEntity(ctx context.Context, q Querier, entityID string) ([]*types.EntityMention, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, entity_id, document_id, chunk_id, page_number, char_start, char_end, context_text, created_at
		FROM entity_mentions WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list entity mentions: %w", err)
	}
	defer rows.Close()

	var out []*types.EntityMention
	for rows.Next() {
		var m types.EntityMention
		var chunkID, contextText sql.NullString
		var pageNumber, charStart, charEnd sql.NullInt64
		if err := rows.Scan(&m.ID, &m.EntityID, &m.DocumentID, &chunkID, &pageNumber,
			&charStart, &charEnd, &contextText, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ChunkID = chunkID.String
		m.ContextText = contextText.String
		if pageNumber.Valid {
			n := int(pageNumber.Int64)
			m.PageNumber = &n
		}
		if charStart.Valid {
			n := int(charStart.Int64)
			m.CharStart = &n
		}
		if charEnd.Valid {
			n := int(charEnd.Int64)
			m.CharEnd = &n
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// DeleteMentionsByDocument removes every mention row for a document. Must
// run before DeleteEntitiesByDocument in cascade delete's ordering.
func DeleteMentionsByDocument(ctx context.Context, q Querier, documentID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM entity_mentions WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("delete entity_mentions: %w", err)
	}
	return nil
}
