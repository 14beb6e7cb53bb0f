package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/normanking/docgraph/pkg/types"
)

// InsertProvenanceRecord writes a provenance row as-is. Lattice and
// parent-chain validation belong to internal/provenance, not this layer —
// store is a thin, trusting CRUD boundary.
func InsertProvenanceRecord(ctx context.Context, q Querier, r *types.ProvenanceRecord) error {
	parentIDs, err := marshalJSONArray(r.ParentIDs)
	if err != nil {
		return fmt.Errorf("marshal parent_ids: %w", err)
	}
	params, err := marshalJSON(r.ProcessingParams)
	if err != nil {
		return fmt.Errorf("marshal processing_params: %w", err)
	}

	var chainPath string
	if len(r.ChainPath) > 0 {
		b, err := json.Marshal(r.ChainPath)
		if err != nil {
			return fmt.Errorf("marshal chain_path: %w", err)
		}
		chainPath = string(b)
	}

	var location string
	if r.Location != nil {
		loc, err := marshalJSON(r.Location)
		if err != nil {
			return fmt.Errorf("marshal location: %w", err)
		}
		location = loc
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO provenance_records (
			id, kind, source_id, root_document_id, parent_ids, chain_depth,
			chain_path, content_hash, input_hash, file_hash, processor,
			processor_version, processing_params, created_at, processed_at,
			source_file_created_at, source_file_modified_at, location
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), nullString(r.SourceID), r.RootDocumentID, parentIDs,
		r.ChainDepth, nullString(chainPath), r.ContentHash, nullString(r.InputHash),
		nullString(r.FileHash), r.Processor, r.ProcessorVersion, params,
		createdAt, nullTime(r.ProcessedAt), nullTimePtr(r.SourceFileCreatedAt),
		nullTimePtr(r.SourceFileModifiedAt), nullString(location),
	)
	if err != nil {
		return fmt.Errorf("insert provenance record: %w", err)
	}
	return nil
}

// GetProvenanceRecord fetches one provenance record by id. Returns
// sql.ErrNoRows if absent.
func GetProvenanceRecord(ctx context.Context, q Querier, id string) (*types.ProvenanceRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, kind, source_id, root_document_id, parent_ids, chain_depth,
			chain_path, content_hash, input_hash, file_hash, processor,
			processor_version, processing_params, created_at, processed_at,
			source_file_created_at, source_file_modified_at, location
		FROM provenance_records WHERE id = ?`, id)

	return scanProvenanceRecord(row)
}

func scanProvenanceRecord(row *sql.Row) (*types.ProvenanceRecord, error) {
	var r types.ProvenanceRecord
	var kind string
	var sourceID, chainPath, inputHash, fileHash, location sql.NullString
	var processedAt, sourceFileCreatedAt, sourceFileModifiedAt sql.NullTime
	var parentIDsJSON, paramsJSON string

	err := row.Scan(
		&r.ID, &kind, &sourceID, &r.RootDocumentID, &parentIDsJSON, &r.ChainDepth,
		&chainPath, &r.ContentHash, &inputHash, &fileHash, &r.Processor,
		&r.ProcessorVersion, &paramsJSON, &r.CreatedAt, &processedAt,
		&sourceFileCreatedAt, &sourceFileModifiedAt, &location,
	)
	if err != nil {
		return nil, err
	}

	r.Kind = types.ProvenanceKind(kind)
	r.SourceID = sourceID.String
	r.InputHash = inputHash.String
	r.FileHash = fileHash.String
	if processedAt.Valid {
		r.ProcessedAt = processedAt.Time
	}
	if sourceFileCreatedAt.Valid {
		t := sourceFileCreatedAt.Time
		r.SourceFileCreatedAt = &t
	}
	if sourceFileModifiedAt.Valid {
		t := sourceFileModifiedAt.Time
		r.SourceFileModifiedAt = &t
	}

	parentIDs, err := unmarshalJSONStrings(parentIDsJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal parent_ids: %w", err)
	}
	r.ParentIDs = parentIDs

	if chainPath.Valid && chainPath.String != "" {
		var kinds []types.ProvenanceKind
		if err := json.Unmarshal([]byte(chainPath.String), &kinds); err != nil {
			return nil, fmt.Errorf("unmarshal chain_path: %w", err)
		}
		r.ChainPath = kinds
	}

	params, err := unmarshalJSONMap(paramsJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal processing_params: %w", err)
	}
	r.ProcessingParams = params

	if location.Valid && location.String != "" {
		loc, err := unmarshalJSONMap(location.String)
		if err != nil {
			return nil, fmt.Errorf("unmarshal location: %w", err)
		}
		r.Location = loc
	}

	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
