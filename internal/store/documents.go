package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/normanking/docgraph/pkg/types"
)

// CreateDocument inserts a new document row, which must reference an
// already-committed DOCUMENT provenance record.
func CreateDocument(ctx context.Context, q Querier, d *types.Document) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = types.DocumentPending
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (id, file_path, file_name, file_hash, file_size, file_type, status, page_count, provenance_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.FilePath, d.FileName, d.FileHash, d.FileSize, d.FileType, string(d.Status),
		nullInt(d.PageCount), d.ProvenanceID, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func scanDocument(row interface {
	Scan(dest ...any) error
}) (*types.Document, error) {
	var d types.Document
	var status string
	var pageCount sql.NullInt64

	if err := row.Scan(&d.ID, &d.FilePath, &d.FileName, &d.FileHash, &d.FileSize, &d.FileType,
		&status, &pageCount, &d.ProvenanceID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Status = types.DocumentStatus(status)
	if pageCount.Valid {
		n := int(pageCount.Int64)
		d.PageCount = &n
	}
	return &d, nil
}

const documentColumns = `id, file_path, file_name, file_hash, file_size, file_type, status, page_count, provenance_id, created_at, updated_at`

// GetDocument fetches a document by id.
func GetDocument(ctx context.Context, q Querier, id string) (*types.Document, error) {
	row := q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// GetDocumentByHash fetches a document by its file_hash, which is unique.
func GetDocumentByHash(ctx context.Context, q Querier, fileHash string) (*types.Document, error) {
	row := q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE file_hash = ?`, fileHash)
	return scanDocument(row)
}

// ListDocuments returns documents, optionally filtered by status.
func ListDocuments(ctx context.Context, q Querier, status types.DocumentStatus) ([]*types.Document, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = q.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at`)
	} else {
		rows, err = q.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE status = ? ORDER BY created_at`, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*types.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDocumentStatus performs an unconditional status transition. Callers
// enforcing the pending->processing->{complete,failed} lattice should use
// ClaimPendingDocument for the first leg, which is conditional.
func UpdateDocumentStatus(ctx context.Context, q Querier, id string, status types.DocumentStatus) error {
	res, err := q.ExecContext(ctx, `UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClaimPendingDocument atomically transitions one pending document to
// processing via a single conditional UPDATE, guaranteeing exclusivity
// across concurrent claimers. Returns sql.ErrNoRows if the document was not
// in pending state (already claimed, or does not exist).
func ClaimPendingDocument(ctx context.Context, q Querier, id string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE documents SET status = 'processing', updated_at = ? WHERE id = ? AND status = 'pending'`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("claim document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClaimAnyPendingDocument finds and claims one arbitrary pending document in
// a single transaction-safe round trip, for callers with a pool of workers
// and no document id in hand yet.
func ClaimAnyPendingDocument(ctx context.Context, q Querier) (*types.Document, error) {
	row := q.QueryRowContext(ctx, `SELECT id FROM documents WHERE status = 'pending' ORDER BY created_at LIMIT 1`)
	var id string
	if err := row.Scan(&id); err != nil {
		return nil, err
	}
	if err := ClaimPendingDocument(ctx, q, id); err != nil {
		return nil, err
	}
	return GetDocument(ctx, q, id)
}

// DeleteDocumentRow removes the document row itself. Used as the final step
// of cascade delete, after every dependent table has been cleared.
func DeleteDocumentRow(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
