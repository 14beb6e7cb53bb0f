package store

import (
	"context"
	"database/sql"
)

// Querier is satisfied by both *sql.DB and *sql.Tx. Every CRUD method in
// this package takes one instead of binding to *Store directly, so the
// incremental maintainer, cascade delete engine, and classifier can run a
// sequence of these calls inside one transaction, exactly as the spec's
// "one transaction per operation" requirement demands.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)
