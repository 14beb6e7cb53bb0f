// Package store provides the SQLite-based data access layer for docgraph.
// It uses modernc.org/sqlite for pure-Go, CGO-free database access.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

//go:embed migrations/001_provenance.sql
var provenanceSchema string

//go:embed migrations/002_documents.sql
var documentsSchema string

//go:embed migrations/003_embeddings.sql
var embeddingsSchema string

//go:embed migrations/004_entities.sql
var entitiesSchema string

//go:embed migrations/005_auxiliary.sql
var auxiliarySchema string

//go:embed migrations/006_knowledge_graph.sql
var knowledgeGraphSchema string

//go:embed migrations/007_search_index.sql
var searchIndexSchema string

//go:embed migrations/008_schema_version.sql
var schemaVersionSchema string

// defaultBusyTimeoutMs matches the spec's lock-contention budget; callers
// may override via NewDBWithOptions.
const defaultBusyTimeoutMs = 30000

// Store provides access to the SQLite database backing the knowledge graph.
type Store struct {
	db *sql.DB
}

// Options configures NewDBWithOptions.
type Options struct {
	BusyTimeoutMs int
}

// NewDB creates a new database connection with the default busy timeout and
// runs all migrations. dataDir must point to a local directory.
func NewDB(dataDir string) (*Store, error) {
	return NewDBWithOptions(dataDir, Options{BusyTimeoutMs: defaultBusyTimeoutMs})
}

// NewDBWithOptions is NewDB with explicit tuning, primarily for tests that
// want a shorter busy timeout.
func NewDBWithOptions(dataDir string, opts Options) (*Store, error) {
	if opts.BusyTimeoutMs <= 0 {
		opts.BusyTimeoutMs = defaultBusyTimeoutMs
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	if err := validateLocalPath(dataDir); err != nil {
		return nil, fmt.Errorf("validate data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "docgraph.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with a single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}

	if err := s.initPragmas(opts.BusyTimeoutMs); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize pragmas: %w", err)
	}

	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

func (s *Store) initPragmas(busyTimeoutMs int) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMs),
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Migrate runs all embedded schema migrations. Idempotent — safe to call
// multiple times.
func (s *Store) Migrate() error {
	migrations := []struct {
		name   string
		schema string
	}{
		{"provenance", provenanceSchema},
		{"documents", documentsSchema},
		{"embeddings", embeddingsSchema},
		{"entities", entitiesSchema},
		{"auxiliary", auxiliarySchema},
		{"knowledge_graph", knowledgeGraphSchema},
		{"search_index", searchIndexSchema},
		{"schema_version", schemaVersionSchema},
	}

	for _, m := range migrations {
		if err := s.runMigration(m.name, m.schema); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}

	return nil
}

func (s *Store) runMigration(name, schema string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	statements := splitSQL(schema)
	for i, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || strings.HasPrefix(stmt, "--") {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute statement %d: %w\nSQL: %s", i+1, err, stmt)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}

	return nil
}

// Health checks if the database connection is alive and responsive.
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("health check returned unexpected value: %d", result)
	}
	return nil
}

// Close flushes the WAL and closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: WAL checkpoint failed: %v\n", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// DB returns the underlying *sql.DB for callers that need raw access
// (primarily internal/store's own CRUD files).
func (s *Store) DB() *sql.DB {
	return s.db
}

// BeginTx starts a new transaction with the given context and options.
func (s *Store) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

// WithTx executes fn within a transaction, committing on success and rolling
// back on any error fn returns. Every multi-row operation in this module
// (incremental add/remove, cascade delete, classification) goes through
// this, matching the spec's "one transaction per operation" requirement.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// validateLocalPath ensures the path is on a local filesystem. Network
// paths (SMB, NFS, etc.) can cause SQLite WAL corruption.
func validateLocalPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	networkPrefixes := []string{"//", "\\\\", "/mnt/", "/net/", "/Volumes/"}
	for _, prefix := range networkPrefixes {
		if strings.HasPrefix(absPath, prefix) {
			return fmt.Errorf("network path detected: %s (SQLite requires a local filesystem)", absPath)
		}
	}

	testFile := filepath.Join(path, ".docgraph-write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}
	os.Remove(testFile)

	return nil
}

// splitSQL splits a multi-statement SQL string into individual statements,
// respecting BEGIN...END blocks so trigger bodies are never cut mid-block.
func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := rune(0)
	beginDepth := 0

	lines := strings.Split(sqlText, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}

		upperLine := strings.ToUpper(trimmed)
		if !inString && strings.Contains(upperLine, "BEGIN") && !strings.Contains(upperLine, "BEGIN TRANSACTION") {
			beginDepth++
		}

		for _, ch := range line {
			if (ch == '\'' || ch == '"') && !inString {
				inString = true
				stringChar = ch
			} else if ch == stringChar && inString {
				inString = false
				stringChar = 0
			}

			current.WriteRune(ch)

			if ch == ';' && !inString {
				currentStr := current.String()
				upperCurrent := strings.ToUpper(strings.TrimSpace(currentStr))

				if beginDepth > 0 && strings.HasSuffix(upperCurrent, "END;") {
					beginDepth--
				}

				if beginDepth == 0 {
					stmt := strings.TrimSpace(currentStr)
					if stmt != "" && !strings.HasPrefix(stmt, "--") {
						statements = append(statements, stmt)
					}
					current.Reset()
				}
			}
		}

		current.WriteRune('\n')
	}

	if final := strings.TrimSpace(current.String()); final != "" && !strings.HasPrefix(final, "--") {
		statements = append(statements, final)
	}

	return statements
}

// ═══════════════════════════════════════════════════════════════════════════
// Process-lifecycle singleton. Per the design notes, this is an explicit
// open/close/clear surface — never a hidden reopen.
// ═══════════════════════════════════════════════════════════════════════════

var global *Store

// SetGlobal installs the process-wide store handle.
func SetGlobal(s *Store) {
	global = s
}

// Global returns the process-wide store handle, or nil if none is set.
func Global() *Store {
	return global
}

// ClearGlobal closes and clears the process-wide store handle, if any.
func ClearGlobal() error {
	if global == nil {
		return nil
	}
	err := global.Close()
	global = nil
	return err
}
