// Package provenance implements the ledger every derived artifact in
// docgraph anchors to: immutable fingerprints arranged in a fixed depth
// lattice, with parent-chain resolution back to a root document.
package provenance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/normanking/docgraph/internal/hashid"
	"github.com/normanking/docgraph/internal/logging"
	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
)

// Create validates and inserts one provenance record, returning its id.
// The caller owns ID generation for every other table; Create mints the
// provenance id itself if the record doesn't already carry one, since
// provenance ids are never user-visible or referenced before creation.
//
// Validation enforces the depth lattice and that source_id/parent_ids
// resolve to existing rows. It does not check content_hash's SHA-256
// payload, only that it carries the "sha256:" prefix hashid mints.
func Create(ctx context.Context, q store.Querier, r *types.ProvenanceRecord) (string, error) {
	if r.ID == "" {
		r.ID = hashid.New()
	}

	wantDepth, known := types.LatticeDepth[r.Kind]
	if !known {
		return "", &types.AppError{
			Category: types.ErrInvalidChain,
			Message:  fmt.Sprintf("unknown provenance kind %q", r.Kind),
		}
	}
	if r.ChainDepth != wantDepth {
		return "", &types.AppError{
			Category: types.ErrInvalidChain,
			Message:  fmt.Sprintf("chain_depth %d does not match lattice depth %d for kind %q", r.ChainDepth, wantDepth, r.Kind),
			Details:  map[string]any{"kind": string(r.Kind), "declared_depth": r.ChainDepth, "lattice_depth": wantDepth},
		}
	}

	if r.ContentHash == "" || !hashid.IsPrefixed(r.ContentHash) {
		return "", &types.AppError{
			Category: types.ErrInvalidChain,
			Message:  "content_hash must be non-empty and carry a recognized hash prefix",
		}
	}

	if r.SourceID != "" {
		if _, err := store.GetProvenanceRecord(ctx, q, r.SourceID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", &types.AppError{
					Category: types.ErrInvalidChain,
					Message:  fmt.Sprintf("source_id %q does not resolve to an existing provenance record", r.SourceID),
				}
			}
			return "", fmt.Errorf("resolve source_id: %w", err)
		}
	}
	for _, parentID := range r.ParentIDs {
		if _, err := store.GetProvenanceRecord(ctx, q, parentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", &types.AppError{
					Category: types.ErrInvalidChain,
					Message:  fmt.Sprintf("parent_id %q does not resolve to an existing provenance record", parentID),
				}
			}
			return "", fmt.Errorf("resolve parent_id: %w", err)
		}
	}

	if err := store.InsertProvenanceRecord(ctx, q, r); err != nil {
		return "", fmt.Errorf("insert provenance record: %w", err)
	}
	return r.ID, nil
}

// Get fetches one provenance record, returning a PROVENANCE_NOT_FOUND
// AppError if absent rather than the raw sql.ErrNoRows.
func Get(ctx context.Context, q store.Querier, id string) (*types.ProvenanceRecord, error) {
	r, err := store.GetProvenanceRecord(ctx, q, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &types.AppError{
				Category: types.ErrProvenanceNotFound,
				Message:  fmt.Sprintf("provenance record %q not found", id),
			}
		}
		return nil, fmt.Errorf("get provenance record: %w", err)
	}
	return r, nil
}

// Chain walks from id back to the root DOCUMENT record, preferring
// source_id over parent_ids[0] at each step, per the spec's chain-walk
// rule. The returned slice is ordered leaf-first (id itself is first,
// the root DOCUMENT is last).
func Chain(ctx context.Context, q store.Querier, id string) ([]*types.ProvenanceRecord, error) {
	var chain []*types.ProvenanceRecord
	visited := make(map[string]bool)
	current := id

	for {
		if visited[current] {
			return nil, &types.AppError{
				Category: types.ErrProvenanceChainBroken,
				Message:  fmt.Sprintf("cycle detected in provenance chain at %q", current),
			}
		}
		visited[current] = true

		rec, err := store.GetProvenanceRecord(ctx, q, current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, &types.AppError{
					Category: types.ErrProvenanceChainBroken,
					Message:  fmt.Sprintf("ancestor %q referenced in chain does not exist", current),
				}
			}
			return nil, fmt.Errorf("walk chain: %w", err)
		}
		chain = append(chain, rec)

		if rec.Kind == types.KindDocument {
			return chain, nil
		}

		next := rec.SourceID
		if next == "" && len(rec.ParentIDs) > 0 {
			next = rec.ParentIDs[0]
		}
		if next == "" {
			return nil, &types.AppError{
				Category: types.ErrProvenanceChainBroken,
				Message:  fmt.Sprintf("record %q has no source_id or parent_ids and is not a DOCUMENT root", current),
			}
		}
		current = next
	}
}

// CreateAudited wraps Create with a detached context so the write survives
// cancellation of the caller's request context — provenance rows must
// never be half-written because an HTTP handler's deadline fired mid-insert.
func CreateAudited(ctx context.Context, q store.Querier, r *types.ProvenanceRecord) (string, error) {
	return Create(logging.DetachContext(ctx), q, r)
}

// NewRecord is a convenience constructor covering the fields every caller
// sets directly, defaulting ChainDepth from the lattice so callers can't
// drift from it by a typo.
func NewRecord(kind types.ProvenanceKind, rootDocumentID, contentHash, processor, processorVersion string) *types.ProvenanceRecord {
	return &types.ProvenanceRecord{
		ID:               hashid.New(),
		Kind:             kind,
		RootDocumentID:   rootDocumentID,
		ChainDepth:       types.LatticeDepth[kind],
		ContentHash:      contentHash,
		Processor:        processor,
		ProcessorVersion: processorVersion,
	}
}
