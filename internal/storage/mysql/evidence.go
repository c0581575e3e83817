package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

const evidenceColumns = `id, case_id, evidence_type, classification, description,
	       storage_path, content_hash, processing_status, integrity_verified,
	       chain, collected_by, created_at, updated_at`

// CreateEvidence stores a new evidence item.
func (s *Store) CreateEvidence(ctx context.Context, e *types.EvidenceItem) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return createEvidence(ctx, s.db, e)
}

func createEvidence(ctx context.Context, q dbtx, e *types.EvidenceItem) error {
	if e.ID == "" {
		return fmt.Errorf("evidence id is required")
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	chain, err := jsonChain(e.Chain)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO evidence (
			id, case_id, evidence_type, classification, description,
			storage_path, content_hash, processing_status, integrity_verified,
			chain, collected_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.CaseID, e.Type, e.Classification, e.Description,
		e.StoragePath, e.ContentHash, e.ProcessingStatus, e.IntegrityVerified,
		chain, e.CollectedBy, e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if isDuplicateKey(err) {
		return fmt.Errorf("evidence %s: %w", e.ID, storage.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert evidence: %w", err)
	}
	return nil
}

// GetEvidence returns the stored evidence item.
func (s *Store) GetEvidence(ctx context.Context, id string) (*types.EvidenceItem, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	return getEvidence(ctx, s.db, id)
}

func getEvidence(ctx context.Context, q dbtx, id string) (*types.EvidenceItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+evidenceColumns+` FROM evidence WHERE id = ?`, id)
	e, err := scanEvidence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evidence %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evidence: %w", err)
	}
	return e, nil
}

// UpdateEvidence replaces the stored evidence item wholesale. Custody chain
// growth is enforced by the service layer; storage accepts what it is given.
func (s *Store) UpdateEvidence(ctx context.Context, e *types.EvidenceItem) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return updateEvidence(ctx, s.db, e)
}

func updateEvidence(ctx context.Context, q dbtx, e *types.EvidenceItem) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	chain, err := jsonChain(e.Chain)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE evidence SET
			case_id = ?, evidence_type = ?, classification = ?, description = ?,
			storage_path = ?, content_hash = ?, processing_status = ?, integrity_verified = ?,
			chain = ?, collected_by = ?, created_at = ?, updated_at = ?
		WHERE id = ?
	`,
		e.CaseID, e.Type, e.Classification, e.Description,
		e.StoragePath, e.ContentHash, e.ProcessingStatus, e.IntegrityVerified,
		chain, e.CollectedBy, e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update evidence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update evidence: %w", err)
	}
	if n == 0 {
		if _, err := getEvidence(ctx, q, e.ID); err != nil {
			return err
		}
	}
	return nil
}

// ListEvidence returns matching evidence items, sorted and paginated.
func (s *Store) ListEvidence(ctx context.Context, filter types.EvidenceFilter, opts types.ListOptions) ([]*types.EvidenceItem, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	where, args := buildEvidenceWhere(filter)
	rows, err := s.db.QueryContext(ctx, `SELECT `+evidenceColumns+` FROM evidence`+where+orderBy(opts, false), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.EvidenceItem
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	start, end := pageBounds(len(out), opts)
	return out[start:end], nil
}

func buildEvidenceWhere(f types.EvidenceFilter) (string, []any) {
	var conds []string
	var args []any
	if f.CaseID != nil {
		conds = append(conds, "case_id = ?")
		args = append(args, *f.CaseID)
	}
	if f.Type != nil {
		conds = append(conds, "evidence_type = ?")
		args = append(args, *f.Type)
	}
	if f.ProcessingStatus != nil {
		conds = append(conds, "processing_status = ?")
		args = append(args, *f.ProcessingStatus)
	}
	if f.Classification != nil {
		conds = append(conds, "classification = ?")
		args = append(args, *f.Classification)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEvidence(s scanner) (*types.EvidenceItem, error) {
	var e types.EvidenceItem
	var description, chain sql.NullString
	var integrityVerified sql.NullInt64

	if err := s.Scan(
		&e.ID, &e.CaseID, &e.Type, &e.Classification, &description,
		&e.StoragePath, &e.ContentHash, &e.ProcessingStatus, &integrityVerified,
		&chain, &e.CollectedBy, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if description.Valid {
		e.Description = description.String
	}
	e.IntegrityVerified = integrityVerified.Valid && integrityVerified.Int64 != 0
	var err error
	if e.Chain, err = parseChain(chain); err != nil {
		return nil, err
	}
	return &e, nil
}

func jsonChain(chain []types.CustodyEntry) (any, error) {
	if len(chain) == 0 {
		return nil, nil
	}
	return marshalJSON(chain)
}

func parseChain(ns sql.NullString) ([]types.CustodyEntry, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var out []types.CustodyEntry
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil, fmt.Errorf("parse json column: %w", err)
	}
	return out, nil
}
