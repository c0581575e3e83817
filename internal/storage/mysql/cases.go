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

const caseColumns = `id, case_number, case_type, status, priority, title, lead_investigator,
	       incident_ids, evidence_ids, status_history,
	       conclusion, recommendations, outcome, retention_until,
	       created_at, updated_at, closed_at, closed_by`

// CreateCase stores a new case. A duplicate case number surfaces as
// ErrAlreadyExists the same way a duplicate id does; callers that generate
// sequential numbers retry with a fresh one.
func (s *Store) CreateCase(ctx context.Context, c *types.Case) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return createCase(ctx, s.db, c)
}

func createCase(ctx context.Context, q dbtx, c *types.Case) error {
	if c.ID == "" {
		return fmt.Errorf("case id is required")
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	incidentIDs, err := jsonStrings(c.IncidentIDs)
	if err != nil {
		return err
	}
	evidenceIDs, err := jsonStrings(c.EvidenceIDs)
	if err != nil {
		return err
	}
	history, err := jsonHistory(c.StatusHistory)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO cases (
			id, case_number, case_type, status, priority, title, lead_investigator,
			incident_ids, evidence_ids, status_history,
			conclusion, recommendations, outcome, retention_until,
			created_at, updated_at, closed_at, closed_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.CaseNumber, c.Type, c.Status, c.Priority, c.Title, c.LeadInvestigator,
		incidentIDs, evidenceIDs, history,
		c.Conclusion, c.Recommendations, c.Outcome, nullTime(c.RetentionUntil),
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(), nullTimePtr(c.ClosedAt), c.ClosedBy,
	)
	if isDuplicateKey(err) {
		return fmt.Errorf("case %s: %w", c.ID, storage.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}
	return nil
}

// GetCase returns the stored case.
func (s *Store) GetCase(ctx context.Context, id string) (*types.Case, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	return getCase(ctx, s.db, id)
}

func getCase(ctx context.Context, q dbtx, id string) (*types.Case, error) {
	row := q.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ?`, id)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

// UpdateCase replaces the stored case wholesale.
func (s *Store) UpdateCase(ctx context.Context, c *types.Case) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return updateCase(ctx, s.db, c)
}

func updateCase(ctx context.Context, q dbtx, c *types.Case) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	incidentIDs, err := jsonStrings(c.IncidentIDs)
	if err != nil {
		return err
	}
	evidenceIDs, err := jsonStrings(c.EvidenceIDs)
	if err != nil {
		return err
	}
	history, err := jsonHistory(c.StatusHistory)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE cases SET
			case_number = ?, case_type = ?, status = ?, priority = ?, title = ?, lead_investigator = ?,
			incident_ids = ?, evidence_ids = ?, status_history = ?,
			conclusion = ?, recommendations = ?, outcome = ?, retention_until = ?,
			created_at = ?, updated_at = ?, closed_at = ?, closed_by = ?
		WHERE id = ?
	`,
		c.CaseNumber, c.Type, c.Status, c.Priority, c.Title, c.LeadInvestigator,
		incidentIDs, evidenceIDs, history,
		c.Conclusion, c.Recommendations, c.Outcome, nullTime(c.RetentionUntil),
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(), nullTimePtr(c.ClosedAt), c.ClosedBy,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	if n == 0 {
		if _, err := getCase(ctx, q, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// ListCases returns matching cases, sorted and paginated.
func (s *Store) ListCases(ctx context.Context, filter types.CaseFilter, opts types.ListOptions) ([]*types.Case, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	where, args := buildCaseWhere(filter)
	rows, err := s.db.QueryContext(ctx, `SELECT `+caseColumns+` FROM cases`+where+orderBy(opts, true), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	start, end := pageBounds(len(out), opts)
	return out[start:end], nil
}

// buildCaseWhere translates the SQL-expressible filter fields. Incident
// membership lives in a JSON column and stays with the Matches pass.
func buildCaseWhere(f types.CaseFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Type != nil {
		conds = append(conds, "case_type = ?")
		args = append(args, *f.Type)
	}
	if f.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, *f.Status)
	}
	if f.Priority != nil {
		conds = append(conds, "priority = ?")
		args = append(args, *f.Priority)
	}
	if f.LeadInvestigator != nil {
		conds = append(conds, "lead_investigator = ?")
		args = append(args, *f.LeadInvestigator)
	}
	if f.CreatedAfter != nil {
		conds = append(conds, "created_at > ?")
		args = append(args, f.CreatedAfter.UTC())
	}
	if f.CreatedBefore != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, f.CreatedBefore.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanCase(s scanner) (*types.Case, error) {
	var c types.Case
	var incidentIDs, evidenceIDs, history sql.NullString
	var conclusion, recommendations sql.NullString
	var retentionUntil, closedAt sql.NullTime

	if err := s.Scan(
		&c.ID, &c.CaseNumber, &c.Type, &c.Status, &c.Priority, &c.Title, &c.LeadInvestigator,
		&incidentIDs, &evidenceIDs, &history,
		&conclusion, &recommendations, &c.Outcome, &retentionUntil,
		&c.CreatedAt, &c.UpdatedAt, &closedAt, &c.ClosedBy,
	); err != nil {
		return nil, err
	}

	var err error
	if c.IncidentIDs, err = parseJSONStrings(incidentIDs); err != nil {
		return nil, err
	}
	if c.EvidenceIDs, err = parseJSONStrings(evidenceIDs); err != nil {
		return nil, err
	}
	if c.StatusHistory, err = parseHistory(history); err != nil {
		return nil, err
	}
	if conclusion.Valid {
		c.Conclusion = conclusion.String
	}
	if recommendations.Valid {
		c.Recommendations = recommendations.String
	}
	if retentionUntil.Valid {
		c.RetentionUntil = retentionUntil.Time
	}
	c.ClosedAt = timePtr(closedAt)
	return &c, nil
}

func jsonHistory(history []types.StatusChange) (any, error) {
	if len(history) == 0 {
		return nil, nil
	}
	return marshalJSON(history)
}

func parseHistory(ns sql.NullString) ([]types.StatusChange, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var out []types.StatusChange
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil, fmt.Errorf("parse json column: %w", err)
	}
	return out, nil
}
