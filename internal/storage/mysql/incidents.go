package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

const incidentColumns = `id, incident_type, status, priority, title, trigger_activity_id,
	       requires_validation, dismissible, system_tags,
	       confirmed_by, confirmed_at, dismissed_by, dismissed_at, dismiss_reason,
	       case_ids, created_at, updated_at`

// CreateIncident stores a new incident.
func (s *Store) CreateIncident(ctx context.Context, inc *types.Incident) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return createIncident(ctx, s.db, inc)
}

func createIncident(ctx context.Context, q dbtx, inc *types.Incident) error {
	if inc.ID == "" {
		return fmt.Errorf("incident id is required")
	}
	if err := inc.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	systemTags, err := jsonStrings(inc.SystemTags)
	if err != nil {
		return err
	}
	caseIDs, err := jsonStrings(inc.CaseIDs)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO incidents (
			id, incident_type, status, priority, title, trigger_activity_id,
			requires_validation, dismissible, system_tags,
			confirmed_by, confirmed_at, dismissed_by, dismissed_at, dismiss_reason,
			case_ids, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inc.ID, inc.Type, inc.Status, inc.Priority, inc.Title, inc.TriggerActivityID,
		inc.RequiresValidation, inc.Dismissible, systemTags,
		inc.ConfirmedBy, nullTimePtr(inc.ConfirmedAt), inc.DismissedBy, nullTimePtr(inc.DismissedAt), inc.DismissReason,
		caseIDs, inc.CreatedAt.UTC(), inc.UpdatedAt.UTC(),
	)
	if isDuplicateKey(err) {
		return fmt.Errorf("incident %s: %w", inc.ID, storage.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}
	return nil
}

// GetIncident returns the stored incident.
func (s *Store) GetIncident(ctx context.Context, id string) (*types.Incident, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	return getIncident(ctx, s.db, id)
}

func getIncident(ctx context.Context, q dbtx, id string) (*types.Incident, error) {
	row := q.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("incident %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return inc, nil
}

// UpdateIncident replaces the stored incident wholesale.
func (s *Store) UpdateIncident(ctx context.Context, inc *types.Incident) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return updateIncident(ctx, s.db, inc)
}

func updateIncident(ctx context.Context, q dbtx, inc *types.Incident) error {
	if err := inc.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	systemTags, err := jsonStrings(inc.SystemTags)
	if err != nil {
		return err
	}
	caseIDs, err := jsonStrings(inc.CaseIDs)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE incidents SET
			incident_type = ?, status = ?, priority = ?, title = ?, trigger_activity_id = ?,
			requires_validation = ?, dismissible = ?, system_tags = ?,
			confirmed_by = ?, confirmed_at = ?, dismissed_by = ?, dismissed_at = ?, dismiss_reason = ?,
			case_ids = ?, created_at = ?, updated_at = ?
		WHERE id = ?
	`,
		inc.Type, inc.Status, inc.Priority, inc.Title, inc.TriggerActivityID,
		inc.RequiresValidation, inc.Dismissible, systemTags,
		inc.ConfirmedBy, nullTimePtr(inc.ConfirmedAt), inc.DismissedBy, nullTimePtr(inc.DismissedAt), inc.DismissReason,
		caseIDs, inc.CreatedAt.UTC(), inc.UpdatedAt.UTC(),
		inc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}
	if n == 0 {
		if _, err := getIncident(ctx, q, inc.ID); err != nil {
			return err
		}
	}
	return nil
}

// ListIncidents returns matching incidents, sorted and paginated.
func (s *Store) ListIncidents(ctx context.Context, filter types.IncidentFilter, opts types.ListOptions) ([]*types.Incident, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	where, args := buildIncidentWhere(filter)
	rows, err := s.db.QueryContext(ctx, `SELECT `+incidentColumns+` FROM incidents`+where+orderBy(opts, true), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		if filter.Matches(inc) {
			out = append(out, inc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	start, end := pageBounds(len(out), opts)
	return out[start:end], nil
}

func buildIncidentWhere(f types.IncidentFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Type != nil {
		conds = append(conds, "incident_type = ?")
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
	if f.TriggerActivityID != nil {
		conds = append(conds, "trigger_activity_id = ?")
		args = append(args, *f.TriggerActivityID)
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

func scanIncident(s scanner) (*types.Incident, error) {
	var inc types.Incident
	var requiresValidation, dismissible sql.NullInt64
	var systemTags, caseIDs, dismissReason sql.NullString
	var confirmedAt, dismissedAt sql.NullTime

	if err := s.Scan(
		&inc.ID, &inc.Type, &inc.Status, &inc.Priority, &inc.Title, &inc.TriggerActivityID,
		&requiresValidation, &dismissible, &systemTags,
		&inc.ConfirmedBy, &confirmedAt, &inc.DismissedBy, &dismissedAt, &dismissReason,
		&caseIDs, &inc.CreatedAt, &inc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	inc.RequiresValidation = requiresValidation.Valid && requiresValidation.Int64 != 0
	inc.Dismissible = dismissible.Valid && dismissible.Int64 != 0
	var err error
	if inc.SystemTags, err = parseJSONStrings(systemTags); err != nil {
		return nil, err
	}
	if inc.CaseIDs, err = parseJSONStrings(caseIDs); err != nil {
		return nil, err
	}
	inc.ConfirmedAt = timePtr(confirmedAt)
	inc.DismissedAt = timePtr(dismissedAt)
	if dismissReason.Valid {
		inc.DismissReason = dismissReason.String
	}
	return &inc, nil
}
