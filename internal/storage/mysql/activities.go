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

// activityColumns is the canonical column list for full activity hydration.
// Every query that reads a complete types.Activity should use this constant
// to avoid column-list drift between scan sites.
const activityColumns = `id, activity_type, title, description, priority, status, location,
	       site_id, reporter, reporter_class, confidence,
	       system_tags, user_tags, incident_ids,
	       retention_until, archived, archived_at, archive_summary,
	       created_at, updated_at`

// CreateActivity stores a new activity.
func (s *Store) CreateActivity(ctx context.Context, act *types.Activity) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return createActivity(ctx, s.db, act)
}

func createActivity(ctx context.Context, q dbtx, act *types.Activity) error {
	if act.ID == "" {
		return fmt.Errorf("activity id is required")
	}
	if err := act.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	systemTags, err := jsonStrings(act.SystemTags)
	if err != nil {
		return err
	}
	userTags, err := jsonStrings(act.UserTags)
	if err != nil {
		return err
	}
	incidentIDs, err := jsonStrings(act.IncidentIDs)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO activities (
			id, activity_type, title, description, priority, status, location,
			site_id, reporter, reporter_class, confidence,
			system_tags, user_tags, incident_ids,
			retention_until, archived, archived_at, archive_summary,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		act.ID, act.Type, act.Title, act.Description, act.Priority, act.Status, act.Location,
		act.SiteID, act.Reporter, act.ReporterClass, act.Confidence,
		systemTags, userTags, incidentIDs,
		nullTime(act.RetentionUntil), act.Archived, nullTimePtr(act.ArchivedAt), act.ArchiveSummary,
		act.CreatedAt.UTC(), act.UpdatedAt.UTC(),
	)
	if isDuplicateKey(err) {
		return fmt.Errorf("activity %s: %w", act.ID, storage.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// GetActivity returns the stored activity.
func (s *Store) GetActivity(ctx context.Context, id string) (*types.Activity, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	return getActivity(ctx, s.db, id)
}

func getActivity(ctx context.Context, q dbtx, id string) (*types.Activity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	act, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("activity %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return act, nil
}

// UpdateActivity replaces the stored activity wholesale.
func (s *Store) UpdateActivity(ctx context.Context, act *types.Activity) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return updateActivity(ctx, s.db, act)
}

func updateActivity(ctx context.Context, q dbtx, act *types.Activity) error {
	if err := act.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	systemTags, err := jsonStrings(act.SystemTags)
	if err != nil {
		return err
	}
	userTags, err := jsonStrings(act.UserTags)
	if err != nil {
		return err
	}
	incidentIDs, err := jsonStrings(act.IncidentIDs)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE activities SET
			activity_type = ?, title = ?, description = ?, priority = ?, status = ?, location = ?,
			site_id = ?, reporter = ?, reporter_class = ?, confidence = ?,
			system_tags = ?, user_tags = ?, incident_ids = ?,
			retention_until = ?, archived = ?, archived_at = ?, archive_summary = ?,
			created_at = ?, updated_at = ?
		WHERE id = ?
	`,
		act.Type, act.Title, act.Description, act.Priority, act.Status, act.Location,
		act.SiteID, act.Reporter, act.ReporterClass, act.Confidence,
		systemTags, userTags, incidentIDs,
		nullTime(act.RetentionUntil), act.Archived, nullTimePtr(act.ArchivedAt), act.ArchiveSummary,
		act.CreatedAt.UTC(), act.UpdatedAt.UTC(),
		act.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}
	if n == 0 {
		// RowsAffected is also 0 for no-op updates; distinguish via existence.
		if _, err := getActivity(ctx, q, act.ID); err != nil {
			return err
		}
	}
	return nil
}

// ListActivities returns matching activities, sorted and paginated.
func (s *Store) ListActivities(ctx context.Context, filter types.ActivityFilter, opts types.ListOptions) ([]*types.Activity, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	where, args := buildActivityWhere(filter)
	rows, err := s.db.QueryContext(ctx, `SELECT `+activityColumns+` FROM activities`+where+orderBy(opts, true), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Activity
	for rows.Next() {
		act, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if filter.Matches(act) {
			out = append(out, act)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	start, end := pageBounds(len(out), opts)
	return out[start:end], nil
}

// buildActivityWhere translates the SQL-expressible filter fields. Tag
// membership and title substring stay with the Matches pass.
func buildActivityWhere(f types.ActivityFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Type != nil {
		conds = append(conds, "activity_type = ?")
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
	if f.SiteID != nil {
		conds = append(conds, "site_id = ?")
		args = append(args, *f.SiteID)
	}
	if f.Reporter != nil {
		conds = append(conds, "reporter = ?")
		args = append(args, *f.Reporter)
	}
	if f.CreatedAfter != nil {
		conds = append(conds, "created_at > ?")
		args = append(args, f.CreatedAfter.UTC())
	}
	if f.CreatedBefore != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, f.CreatedBefore.UTC())
	}
	if f.ExpiredAsOf != nil {
		conds = append(conds, "archived = 0 AND retention_until IS NOT NULL AND retention_until < ?")
		args = append(args, f.ExpiredAsOf.UTC())
	}
	if f.Archived != nil {
		conds = append(conds, "archived = ?")
		args = append(args, *f.Archived)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// scanActivity scans a full activity from any source implementing scanner.
// The caller must ensure the query selected exactly activityColumns in order.
func scanActivity(s scanner) (*types.Activity, error) {
	var act types.Activity
	var description, archiveSummary sql.NullString
	var systemTags, userTags, incidentIDs sql.NullString
	var retentionUntil, archivedAt sql.NullTime
	var archived sql.NullInt64

	if err := s.Scan(
		&act.ID, &act.Type, &act.Title, &description, &act.Priority, &act.Status, &act.Location,
		&act.SiteID, &act.Reporter, &act.ReporterClass, &act.Confidence,
		&systemTags, &userTags, &incidentIDs,
		&retentionUntil, &archived, &archivedAt, &archiveSummary,
		&act.CreatedAt, &act.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if description.Valid {
		act.Description = description.String
	}
	if archiveSummary.Valid {
		act.ArchiveSummary = archiveSummary.String
	}
	var err error
	if act.SystemTags, err = parseJSONStrings(systemTags); err != nil {
		return nil, err
	}
	if act.UserTags, err = parseJSONStrings(userTags); err != nil {
		return nil, err
	}
	if act.IncidentIDs, err = parseJSONStrings(incidentIDs); err != nil {
		return nil, err
	}
	if retentionUntil.Valid {
		act.RetentionUntil = retentionUntil.Time
	}
	act.Archived = archived.Valid && archived.Int64 != 0
	act.ArchivedAt = timePtr(archivedAt)
	return &act, nil
}
