// Package mysql implements the storage interface on MySQL via database/sql
// and go-sql-driver/mysql. The schema is bootstrapped on open; list-valued
// fields live in JSON columns.
//
// Filters are pushed into WHERE clauses where they translate directly; the
// in-Go Matches pass stays authoritative for the rest (tag membership, title
// substring), so pagination is applied after that pass.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

// Store implements the storage interface on a MySQL database.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// Open connects to MySQL with the given DSN, verifies the connection, and
// bootstraps the schema. The DSN is normalized to parse DATETIME columns
// into time.Time in UTC.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// initSchema creates all tables if they don't exist.
func initSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close releases the connection pool. Further operations return ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// RunInTransaction executes fn within a single database transaction. A
// callback error rolls everything back; nil commits.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }() // No-op after successful commit

	if err := fn(&txRunner{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// NextCaseNumber issues the next sequence number for the year using the
// LAST_INSERT_ID upsert idiom, which is race-free across connections.
func (s *Store) NextCaseNumber(ctx context.Context, year int) (int, error) {
	if s.closed.Load() {
		return 0, storage.ErrClosed
	}
	return nextCaseNumber(ctx, s.db, year)
}

func nextCaseNumber(ctx context.Context, q dbtx, year int) (int, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO case_sequences (seq_year, seq) VALUES (?, LAST_INSERT_ID(1))
		ON DUPLICATE KEY UPDATE seq = LAST_INSERT_ID(seq + 1)
	`, year)
	if err != nil {
		return 0, fmt.Errorf("failed to advance case sequence: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read case sequence: %w", err)
	}
	return int(seq), nil
}

// dbtx is the common interface between *sql.DB and *sql.Tx, letting every
// query helper serve both the direct and the transactional path.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is the common interface between *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// txRunner adapts a *sql.Tx to the storage.Tx interface.
type txRunner struct {
	q *sql.Tx
}

func (t *txRunner) GetActivity(ctx context.Context, id string) (*types.Activity, error) {
	return getActivity(ctx, t.q, id)
}

func (t *txRunner) UpdateActivity(ctx context.Context, act *types.Activity) error {
	return updateActivity(ctx, t.q, act)
}

func (t *txRunner) CreateIncident(ctx context.Context, inc *types.Incident) error {
	return createIncident(ctx, t.q, inc)
}

func (t *txRunner) GetIncident(ctx context.Context, id string) (*types.Incident, error) {
	return getIncident(ctx, t.q, id)
}

func (t *txRunner) UpdateIncident(ctx context.Context, inc *types.Incident) error {
	return updateIncident(ctx, t.q, inc)
}

func (t *txRunner) CreateCase(ctx context.Context, c *types.Case) error {
	return createCase(ctx, t.q, c)
}

func (t *txRunner) GetCase(ctx context.Context, id string) (*types.Case, error) {
	return getCase(ctx, t.q, id)
}

func (t *txRunner) UpdateCase(ctx context.Context, c *types.Case) error {
	return updateCase(ctx, t.q, c)
}

func (t *txRunner) NextCaseNumber(ctx context.Context, year int) (int, error) {
	return nextCaseNumber(ctx, t.q, year)
}

func (t *txRunner) CreateEvidence(ctx context.Context, item *types.EvidenceItem) error {
	return createEvidence(ctx, t.q, item)
}

func (t *txRunner) GetEvidence(ctx context.Context, id string) (*types.EvidenceItem, error) {
	return getEvidence(ctx, t.q, id)
}

func (t *txRunner) UpdateEvidence(ctx context.Context, item *types.EvidenceItem) error {
	return updateEvidence(ctx, t.q, item)
}

// isDuplicateKey reports whether the error is a MySQL duplicate-key violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// orderBy builds the ORDER BY clause for a list query. priority sorts by
// rank, not alphabetically; id is always the tiebreak so ordering is
// deterministic. hasPriority is false for tables without a priority column.
func orderBy(opts types.ListOptions, hasPriority bool) string {
	col := "created_at"
	switch opts.SortBy {
	case types.SortByUpdatedAt:
		col = "updated_at"
	case types.SortByStatus:
		col = "status"
	case types.SortByPriority:
		if hasPriority {
			col = "FIELD(priority, 'low', 'medium', 'high', 'critical')"
		}
	}
	dir := "ASC"
	if opts.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir)
}

func pageBounds(n int, opts types.ListOptions) (int, int) {
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return start, end
}

// jsonStrings marshals a string list for a JSON column; empty stores NULL.
func jsonStrings(list []string) (any, error) {
	if len(list) == 0 {
		return nil, nil
	}
	return marshalJSON(list)
}

func marshalJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return string(b), nil
}

// parseJSONStrings unmarshals a JSON string-array column; NULL means empty.
func parseJSONStrings(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil, fmt.Errorf("parse json column: %w", err)
	}
	return out, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
