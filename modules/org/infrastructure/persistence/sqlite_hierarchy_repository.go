package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
)

// SQLiteHierarchyRepository keeps the hierarchy in a single SQLite file. It
// uses one connection, so transactions are serialized.
type SQLiteHierarchyRepository struct {
	db *sql.DB
}

type sqliteTxKey struct{}

type sqliteQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteHierarchyRepository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, gerrors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, gerrors.Wrap(err, "apply sqlite schema")
	}
	return &SQLiteHierarchyRepository{db: db}, nil
}

func (r *SQLiteHierarchyRepository) DB() *sql.DB { return r.db }

func (r *SQLiteHierarchyRepository) Close() error { return r.db.Close() }

func (r *SQLiteHierarchyRepository) conn(ctx context.Context) sqliteQueryer {
	if tx, ok := ctx.Value(sqliteTxKey{}).(*sql.Tx); ok && tx != nil {
		return tx
	}
	return r.db
}

// InTx joins the transaction in ctx or starts a new one. tenantID is carried
// by every query, SQLite has no row level security.
func (r *SQLiteHierarchyRepository) InTx(ctx context.Context, _ uuid.UUID, fn func(context.Context) error) error {
	if tx, ok := ctx.Value(sqliteTxKey{}).(*sql.Tx); ok && tx != nil {
		return fn(ctx)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return gerrors.Wrap(err, "begin sqlite tx")
	}
	if err := fn(context.WithValue(ctx, sqliteTxKey{}, tx)); err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}
	return tx.Commit()
}

const sqliteListSectorsQuery = `
SELECT
	s.id,
	s.name,
	s.parent_id,
	NULL,
	(SELECT count(*) FROM org_sectors c WHERE c.tenant_id = s.tenant_id AND c.parent_id = s.id),
	(SELECT count(*) FROM org_positions p WHERE p.tenant_id = s.tenant_id AND p.sector_id = s.id)
FROM org_sectors s
WHERE s.tenant_id = ?
ORDER BY s.created_at ASC, s.rowid ASC
`

const sqliteListPositionsQuery = `
SELECT
	p.id,
	p.name,
	p.parent_id,
	p.sector_id,
	(SELECT count(*) FROM org_positions c WHERE c.tenant_id = p.tenant_id AND c.parent_id = p.id),
	(SELECT count(*) FROM org_position_assignments a WHERE a.tenant_id = p.tenant_id AND a.position_id = p.id)
FROM org_positions p
WHERE p.tenant_id = ?
	AND (? IS NULL OR p.sector_id = ?)
ORDER BY p.created_at ASC, p.rowid ASC
`

func (r *SQLiteHierarchyRepository) ListNodes(ctx context.Context, tenantID uuid.UUID, kind hierarchy.Kind, scope services.Scope) ([]hierarchy.Node, error) {
	var (
		query string
		args  = []any{tenantID.String()}
	)
	switch kind {
	case hierarchy.KindSector:
		query = sqliteListSectorsQuery
	case hierarchy.KindPosition:
		query = sqliteListPositionsQuery
		sector := nullableText(scope.SectorID)
		args = append(args, sector, sector)
	default:
		return nil, fmt.Errorf("unsupported hierarchy kind %d", int(kind))
	}

	rows, err := r.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, gerrors.Wrap(err, "list "+kind.String()+" nodes")
	}
	defer rows.Close()

	out := make([]hierarchy.Node, 0, 64)
	for rows.Next() {
		var (
			n             = hierarchy.Node{Kind: kind}
			parent, group uuid.NullUUID
		)
		if err := rows.Scan(&n.ID, &n.DisplayName, &parent, &group, &n.ChildCount, &n.MemberCount); err != nil {
			return nil, gerrors.Wrap(err, "scan "+kind.String()+" node")
		}
		if parent.Valid {
			p := parent.UUID
			n.ParentID = &p
		}
		if group.Valid {
			n.GroupKey = group.UUID
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, "iterate "+kind.String()+" nodes")
	}
	return out, nil
}

func (r *SQLiteHierarchyRepository) UpdateParents(ctx context.Context, tenantID uuid.UUID, kind hierarchy.Kind, updates []hierarchy.ParentUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	q := r.conn(ctx)

	updated := 0
	for _, u := range updates {
		res, err := q.ExecContext(ctx, `
UPDATE `+table+`
SET parent_id = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
WHERE tenant_id = ? AND id = ?
`, nullableText(u.NewParentID), tenantID.String(), u.ID.String())
		if err != nil {
			return updated, translateSQLiteError(err, u.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return updated, gerrors.Wrap(err, "rows affected")
		}
		updated += int(n)
	}

	// SQLite has no cycle trigger; check the written rows instead.
	for _, u := range updates {
		if u.NewParentID == nil {
			continue
		}
		var cyclic bool
		err := q.QueryRowContext(ctx, `
WITH RECURSIVE up(id, steps) AS (
	SELECT parent_id, 1 FROM `+table+` WHERE tenant_id = ? AND id = ?
	UNION ALL
	SELECT t.parent_id, up.steps + 1
	FROM `+table+` t JOIN up ON t.tenant_id = ? AND t.id = up.id
	WHERE up.steps < 100000
)
SELECT EXISTS (SELECT 1 FROM up WHERE id = ?)
`, tenantID.String(), u.ID.String(), tenantID.String(), u.ID.String()).Scan(&cyclic)
		if err != nil {
			return updated, gerrors.Wrap(err, "check "+kind.String()+" cycle")
		}
		if cyclic {
			return updated, &hierarchy.RejectionError{NodeID: u.ID, Result: hierarchy.RejectedCycle}
		}
	}
	return updated, nil
}

// UpsertNode inserts or renames a node. It is used by seeding and tests; the
// editor itself never creates nodes.
func (r *SQLiteHierarchyRepository) UpsertNode(ctx context.Context, tenantID uuid.UUID, n hierarchy.Node) error {
	var err error
	switch n.Kind {
	case hierarchy.KindSector:
		_, err = r.conn(ctx).ExecContext(ctx, `
INSERT INTO org_sectors (tenant_id, id, name, parent_id) VALUES (?, ?, ?, ?)
ON CONFLICT (tenant_id, id) DO UPDATE SET name = excluded.name, parent_id = excluded.parent_id
`, tenantID.String(), n.ID.String(), n.DisplayName, nullableText(n.ParentID))
	case hierarchy.KindPosition:
		_, err = r.conn(ctx).ExecContext(ctx, `
INSERT INTO org_positions (tenant_id, id, sector_id, name, parent_id) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (tenant_id, id) DO UPDATE SET name = excluded.name, parent_id = excluded.parent_id
`, tenantID.String(), n.ID.String(), n.GroupKey.String(), n.DisplayName, nullableText(n.ParentID))
	default:
		return fmt.Errorf("unsupported hierarchy kind %d", int(n.Kind))
	}
	if err != nil {
		return translateSQLiteError(err, n.ID)
	}
	return nil
}

func (r *SQLiteHierarchyRepository) AssignMember(ctx context.Context, tenantID, positionID, personID uuid.UUID) error {
	_, err := r.conn(ctx).ExecContext(ctx, `
INSERT INTO org_position_assignments (tenant_id, position_id, person_id) VALUES (?, ?, ?)
ON CONFLICT DO NOTHING
`, tenantID.String(), positionID.String(), personID.String())
	if err != nil {
		return translateSQLiteError(err, positionID)
	}
	return nil
}

func nullableText(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// translateSQLiteError turns constraint failures into the same rejections
// the validator produces.
func translateSQLiteError(err error, nodeID uuid.UUID) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return gerrors.Wrap(err, "sqlite")
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return &hierarchy.RejectionError{NodeID: nodeID, Result: hierarchy.RejectedUnknownNode}
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		return &hierarchy.RejectionError{NodeID: nodeID, Result: hierarchy.RejectedSelfParent}
	default:
		return gerrors.Wrap(err, "sqlite")
	}
}
