package persistence

import (
	"context"
	"fmt"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
	"github.com/iota-uz/org-hierarchy/pkg/composables"
)

type PgHierarchyRepository struct{}

func NewPgHierarchyRepository() *PgHierarchyRepository {
	return &PgHierarchyRepository{}
}

// MigratePostgres applies the embedded Postgres schema. Every statement is
// idempotent.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return gerrors.Wrap(err, "apply org hierarchy schema")
	}
	return nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgNullableUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgUUID(*id)
}

func fromPgUUID(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}

func (r *PgHierarchyRepository) InTx(ctx context.Context, tenantID uuid.UUID, fn func(context.Context) error) error {
	return composables.InTenantTx(composables.WithTenantID(ctx, tenantID), fn)
}

const pgListSectorsQuery = `
SELECT
	s.id,
	s.name,
	s.parent_id,
	(SELECT count(*) FROM org_sectors c WHERE c.tenant_id = s.tenant_id AND c.parent_id = s.id),
	(SELECT count(*) FROM org_positions p WHERE p.tenant_id = s.tenant_id AND p.sector_id = s.id)
FROM org_sectors s
WHERE s.tenant_id = $1
ORDER BY s.created_at ASC, s.id ASC
`

const pgListPositionsQuery = `
SELECT
	p.id,
	p.name,
	p.parent_id,
	p.sector_id,
	(SELECT count(*) FROM org_positions c WHERE c.tenant_id = p.tenant_id AND c.parent_id = p.id),
	(SELECT count(*) FROM org_position_assignments a WHERE a.tenant_id = p.tenant_id AND a.position_id = p.id)
FROM org_positions p
WHERE p.tenant_id = $1
	AND ($2::uuid IS NULL OR p.sector_id = $2::uuid)
ORDER BY p.created_at ASC, p.id ASC
`

func (r *PgHierarchyRepository) ListNodes(ctx context.Context, tenantID uuid.UUID, kind hierarchy.Kind, scope services.Scope) ([]hierarchy.Node, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var (
		query string
		args  = []any{pgUUID(tenantID)}
	)
	switch kind {
	case hierarchy.KindSector:
		query = pgListSectorsQuery
	case hierarchy.KindPosition:
		query = pgListPositionsQuery
		args = append(args, pgNullableUUID(scope.SectorID))
	default:
		return nil, fmt.Errorf("unsupported hierarchy kind %d", int(kind))
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, gerrors.Wrap(err, "list "+kind.String()+" nodes")
	}
	defer rows.Close()

	out := make([]hierarchy.Node, 0, 64)
	for rows.Next() {
		var (
			id, parent, group pgtype.UUID
			childCount        int64
			memberCount       int64
			n                 = hierarchy.Node{Kind: kind}
		)
		dest := []any{&id, &n.DisplayName, &parent}
		if kind == hierarchy.KindPosition {
			dest = append(dest, &group)
		}
		dest = append(dest, &childCount, &memberCount)
		if err := rows.Scan(dest...); err != nil {
			return nil, gerrors.Wrap(err, "scan "+kind.String()+" node")
		}
		n.ID = uuid.UUID(id.Bytes)
		n.ParentID = fromPgUUID(parent)
		if group.Valid {
			n.GroupKey = uuid.UUID(group.Bytes)
		}
		n.ChildCount = int(childCount)
		n.MemberCount = int(memberCount)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, "iterate "+kind.String()+" nodes")
	}
	return out, nil
}

// UpdateParents writes the whole batch with one statement and reports how
// many rows matched.
func (r *PgHierarchyRepository) UpdateParents(ctx context.Context, tenantID uuid.UUID, kind hierarchy.Kind, updates []hierarchy.ParentUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	ids := make([]pgtype.UUID, 0, len(updates))
	parents := make([]pgtype.UUID, 0, len(updates))
	for _, u := range updates {
		ids = append(ids, pgUUID(u.ID))
		parents = append(parents, pgNullableUUID(u.NewParentID))
	}

	tag, err := tx.Exec(ctx, `
UPDATE `+table+` t
SET parent_id = u.parent_id, updated_at = now()
FROM unnest($2::uuid[], $3::uuid[]) AS u(id, parent_id)
WHERE t.tenant_id = $1 AND t.id = u.id
`, pgUUID(tenantID), ids, parents)
	if err != nil {
		return 0, gerrors.Wrap(err, "update "+kind.String()+" parents")
	}
	return int(tag.RowsAffected()), nil
}

// UpsertNode inserts or renames a node inside the caller's transaction.
func (r *PgHierarchyRepository) UpsertNode(ctx context.Context, tenantID uuid.UUID, n hierarchy.Node) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	switch n.Kind {
	case hierarchy.KindSector:
		_, err = tx.Exec(ctx, `
INSERT INTO org_sectors (tenant_id, id, name, parent_id) VALUES ($1, $2, $3, $4)
ON CONFLICT (tenant_id, id) DO UPDATE SET name = excluded.name, parent_id = excluded.parent_id, updated_at = now()
`, pgUUID(tenantID), pgUUID(n.ID), n.DisplayName, pgNullableUUID(n.ParentID))
	case hierarchy.KindPosition:
		_, err = tx.Exec(ctx, `
INSERT INTO org_positions (tenant_id, id, sector_id, name, parent_id) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (tenant_id, id) DO UPDATE SET name = excluded.name, parent_id = excluded.parent_id, updated_at = now()
`, pgUUID(tenantID), pgUUID(n.ID), pgUUID(n.GroupKey), n.DisplayName, pgNullableUUID(n.ParentID))
	default:
		return fmt.Errorf("unsupported hierarchy kind %d", int(n.Kind))
	}
	if err != nil {
		return gerrors.Wrap(err, "upsert "+n.Kind.String()+" node")
	}
	return nil
}

func tableFor(kind hierarchy.Kind) (string, error) {
	switch kind {
	case hierarchy.KindSector:
		return "org_sectors", nil
	case hierarchy.KindPosition:
		return "org_positions", nil
	default:
		return "", fmt.Errorf("unsupported hierarchy kind %d", int(kind))
	}
}
