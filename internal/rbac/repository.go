package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blasbase/blasbase/internal/platform/db"
	"github.com/blasbase/blasbase/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the permission catalogue.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListPermissions returns every permission ordered by app label and codename.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, app_label, codename, name FROM permissions ORDER BY app_label, codename`)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return collectPermissions(rows)
}

// PermissionsByIDs returns the permissions with the given ids.
func (r *Repository) PermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, app_label, codename, name FROM permissions WHERE id = ANY($1) ORDER BY app_label, codename`, ids)
	if err != nil {
		return nil, fmt.Errorf("permissions by ids: %w", err)
	}
	return collectPermissions(rows)
}

// EnsurePermission inserts the permission if missing and returns the stored row.
func (r *Repository) EnsurePermission(ctx context.Context, appLabel, codename, name string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (app_label, codename, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (app_label, codename) DO UPDATE SET name = CASE WHEN EXCLUDED.name = '' THEN permissions.name ELSE EXCLUDED.name END
		RETURNING id, app_label, codename, name`, appLabel, codename, name).Scan(&p.ID, &p.AppLabel, &p.Codename, &p.Name)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Permission{}, shared.ErrDuplicate
		}
		return Permission{}, fmt.Errorf("ensure permission: %w", err)
	}
	return p, nil
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	perms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Permission, error) {
		var p Permission
		err := row.Scan(&p.ID, &p.AppLabel, &p.Codename, &p.Name)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan permissions: %w", err)
	}
	return perms, nil
}
