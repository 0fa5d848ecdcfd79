package functions

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blasbase/blasbase/internal/platform/db"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the role tree.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockFunction(ctx context.Context, id int64) (Function, error)
	InsertFunction(ctx context.Context, f Function) (int64, error)
	UpdateFunction(ctx context.Context, f Function) error
	MoveFunction(ctx context.Context, id int64, parentID *int64) error
	DeleteFunction(ctx context.Context, id int64) error
	CountChildren(ctx context.Context, id int64) (int, error)
	CountAssignments(ctx context.Context, id int64) (int, error)
	ReplacePermissions(ctx context.Context, id int64, permissionIDs []int64) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// ListFunctions loads every function with its directly granted permissions.
func (r *Repository) ListFunctions(ctx context.Context) ([]Function, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, parent_id, name, description, membership, engagement, path
		FROM functions
		ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	fns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Function, error) { return scanFunction(row) })
	if err != nil {
		return nil, fmt.Errorf("scan functions: %w", err)
	}

	grants, err := r.grants(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range fns {
		fns[i].Permissions = grants[fns[i].ID]
	}
	return fns, nil
}

// GetFunction fetches a function by ID.
func (r *Repository) GetFunction(ctx context.Context, id int64) (Function, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, parent_id, name, description, membership, engagement, path
		FROM functions WHERE id = $1`, id)
	f, err := scanFunction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Function{}, shared.ErrNotFound
		}
		return Function{}, fmt.Errorf("get function: %w", err)
	}
	grants, err := r.grants(ctx, []int64{id})
	if err != nil {
		return Function{}, err
	}
	f.Permissions = grants[id]
	return f, nil
}

// SubtreeIDs returns id and every descendant using the materialized path.
func (r *Repository) SubtreeIDs(ctx context.Context, id int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.id
		FROM functions f
		JOIN functions d ON d.path LIKE f.path || '%'
		WHERE f.id = $1
		ORDER BY d.path`, id)
	if err != nil {
		return nil, fmt.Errorf("subtree ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan subtree ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, shared.ErrNotFound
	}
	return ids, nil
}

func (r *Repository) grants(ctx context.Context, ids []int64) (map[int64][]rbac.Permission, error) {
	query := `
		SELECT fp.function_id, p.id, p.app_label, p.codename, p.name
		FROM function_permissions fp
		JOIN permissions p ON p.id = fp.permission_id`
	args := []any{}
	if ids != nil {
		query += ` WHERE fp.function_id = ANY($1)`
		args = append(args, ids)
	}
	query += ` ORDER BY p.app_label, p.codename`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("function permissions: %w", err)
	}
	defer rows.Close()
	out := make(map[int64][]rbac.Permission)
	for rows.Next() {
		var fid int64
		var p rbac.Permission
		if err := rows.Scan(&fid, &p.ID, &p.AppLabel, &p.Codename, &p.Name); err != nil {
			return nil, fmt.Errorf("scan function permission: %w", err)
		}
		out[fid] = append(out[fid], p)
	}
	return out, rows.Err()
}

func scanFunction(row pgx.Row) (Function, error) {
	var f Function
	err := row.Scan(&f.ID, &f.ParentID, &f.Name, &f.Description, &f.Membership, &f.Engagement, &f.Path)
	return f, err
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

func (t *txRepo) LockFunction(ctx context.Context, id int64) (Function, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, parent_id, name, description, membership, engagement, path
		FROM functions WHERE id = $1 FOR UPDATE`, id)
	f, err := scanFunction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Function{}, shared.ErrNotFound
		}
		return Function{}, fmt.Errorf("lock function: %w", err)
	}
	return f, nil
}

func (t *txRepo) InsertFunction(ctx context.Context, f Function) (int64, error) {
	parentPath := "/"
	if f.ParentID != nil {
		if err := t.tx.QueryRow(ctx, `SELECT path FROM functions WHERE id = $1`, *f.ParentID).Scan(&parentPath); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, fmt.Errorf("parent %d: %w", *f.ParentID, shared.ErrNotFound)
			}
			return 0, fmt.Errorf("parent path: %w", err)
		}
	}
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO functions (parent_id, name, description, membership, engagement)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, f.ParentID, f.Name, f.Description, f.Membership, f.Engagement).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("function %q: %w", f.Name, shared.ErrDuplicate)
		}
		return 0, fmt.Errorf("insert function: %w", err)
	}
	path := parentPath + strconv.FormatInt(id, 10) + "/"
	if _, err := t.tx.Exec(ctx, `UPDATE functions SET path = $2 WHERE id = $1`, id, path); err != nil {
		return 0, fmt.Errorf("set function path: %w", err)
	}
	return id, nil
}

func (t *txRepo) UpdateFunction(ctx context.Context, f Function) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE functions SET name = $2, description = $3, membership = $4, engagement = $5
		WHERE id = $1`, f.ID, f.Name, f.Description, f.Membership, f.Engagement)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("function %q: %w", f.Name, shared.ErrDuplicate)
		}
		return fmt.Errorf("update function: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) MoveFunction(ctx context.Context, id int64, parentID *int64) error {
	var oldPath string
	if err := t.tx.QueryRow(ctx, `SELECT path FROM functions WHERE id = $1`, id).Scan(&oldPath); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("function path: %w", err)
	}
	newParentPath := "/"
	if parentID != nil {
		if err := t.tx.QueryRow(ctx, `SELECT path FROM functions WHERE id = $1`, *parentID).Scan(&newParentPath); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("parent %d: %w", *parentID, shared.ErrNotFound)
			}
			return fmt.Errorf("parent path: %w", err)
		}
	}
	newPath := newParentPath + strconv.FormatInt(id, 10) + "/"

	if _, err := t.tx.Exec(ctx, `UPDATE functions SET parent_id = $2 WHERE id = $1`, id, parentID); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("move function: %w", shared.ErrDuplicate)
		}
		return fmt.Errorf("move function: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `
		UPDATE functions
		SET path = $2 || substr(path, length($1) + 1)
		WHERE path LIKE $1 || '%'`, oldPath, newPath); err != nil {
		return fmt.Errorf("rewrite subtree paths: %w", err)
	}
	return nil
}

func (t *txRepo) DeleteFunction(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM functions WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("delete function: %w", shared.ErrConflict)
		}
		return fmt.Errorf("delete function: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) CountChildren(ctx context.Context, id int64) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM functions WHERE parent_id = $1`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("count children: %w", err)
	}
	return n, nil
}

func (t *txRepo) CountAssignments(ctx context.Context, id int64) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM assignments WHERE function_id = $1`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("count assignments: %w", err)
	}
	return n, nil
}

func (t *txRepo) ReplacePermissions(ctx context.Context, id int64, permissionIDs []int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM function_permissions WHERE function_id = $1`, id); err != nil {
		return fmt.Errorf("clear function permissions: %w", err)
	}
	if len(permissionIDs) == 0 {
		return nil
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO function_permissions (function_id, permission_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`, id, permissionIDs); err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("grant permissions: %w", shared.ErrValidation)
		}
		return fmt.Errorf("grant permissions: %w", err)
	}
	return nil
}
