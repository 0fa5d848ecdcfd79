package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blasbase/blasbase/internal/platform/db"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, password_hash, is_active, is_staff, is_superuser, extra_name, last_login, created_at, updated_at`

// ListUsers returns all users ordered by email.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

// GetUser fetches a user and its direct permissions.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	return r.getBy(ctx, `id = $1`, id)
}

// GetUserByEmail fetches a user by its normalized email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return r.getBy(ctx, `email = $1`, email)
}

func (r *Repository) getBy(ctx context.Context, where string, arg any) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if u.Permissions, err = r.permissions(ctx, u.ID); err != nil {
		return User{}, err
	}
	return u, nil
}

// CreateUser inserts a user and returns its id.
func (r *Repository) CreateUser(ctx context.Context, u User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, is_active, is_staff, is_superuser, extra_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`, u.Email, u.PasswordHash, u.IsActive, u.IsStaff, u.IsSuperuser, u.ExtraName).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("email %q: %w", u.Email, shared.ErrDuplicate)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// UpdateUser overwrites the mutable columns of u.
func (r *Repository) UpdateUser(ctx context.Context, u User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET email = $2, is_active = $3, is_staff = $4, is_superuser = $5, extra_name = $6, updated_at = NOW()
		WHERE id = $1`, u.ID, u.Email, u.IsActive, u.IsStaff, u.IsSuperuser, u.ExtraName)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("email %q: %w", u.Email, shared.ErrDuplicate)
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetPasswordHash stores a new password hash.
func (r *Repository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteUser removes a user. A linked person is detached by the foreign key.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ReplacePermissions swaps the direct grants of a user.
func (r *Repository) ReplacePermissions(ctx context.Context, id int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("clear user permissions: %w", err)
		}
		if len(permissionIDs) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO user_permissions (user_id, permission_id)
			SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, id, permissionIDs)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return shared.NewValidationError("permission_ids", "unknown permission")
			}
			return fmt.Errorf("grant user permissions: %w", err)
		}
		return nil
	})
}

// RecordLogin stamps last_login.
func (r *Repository) RecordLogin(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, id)
	return err
}

func (r *Repository) permissions(ctx context.Context, userID int64) ([]rbac.Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.app_label, p.codename, p.name
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		WHERE up.user_id = $1
		ORDER BY p.app_label, p.codename`, userID)
	if err != nil {
		return nil, fmt.Errorf("user permissions: %w", err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowToStructByPos[rbac.Permission])
	if err != nil {
		return nil, fmt.Errorf("scan user permissions: %w", err)
	}
	return perms, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsStaff, &u.IsSuperuser, &u.ExtraName, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
