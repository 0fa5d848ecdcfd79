package assignments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blasbase/blasbase/internal/platform/db"
	"github.com/blasbase/blasbase/internal/shared"
)

// Repository provides PostgreSQL backed persistence for assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectAssignment = `SELECT id, person_id, function_id, start_date, end_date, trial FROM assignments`

// ListAssignments returns assignments matching filter ordered by id.
func (r *Repository) ListAssignments(ctx context.Context, filter ListFilter) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, selectAssignment+`
		WHERE ($1::bigint = 0 OR person_id = $1)
		  AND ($2::bigint = 0 OR function_id = $2)
		ORDER BY id`, filter.PersonID, filter.FunctionID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Assignment, error) { return scanAssignment(row) })
	if err != nil {
		return nil, fmt.Errorf("scan assignments: %w", err)
	}
	return items, nil
}

// GetAssignment fetches an assignment by ID.
func (r *Repository) GetAssignment(ctx context.Context, id int64) (Assignment, error) {
	a, err := scanAssignment(r.pool.QueryRow(ctx, selectAssignment+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, shared.ErrNotFound
		}
		return Assignment{}, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

// CreateAssignment inserts a new assignment.
func (r *Repository) CreateAssignment(ctx context.Context, a Assignment) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO assignments (person_id, function_id, start_date, end_date, trial)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, a.PersonID, a.FunctionID, db.DateParam(a.Start), db.DateParam(a.End), a.Trial).Scan(&id)
	if err != nil {
		return 0, mapWriteError("create assignment", err)
	}
	return id, nil
}

// UpdateAssignment replaces function, dates and trial flag.
func (r *Repository) UpdateAssignment(ctx context.Context, a Assignment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE assignments SET function_id = $2, start_date = $3, end_date = $4, trial = $5
		WHERE id = $1`, a.ID, a.FunctionID, db.DateParam(a.Start), db.DateParam(a.End), a.Trial)
	if err != nil {
		return mapWriteError("update assignment", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteAssignment removes an assignment.
func (r *Repository) DeleteAssignment(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var (
		a          Assignment
		start, end pgtype.Date
	)
	if err := row.Scan(&a.ID, &a.PersonID, &a.FunctionID, &start, &end, &a.Trial); err != nil {
		return Assignment{}, err
	}
	a.Start = db.DateValue(start)
	a.End = db.DateValue(end)
	return a, nil
}

func mapWriteError(op string, err error) error {
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%s: %w", op, shared.NewValidationError("person_id", "person or function does not exist"))
	}
	return fmt.Errorf("%s: %w", op, err)
}
