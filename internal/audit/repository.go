package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WindowParams selects a slice of audit_logs. Invalid fields match everything.
type WindowParams struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	Actor      pgtype.Text
	Entity     pgtype.Text
	EntityID   pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// PGRepository reads audit_logs from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineWindowSQL = `
SELECT l.id, l.occurred_at, l.actor_id, COALESCE(u.email, ''), l.action, l.entity, l.entity_id, l.meta
FROM audit_logs l
LEFT JOIN users u ON u.id = l.actor_id
WHERE ($1::timestamptz IS NULL OR l.occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR l.occurred_at < $2)
  AND ($3::text IS NULL OR u.email = $3)
  AND ($4::text IS NULL OR l.entity = $4)
  AND ($5::text IS NULL OR l.entity_id = $5)
  AND ($6::text IS NULL OR l.action = $6)
ORDER BY l.occurred_at DESC, l.id DESC
OFFSET $7 LIMIT $8`

// TimelineWindow returns audit rows newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineWindowSQL,
		arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.EntityID, arg.Action, arg.OffsetRows, arg.LimitRows)
	if err != nil {
		return nil, fmt.Errorf("audit timeline: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var tr TimelineRow
		err := row.Scan(&tr.ID, &tr.At, &tr.ActorID, &tr.Actor, &tr.Action, &tr.Entity, &tr.EntityID, &tr.Meta)
		return tr, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit timeline: %w", err)
	}
	return out, nil
}
