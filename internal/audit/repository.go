package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
)

// Repository reads audit_logs.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, filters TimelineFilters, limit int) ([]TimelineRow, error)
}

// PGRepository is the pgx-backed Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineSelect = `SELECT a.occurred_at, COALESCE(a.actor_id::text, ''), COALESCE(u.user_name, ''),
       a.action, a.entity, a.entity_id, a.meta
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id`

// TimelineWindow returns up to limit rows newest first, skipping offset.
func (r *PGRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	f := timelineFilter(filters)
	query := timelineSelect + f.Where() + ` ORDER BY a.occurred_at DESC, a.id DESC LIMIT ` + f.Bind(limit) + ` OFFSET ` + f.Bind(offset)
	return r.query(ctx, query, f.Args())
}

// TimelineAll returns every matching row up to limit, newest first.
func (r *PGRepository) TimelineAll(ctx context.Context, filters TimelineFilters, limit int) ([]TimelineRow, error) {
	f := timelineFilter(filters)
	query := timelineSelect + f.Where() + ` ORDER BY a.occurred_at DESC, a.id DESC LIMIT ` + f.Bind(limit)
	return r.query(ctx, query, f.Args())
}

func (r *PGRepository) query(ctx context.Context, query string, args []any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var t TimelineRow
		err := row.Scan(&t.At, &t.ActorID, &t.ActorName, &t.Action, &t.Entity, &t.EntityID, &t.Meta)
		return t, err
	})
}

func timelineFilter(filters TimelineFilters) *db.Filter {
	f := &db.Filter{}
	if !filters.From.IsZero() {
		f.Add("a.occurred_at >= ?", filters.From)
	}
	if !filters.To.IsZero() {
		f.Add("a.occurred_at < ?", filters.To.Add(24*time.Hour))
	}
	if filters.Actor != "" {
		f.Add("u.user_name = ?", filters.Actor)
	}
	if filters.Entity != "" {
		f.Add("a.entity = ?", filters.Entity)
	}
	if filters.Action != "" {
		f.Add("a.action = ?", filters.Action)
	}
	return f
}
