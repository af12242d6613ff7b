package roles

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Repository defines data access methods for roles.
type Repository interface {
	NameTaken(ctx context.Context, name string, exceptID int64) (bool, error)
	Create(ctx context.Context, in CreateInput) (int64, error)
	List(ctx context.Context, q shared.ListQuery) ([]Role, int, error)
	ListActive(ctx context.Context) ([]Option, error)
	Get(ctx context.Context, id int64) (Detail, error)
	FindLive(ctx context.Context, ids []int64) ([]Role, error)
	// Update applies in and returns the ids of users holding the role, read in
	// the same transaction.
	Update(ctx context.Context, id int64, in UpdateInput) ([]string, error)
	AssignedUserIDs(ctx context.Context, ids []int64) ([]string, error)
	SoftDelete(ctx context.Context, ids []int64) error
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// NameTaken reports whether a live role other than exceptID uses name.
func (r *PGRepository) NameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1 AND deleted = FALSE AND id <> $2)`, name, exceptID).Scan(&taken)
	return taken, err
}

// Create inserts a role and its grants.
func (r *PGRepository) Create(ctx context.Context, in CreateInput) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO roles (name, description, disabled) VALUES ($1, $2, $3) RETURNING id`,
			in.Name, in.Description, in.Disabled).Scan(&id)
		if err != nil {
			return shared.FromPg(err, "role")
		}
		return replacePermissions(ctx, tx, id, in.Permissions)
	})
	return id, err
}

// List returns one page of live roles.
func (r *PGRepository) List(ctx context.Context, q shared.ListQuery) ([]Role, int, error) {
	var f db.Filter
	f.AddRaw("deleted = FALSE")
	if q.Keyword != "" {
		f.Add("name ILIKE ?", "%"+q.Keyword+"%")
	}
	if q.Disabled != nil {
		f.Add("disabled = ?", *q.Disabled)
	}
	if q.BeginTime != nil {
		f.Add("created_at >= ?", *q.BeginTime)
	}
	if q.EndTime != nil {
		f.Add("created_at <= ?", *q.EndTime)
	}
	dir := "DESC"
	if !q.Desc {
		dir = "ASC"
	}
	query := `SELECT id, name, description, disabled, created_at, updated_at, COUNT(*) OVER() FROM roles` +
		f.Where() + ` ORDER BY created_at ` + dir + `, id ` + dir
	query += ` LIMIT ` + f.Bind(q.Limit()) + ` OFFSET ` + f.Bind(q.Offset())

	rows, err := r.pool.Query(ctx, query, f.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var (
		roles []Role
		total int
	)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Disabled, &role.CreatedAt, &role.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		roles = append(roles, role)
	}
	return roles, total, rows.Err()
}

// ListActive returns enabled, live roles ordered by id.
func (r *PGRepository) ListActive(ctx context.Context) ([]Option, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM roles WHERE deleted = FALSE AND disabled = FALSE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Option])
}

// Get returns a live role and its permission ids.
func (r *PGRepository) Get(ctx context.Context, id int64) (Detail, error) {
	var d Detail
	err := r.pool.QueryRow(ctx, `SELECT r.id, r.name, r.description, r.disabled,
       COALESCE(ARRAY_AGG(rp.permission_id ORDER BY rp.permission_id) FILTER (WHERE rp.permission_id IS NOT NULL), '{}')
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
WHERE r.id = $1 AND r.deleted = FALSE
GROUP BY r.id`, id).Scan(&d.ID, &d.Name, &d.Description, &d.Disabled, &d.Permissions)
	if err != nil {
		return Detail{}, shared.FromPg(err, "role")
	}
	return d, nil
}

// FindLive returns the live roles among ids.
func (r *PGRepository) FindLive(ctx context.Context, ids []int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, disabled, created_at, updated_at
FROM roles WHERE id = ANY($1) AND deleted = FALSE ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Role])
}

// Update changes a role and, when requested, replaces its grants.
func (r *PGRepository) Update(ctx context.Context, id int64, in UpdateInput) ([]string, error) {
	var users []string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE roles SET
    name = COALESCE($2, name),
    description = COALESCE($3, description),
    disabled = COALESCE($4, disabled),
    updated_at = NOW()
WHERE id = $1 AND deleted = FALSE`, id, in.Name, in.Description, in.Disabled)
		if err != nil {
			return shared.FromPg(err, "role")
		}
		if tag.RowsAffected() == 0 {
			return shared.NotFound("role not found")
		}
		if in.Permissions != nil {
			if err := replacePermissions(ctx, tx, id, *in.Permissions); err != nil {
				return err
			}
		}
		users, err = userIDs(ctx, tx, []int64{id})
		return err
	})
	return users, err
}

// AssignedUserIDs returns the users holding any of the roles.
func (r *PGRepository) AssignedUserIDs(ctx context.Context, ids []int64) ([]string, error) {
	return userIDs(ctx, r.pool, ids)
}

// SoftDelete marks roles deleted.
func (r *PGRepository) SoftDelete(ctx context.Context, ids []int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE roles SET deleted = TRUE, updated_at = NOW() WHERE id = ANY($1) AND deleted = FALSE`, ids)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func userIDs(ctx context.Context, q querier, roleIDs []int64) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT DISTINCT ur.user_id::text
FROM user_roles ur
JOIN users u ON u.id = ur.user_id AND u.deleted = FALSE
WHERE ur.role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func replacePermissions(ctx context.Context, tx pgx.Tx, roleID int64, permissionIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	if len(permissionIDs) == 0 {
		return nil
	}
	tag, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, p.id FROM permissions p WHERE p.id = ANY($2) AND p.deleted = FALSE
ON CONFLICT DO NOTHING`, roleID, permissionIDs)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(dedup(permissionIDs)) {
		return shared.NotFound("some permissions do not exist")
	}
	return nil
}

func dedup(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var _ Repository = (*PGRepository)(nil)
