package permissions

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Repository defines data access methods for permission nodes.
type Repository interface {
	NameTaken(ctx context.Context, name string, exceptID int64) (bool, error)
	IdentifierTaken(ctx context.Context, identifier string, exceptID int64) (bool, error)
	Create(ctx context.Context, n rbac.Node) (int64, error)
	Get(ctx context.Context, id int64) (Permission, error)
	List(ctx context.Context, f ListFilter) ([]Permission, int, error)
	// Nodes returns every live node, buttons included only when asked.
	Nodes(ctx context.Context, withButtons bool) ([]rbac.Node, error)
	FindLive(ctx context.Context, ids []int64) ([]Permission, error)
	// Children returns the live nodes whose parent is one of ids.
	Children(ctx context.Context, ids []int64) ([]rbac.Node, error)
	// AssignedRoleIDs returns the live roles granting any of ids.
	AssignedRoleIDs(ctx context.Context, ids []int64) ([]int64, error)
	Update(ctx context.Context, n rbac.Node) error
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

const nodeColumns = `id, pid, name, COALESCE(path, ''), COALESCE(permission, ''), type,
       COALESCE(icon, ''), COALESCE(component, ''), COALESCE(redirect, ''),
       sort, hidden, cache, props, disabled`

func scanNode(row pgx.Row, n *rbac.Node, extra ...any) error {
	dest := []any{
		&n.ID, &n.PID, &n.Name, &n.Path, &n.Permission, &n.Type,
		&n.Icon, &n.Component, &n.Redirect,
		&n.Sort, &n.Hidden, &n.Cache, &n.Props, &n.Disabled,
	}
	return row.Scan(append(dest, extra...)...)
}

// NameTaken reports whether a live node other than exceptID uses name.
func (r *PGRepository) NameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE name = $1 AND deleted = FALSE AND id <> $2)`, name, exceptID).Scan(&taken)
	return taken, err
}

// IdentifierTaken reports whether a live node other than exceptID carries identifier.
func (r *PGRepository) IdentifierTaken(ctx context.Context, identifier string, exceptID int64) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE permission = $1 AND deleted = FALSE AND id <> $2)`, identifier, exceptID).Scan(&taken)
	return taken, err
}

// Create inserts a node.
func (r *PGRepository) Create(ctx context.Context, n rbac.Node) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO permissions
    (pid, name, type, permission, path, icon, component, redirect, sort, hidden, cache, props, disabled)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12, $13)
RETURNING id`,
		n.PID, n.Name, n.Type, n.Permission, n.Path, n.Icon, n.Component, n.Redirect,
		n.Sort, n.Hidden, n.Cache, n.Props, n.Disabled).Scan(&id)
	return id, shared.FromPg(err, "permission")
}

// Get returns a live node.
func (r *PGRepository) Get(ctx context.Context, id int64) (Permission, error) {
	var p Permission
	row := r.pool.QueryRow(ctx, `SELECT `+nodeColumns+`, created_at FROM permissions WHERE id = $1 AND deleted = FALSE`, id)
	if err := scanNode(row, &p.Node, &p.CreatedAt); err != nil {
		return Permission{}, shared.FromPg(err, "permission")
	}
	return p, nil
}

// List returns one page of live nodes.
func (r *PGRepository) List(ctx context.Context, lf ListFilter) ([]Permission, int, error) {
	var f db.Filter
	f.AddRaw("deleted = FALSE")
	if lf.Keyword != "" {
		f.Add("(name ILIKE ? OR permission ILIKE ?)", "%"+lf.Keyword+"%")
	}
	if lf.Type != "" {
		f.Add("type = ?", string(lf.Type))
	}
	if lf.Disabled != nil {
		f.Add("disabled = ?", *lf.Disabled)
	}
	if lf.BeginTime != nil {
		f.Add("created_at >= ?", *lf.BeginTime)
	}
	if lf.EndTime != nil {
		f.Add("created_at <= ?", *lf.EndTime)
	}
	dir := "DESC"
	if !lf.Desc {
		dir = "ASC"
	}
	query := `SELECT ` + nodeColumns + `, created_at, COUNT(*) OVER() FROM permissions` +
		f.Where() + ` ORDER BY sort ` + dir + `, id ASC`
	query += ` LIMIT ` + f.Bind(lf.Limit()) + ` OFFSET ` + f.Bind(lf.Offset())

	rows, err := r.pool.Query(ctx, query, f.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var (
		out   []Permission
		total int
	)
	for rows.Next() {
		var p Permission
		if err := scanNode(rows, &p.Node, &p.CreatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Nodes returns every live node ordered for tree building.
func (r *PGRepository) Nodes(ctx context.Context, withButtons bool) ([]rbac.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM permissions WHERE deleted = FALSE`
	if !withButtons {
		query += ` AND type <> 'BUTTON'`
	}
	query += ` ORDER BY sort DESC, id ASC`
	return r.collect(ctx, query)
}

// FindLive returns the live nodes among ids.
func (r *PGRepository) FindLive(ctx context.Context, ids []int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+nodeColumns+`, created_at FROM permissions WHERE id = ANY($1) AND deleted = FALSE ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Permission
	for rows.Next() {
		var p Permission
		if err := scanNode(rows, &p.Node, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Children returns the live nodes whose parent is one of ids.
func (r *PGRepository) Children(ctx context.Context, ids []int64) ([]rbac.Node, error) {
	return r.collect(ctx, `SELECT `+nodeColumns+` FROM permissions WHERE pid = ANY($1) AND deleted = FALSE ORDER BY id`, ids)
}

// AssignedRoleIDs returns the live roles granting any of ids.
func (r *PGRepository) AssignedRoleIDs(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT rp.role_id
FROM role_permissions rp
JOIN roles ro ON ro.id = rp.role_id AND ro.deleted = FALSE
WHERE rp.permission_id = ANY($1)
ORDER BY rp.role_id`, ids)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// Update writes every mutable column of n.
func (r *PGRepository) Update(ctx context.Context, n rbac.Node) error {
	tag, err := r.pool.Exec(ctx, `UPDATE permissions SET
    pid = $2, name = $3, type = $4, permission = NULLIF($5, ''), path = NULLIF($6, ''),
    icon = NULLIF($7, ''), component = NULLIF($8, ''), redirect = NULLIF($9, ''),
    sort = $10, hidden = $11, cache = $12, props = $13, disabled = $14, updated_at = NOW()
WHERE id = $1 AND deleted = FALSE`,
		n.ID, n.PID, n.Name, n.Type, n.Permission, n.Path, n.Icon, n.Component, n.Redirect,
		n.Sort, n.Hidden, n.Cache, n.Props, n.Disabled)
	if err != nil {
		return shared.FromPg(err, "permission")
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("permission not found")
	}
	return nil
}

// SoftDelete marks nodes deleted and drops their grants.
func (r *PGRepository) SoftDelete(ctx context.Context, ids []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE permissions SET deleted = TRUE, updated_at = NOW() WHERE id = ANY($1) AND deleted = FALSE`, ids); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = ANY($1)`, ids)
		return err
	})
}

func (r *PGRepository) collect(ctx context.Context, query string, args ...any) ([]rbac.Node, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []rbac.Node
	for rows.Next() {
		var n rbac.Node
		if err := scanNode(rows, &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
