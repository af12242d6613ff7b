package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Repository loads the joined user/role/permission data.
type Repository interface {
	UserGrant(ctx context.Context, userID string) (Grant, error)
	UserProfile(ctx context.Context, userID string) (Profile, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userGrantQuery = `
SELECT u.user_name,
       COALESCE(ARRAY_AGG(DISTINCT r.name) FILTER (WHERE r.id IS NOT NULL), '{}') AS role_names,
       COALESCE(ARRAY_AGG(DISTINCT pm.permission) FILTER (WHERE pm.permission IS NOT NULL AND pm.permission <> ''), '{}') AS permissions
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
LEFT JOIN roles r ON r.id = ur.role_id AND r.deleted = FALSE AND r.disabled = FALSE
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions pm ON pm.id = rp.permission_id AND pm.deleted = FALSE AND pm.disabled = FALSE
WHERE u.id = $1 AND u.deleted = FALSE AND u.disabled = FALSE
GROUP BY u.user_name`

// UserGrant returns the distinct permission strings reachable through active roles.
func (r *PGRepository) UserGrant(ctx context.Context, userID string) (Grant, error) {
	var g Grant
	err := r.pool.QueryRow(ctx, userGrantQuery, userID).Scan(&g.UserName, &g.RoleNames, &g.Permissions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{}, shared.ErrNotFound
		}
		return Grant{}, err
	}
	return g, nil
}

const userProfileQuery = `
WITH active_roles AS (
    SELECT r.id, r.name
    FROM roles r
    JOIN user_roles ur ON ur.role_id = r.id
    WHERE ur.user_id = $1 AND r.deleted = FALSE AND r.disabled = FALSE
)
SELECT u.user_name,
       COALESCE(pf.nick_name, ''),
       COALESCE(pf.avatar, ''),
       COALESCE((SELECT ARRAY_AGG(DISTINCT name) FROM active_roles), '{}'),
       pm.id, pm.pid, pm.name, pm.path, pm.permission, pm.type, pm.icon,
       pm.component, pm.redirect, pm.sort, pm.hidden, pm.cache, pm.props
FROM users u
LEFT JOIN profiles pf ON pf.user_id = u.id
LEFT JOIN LATERAL (
    SELECT p.*
    FROM permissions p
    WHERE p.deleted = FALSE AND p.disabled = FALSE
      AND EXISTS (
        SELECT 1 FROM role_permissions rp
        JOIN active_roles ar ON ar.id = rp.role_id
        WHERE rp.permission_id = p.id
      )
) pm ON TRUE
WHERE u.id = $1 AND u.deleted = FALSE AND u.disabled = FALSE
ORDER BY pm.sort DESC NULLS LAST, pm.id ASC`

// UserProfile runs the aggregate user info query, one row per granted permission.
func (r *PGRepository) UserProfile(ctx context.Context, userID string) (Profile, error) {
	rows, err := r.pool.Query(ctx, userProfileQuery, userID)
	if err != nil {
		return Profile{}, err
	}
	defer rows.Close()

	var (
		profile Profile
		found   bool
	)
	for rows.Next() {
		var (
			id                                            *int64
			pid                                           *int64
			name, path, perm, typ, icon, component, redir *string
			sortVal                                       *int
			hidden, cache, props                          *bool
		)
		if err := rows.Scan(
			&profile.UserName, &profile.NickName, &profile.Avatar, &profile.RoleNames,
			&id, &pid, &name, &path, &perm, &typ, &icon, &component, &redir, &sortVal, &hidden, &cache, &props,
		); err != nil {
			return Profile{}, err
		}
		found = true
		if id == nil {
			continue
		}
		profile.Nodes = append(profile.Nodes, Node{
			ID:         *id,
			PID:        pid,
			Name:       deref(name),
			Path:       deref(path),
			Permission: deref(perm),
			Type:       PermissionType(deref(typ)),
			Icon:       deref(icon),
			Component:  deref(component),
			Redirect:   deref(redir),
			Sort:       derefInt(sortVal),
			Hidden:     derefBool(hidden),
			Cache:      derefBool(cache),
			Props:      derefBool(props),
		})
	}
	if err := rows.Err(); err != nil {
		return Profile{}, err
	}
	if !found {
		return Profile{}, shared.ErrNotFound
	}
	return profile, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefBool(v *bool) bool {
	return v != nil && *v
}

var _ Repository = (*PGRepository)(nil)
