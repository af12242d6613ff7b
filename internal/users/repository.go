package users

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Repository defines data access methods for users.
type Repository interface {
	UserNameTaken(ctx context.Context, userName string) (bool, error)
	Create(ctx context.Context, in CreateInput, passwordHash string) (string, error)
	List(ctx context.Context, q shared.ListQuery) ([]User, int, error)
	Get(ctx context.Context, id string) (Detail, error)
	FindLive(ctx context.Context, ids []string) ([]Identity, error)
	// RoleNames returns the names of the live roles among ids.
	RoleNames(ctx context.Context, ids []int64) ([]string, error)
	Update(ctx context.Context, id string, in UpdateInput) error
	UpdateProfile(ctx context.Context, id string, in ProfileInput) error
	SetPassword(ctx context.Context, id, passwordHash string) error
	SoftDelete(ctx context.Context, ids []string) error
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// UserNameTaken reports whether a live account uses userName.
func (r *PGRepository) UserNameTaken(ctx context.Context, userName string) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_name = $1 AND deleted = FALSE)`, userName).Scan(&taken)
	return taken, err
}

// Create inserts the account, its profile row and its role assignments.
func (r *PGRepository) Create(ctx context.Context, in CreateInput, passwordHash string) (string, error) {
	var id string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO users (user_name, password, disabled) VALUES ($1, $2, $3) RETURNING id::text`,
			in.UserName, passwordHash, in.Disabled).Scan(&id)
		if err != nil {
			return shared.FromPg(err, "user")
		}
		if _, err := tx.Exec(ctx, `INSERT INTO profiles (user_id, nick_name, avatar) VALUES ($1, $2, $3)`,
			id, in.NickName, in.Avatar); err != nil {
			return err
		}
		return replaceRoles(ctx, tx, id, in.Roles)
	})
	return id, err
}

// List returns one page of live accounts. The keyword matches user name or
// nickname.
func (r *PGRepository) List(ctx context.Context, q shared.ListQuery) ([]User, int, error) {
	var f db.Filter
	f.AddRaw("u.deleted = FALSE")
	if q.Keyword != "" {
		f.Add("(u.user_name ILIKE ? OR p.nick_name ILIKE ?)", "%"+q.Keyword+"%")
	}
	if q.Disabled != nil {
		f.Add("u.disabled = ?", *q.Disabled)
	}
	if q.BeginTime != nil {
		f.Add("u.created_at >= ?", *q.BeginTime)
	}
	if q.EndTime != nil {
		f.Add("u.created_at <= ?", *q.EndTime)
	}
	dir := "DESC"
	if !q.Desc {
		dir = "ASC"
	}
	query := `SELECT u.id::text, u.user_name, COALESCE(p.nick_name, ''), COALESCE(p.avatar, ''), u.disabled,
       COALESCE(ARRAY(SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id AND r.deleted = FALSE
                      WHERE ur.user_id = u.id ORDER BY r.id), '{}'),
       u.created_at, u.updated_at, COUNT(*) OVER()
FROM users u
LEFT JOIN profiles p ON p.user_id = u.id` +
		f.Where() + ` ORDER BY u.created_at ` + dir + `, u.id ` + dir
	query += ` LIMIT ` + f.Bind(q.Limit()) + ` OFFSET ` + f.Bind(q.Offset())

	rows, err := r.pool.Query(ctx, query, f.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var (
		users []User
		total int
	)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.UserName, &u.NickName, &u.Avatar, &u.Disabled, &u.RoleNames, &u.CreatedAt, &u.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// Get returns a live account with its profile and role ids.
func (r *PGRepository) Get(ctx context.Context, id string) (Detail, error) {
	var d Detail
	err := r.pool.QueryRow(ctx, `SELECT u.id::text, u.user_name, u.disabled, u.created_at,
       COALESCE(p.nick_name, ''), COALESCE(p.avatar, ''), COALESCE(p.email, ''), COALESCE(p.phone, ''),
       p.gender, p.birthday, COALESCE(p.description, ''),
       COALESCE(ARRAY(SELECT ur.role_id FROM user_roles ur JOIN roles r ON r.id = ur.role_id AND r.deleted = FALSE
                      WHERE ur.user_id = u.id ORDER BY ur.role_id), '{}')
FROM users u
LEFT JOIN profiles p ON p.user_id = u.id
WHERE u.id::text = $1 AND u.deleted = FALSE`, id).Scan(
		&d.ID, &d.UserName, &d.Disabled, &d.CreatedAt,
		&d.NickName, &d.Avatar, &d.Email, &d.Phone,
		&d.Gender, &d.Birthday, &d.Description, &d.Roles,
	)
	if err != nil {
		return Detail{}, shared.FromPg(err, "user")
	}
	return d, nil
}

// FindLive returns the live accounts among ids.
func (r *PGRepository) FindLive(ctx context.Context, ids []string) ([]Identity, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, user_name FROM users WHERE id::text = ANY($1) AND deleted = FALSE ORDER BY user_name`, ids)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Identity])
}

// RoleNames returns the names of the live roles among ids.
func (r *PGRepository) RoleNames(ctx context.Context, ids []int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM roles WHERE id = ANY($1) AND deleted = FALSE ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Update changes account fields and, when requested, replaces role assignments.
func (r *PGRepository) Update(ctx context.Context, id string, in UpdateInput) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET disabled = COALESCE($2, disabled), updated_at = NOW()
WHERE id::text = $1 AND deleted = FALSE`, id, in.Disabled)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.NotFound("user not found")
		}
		if in.NickName != nil || in.Avatar != nil {
			if _, err := tx.Exec(ctx, `INSERT INTO profiles (user_id, nick_name, avatar) VALUES ($1::uuid, COALESCE($2, ''), COALESCE($3, ''))
ON CONFLICT (user_id) DO UPDATE SET
    nick_name = COALESCE($2, profiles.nick_name),
    avatar = COALESCE($3, profiles.avatar)`, id, in.NickName, in.Avatar); err != nil {
				return err
			}
		}
		if in.Roles != nil {
			return replaceRoles(ctx, tx, id, *in.Roles)
		}
		return nil
	})
}

// UpdateProfile upserts the self-service profile fields.
func (r *PGRepository) UpdateProfile(ctx context.Context, id string, in ProfileInput) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO profiles (user_id, nick_name, avatar, email, phone, gender, birthday, description)
VALUES ($1::uuid, COALESCE($2, ''), COALESCE($3, ''), $4, $5, $6, $7, COALESCE($8, ''))
ON CONFLICT (user_id) DO UPDATE SET
    nick_name = COALESCE($2, profiles.nick_name),
    avatar = COALESCE($3, profiles.avatar),
    email = COALESCE($4, profiles.email),
    phone = COALESCE($5, profiles.phone),
    gender = COALESCE($6, profiles.gender),
    birthday = COALESCE($7, profiles.birthday),
    description = COALESCE($8, profiles.description)`,
		id, in.NickName, in.Avatar, in.Email, in.Phone, in.Gender, in.Birthday, in.Description)
	return shared.FromPg(err, "profile")
}

// SetPassword stores a new password hash.
func (r *PGRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password = $2, updated_at = NOW() WHERE id::text = $1 AND deleted = FALSE`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("user not found")
	}
	return nil
}

// SoftDelete marks accounts deleted and drops their role assignments.
func (r *PGRepository) SoftDelete(ctx context.Context, ids []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE users SET deleted = TRUE, updated_at = NOW() WHERE id::text = ANY($1) AND deleted = FALSE`, ids); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id::text = ANY($1)`, ids)
		return err
	})
}

func replaceRoles(ctx context.Context, tx pgx.Tx, userID string, roleIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1::uuid`, userID); err != nil {
		return err
	}
	roleIDs = dedup(roleIDs)
	if len(roleIDs) == 0 {
		return nil
	}
	tag, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id)
SELECT $1::uuid, r.id FROM roles r WHERE r.id = ANY($2) AND r.deleted = FALSE`, userID, roleIDs)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(roleIDs) {
		return shared.NotFound("some roles do not exist")
	}
	return nil
}

func dedup[T comparable](ids []T) []T {
	seen := make(map[T]struct{}, len(ids))
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
