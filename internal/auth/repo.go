package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindActiveByUserName(ctx context.Context, userName string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	CreateSession(ctx context.Context, rec SessionRecord) error
	PruneSessions(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id::text, user_name, password, disabled, deleted, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.UserName, &u.PasswordHash, &u.Disabled, &u.Deleted, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, shared.FromPg(err, "user")
	}
	return &u, nil
}

// FindActiveByUserName fetches an enabled, non-deleted user by login name.
func (r *PGRepository) FindActiveByUserName(ctx context.Context, userName string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_name = $1 AND deleted = FALSE AND disabled = FALSE`, userName)
	return scanUser(row)
}

// FindByID fetches a user regardless of state.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// UpdatePassword stores a new bcrypt hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password = $2, updated_at = NOW() WHERE id = $1 AND deleted = FALSE`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("user not found")
	}
	return nil
}

// CreateSession persists a login for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, rec SessionRecord) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO auth_sessions (id, user_id, ip, user_agent, created_at, expires_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)`,
		rec.ID, rec.UserID, rec.IP, rec.UserAgent, rec.CreatedAt.UTC(), rec.ExpiresAt.UTC())
	return err
}

// PruneSessions deletes audit rows that expired before the cutoff.
func (r *PGRepository) PruneSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
