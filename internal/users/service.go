package users

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Invalidator drops cached permission sets. *rbac.PermissionCache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, userIDs ...string) error
}

// Options carries the protected account, its role, and the password new and
// reset accounts receive.
type Options struct {
	DefaultUserName string
	DefaultRoleName string
	DefaultPassword string
	BcryptCost      int
}

// Service handles user business logic.
type Service struct {
	repo   Repository
	cache  Invalidator
	audit  shared.AuditRecorder
	opts   Options
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, cache Invalidator, audit shared.AuditRecorder, opts Options, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, cache: cache, audit: audit, opts: opts, logger: logger}
}

// Create adds an account holding the default password.
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (string, error) {
	taken, err := s.repo.UserNameTaken(ctx, in.UserName)
	if err != nil {
		return "", err
	}
	if taken {
		return "", shared.Conflict("user name already exists")
	}
	hash, err := s.hashDefault()
	if err != nil {
		return "", err
	}
	id, err := s.repo.Create(ctx, in, hash)
	if err != nil {
		return "", err
	}
	s.record(ctx, actorID, "user.create", id, map[string]any{"userName": in.UserName, "roles": in.Roles})
	return id, nil
}

// List returns one page of accounts.
func (s *Service) List(ctx context.Context, q shared.ListQuery) (shared.Page[User], error) {
	users, total, err := s.repo.List(ctx, q)
	if err != nil {
		return shared.Page[User]{}, err
	}
	for i := range users {
		if users[i].RoleNames == nil {
			users[i].RoleNames = []string{}
		}
	}
	return shared.Paginate(q, users, total), nil
}

// Get returns an account with profile and role ids.
func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	d, err := s.repo.Get(ctx, id)
	if err == nil && d.Roles == nil {
		d.Roles = []int64{}
	}
	return d, err
}

// Update changes an account. The user's cached permission set is dropped
// before Update returns.
func (s *Service) Update(ctx context.Context, actorID, id string, in UpdateInput) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.UserName == s.opts.DefaultUserName {
		if in.Disabled != nil && *in.Disabled {
			return shared.Invariant("the super administrator cannot be disabled")
		}
		if in.Roles != nil {
			keeps, err := s.keepsDefaultRole(ctx, *in.Roles)
			if err != nil {
				return err
			}
			if !keeps {
				return shared.Invariant("the super administrator must keep the default role")
			}
		}
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		return err
	}
	if err := s.invalidate(ctx, id); err != nil {
		return err
	}
	meta := map[string]any{}
	if in.Roles != nil {
		meta["roles"] = *in.Roles
	}
	if in.Disabled != nil {
		meta["disabled"] = *in.Disabled
	}
	s.record(ctx, actorID, "user.update", id, meta)
	return nil
}

// UpdateProfile changes the caller's own profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) error {
	if _, err := s.repo.Get(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.UpdateProfile(ctx, userID, in); err != nil {
		return err
	}
	s.record(ctx, userID, "user.profile", userID, nil)
	return nil
}

// ResetPassword sets the account's password back to the default.
func (s *Service) ResetPassword(ctx context.Context, actorID, id string) error {
	hash, err := s.hashDefault()
	if err != nil {
		return err
	}
	if err := s.repo.SetPassword(ctx, id, hash); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.reset_password", id, nil)
	return nil
}

// Delete soft-deletes one account.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	return s.BatchDelete(ctx, actorID, []string{id})
}

// BatchDelete soft-deletes accounts. Nothing is deleted unless every account
// exists and none is the super administrator.
func (s *Service) BatchDelete(ctx context.Context, actorID string, ids []string) error {
	ids = dedup(ids)
	if len(ids) == 0 {
		return shared.Validation("ids must not be empty")
	}
	live, err := s.repo.FindLive(ctx, ids)
	if err != nil {
		return err
	}
	if len(live) != len(ids) {
		if len(ids) == 1 {
			return shared.NotFound("user not found")
		}
		return shared.NotFound("some users do not exist")
	}
	for _, u := range live {
		if u.UserName == s.opts.DefaultUserName {
			return shared.Invariant("the super administrator cannot be deleted")
		}
	}
	if err := s.repo.SoftDelete(ctx, ids); err != nil {
		return err
	}
	if err := s.invalidate(ctx, ids...); err != nil {
		return err
	}
	for _, u := range live {
		s.record(ctx, actorID, "user.delete", u.ID, map[string]any{"userName": u.UserName})
	}
	return nil
}

func (s *Service) keepsDefaultRole(ctx context.Context, roleIDs []int64) (bool, error) {
	if len(roleIDs) == 0 {
		return false, nil
	}
	names, err := s.repo.RoleNames(ctx, roleIDs)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == s.opts.DefaultRoleName {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) hashDefault() (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(s.opts.DefaultPassword), s.opts.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("users: hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) invalidate(ctx context.Context, userIDs ...string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		return fmt.Errorf("users: invalidate permission cache: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID, action, id string, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: id,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit user", slog.String("action", action), slog.Any("error", err))
	}
}
