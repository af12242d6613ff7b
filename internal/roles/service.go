package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Invalidator drops cached permission sets. *rbac.PermissionCache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, userIDs ...string) error
}

// Options carries the protected role name.
type Options struct {
	DefaultRoleName string
}

// Service handles role business logic.
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
	return &Service{repo: repo, cache: cache, audit: audit, opts: opts, logger: logger}
}

// Create adds a role with its initial grants.
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (int64, error) {
	taken, err := s.repo.NameTaken(ctx, in.Name, 0)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, shared.Conflict("role name already exists")
	}
	id, err := s.repo.Create(ctx, in)
	if err != nil {
		return 0, err
	}
	s.record(ctx, actorID, "role.create", id, map[string]any{"name": in.Name, "permissions": in.Permissions})
	return id, nil
}

// List returns one page of roles.
func (s *Service) List(ctx context.Context, q shared.ListQuery) (shared.Page[Role], error) {
	roles, total, err := s.repo.List(ctx, q)
	if err != nil {
		return shared.Page[Role]{}, err
	}
	return shared.Paginate(q, roles, total), nil
}

// ListActive returns every enabled role.
func (s *Service) ListActive(ctx context.Context) ([]Option, error) {
	opts, err := s.repo.ListActive(ctx)
	if opts == nil && err == nil {
		opts = []Option{}
	}
	return opts, err
}

// Get returns a role and its permission ids.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	return s.repo.Get(ctx, id)
}

// Update changes a role. Holders of the role lose their cached permission
// sets before Update returns.
func (s *Service) Update(ctx context.Context, actorID string, id int64, in UpdateInput) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Name == s.opts.DefaultRoleName {
		return shared.Invariant("the default administrator role cannot be modified")
	}
	if in.Name != nil && *in.Name != current.Name {
		taken, err := s.repo.NameTaken(ctx, *in.Name, id)
		if err != nil {
			return err
		}
		if taken {
			return shared.Conflict("role name already exists")
		}
	}
	users, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return err
	}
	if err := s.invalidate(ctx, users); err != nil {
		return err
	}
	meta := map[string]any{"affectedUsers": len(users)}
	if in.Permissions != nil {
		meta["permissions"] = *in.Permissions
	}
	if in.Disabled != nil {
		meta["disabled"] = *in.Disabled
	}
	s.record(ctx, actorID, "role.update", id, meta)
	return nil
}

// Delete soft-deletes one role.
func (s *Service) Delete(ctx context.Context, actorID string, id int64) error {
	return s.BatchDelete(ctx, actorID, []int64{id})
}

// BatchDelete soft-deletes roles. Nothing is deleted unless every role exists,
// none is the default role, and none is still assigned to a user.
func (s *Service) BatchDelete(ctx context.Context, actorID string, ids []int64) error {
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
			return shared.NotFound("role not found")
		}
		return shared.NotFound("some roles do not exist")
	}
	for _, role := range live {
		if role.Name == s.opts.DefaultRoleName {
			return shared.Invariant("the default administrator role cannot be deleted")
		}
	}
	users, err := s.repo.AssignedUserIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return shared.Invariant("the role is assigned to users and cannot be deleted")
	}
	if err := s.repo.SoftDelete(ctx, ids); err != nil {
		return err
	}
	if err := s.invalidate(ctx, users); err != nil {
		return err
	}
	for _, role := range live {
		s.record(ctx, actorID, "role.delete", role.ID, map[string]any{"name": role.Name})
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, userIDs []string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		return fmt.Errorf("roles: invalidate permission cache: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID, action string, id int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit role", slog.String("action", action), slog.Any("error", err))
	}
}
