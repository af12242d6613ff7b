package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// maxDepth bounds the ancestor walk used to reject cycles.
const maxDepth = 32

// Invalidator rewrites or drops cached permission sets. *rbac.PermissionCache
// implements it.
type Invalidator interface {
	Sweep(ctx context.Context, ch rbac.Change) (int, error)
	Flush(ctx context.Context) (int, error)
}

// Service handles permission node business logic.
type Service struct {
	repo   Repository
	cache  Invalidator
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, cache Invalidator, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// Create adds a node. A new node is granted to nobody, so no cached set changes.
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (int64, error) {
	n := in.node()
	if err := s.check(ctx, n); err != nil {
		return 0, err
	}
	id, err := s.repo.Create(ctx, n)
	if err != nil {
		return 0, err
	}
	s.record(ctx, actorID, "permission.create", id, map[string]any{"name": n.Name, "type": n.Type, "permission": n.Permission})
	return id, nil
}

// Get returns one node.
func (s *Service) Get(ctx context.Context, id int64) (Permission, error) {
	return s.repo.Get(ctx, id)
}

// List returns one page of nodes.
func (s *Service) List(ctx context.Context, f ListFilter) (shared.Page[Permission], error) {
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return shared.Page[Permission]{}, err
	}
	return shared.Paginate(f.ListQuery, items, total), nil
}

// Tree returns every live node nested under its parent.
func (s *Service) Tree(ctx context.Context, withButtons bool) ([]*rbac.Node, error) {
	nodes, err := s.repo.Nodes(ctx, withButtons)
	if err != nil {
		return nil, err
	}
	return rbac.BuildTree(nodes), nil
}

// Update changes a node. Cached permission sets that mention the node's
// identifier are rewritten or dropped before Update returns.
func (s *Service) Update(ctx context.Context, actorID string, id int64, in UpdateInput) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	next := in.apply(current.Node)
	if err := s.check(ctx, next); err != nil {
		return err
	}
	if next.Type != current.Type {
		if err := s.checkChildren(ctx, next); err != nil {
			return err
		}
	}
	if err := s.repo.Update(ctx, next); err != nil {
		return err
	}
	if err := s.refresh(ctx, current.Node, next); err != nil {
		return err
	}
	s.record(ctx, actorID, "permission.update", id, map[string]any{
		"name":       next.Name,
		"permission": next.Permission,
		"disabled":   next.Disabled,
	})
	return nil
}

// Delete soft-deletes one node.
func (s *Service) Delete(ctx context.Context, actorID string, id int64) error {
	return s.BatchDelete(ctx, actorID, []int64{id})
}

// BatchDelete soft-deletes nodes. Nothing is deleted unless every node exists,
// none keeps a live child outside the batch, and none is granted to a role.
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
			return shared.NotFound("permission not found")
		}
		return shared.NotFound("some permissions do not exist")
	}
	children, err := s.repo.Children(ctx, ids)
	if err != nil {
		return err
	}
	batch := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		batch[id] = struct{}{}
	}
	for _, c := range children {
		if _, ok := batch[c.ID]; !ok {
			return shared.Invariant("the permission has child nodes and cannot be deleted")
		}
	}
	roles, err := s.repo.AssignedRoleIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(roles) > 0 {
		return shared.Invariant("the permission is assigned to roles and cannot be deleted")
	}
	if err := s.repo.SoftDelete(ctx, ids); err != nil {
		return err
	}
	for _, p := range live {
		if err := s.sweep(ctx, rbac.Change{Old: p.Permission, Drop: true}); err != nil {
			return err
		}
		s.record(ctx, actorID, "permission.delete", p.ID, map[string]any{"name": p.Name, "permission": p.Permission})
	}
	return nil
}

// check enforces the shape and placement rules for n.
func (s *Service) check(ctx context.Context, n rbac.Node) error {
	switch {
	case n.Type != rbac.TypeButton && n.Path == "":
		return shared.Validation("path is required for directories and menus")
	case n.Type == rbac.TypeMenu && n.Component == "":
		return shared.Validation("component is required for menus")
	case n.Type == rbac.TypeButton && n.Permission == "":
		return shared.Validation("permission identifier is required for buttons")
	case n.Type != rbac.TypeButton && n.Permission != "":
		return shared.Validation("only buttons carry a permission identifier")
	}

	if !n.IsRoot() {
		if n.ID != 0 && *n.PID == n.ID {
			return shared.Invariant("a permission cannot be its own parent")
		}
		parent, err := s.repo.Get(ctx, *n.PID)
		if err != nil {
			if shared.KindOf(err) == shared.KindNotFound {
				return shared.NotFound("parent permission not found")
			}
			return err
		}
		if parent.Type == rbac.TypeButton {
			return shared.Invariant("a button cannot have children")
		}
		if parent.Type == rbac.TypeMenu && n.Type != rbac.TypeButton {
			return shared.Invariant("only buttons can be placed under a menu")
		}
		if n.ID != 0 {
			if err := s.checkAncestors(ctx, n.ID, parent.Node); err != nil {
				return err
			}
		}
	}

	taken, err := s.repo.NameTaken(ctx, n.Name, n.ID)
	if err != nil {
		return err
	}
	if taken {
		return shared.Conflict("permission name already exists")
	}
	if n.Permission != "" {
		taken, err := s.repo.IdentifierTaken(ctx, n.Permission, n.ID)
		if err != nil {
			return err
		}
		if taken {
			return shared.Conflict("permission identifier already exists")
		}
	}
	return nil
}

// checkAncestors rejects moving id below one of its own descendants.
func (s *Service) checkAncestors(ctx context.Context, id int64, parent rbac.Node) error {
	for depth := 0; !parent.IsRoot(); depth++ {
		if *parent.PID == id {
			return shared.Invariant("a permission cannot be moved under its own descendant")
		}
		if depth >= maxDepth {
			return shared.Invariant("the permission tree is too deep")
		}
		next, err := s.repo.Get(ctx, *parent.PID)
		if err != nil {
			if shared.KindOf(err) == shared.KindNotFound {
				return nil
			}
			return err
		}
		parent = next.Node
	}
	return nil
}

// checkChildren keeps existing children valid when a node changes type.
func (s *Service) checkChildren(ctx context.Context, n rbac.Node) error {
	children, err := s.repo.Children(ctx, []int64{n.ID})
	if err != nil {
		return err
	}
	for _, c := range children {
		if n.Type == rbac.TypeButton {
			return shared.Invariant("a button cannot have children")
		}
		if n.Type == rbac.TypeMenu && c.Type != rbac.TypeButton {
			return shared.Invariant("only buttons can be placed under a menu")
		}
	}
	return nil
}

// refresh brings cached permission sets in line with a node change.
func (s *Service) refresh(ctx context.Context, before, after rbac.Node) error {
	switch {
	case before.Permission == "" && after.Permission == "":
		return nil
	case !before.Disabled && after.Disabled:
		return s.sweep(ctx, rbac.Change{Old: before.Permission, Drop: true})
	case before.Disabled && !after.Disabled:
		// Holders' sets do not mention the identifier yet.
		return s.flush(ctx)
	case after.Disabled:
		return nil
	case before.Permission == "":
		return s.flush(ctx)
	case before.Permission != after.Permission:
		return s.sweep(ctx, rbac.Change{Old: before.Permission, New: after.Permission})
	}
	return nil
}

func (s *Service) sweep(ctx context.Context, ch rbac.Change) error {
	if s.cache == nil || ch.Old == "" {
		return nil
	}
	touched, err := s.cache.Sweep(ctx, ch)
	if err != nil {
		return fmt.Errorf("permissions: sweep permission cache: %w", err)
	}
	s.logger.Debug("permission cache swept", slog.String("permission", ch.Old), slog.Int("touched", touched))
	return nil
}

func (s *Service) flush(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if _, err := s.cache.Flush(ctx); err != nil {
		return fmt.Errorf("permissions: flush permission cache: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID, action string, id int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "permission",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit permission", slog.String("action", action), slog.Any("error", err))
	}
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
