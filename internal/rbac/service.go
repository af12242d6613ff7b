package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"
)

// Options identifies the default super-administrator and bounds cache lifetime.
type Options struct {
	DefaultUserName string
	DefaultRoleName string
	SuperPermission string
	CacheTTL        time.Duration
}

// CacheObserver receives permission cache lookups. *observability.Metrics implements it.
type CacheObserver interface {
	PermissionCacheLookup(hit bool)
}

// Service resolves effective permissions and menu trees.
type Service struct {
	repo     Repository
	cache    *PermissionCache
	opts     Options
	logger   *slog.Logger
	observer CacheObserver
	group    singleflight.Group
}

// NewService constructs a Service. cache may be nil, in which case every lookup hits the repository.
func NewService(repo Repository, cache *PermissionCache, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, opts: opts, logger: logger}
}

// WithObserver attaches a cache observer.
func (s *Service) WithObserver(o CacheObserver) *Service {
	s.observer = o
	return s
}

// SuperPermission returns the wildcard identifier.
func (s *Service) SuperPermission() string {
	return s.opts.SuperPermission
}

// Cache exposes the permission cache for mutation paths that must invalidate it.
func (s *Service) Cache() *PermissionCache {
	return s.cache
}

// IsSuperAdmin reports whether the identity receives the wildcard bypass.
func (s *Service) IsSuperAdmin(userName string, roleNames []string) bool {
	if userName != "" && userName == s.opts.DefaultUserName {
		return true
	}
	return s.opts.DefaultRoleName != "" && slices.Contains(roleNames, s.opts.DefaultRoleName)
}

// FindUserPermissions returns the caller's effective permission strings, cache first.
func (s *Service) FindUserPermissions(ctx context.Context, userID string) ([]string, error) {
	perms, hit, err := s.cache.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.observe(hit)
	if hit {
		return perms, nil
	}

	// The shared load outlives any single caller; each waiter honours its own ctx below.
	loadCtx := context.WithoutCancel(ctx)
	resultChan := s.group.DoChan(userID, func() (interface{}, error) {
		return s.loadPermissions(loadCtx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]string)), nil
	}
}

func (s *Service) loadPermissions(ctx context.Context, userID string) ([]string, error) {
	version, err := s.cache.Version(ctx)
	if err != nil {
		return nil, err
	}
	grant, err := s.repo.UserGrant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: load grant: %w", err)
	}
	perms := grant.Permissions
	if s.IsSuperAdmin(grant.UserName, grant.RoleNames) {
		perms = []string{s.opts.SuperPermission}
	}
	if perms == nil {
		perms = []string{}
	}
	if _, err := s.cache.Store(ctx, userID, perms, version); err != nil {
		s.logger.Warn("rbac cache store", slog.String("user_id", userID), slog.Any("error", err))
	}
	return perms, nil
}

// GetUserInfo assembles display identity, roles, permissions and the menu tree.
func (s *Service) GetUserInfo(ctx context.Context, userID string) (UserInfo, error) {
	profile, err := s.repo.UserProfile(ctx, userID)
	if err != nil {
		return UserInfo{}, fmt.Errorf("rbac: user info: %w", err)
	}
	info := UserInfo{
		UserID:      userID,
		UserName:    profile.UserName,
		Name:        profile.NickName,
		Avatar:      profile.Avatar,
		Roles:       profile.RoleNames,
		Permissions: []string{},
		Menus:       []*Node{},
	}
	if info.Name == "" {
		info.Name = profile.UserName
	}
	if info.Roles == nil {
		info.Roles = []string{}
	}

	superAdmin := s.IsSuperAdmin(profile.UserName, profile.RoleNames)
	if len(info.Roles) == 0 && !superAdmin {
		return info, nil
	}

	if superAdmin {
		info.Permissions = []string{s.opts.SuperPermission}
	} else {
		seen := make(map[string]struct{}, len(profile.Nodes))
		for _, n := range profile.Nodes {
			if n.Permission == "" {
				continue
			}
			if _, ok := seen[n.Permission]; ok {
				continue
			}
			seen[n.Permission] = struct{}{}
			info.Permissions = append(info.Permissions, n.Permission)
		}
	}
	info.Menus = BuildTree(FilterNavigable(profile.Nodes))
	return info, nil
}

func (s *Service) observe(hit bool) {
	if s.observer != nil {
		s.observer.PermissionCacheLookup(hit)
	}
}
