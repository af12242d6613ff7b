package rbac

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// stubRepo models role and permission joins in memory.
type stubRepo struct {
	mu         sync.Mutex
	userNames  map[string]string
	userRoles  map[string][]string
	rolePerms  map[string][]string
	profiles   map[string]Profile
	grantCalls atomic.Int32
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		userNames: map[string]string{},
		userRoles: map[string][]string{},
		rolePerms: map[string][]string{},
		profiles:  map[string]Profile{},
	}
}

func (s *stubRepo) UserGrant(ctx context.Context, userID string) (Grant, error) {
	s.grantCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.userNames[userID]
	if !ok {
		return Grant{}, shared.ErrNotFound
	}
	seen := map[string]struct{}{}
	g := Grant{UserName: name, RoleNames: append([]string(nil), s.userRoles[userID]...)}
	for _, role := range s.userRoles[userID] {
		for _, p := range s.rolePerms[role] {
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				g.Permissions = append(g.Permissions, p)
			}
		}
	}
	return g, nil
}

func (s *stubRepo) UserProfile(ctx context.Context, userID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return Profile{}, shared.ErrNotFound
	}
	return p, nil
}

func (s *stubRepo) setRolePerms(role string, perms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolePerms[role] = perms
}

func (s *stubRepo) setUserRoles(user string, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles[user] = roles
}

type countingObserver struct{ hits, misses int }

func (c *countingObserver) PermissionCacheLookup(hit bool) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func newTestService(t *testing.T, repo Repository) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(repo, NewPermissionCache(client, 24*time.Hour), Options{
		DefaultUserName: "sAdmin",
		DefaultRoleName: "admin",
		SuperPermission: "*:*:*",
		CacheTTL:        24 * time.Hour,
	}, nil)
	return svc, mr
}

func TestFindUserPermissionsCachesResult(t *testing.T) {
	repo := newStubRepo()
	repo.userNames["u1"] = "alice"
	repo.setUserRoles("u1", "editor")
	repo.setRolePerms("editor", "system:user:add", "system:user:edit")
	svc, mr := newTestService(t, repo)
	obs := &countingObserver{}
	svc.WithObserver(obs)
	ctx := context.Background()

	perms, err := svc.FindUserPermissions(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"system:user:add", "system:user:edit"}, perms)

	perms, err = svc.FindUserPermissions(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"system:user:add", "system:user:edit"}, perms)

	assert.Equal(t, int32(1), repo.grantCalls.Load(), "second call must be served from cache")
	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 1, obs.misses)
	assert.Equal(t, 24*time.Hour, mr.TTL("permissions:u1"))
}

func TestFindUserPermissionsSuperAdminBypass(t *testing.T) {
	repo := newStubRepo()
	repo.userNames["root"] = "sAdmin"
	repo.setUserRoles("root", "editor")
	repo.setRolePerms("editor", "system:user:add")
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	perms, err := svc.FindUserPermissions(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, []string{"*:*:*"}, perms)

	// All roles removed: the bypass does not depend on join rows.
	repo.setUserRoles("root")
	require.NoError(t, svc.Cache().Invalidate(ctx, "root"))
	perms, err = svc.FindUserPermissions(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, []string{"*:*:*"}, perms)
}

func TestFindUserPermissionsDefaultRoleBypass(t *testing.T) {
	repo := newStubRepo()
	repo.userNames["u9"] = "operator"
	repo.setUserRoles("u9", "admin")
	svc, _ := newTestService(t, repo)

	perms, err := svc.FindUserPermissions(context.Background(), "u9")
	require.NoError(t, err)
	assert.Equal(t, []string{"*:*:*"}, perms)
}

func TestFindUserPermissionsSeesRoleChangeAfterInvalidation(t *testing.T) {
	repo := newStubRepo()
	repo.userNames["u1"] = "alice"
	repo.setUserRoles("u1", "R")
	repo.setRolePerms("R", "system:user:add")
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	perms, err := svc.FindUserPermissions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"system:user:add"}, perms)

	repo.setRolePerms("R")
	require.NoError(t, svc.Cache().Invalidate(ctx, "u1"))

	perms, err = svc.FindUserPermissions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestFindUserPermissionsUnknownUser(t *testing.T) {
	svc, _ := newTestService(t, newStubRepo())
	_, err := svc.FindUserPermissions(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestFindUserPermissionsCoalescesConcurrentMisses(t *testing.T) {
	repo := &slowRepo{stubRepo: newStubRepo(), delay: 50 * time.Millisecond}
	repo.userNames["u1"] = "alice"
	repo.setUserRoles("u1", "R")
	repo.setRolePerms("R", "a:b:c")
	svc, _ := newTestService(t, repo)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			perms, err := svc.FindUserPermissions(context.Background(), "u1")
			assert.NoError(t, err)
			assert.Equal(t, []string{"a:b:c"}, perms)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, repo.grantCalls.Load(), int32(2))
}

func TestFindUserPermissionsWaiterSurvivesLeaderCancel(t *testing.T) {
	repo := &gatedRepo{stubRepo: newStubRepo(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	repo.userNames["u1"] = "alice"
	repo.setUserRoles("u1", "R")
	repo.setRolePerms("R", "a:b:c")
	svc, _ := newTestService(t, repo)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.FindUserPermissions(leaderCtx, "u1")
		leaderErr <- err
	}()
	<-repo.entered

	type result struct {
		perms []string
		err   error
	}
	waiter := make(chan result, 1)
	go func() {
		perms, err := svc.FindUserPermissions(context.Background(), "u1")
		waiter <- result{perms, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	close(repo.release)

	got := <-waiter
	require.NoError(t, got.err)
	assert.Equal(t, []string{"a:b:c"}, got.perms)
	assert.Equal(t, int32(1), repo.grantCalls.Load())
}

// gatedRepo holds UserGrant until release is closed and then honours ctx.
type gatedRepo struct {
	*stubRepo
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRepo) UserGrant(ctx context.Context, userID string) (Grant, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}
	return g.stubRepo.UserGrant(ctx, userID)
}

type slowRepo struct {
	*stubRepo
	delay time.Duration
}

func (s *slowRepo) UserGrant(ctx context.Context, userID string) (Grant, error) {
	time.Sleep(s.delay)
	return s.stubRepo.UserGrant(ctx, userID)
}

func TestGetUserInfo(t *testing.T) {
	repo := newStubRepo()
	repo.profiles["u1"] = Profile{
		UserName:  "alice",
		NickName:  "",
		RoleNames: []string{"editor"},
		Nodes: []Node{
			{ID: 3, PID: pid(2), Type: TypeButton, Permission: "system:user:add", Sort: 1},
			{ID: 1, Type: TypeDirectory, Name: "System", Sort: 10},
			{ID: 2, PID: pid(1), Type: TypeMenu, Name: "Users", Sort: 5},
			{ID: 4, PID: pid(2), Type: TypeButton, Permission: "system:user:del", Sort: 0},
		},
	}
	svc, _ := newTestService(t, repo)

	info, err := svc.GetUserInfo(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Name, "falls back to user name")
	assert.Equal(t, []string{"editor"}, info.Roles)
	assert.Equal(t, []string{"system:user:add", "system:user:del"}, info.Permissions)
	require.Len(t, info.Menus, 1)
	require.Len(t, info.Menus[0].Children, 1)
	assert.Empty(t, info.Menus[0].Children[0].Children, "buttons are not part of the menu tree")
}

func TestGetUserInfoWithoutRoles(t *testing.T) {
	repo := newStubRepo()
	repo.profiles["u1"] = Profile{UserName: "bob", NickName: "Bobby"}
	svc, _ := newTestService(t, repo)

	info, err := svc.GetUserInfo(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Bobby", info.Name)
	assert.Empty(t, info.Permissions)
	assert.Empty(t, info.Menus)
}

func TestGetUserInfoSuperAdmin(t *testing.T) {
	repo := newStubRepo()
	repo.profiles["root"] = Profile{
		UserName:  "sAdmin",
		RoleNames: []string{"admin"},
		Nodes:     []Node{{ID: 1, Type: TypeMenu, Name: "Dashboard"}},
	}
	svc, _ := newTestService(t, repo)

	info, err := svc.GetUserInfo(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, []string{"*:*:*"}, info.Permissions)
	assert.Len(t, info.Menus, 1)
}

func TestGetUserInfoNotFound(t *testing.T) {
	svc, _ := newTestService(t, newStubRepo())
	_, err := svc.GetUserInfo(context.Background(), "nobody")
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}
