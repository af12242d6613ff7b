package permissions_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/permissions"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
	_ "github.com/odyssey-erp/odyssey-rbac/testing"
)

type memStore struct {
	mu      sync.Mutex
	nextID  int64
	nodes   map[int64]*permissions.Permission
	deleted map[int64]bool
	granted map[int64][]int64
	grants  map[string][]string
}

func newMemStore() *memStore {
	return &memStore{
		nodes:   map[int64]*permissions.Permission{},
		deleted: map[int64]bool{},
		granted: map[int64][]int64{},
		grants:  map[string][]string{},
	}
}

func (m *memStore) liveNodes() []rbac.Node {
	var out []rbac.Node
	for id, p := range m.nodes {
		if !m.deleted[id] {
			out = append(out, p.Node)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) NameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.liveNodes() {
		if n.Name == name && n.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) IdentifierTaken(ctx context.Context, identifier string, exceptID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.liveNodes() {
		if n.Permission == identifier && n.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Create(ctx context.Context, n rbac.Node) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	m.nodes[n.ID] = &permissions.Permission{Node: n, CreatedAt: time.Now()}
	return n.ID, nil
}

func (m *memStore) Get(ctx context.Context, id int64) (permissions.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.nodes[id]
	if !ok || m.deleted[id] {
		return permissions.Permission{}, shared.NotFound("permission not found")
	}
	return *p, nil
}

func (m *memStore) List(ctx context.Context, f permissions.ListFilter) ([]permissions.Permission, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []permissions.Permission
	for _, n := range m.liveNodes() {
		if f.Type != "" && n.Type != f.Type {
			continue
		}
		out = append(out, *m.nodes[n.ID])
	}
	return out, len(out), nil
}

func (m *memStore) Nodes(ctx context.Context, withButtons bool) ([]rbac.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nodes := m.liveNodes()
	if !withButtons {
		nodes = rbac.FilterNavigable(nodes)
	}
	return nodes, nil
}

func (m *memStore) FindLive(ctx context.Context, ids []int64) ([]permissions.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []permissions.Permission
	for _, id := range ids {
		if p, ok := m.nodes[id]; ok && !m.deleted[id] {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) Children(ctx context.Context, ids []int64) ([]rbac.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rbac.Node
	for _, n := range m.liveNodes() {
		if n.IsRoot() {
			continue
		}
		for _, id := range ids {
			if *n.PID == id {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

func (m *memStore) AssignedRoleIDs(ctx context.Context, ids []int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for _, id := range ids {
		out = append(out, m.granted[id]...)
	}
	return out, nil
}

func (m *memStore) Update(ctx context.Context, n rbac.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.nodes[n.ID]
	if !ok || m.deleted[n.ID] {
		return shared.NotFound("permission not found")
	}
	p.Node = n
	return nil
}

func (m *memStore) SoftDelete(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.deleted[id] = true
		delete(m.granted, id)
	}
	return nil
}

// UserGrant answers the resolver from a fixed per-user table.
func (m *memStore) UserGrant(ctx context.Context, userID string) (rbac.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return rbac.Grant{UserName: userID, Permissions: m.grants[userID]}, nil
}

func (m *memStore) UserProfile(ctx context.Context, userID string) (rbac.Profile, error) {
	return rbac.Profile{}, shared.ErrNotFound
}

type fixture struct {
	store *memStore
	svc   *permissions.Service
	rbac  *rbac.Service
	mr    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemStore()
	cache := rbac.NewPermissionCache(client, time.Hour)
	resolver := rbac.NewService(store, cache, rbac.Options{
		DefaultUserName: "sAdmin",
		DefaultRoleName: "admin",
		SuperPermission: "*:*:*",
		CacheTTL:        time.Hour,
	}, nil)
	return &fixture{store: store, svc: permissions.NewService(store, cache, nil, nil), rbac: resolver, mr: mr}
}

// seedSystem creates a directory, a menu under it and one button.
func seedSystem(t *testing.T, f *fixture) (dir, menu, button int64) {
	t.Helper()
	ctx := context.Background()
	var err error
	dir, err = f.svc.Create(ctx, "actor", permissions.CreateInput{Name: "System", Type: rbac.TypeDirectory, Path: "/system"})
	require.NoError(t, err)
	menu, err = f.svc.Create(ctx, "actor", permissions.CreateInput{PID: &dir, Name: "Users", Type: rbac.TypeMenu, Path: "users", Component: "system/users"})
	require.NoError(t, err)
	button, err = f.svc.Create(ctx, "actor", permissions.CreateInput{PID: &menu, Name: "Add user", Type: rbac.TypeButton, Permission: "system:user:add"})
	require.NoError(t, err)
	return dir, menu, button
}

func ptr[T any](v T) *T { return &v }

func TestCreateValidatesShape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir, menu, button := seedSystem(t, f)

	cases := []struct {
		name string
		in   permissions.CreateInput
		kind shared.Kind
	}{
		{"directory without path", permissions.CreateInput{Name: "a", Type: rbac.TypeDirectory}, shared.KindValidation},
		{"menu without component", permissions.CreateInput{Name: "b", Type: rbac.TypeMenu, Path: "b"}, shared.KindValidation},
		{"button without identifier", permissions.CreateInput{PID: &menu, Name: "c", Type: rbac.TypeButton}, shared.KindValidation},
		{"identifier on a menu", permissions.CreateInput{Name: "d", Type: rbac.TypeMenu, Path: "d", Component: "d", Permission: "x:y:z"}, shared.KindValidation},
		{"missing parent", permissions.CreateInput{PID: ptr(int64(999)), Name: "e", Type: rbac.TypeDirectory, Path: "e"}, shared.KindNotFound},
		{"child of a button", permissions.CreateInput{PID: &button, Name: "f", Type: rbac.TypeButton, Permission: "f:f:f"}, shared.KindInvariant},
		{"menu under a menu", permissions.CreateInput{PID: &menu, Name: "g", Type: rbac.TypeMenu, Path: "g", Component: "g"}, shared.KindInvariant},
		{"duplicate name", permissions.CreateInput{PID: &dir, Name: "Users", Type: rbac.TypeDirectory, Path: "h"}, shared.KindConflict},
		{"duplicate identifier", permissions.CreateInput{PID: &menu, Name: "i", Type: rbac.TypeButton, Permission: "system:user:add"}, shared.KindConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, "actor", tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, shared.KindOf(err))
		})
	}
}

func TestUpdateRejectsCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir, menu, _ := seedSystem(t, f)
	sub, err := f.svc.Create(ctx, "actor", permissions.CreateInput{PID: &dir, Name: "Nested", Type: rbac.TypeDirectory, Path: "nested"})
	require.NoError(t, err)

	err = f.svc.Update(ctx, "actor", dir, permissions.UpdateInput{PID: &dir})
	assert.Equal(t, shared.KindInvariant, shared.KindOf(err))

	err = f.svc.Update(ctx, "actor", dir, permissions.UpdateInput{PID: &sub})
	assert.Equal(t, shared.KindInvariant, shared.KindOf(err))

	err = f.svc.Update(ctx, "actor", menu, permissions.UpdateInput{Type: ptr(rbac.TypeButton), Permission: ptr("m:m:m")})
	assert.Equal(t, shared.KindInvariant, shared.KindOf(err))

	require.NoError(t, f.svc.Update(ctx, "actor", sub, permissions.UpdateInput{PID: ptr(int64(0))}))
	p, err := f.svc.Get(ctx, sub)
	require.NoError(t, err)
	assert.True(t, p.IsRoot())
}

func TestRenameRewritesCachedSets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, button := seedSystem(t, f)
	_, err := f.mr.SetAdd(rbac.PermissionsKey("u1"), "system:user:add", "system:user:query")
	require.NoError(t, err)
	_, err = f.mr.SetAdd(rbac.PermissionsKey("u2"), "system:user:query")
	require.NoError(t, err)

	require.NoError(t, f.svc.Update(ctx, "actor", button, permissions.UpdateInput{Permission: ptr("system:user:create")}))

	members, err := f.mr.Members(rbac.PermissionsKey("u1"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"system:user:create", "system:user:query"}, members)
	members, err = f.mr.Members(rbac.PermissionsKey("u2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"system:user:query"}, members)
}

func TestDisableDropsHoldersSets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, button := seedSystem(t, f)
	f.store.grants["u1"] = []string{"system:user:add"}
	perms, err := f.rbac.FindUserPermissions(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"system:user:add"}, perms)
	_, err = f.mr.SetAdd(rbac.PermissionsKey("u2"), "system:user:query")
	require.NoError(t, err)

	f.store.grants["u1"] = nil
	require.NoError(t, f.svc.Update(ctx, "actor", button, permissions.UpdateInput{Disabled: ptr(true)}))
	assert.False(t, f.mr.Exists(rbac.PermissionsKey("u1")))
	assert.True(t, f.mr.Exists(rbac.PermissionsKey("u2")))

	perms, err = f.rbac.FindUserPermissions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, perms)

	// Re-enabling cannot know which sets should regain it.
	require.NoError(t, f.svc.Update(ctx, "actor", button, permissions.UpdateInput{Disabled: ptr(false)}))
	assert.False(t, f.mr.Exists(rbac.PermissionsKey("u2")))
}

func TestDeleteRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir, menu, button := seedSystem(t, f)

	err := f.svc.Delete(ctx, "actor", dir)
	assert.Equal(t, shared.KindInvariant, shared.KindOf(err))

	f.store.granted[button] = []int64{7}
	err = f.svc.Delete(ctx, "actor", button)
	assert.Equal(t, shared.KindInvariant, shared.KindOf(err))
	delete(f.store.granted, button)

	err = f.svc.BatchDelete(ctx, "actor", []int64{button, 999})
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))

	_, err = f.mr.SetAdd(rbac.PermissionsKey("u1"), "system:user:add")
	require.NoError(t, err)
	require.NoError(t, f.svc.BatchDelete(ctx, "actor", []int64{dir, menu, button}))
	assert.False(t, f.mr.Exists(rbac.PermissionsKey("u1")))

	tree, err := f.svc.Tree(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestTreeHonoursContainButton(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir, menu, button := seedSystem(t, f)

	tree, err := f.svc.Tree(ctx, false)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, dir, tree[0].ID)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, menu, tree[0].Children[0].ID)
	assert.Empty(t, tree[0].Children[0].Children)

	tree, err = f.svc.Tree(ctx, true)
	require.NoError(t, err)
	require.Len(t, tree[0].Children[0].Children, 1)
	assert.Equal(t, button, tree[0].Children[0].Children[0].ID)
}
