package rbac

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pid(v int64) *int64 { return &v }

func ids(nodes []*Node) []int64 {
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestBuildTreeOrdersChildrenBySortDescending(t *testing.T) {
	rows := []Node{
		{ID: 1, PID: nil, Sort: 5},
		{ID: 2, PID: pid(1), Sort: 9},
		{ID: 3, PID: pid(1), Sort: 1},
	}

	tree := BuildTree(rows)

	require.Len(t, tree, 1)
	assert.Equal(t, int64(1), tree[0].ID)
	assert.Equal(t, []int64{2, 3}, ids(tree[0].Children))
}

func TestBuildTreeChildBeforeParent(t *testing.T) {
	rows := []Node{
		{ID: 4, PID: pid(2), Sort: 0},
		{ID: 2, PID: pid(0), Sort: 1},
		{ID: 1, Sort: 3},
	}

	tree := BuildTree(rows)

	assert.Equal(t, []int64{1, 2}, ids(tree))
	require.Len(t, tree[1].Children, 1)
	assert.Equal(t, int64(4), tree[1].Children[0].ID)
}

func TestBuildTreeTiesBrokenByID(t *testing.T) {
	rows := []Node{
		{ID: 9, Sort: 1},
		{ID: 3, Sort: 1},
		{ID: 5, Sort: 2},
	}
	assert.Equal(t, []int64{5, 3, 9}, ids(BuildTree(rows)))
}

func TestBuildTreeDropsOrphans(t *testing.T) {
	rows := []Node{
		{ID: 1, Sort: 1},
		{ID: 2, PID: pid(99), Sort: 1},
		{ID: 3, PID: pid(2), Sort: 1},
		{ID: 4, PID: pid(4), Sort: 1},
	}

	tree := BuildTree(rows)

	require.Len(t, tree, 1)
	assert.Equal(t, int64(1), tree[0].ID)
	assert.Empty(t, tree[0].Children)
}

func TestBuildTreeDeduplicatesAndKeepsInput(t *testing.T) {
	rows := []Node{
		{ID: 1, Name: "first"},
		{ID: 1, Name: "second"},
		{ID: 2, PID: pid(1)},
	}

	tree := BuildTree(rows)

	require.Len(t, tree, 1)
	assert.Equal(t, "first", tree[0].Name)
	assert.Len(t, tree[0].Children, 1)
	assert.Nil(t, rows[0].Children, "input must not be mutated")
}

func TestBuildTreePermutationInvariant(t *testing.T) {
	rows := []Node{
		{ID: 1, Sort: 10},
		{ID: 2, Sort: 10},
		{ID: 3, PID: pid(1), Sort: 3},
		{ID: 4, PID: pid(1), Sort: 7},
		{ID: 5, PID: pid(4), Sort: 0},
		{ID: 6, PID: pid(4), Sort: 0},
		{ID: 7, PID: pid(2), Sort: -1},
		{ID: 8, PID: pid(42), Sort: 100},
	}
	want := BuildTree(rows)

	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 25; i++ {
		shuffled := append([]Node(nil), rows...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, BuildTree(shuffled))
	}

	assertSorted(t, want)
}

func assertSorted(t *testing.T, level []*Node) {
	t.Helper()
	for i := 1; i < len(level); i++ {
		prev, cur := level[i-1], level[i]
		ok := prev.Sort > cur.Sort || (prev.Sort == cur.Sort && prev.ID < cur.ID)
		assert.Truef(t, ok, "nodes %d and %d out of order", prev.ID, cur.ID)
	}
	for _, n := range level {
		assertSorted(t, n.Children)
	}
}

func TestFilterNavigable(t *testing.T) {
	rows := []Node{
		{ID: 1, Type: TypeDirectory},
		{ID: 2, Type: TypeMenu, PID: pid(1)},
		{ID: 3, Type: TypeButton, PID: pid(2), Permission: "system:user:add"},
	}
	assert.Len(t, FilterNavigable(rows), 2)
}
