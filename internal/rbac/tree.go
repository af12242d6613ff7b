package rbac

import "sort"

// BuildTree nests nodes under their parents and orders every level by Sort
// descending, then ID ascending. Input order does not matter.
//
// A node whose parent is absent from nodes is dropped together with its
// subtree: a caller that cannot see the parent has no path to the child.
// Duplicate IDs keep the first occurrence. The input slice is not modified.
func BuildTree(nodes []Node) []*Node {
	index := make(map[int64]*Node, len(nodes))
	order := make([]*Node, 0, len(nodes))
	for i := range nodes {
		if _, dup := index[nodes[i].ID]; dup {
			continue
		}
		n := nodes[i]
		n.Children = nil
		index[n.ID] = &n
		order = append(order, &n)
	}

	roots := make([]*Node, 0)
	for _, n := range order {
		if n.IsRoot() {
			roots = append(roots, n)
			continue
		}
		if *n.PID == n.ID {
			continue
		}
		parent, ok := index[*n.PID]
		if !ok {
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	sortLevel(roots)
	return roots
}

func sortLevel(level []*Node) {
	sort.Slice(level, func(i, j int) bool {
		if level[i].Sort != level[j].Sort {
			return level[i].Sort > level[j].Sort
		}
		return level[i].ID < level[j].ID
	})
	for _, n := range level {
		if len(n.Children) > 0 {
			sortLevel(n.Children)
		}
	}
}

// FilterNavigable returns the nodes that belong in a menu tree.
func FilterNavigable(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Type != TypeButton {
			out = append(out, n)
		}
	}
	return out
}
