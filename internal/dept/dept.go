package dept

import (
	"context"

	"github.com/frahmantamala/rbac-admin/pkg/idset"
)

// RootParent is the parent key under which top-level departments are indexed.
const RootParent int64 = 0

type Node struct {
	ID       int64  `db:"id"`
	ParentID *int64 `db:"parent_id"`
}

// ChildrenIndex maps a department id to the ids of its direct children.
type ChildrenIndex map[int64][]int64

type RepositoryAPI interface {
	ListNodes(ctx context.Context) ([]Node, error)
	ListUserIDsByDeptIDs(ctx context.Context, deptIDs []int64) ([]int64, error)
}

func BuildChildrenIndex(nodes []Node) ChildrenIndex {
	idx := make(ChildrenIndex, len(nodes))
	for _, n := range nodes {
		parent := RootParent
		if n.ParentID != nil {
			parent = *n.ParentID
		}
		idx[parent] = append(idx[parent], n.ID)
	}
	return idx
}

// ExpandDescendants returns the start ids together with every department reachable
// below them. Ids <= 0 are skipped and cycles in the index terminate the walk.
func ExpandDescendants(start []int64, idx ChildrenIndex) idset.Set {
	out := idset.New()
	stack := make([]int64, 0, len(start))
	for _, id := range start {
		if id > 0 {
			stack = append(stack, id)
		}
	}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out.Has(current) {
			continue
		}
		out.Add(current)
		for _, child := range idx[current] {
			if child > 0 && !out.Has(child) {
				stack = append(stack, child)
			}
		}
	}
	return out
}
