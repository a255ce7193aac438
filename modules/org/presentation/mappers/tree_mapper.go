package mappers

import (
	"github.com/google/uuid"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/presentation/viewmodels"
)

// HierarchyToTree flattens f in pre-order, siblings in insertion order. Nodes
// unreachable from a root (a cycle in stored data) are appended afterwards,
// each starting at depth zero.
func HierarchyToTree(f *hierarchy.Forest, selectedNodeID *uuid.UUID) *viewmodels.HierarchyTree {
	out := make([]viewmodels.HierarchyTreeNode, 0, f.Len())
	visited := make(map[uuid.UUID]struct{}, f.Len())

	type frame struct {
		node  hierarchy.Node
		depth int
	}
	walk := func(start hierarchy.Node) {
		stack := []frame{{node: start}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			n := top.node
			if _, ok := visited[n.ID]; ok {
				continue
			}
			visited[n.ID] = struct{}{}

			var parentID *uuid.UUID
			if p, ok := f.ParentOf(n.ID); ok {
				parentID = &p
			}
			out = append(out, viewmodels.HierarchyTreeNode{
				ID:          n.ID,
				Name:        n.DisplayName,
				ParentID:    parentID,
				Depth:       top.depth,
				ChildCount:  n.ChildCount,
				MemberCount: n.MemberCount,
				Selected:    selectedNodeID != nil && *selectedNodeID == n.ID,
			})

			children := f.ChildrenOf(n.ID)
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, frame{node: children[i], depth: top.depth + 1})
			}
		}
	}

	for _, r := range f.Roots() {
		walk(r)
	}
	if len(visited) != f.Len() {
		for _, n := range f.Nodes() {
			if _, ok := visited[n.ID]; !ok {
				walk(n)
			}
		}
	}

	return &viewmodels.HierarchyTree{Kind: f.Kind().String(), Nodes: out}
}
