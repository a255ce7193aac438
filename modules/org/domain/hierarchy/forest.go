package hierarchy

import (
	"github.com/google/uuid"
)

// Forest is an immutable parent/child index built from a flat node list.
type Forest struct {
	kind     Kind
	order    []uuid.UUID
	nodes    map[uuid.UUID]Node
	parent   map[uuid.UUID]uuid.UUID
	children map[uuid.UUID][]uuid.UUID
	roots    []uuid.UUID
}

// Build indexes nodes by parent. A node whose parent is missing, nil or itself
// becomes a root; the source list is trusted to be acyclic otherwise.
func Build(kind Kind, nodes []Node) *Forest {
	f := &Forest{
		kind:     kind,
		order:    make([]uuid.UUID, 0, len(nodes)),
		nodes:    make(map[uuid.UUID]Node, len(nodes)),
		parent:   make(map[uuid.UUID]uuid.UUID, len(nodes)),
		children: make(map[uuid.UUID][]uuid.UUID, len(nodes)),
	}
	for _, n := range nodes {
		if n.ID == uuid.Nil {
			continue
		}
		if _, dup := f.nodes[n.ID]; dup {
			continue
		}
		n.ParentID = copyParent(n.ParentID)
		if n.Kind == 0 {
			n.Kind = kind
		}
		f.nodes[n.ID] = n
		f.order = append(f.order, n.ID)
	}

	for _, id := range f.order {
		n := f.nodes[id]
		if n.ParentID == nil || *n.ParentID == uuid.Nil || *n.ParentID == id {
			f.roots = append(f.roots, id)
			continue
		}
		if _, ok := f.nodes[*n.ParentID]; !ok {
			f.roots = append(f.roots, id)
			continue
		}
		f.parent[id] = *n.ParentID
		f.children[*n.ParentID] = append(f.children[*n.ParentID], id)
	}
	return f
}

func (f *Forest) Kind() Kind { return f.kind }

func (f *Forest) Len() int { return len(f.order) }

func (f *Forest) Has(id uuid.UUID) bool {
	_, ok := f.nodes[id]
	return ok
}

func (f *Forest) Node(id uuid.UUID) (Node, bool) {
	n, ok := f.nodes[id]
	return n, ok
}

// ParentOf returns the effective parent. Roots, including nodes with a dangling
// parent reference, report false.
func (f *Forest) ParentOf(id uuid.UUID) (uuid.UUID, bool) {
	p, ok := f.parent[id]
	return p, ok
}

// GroupOf returns the group key of a node and whether the node exists.
func (f *Forest) GroupOf(id uuid.UUID) (uuid.UUID, bool) {
	n, ok := f.nodes[id]
	if !ok {
		return uuid.Nil, false
	}
	return n.GroupKey, true
}

// Nodes returns all nodes in insertion order.
func (f *Forest) Nodes() []Node {
	out := make([]Node, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.nodes[id])
	}
	return out
}

func (f *Forest) Roots() []Node {
	out := make([]Node, 0, len(f.roots))
	for _, id := range f.roots {
		out = append(out, f.nodes[id])
	}
	return out
}

func (f *Forest) ChildrenOf(id uuid.UUID) []Node {
	ids := f.children[id]
	out := make([]Node, 0, len(ids))
	for _, cid := range ids {
		out = append(out, f.nodes[cid])
	}
	return out
}

// DescendantsOf returns every node reachable through child links, excluding id.
func (f *Forest) DescendantsOf(id uuid.UUID) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{})
	stack := append([]uuid.UUID(nil), f.children[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == id {
			continue
		}
		if _, seen := out[cur]; seen {
			continue
		}
		out[cur] = struct{}{}
		stack = append(stack, f.children[cur]...)
	}
	return out
}

// IsDescendant reports whether candidateID is a strict descendant of ancestorID.
// It walks the ancestor chain of the candidate, which yields the same answer as
// a membership test on DescendantsOf in O(depth).
func (f *Forest) IsDescendant(ancestorID, candidateID uuid.UUID) bool {
	if !f.Has(ancestorID) || !f.Has(candidateID) {
		return false
	}
	visited := make(map[uuid.UUID]struct{})
	cur, ok := f.parent[candidateID]
	for ok {
		if cur == ancestorID {
			return true
		}
		if _, seen := visited[cur]; seen {
			return false
		}
		visited[cur] = struct{}{}
		cur, ok = f.parent[cur]
	}
	return false
}

// Depth is the number of ancestors above id; unknown nodes report -1.
func (f *Forest) Depth(id uuid.UUID) int {
	if !f.Has(id) {
		return -1
	}
	depth := 0
	visited := map[uuid.UUID]struct{}{id: {}}
	cur, ok := f.parent[id]
	for ok {
		if _, seen := visited[cur]; seen {
			break
		}
		visited[cur] = struct{}{}
		depth++
		cur, ok = f.parent[cur]
	}
	return depth
}

// WithParents returns a new forest where the listed nodes use the given parent
// (nil detaches). Unknown ids are ignored; the receiver is left untouched.
func (f *Forest) WithParents(overrides map[uuid.UUID]*uuid.UUID) *Forest {
	nodes := make([]Node, 0, len(f.order))
	for _, id := range f.order {
		n := f.nodes[id]
		if p, ok := overrides[id]; ok {
			n.ParentID = copyParent(p)
		}
		nodes = append(nodes, n)
	}
	return Build(f.kind, nodes)
}

// FindCycle returns the members of one parent cycle, or nil for a valid forest.
func (f *Forest) FindCycle() []uuid.UUID {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[uuid.UUID]int, len(f.order))
	for _, start := range f.order {
		if state[start] != unvisited {
			continue
		}
		var path []uuid.UUID
		cur, ok := start, true
		for ok && state[cur] == unvisited {
			state[cur] = inProgress
			path = append(path, cur)
			cur, ok = f.parent[cur]
		}
		if ok && state[cur] == inProgress {
			for i, id := range path {
				if id == cur {
					return append([]uuid.UUID(nil), path[i:]...)
				}
			}
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return nil
}
