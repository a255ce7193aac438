package canvas

import (
	"github.com/google/uuid"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
)

// Point is a node's slot in the layered layout. X is measured in leaf slots
// and centred over the node's subtree; Y is the depth.
type Point struct {
	X float64
	Y int
}

type Layout struct {
	Order     []uuid.UUID
	Positions map[uuid.UUID]Point
	Width     int
	Depth     int
}

// computeLayout places every node of f as a tidy tree: roots side by side in
// insertion order, each parent centred over its children. Both passes use an
// explicit stack. Nodes unreachable from a root are appended as extra roots.
func computeLayout(f *hierarchy.Forest) Layout {
	order, depth := preOrder(f)

	width := make(map[uuid.UUID]int, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		w := 0
		for _, child := range f.ChildrenOf(id) {
			w += width[child.ID]
		}
		if w == 0 {
			w = 1
		}
		width[id] = w
	}

	out := Layout{
		Order:     order,
		Positions: make(map[uuid.UUID]Point, len(order)),
	}
	left := make(map[uuid.UUID]int, len(order))
	cursor := 0
	for _, id := range order {
		l, placed := left[id]
		if !placed || depth[id] == 0 {
			l = cursor
			cursor += width[id]
		}
		out.Positions[id] = Point{
			X: float64(l) + float64(width[id])/2 - 0.5,
			Y: depth[id],
		}
		if depth[id] > out.Depth {
			out.Depth = depth[id]
		}
		next := l
		for _, child := range f.ChildrenOf(id) {
			left[child.ID] = next
			next += width[child.ID]
		}
	}
	out.Width = cursor
	return out
}

func preOrder(f *hierarchy.Forest) ([]uuid.UUID, map[uuid.UUID]int) {
	order := make([]uuid.UUID, 0, f.Len())
	depth := make(map[uuid.UUID]int, f.Len())
	visited := make(map[uuid.UUID]struct{}, f.Len())

	type frame struct {
		id    uuid.UUID
		depth int
	}
	walk := func(root uuid.UUID) {
		stack := []frame{{id: root}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, seen := visited[top.id]; seen {
				continue
			}
			visited[top.id] = struct{}{}
			order = append(order, top.id)
			depth[top.id] = top.depth
			children := f.ChildrenOf(top.id)
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, frame{id: children[i].ID, depth: top.depth + 1})
			}
		}
	}

	for _, root := range f.Roots() {
		walk(root.ID)
	}
	for _, n := range f.Nodes() {
		if _, seen := visited[n.ID]; !seen {
			walk(n.ID)
		}
	}
	return order, depth
}
