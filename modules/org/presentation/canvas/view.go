package canvas

import (
	"github.com/google/uuid"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
)

type ViewNode struct {
	ID          uuid.UUID
	DisplayName string
	ParentID    *uuid.UUID
	GroupKey    uuid.UUID
	ChildCount  int
	MemberCount int
	Depth       int
	X           float64
	// Pending marks nodes whose parent differs from the last fetch.
	Pending    bool
	Dragging   bool
	DropTarget bool
}

type Edge struct {
	ParentID uuid.UUID
	ChildID  uuid.UUID
	Pending  bool
}

// View is a copy of everything the renderer needs. It shares no memory with
// the controller.
type View struct {
	Kind         hierarchy.Kind
	State        State
	Loaded       bool
	Dirty        bool
	PendingCount int
	CanUndo      bool
	Nodes        []ViewNode
	Edges        []Edge
	Width        int
	Depth        int
	Drag         DragState
	Notice       *Notice
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, canUndo := c.buffer.LastDetach()
	v := View{
		Kind:         c.kind,
		State:        c.state,
		Loaded:       c.loaded,
		Dirty:        c.buffer.IsDirty(),
		PendingCount: c.buffer.Len(),
		CanUndo:      canUndo && c.state != StateCommitting,
		Nodes:        make([]ViewNode, 0, len(c.layout.Order)),
		Width:        c.layout.Width,
		Depth:        c.layout.Depth,
		Drag:         c.drag,
	}
	if c.drag.TargetID != nil {
		t := *c.drag.TargetID
		v.Drag.TargetID = &t
	}
	if c.notice != nil {
		n := *c.notice
		v.Notice = &n
	}

	for _, id := range c.layout.Order {
		n, ok := c.working.Node(id)
		if !ok {
			continue
		}
		_, pending := c.buffer.PendingParent(id)
		pos := c.layout.Positions[id]
		var parentID *uuid.UUID
		if p, ok := c.working.ParentOf(id); ok {
			parentID = &p
		}
		vn := ViewNode{
			ID:          n.ID,
			DisplayName: n.DisplayName,
			ParentID:    parentID,
			GroupKey:    n.GroupKey,
			ChildCount:  len(c.working.ChildrenOf(id)),
			MemberCount: n.MemberCount,
			Depth:       pos.Y,
			X:           pos.X,
			Pending:     pending,
			Dragging:    c.drag.Active && c.drag.SourceID == id,
			DropTarget:  c.drag.TargetValid && c.drag.TargetID != nil && *c.drag.TargetID == id,
		}
		v.Nodes = append(v.Nodes, vn)
		if parentID != nil {
			v.Edges = append(v.Edges, Edge{ParentID: *parentID, ChildID: id, Pending: pending})
		}
	}
	return v
}
