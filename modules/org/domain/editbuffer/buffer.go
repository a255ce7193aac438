// Package editbuffer keeps the net, not-yet-persisted parent changes layered
// over the last fetched hierarchy snapshot.
package editbuffer

import (
	"github.com/google/uuid"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
)

// Detach is the single undoable edge removal.
type Detach struct {
	NodeID           uuid.UUID
	PreviousParentID uuid.UUID
}

// Buffer stores at most one pending parent per node, last write wins. It is
// not a log: entries that return a node to its fetched parent are dropped.
type Buffer struct {
	snapshot *hierarchy.Forest
	pending  map[uuid.UUID]*uuid.UUID
	order    []uuid.UUID
	last     *Detach
}

func New(snapshot *hierarchy.Forest) *Buffer {
	return &Buffer{
		snapshot: snapshot,
		pending:  make(map[uuid.UUID]*uuid.UUID),
	}
}

func (b *Buffer) Snapshot() *hierarchy.Forest { return b.snapshot }

func (b *Buffer) originalParent(nodeID uuid.UUID) *uuid.UUID {
	p, ok := b.snapshot.ParentOf(nodeID)
	if !ok {
		return nil
	}
	return &p
}

func (b *Buffer) RecordReparent(nodeID uuid.UUID, newParentID *uuid.UUID) {
	if hierarchy.SameParent(newParentID, b.originalParent(nodeID)) {
		if _, ok := b.pending[nodeID]; ok {
			delete(b.pending, nodeID)
			b.dropOrder(nodeID)
		}
		return
	}
	if _, ok := b.pending[nodeID]; !ok {
		b.order = append(b.order, nodeID)
	}
	var p *uuid.UUID
	if newParentID != nil {
		v := *newParentID
		p = &v
	}
	b.pending[nodeID] = p
}

func (b *Buffer) RecordDetach(nodeID, previousParentID uuid.UUID) {
	b.RecordReparent(nodeID, nil)
	b.last = &Detach{NodeID: nodeID, PreviousParentID: previousParentID}
}

// LastDetach peeks at the undo register.
func (b *Buffer) LastDetach() (Detach, bool) {
	if b.last == nil {
		return Detach{}, false
	}
	return *b.last, true
}

// UndoLastDetach re-attaches the most recently detached node. It reports false
// when there is nothing to undo.
func (b *Buffer) UndoLastDetach() bool {
	if b.last == nil {
		return false
	}
	d := *b.last
	b.last = nil
	b.RecordReparent(d.NodeID, &d.PreviousParentID)
	return true
}

// ClearLastDetach empties the undo register without touching pending parents.
func (b *Buffer) ClearLastDetach() {
	b.last = nil
}

func (b *Buffer) IsDirty() bool {
	return len(b.pending) > 0
}

func (b *Buffer) Len() int {
	return len(b.pending)
}

func (b *Buffer) Reset() {
	b.pending = make(map[uuid.UUID]*uuid.UUID)
	b.order = nil
	b.last = nil
}

// PendingParent returns the buffered parent of nodeID, if any.
func (b *Buffer) PendingParent(nodeID uuid.UUID) (*uuid.UUID, bool) {
	p, ok := b.pending[nodeID]
	if !ok {
		return nil, false
	}
	if p == nil {
		return nil, true
	}
	v := *p
	return &v, true
}

// Flatten lists the net changes in first-touch order.
func (b *Buffer) Flatten() []hierarchy.ParentUpdate {
	out := make([]hierarchy.ParentUpdate, 0, len(b.order))
	for _, nodeID := range b.order {
		p, ok := b.pending[nodeID]
		if !ok {
			continue
		}
		u := hierarchy.ParentUpdate{ID: nodeID}
		if p != nil {
			v := *p
			u.NewParentID = &v
		}
		out = append(out, u)
	}
	return out
}

// Apply returns the working forest: the snapshot with every pending parent
// in place.
func (b *Buffer) Apply() *hierarchy.Forest {
	if len(b.pending) == 0 {
		return b.snapshot
	}
	return b.snapshot.WithParents(b.pending)
}

func (b *Buffer) dropOrder(nodeID uuid.UUID) {
	for i, id := range b.order {
		if id == nodeID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}
