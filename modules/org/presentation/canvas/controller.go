package canvas

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/editbuffer"
	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
)

type State int

const (
	StateClean State = iota
	StateModified
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateModified:
		return "modified"
	case StateCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

const (
	MessageBusy          = "Org.Hierarchy.Busy"
	MessageNothingToUndo = "Org.Hierarchy.NothingToUndo"
	MessageFetchFailed   = "Org.Hierarchy.FetchFailed"
	MessageCommitFailed  = "Org.Hierarchy.CommitFailed"
	MessageSaved         = "Org.Hierarchy.Saved"
)

var ErrCommitInProgress = errors.New("hierarchy commit already in progress")

// Outcome reports what a gesture did. Recorded is false for rejected,
// redundant and refused gestures.
type Outcome struct {
	Result     hierarchy.Result
	Recorded   bool
	MessageKey string
}

// Notice is the last message the canvas wants the host to show.
type Notice struct {
	MessageKey string
	Result     hierarchy.Result
	NodeID     uuid.UUID
	Err        error
}

// Callbacks are host supplied actions the canvas only forwards. Any of them
// may be nil.
type Callbacks struct {
	AddNode          func(parentID *uuid.UUID)
	EditNode         func(id uuid.UUID)
	DeleteNode       func(id uuid.UUID)
	HierarchyChanged func(kind hierarchy.Kind)
}

type Options struct {
	Kind      hierarchy.Kind
	Scope     services.Scope
	Callbacks Callbacks
	Logger    *logrus.Entry
}

type DragState struct {
	Active      bool
	SourceID    uuid.UUID
	TargetID    *uuid.UUID
	TargetValid bool
}

type Controller struct {
	store     services.EntityStore
	kind      hierarchy.Kind
	scope     services.Scope
	callbacks Callbacks
	logger    *logrus.Entry

	mu       sync.Mutex
	loaded   bool
	state    State
	snapshot *hierarchy.Forest
	buffer   *editbuffer.Buffer
	working  *hierarchy.Forest
	layout   Layout
	drag     DragState
	notice   *Notice
}

func NewController(store services.EntityStore, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	empty := hierarchy.Build(opts.Kind, nil)
	c := &Controller{
		store:     store,
		kind:      opts.Kind,
		scope:     opts.Scope,
		callbacks: opts.Callbacks,
		logger:    logger.WithField("kind", opts.Kind.String()),
	}
	c.resetLocked(empty)
	return c
}

func (c *Controller) Kind() hierarchy.Kind { return c.kind }

// Load fetches the forest and replaces the snapshot. Pending edits are
// discarded. On failure the previous forest stays on screen.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateCommitting {
		c.mu.Unlock()
		return ErrCommitInProgress
	}
	c.mu.Unlock()

	nodes, err := c.store.ListNodes(ctx, c.kind, c.scope)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.fetchFailedLocked(err)
		return err
	}
	if c.state == StateCommitting {
		return ErrCommitInProgress
	}
	c.resetLocked(hierarchy.Build(c.kind, nodes))
	c.loaded = true
	return nil
}

func (c *Controller) Refresh(ctx context.Context) error {
	return c.Load(ctx)
}

func (c *Controller) fetchFailedLocked(err error) {
	services.RecordFetchFailure(c.kind)
	c.logger.WithError(err).Error("hierarchy fetch failed")
	c.notice = &Notice{MessageKey: MessageFetchFailed, Err: err}
}

func (c *Controller) resetLocked(snapshot *hierarchy.Forest) {
	c.snapshot = snapshot
	c.buffer = editbuffer.New(snapshot)
	c.state = StateClean
	c.drag = DragState{}
	c.rebuildLocked()
}

func (c *Controller) rebuildLocked() {
	c.working = c.buffer.Apply()
	c.layout = computeLayout(c.working)
	if c.state == StateCommitting {
		return
	}
	if c.buffer.IsDirty() {
		c.state = StateModified
	} else {
		c.state = StateClean
	}
}

func busy() Outcome {
	return Outcome{Result: hierarchy.Accepted, MessageKey: MessageBusy}
}

// Connect makes sourceID the parent of targetID.
func (c *Controller) Connect(sourceID, targetID uuid.UUID) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reparentLocked(targetID, &sourceID)
}

// Drop moves nodeID under containerID, or to the top level when containerID
// is nil.
func (c *Controller) Drop(nodeID uuid.UUID, containerID *uuid.UUID) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reparentLocked(nodeID, containerID)
}

// CanDrop is the cheap hover check. Drop still validates.
func (c *Controller) CanDrop(nodeID uuid.UUID, containerID *uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canDropLocked(nodeID, containerID)
}

func (c *Controller) canDropLocked(nodeID uuid.UUID, containerID *uuid.UUID) bool {
	if c.state == StateCommitting {
		return false
	}
	return hierarchy.Validate(c.working, nodeID, containerID).OK()
}

func (c *Controller) reparentLocked(childID uuid.UUID, parentID *uuid.UUID) Outcome {
	if c.state == StateCommitting {
		return busy()
	}
	result := hierarchy.Validate(c.working, childID, parentID)
	services.RecordValidation(c.kind, result)
	if !result.OK() {
		return c.rejectLocked(childID, result)
	}

	var current *uuid.UUID
	if p, ok := c.working.ParentOf(childID); ok {
		current = &p
	}
	if hierarchy.SameParent(current, parentID) {
		return Outcome{Result: hierarchy.Accepted}
	}

	c.buffer.RecordReparent(childID, parentID)
	c.rebuildLocked()
	c.notice = nil
	return Outcome{Result: hierarchy.Accepted, Recorded: true}
}

func (c *Controller) rejectLocked(nodeID uuid.UUID, result hierarchy.Result) Outcome {
	c.logger.WithFields(logrus.Fields{
		"node_id": nodeID,
		"result":  result.String(),
	}).Debug("hierarchy edit rejected")
	c.notice = &Notice{MessageKey: result.MessageKey(), Result: result, NodeID: nodeID}
	return Outcome{Result: result, MessageKey: result.MessageKey()}
}

// Detach turns nodeID into a root and remembers its parent for UndoDetach.
func (c *Controller) Detach(nodeID uuid.UUID) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCommitting {
		return busy()
	}
	result := hierarchy.Validate(c.working, nodeID, nil)
	services.RecordValidation(c.kind, result)
	if !result.OK() {
		return c.rejectLocked(nodeID, result)
	}
	parentID, ok := c.working.ParentOf(nodeID)
	if !ok {
		return Outcome{Result: hierarchy.Accepted}
	}
	c.buffer.RecordDetach(nodeID, parentID)
	c.rebuildLocked()
	c.notice = nil
	return Outcome{Result: hierarchy.Accepted, Recorded: true}
}

// UndoDetach re-attaches the most recently detached node, provided the
// connection is still legal in the current working forest. A rejected undo
// clears the register.
func (c *Controller) UndoDetach() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCommitting {
		return busy()
	}
	last, ok := c.buffer.LastDetach()
	if !ok {
		return Outcome{Result: hierarchy.Accepted, MessageKey: MessageNothingToUndo}
	}
	parentID := last.PreviousParentID
	result := hierarchy.Validate(c.working, last.NodeID, &parentID)
	services.RecordValidation(c.kind, result)
	if !result.OK() {
		c.buffer.ClearLastDetach()
		return c.rejectLocked(last.NodeID, result)
	}
	c.buffer.UndoLastDetach()
	c.rebuildLocked()
	c.notice = nil
	return Outcome{Result: hierarchy.Accepted, Recorded: true}
}

func (c *Controller) CanUndoDetach() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.buffer.LastDetach()
	return ok && c.state != StateCommitting
}

func (c *Controller) BeginDrag(nodeID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCommitting || !c.working.Has(nodeID) {
		return false
	}
	c.drag = DragState{Active: true, SourceID: nodeID}
	return true
}

// Hover updates the drop target under the pointer. nil means the pointer is
// over empty canvas, which is never a target.
func (c *Controller) Hover(targetID *uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.drag.Active {
		return false
	}
	if targetID == nil {
		c.drag.TargetID = nil
		c.drag.TargetValid = false
		return false
	}
	t := *targetID
	c.drag.TargetID = &t
	c.drag.TargetValid = c.canDropLocked(c.drag.SourceID, &t)
	return c.drag.TargetValid
}

// EndDrag cancels the drag without editing anything.
func (c *Controller) EndDrag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drag = DragState{}
}

// ReleaseDrag drops the dragged node on the hovered target. Releasing over
// nothing or over an invalid target does nothing.
func (c *Controller) ReleaseDrag() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	drag := c.drag
	c.drag = DragState{}
	if !drag.Active || drag.TargetID == nil || !drag.TargetValid {
		return Outcome{Result: hierarchy.Accepted}
	}
	return c.reparentLocked(drag.SourceID, drag.TargetID)
}

func (c *Controller) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCommitting {
		return ErrCommitInProgress
	}
	c.buffer.Reset()
	c.drag = DragState{}
	c.notice = nil
	c.rebuildLocked()
	return nil
}

// Commit sends the pending changes as one batch. On failure the buffer is
// kept so the user can retry or discard. On success the forest is fetched
// again and HierarchyChanged fires.
func (c *Controller) Commit(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateCommitting {
		c.mu.Unlock()
		return ErrCommitInProgress
	}
	if !c.buffer.IsDirty() {
		c.mu.Unlock()
		return nil
	}
	updates := c.buffer.Flatten()
	c.state = StateCommitting
	c.drag = DragState{}
	c.mu.Unlock()

	logger := c.logger.WithField("updates", len(updates))
	err := c.store.UpdateHierarchy(ctx, c.kind, updates)
	if err != nil {
		c.mu.Lock()
		c.state = StateModified
		c.notice = &Notice{MessageKey: MessageCommitFailed, Err: err}
		c.mu.Unlock()
		logger.WithError(err).Error("hierarchy commit failed")
		return err
	}
	logger.Info("hierarchy committed")

	nodes, fetchErr := c.store.ListNodes(ctx, c.kind, c.scope)

	c.mu.Lock()
	c.state = StateClean
	if fetchErr != nil {
		// the write went through, so the applied forest is the best guess
		c.resetLocked(c.working)
		c.fetchFailedLocked(fetchErr)
	} else {
		c.resetLocked(hierarchy.Build(c.kind, nodes))
		c.notice = &Notice{MessageKey: MessageSaved}
	}
	c.loaded = true
	changed := c.callbacks.HierarchyChanged
	c.mu.Unlock()

	if changed != nil {
		changed(c.kind)
	}
	return nil
}

// RequestAdd asks the host to create a node, optionally under parentID.
func (c *Controller) RequestAdd(parentID *uuid.UUID) bool {
	if c.callbacks.AddNode == nil {
		return false
	}
	if parentID != nil && !c.has(*parentID) {
		return false
	}
	c.callbacks.AddNode(parentID)
	return true
}

func (c *Controller) RequestEdit(id uuid.UUID) bool {
	if c.callbacks.EditNode == nil || !c.has(id) {
		return false
	}
	c.callbacks.EditNode(id)
	return true
}

func (c *Controller) RequestDelete(id uuid.UUID) bool {
	if c.callbacks.DeleteNode == nil || !c.has(id) {
		return false
	}
	c.callbacks.DeleteNode(id)
	return true
}

func (c *Controller) has(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.working.Has(id)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) IsDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.IsDirty()
}

// PendingUpdates is the batch Commit would send right now.
func (c *Controller) PendingUpdates() []hierarchy.ParentUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.Flatten()
}

// Working returns the snapshot with every pending edit applied.
func (c *Controller) Working() *hierarchy.Forest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.working
}

func (c *Controller) DismissNotice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notice = nil
}
