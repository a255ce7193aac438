package hierarchy

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Result int

const (
	Accepted Result = iota
	RejectedSelfParent
	RejectedCycle
	RejectedCrossGroup
	RejectedUnknownNode
)

var (
	ErrSelfParent  = errors.New("node cannot be its own parent")
	ErrCycle       = errors.New("new parent is a descendant of the node")
	ErrCrossGroup  = errors.New("parent belongs to a different group")
	ErrUnknownNode = errors.New("node not found")
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedSelfParent:
		return "self_parent"
	case RejectedCycle:
		return "cycle"
	case RejectedCrossGroup:
		return "cross_group"
	case RejectedUnknownNode:
		return "unknown_node"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

func (r Result) OK() bool { return r == Accepted }

// Err maps a rejection to its sentinel error; Accepted maps to nil.
func (r Result) Err() error {
	switch r {
	case Accepted:
		return nil
	case RejectedSelfParent:
		return ErrSelfParent
	case RejectedCycle:
		return ErrCycle
	case RejectedCrossGroup:
		return ErrCrossGroup
	case RejectedUnknownNode:
		return ErrUnknownNode
	default:
		return fmt.Errorf("unexpected validation result %d", int(r))
	}
}

// MessageKey is the localisation key the host renders for a rejection.
func (r Result) MessageKey() string {
	switch r {
	case Accepted:
		return ""
	case RejectedSelfParent:
		return "Org.Hierarchy.Rejected.SelfParent"
	case RejectedCycle:
		return "Org.Hierarchy.Rejected.Cycle"
	case RejectedCrossGroup:
		return "Org.Hierarchy.Rejected.CrossGroup"
	case RejectedUnknownNode:
		return "Org.Hierarchy.Rejected.UnknownNode"
	default:
		return "Org.Hierarchy.Rejected.Unknown"
	}
}

// Validate decides whether childID may be attached under newParentID in f.
// f must be the working forest with every buffered edit applied. A nil
// newParentID detaches the child and is always legal for a known child.
func Validate(f *Forest, childID uuid.UUID, newParentID *uuid.UUID) Result {
	if !f.Has(childID) {
		return RejectedUnknownNode
	}
	if newParentID == nil {
		return Accepted
	}
	parentID := *newParentID
	if childID == parentID {
		return RejectedSelfParent
	}
	if !f.Has(parentID) {
		return RejectedUnknownNode
	}
	if f.IsDescendant(childID, parentID) {
		return RejectedCycle
	}
	if f.Kind().Grouped() {
		childGroup, _ := f.GroupOf(childID)
		parentGroup, _ := f.GroupOf(parentID)
		if childGroup != parentGroup {
			return RejectedCrossGroup
		}
	}
	return Accepted
}

type RejectionError struct {
	NodeID uuid.UUID
	Result Result
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Result.Err())
}

func (e *RejectionError) Unwrap() error { return e.Result.Err() }

var ErrDuplicateUpdate = errors.New("node appears more than once in the batch")

// ValidateBatch checks a net set of parent updates against snapshot. The
// updates are applied together, so intermediate orderings do not matter; only
// the resulting forest has to be valid.
func ValidateBatch(snapshot *Forest, updates []ParentUpdate) error {
	overrides := make(map[uuid.UUID]*uuid.UUID, len(updates))
	for _, u := range updates {
		if _, dup := overrides[u.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateUpdate, u.ID)
		}
		if !snapshot.Has(u.ID) {
			return &RejectionError{NodeID: u.ID, Result: RejectedUnknownNode}
		}
		if u.NewParentID != nil {
			if *u.NewParentID == u.ID {
				return &RejectionError{NodeID: u.ID, Result: RejectedSelfParent}
			}
			if !snapshot.Has(*u.NewParentID) {
				return &RejectionError{NodeID: u.ID, Result: RejectedUnknownNode}
			}
		}
		overrides[u.ID] = u.NewParentID
	}

	final := snapshot.WithParents(overrides)
	for _, u := range updates {
		if u.NewParentID == nil {
			continue
		}
		// The edge u.ID -> parent is already in place, so a path from the
		// parent back to u.ID means the edge closes a cycle.
		if final.IsDescendant(u.ID, *u.NewParentID) {
			return &RejectionError{NodeID: u.ID, Result: RejectedCycle}
		}
		if final.Kind().Grouped() {
			childGroup, _ := final.GroupOf(u.ID)
			parentGroup, _ := final.GroupOf(*u.NewParentID)
			if childGroup != parentGroup {
				return &RejectionError{NodeID: u.ID, Result: RejectedCrossGroup}
			}
		}
	}
	return nil
}
