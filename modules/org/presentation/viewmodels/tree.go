package viewmodels

import "github.com/google/uuid"

type HierarchyTreeNode struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"display_name"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Depth       int        `json:"depth"`
	ChildCount  int        `json:"child_count"`
	MemberCount int        `json:"member_count"`
	Selected    bool       `json:"selected,omitempty"`
}

// HierarchyTree lists nodes in pre-order, so a node's subtree follows it and
// Depth is enough to indent.
type HierarchyTree struct {
	Kind  string              `json:"kind"`
	Nodes []HierarchyTreeNode `json:"nodes"`
}
