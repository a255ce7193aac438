package dtos

import (
	"github.com/google/uuid"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
)

// NodeDTO is the wire form of a hierarchy node. group_key is omitted for
// sectors.
type NodeDTO struct {
	ID          uuid.UUID  `json:"id"`
	DisplayName string     `json:"display_name"`
	ParentID    *uuid.UUID `json:"parent_id"`
	GroupKey    *uuid.UUID `json:"group_key,omitempty"`
	ChildCount  int        `json:"child_count"`
	MemberCount int        `json:"member_count"`
}

type NodeListResponse struct {
	Kind  string    `json:"kind"`
	Nodes []NodeDTO `json:"nodes"`
}

// BatchResponse reports how many updates were sent and how many actually
// moved a node.
type BatchResponse struct {
	Requested int `json:"requested"`
	Updated   int `json:"updated"`
}

type APIError struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func NodeToDTO(n hierarchy.Node) NodeDTO {
	out := NodeDTO{
		ID:          n.ID,
		DisplayName: n.DisplayName,
		ParentID:    n.ParentID,
		ChildCount:  n.ChildCount,
		MemberCount: n.MemberCount,
	}
	if n.Kind.Grouped() && n.GroupKey != uuid.Nil {
		g := n.GroupKey
		out.GroupKey = &g
	}
	return out
}

func NodesToDTO(nodes []hierarchy.Node) []NodeDTO {
	out := make([]NodeDTO, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeToDTO(n))
	}
	return out
}

func (d NodeDTO) ToNode(kind hierarchy.Kind) hierarchy.Node {
	n := hierarchy.Node{
		ID:          d.ID,
		Kind:        kind,
		DisplayName: d.DisplayName,
		ParentID:    d.ParentID,
		ChildCount:  d.ChildCount,
		MemberCount: d.MemberCount,
	}
	if d.GroupKey != nil {
		n.GroupKey = *d.GroupKey
	}
	return n
}

func (r NodeListResponse) ToNodes(kind hierarchy.Kind) []hierarchy.Node {
	out := make([]hierarchy.Node, 0, len(r.Nodes))
	for _, d := range r.Nodes {
		out = append(out, d.ToNode(kind))
	}
	return out
}
