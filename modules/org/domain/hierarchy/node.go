package hierarchy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind discriminates the two forests managed by the editor.
type Kind int

const (
	KindSector Kind = iota + 1
	KindPosition
)

func (k Kind) String() string {
	switch k {
	case KindSector:
		return "sector"
	case KindPosition:
		return "position"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Grouped reports whether parents must share the child's group key.
func (k Kind) Grouped() bool {
	switch k {
	case KindPosition:
		return true
	case KindSector:
		return false
	default:
		return false
	}
}

func ParseKind(v string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "sector", "sectors":
		return KindSector, nil
	case "position", "positions":
		return KindPosition, nil
	default:
		return 0, fmt.Errorf("unsupported hierarchy kind: %q", v)
	}
}

type Node struct {
	ID          uuid.UUID
	Kind        Kind
	DisplayName string
	ParentID    *uuid.UUID
	// GroupKey is the owning sector for positions and uuid.Nil for sectors.
	GroupKey    uuid.UUID
	ChildCount  int
	MemberCount int
}

// ParentUpdate is one net parent change sent to the entity store.
type ParentUpdate struct {
	ID          uuid.UUID
	NewParentID *uuid.UUID
}

// SameParent compares two optional parent references.
func SameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyParent(p *uuid.UUID) *uuid.UUID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
