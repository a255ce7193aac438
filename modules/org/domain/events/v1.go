package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicHierarchyChangedV1 = "org.hierarchy.changed.v1"
	EventVersionV1          = 1
)

type ParentChangeV1 struct {
	ID          uuid.UUID  `json:"id"`
	NewParentID *uuid.UUID `json:"new_parent_id"`
}

// HierarchyChangedV1 is published once per committed batch.
type HierarchyChangedV1 struct {
	EventID         uuid.UUID        `json:"event_id"`
	EventVersion    int              `json:"event_version"`
	RequestID       string           `json:"request_id"`
	TenantID        uuid.UUID        `json:"tenant_id"`
	TransactionTime time.Time        `json:"transaction_time"`
	Kind            string           `json:"kind"`
	Updates         []ParentChangeV1 `json:"updates"`
}

func (e HierarchyChangedV1) Topic() string { return TopicHierarchyChangedV1 }
