package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/events"
	"github.com/iota-uz/org-hierarchy/modules/org/infrastructure/relay"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
	"github.com/iota-uz/org-hierarchy/pkg/application"
)

type HierarchyEventsHandler struct {
	hierarchy *services.HierarchyService
	logger    *logrus.Logger
}

func RegisterHierarchyEventHandlers(app application.Application) *HierarchyEventsHandler {
	handler := &HierarchyEventsHandler{
		hierarchy: app.Service(services.HierarchyService{}).(*services.HierarchyService),
		logger:    app.Logger(),
	}
	app.EventPublisher().Subscribe(handler.onHierarchyChangedV1)
	app.EventPublisher().Subscribe(handler.onRemoteHierarchyChangedV1)
	return handler
}

// onHierarchyChangedV1 writes the audit line for a batch committed here.
func (h *HierarchyEventsHandler) onHierarchyChangedV1(ev *events.HierarchyChangedV1) {
	if h == nil || ev == nil {
		return
	}
	h.logger.WithFields(logrus.Fields{
		"event_id":         ev.EventID,
		"request_id":       ev.RequestID,
		"tenant_id":        ev.TenantID,
		"kind":             ev.Kind,
		"updates":          len(ev.Updates),
		"transaction_time": ev.TransactionTime,
	}).Info("hierarchy changed")
}

// onRemoteHierarchyChangedV1 handles a batch committed by another instance.
func (h *HierarchyEventsHandler) onRemoteHierarchyChangedV1(meta *relay.Meta, ev *events.HierarchyChangedV1) error {
	if h == nil || h.hierarchy == nil || meta == nil || ev == nil {
		return nil
	}
	h.hierarchy.InvalidateTenantCache(context.Background(), ev.TenantID, "relay")
	return nil
}
