package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/events"
	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/pkg/composables"
	"github.com/iota-uz/org-hierarchy/pkg/eventbus"
)

// Scope narrows a fetch. SectorID only applies to positions.
type Scope struct {
	SectorID *uuid.UUID
}

// EntityStore is everything the hierarchy editor needs from persistence: the
// flat node list and one atomic batch of parent changes.
type EntityStore interface {
	ListNodes(ctx context.Context, kind hierarchy.Kind, scope Scope) ([]hierarchy.Node, error)
	UpdateHierarchy(ctx context.Context, kind hierarchy.Kind, updates []hierarchy.ParentUpdate) error
}

type HierarchyRepository interface {
	ListNodes(ctx context.Context, tenantID uuid.UUID, kind hierarchy.Kind, scope Scope) ([]hierarchy.Node, error)
	UpdateParents(ctx context.Context, tenantID uuid.UUID, kind hierarchy.Kind, updates []hierarchy.ParentUpdate) (int, error)
	// InTx runs fn in one tenant scoped transaction; nested calls join it.
	InTx(ctx context.Context, tenantID uuid.UUID, fn func(txCtx context.Context) error) error
}

const defaultMaxBatchSize = 500

var validate = validator.New(validator.WithRequiredStructEnabled())

type ParentUpdateDTO struct {
	ID          uuid.UUID  `json:"id" validate:"required"`
	NewParentID *uuid.UUID `json:"new_parent_id"`
}

type UpdateHierarchyRequest struct {
	Updates []ParentUpdateDTO `json:"updates" validate:"required,min=1,dive"`
}

func (r UpdateHierarchyRequest) ParentUpdates() []hierarchy.ParentUpdate {
	out := make([]hierarchy.ParentUpdate, 0, len(r.Updates))
	for _, u := range r.Updates {
		out = append(out, hierarchy.ParentUpdate{ID: u.ID, NewParentID: u.NewParentID})
	}
	return out
}

func NewUpdateHierarchyRequest(updates []hierarchy.ParentUpdate) UpdateHierarchyRequest {
	req := UpdateHierarchyRequest{Updates: make([]ParentUpdateDTO, 0, len(updates))}
	for _, u := range updates {
		req.Updates = append(req.Updates, ParentUpdateDTO{ID: u.ID, NewParentID: u.NewParentID})
	}
	return req
}

type HierarchyServiceOptions struct {
	Cache           Cache
	EventBus        eventbus.EventBus
	MaxBatchSize    int
	DefaultTenantID uuid.UUID
	Now             func() time.Time
}

type HierarchyService struct {
	repo          HierarchyRepository
	cache         Cache
	bus           eventbus.EventBus
	maxBatch      int
	defaultTenant uuid.UUID
	now           func() time.Time
}

func NewHierarchyService(repo HierarchyRepository, opts HierarchyServiceOptions) *HierarchyService {
	s := &HierarchyService{
		repo:          repo,
		cache:         opts.Cache,
		bus:           opts.EventBus,
		maxBatch:      opts.MaxBatchSize,
		defaultTenant: opts.DefaultTenantID,
		now:           opts.Now,
	}
	if s.cache == nil {
		s.cache = NewNoopCache()
	}
	if s.maxBatch <= 0 {
		s.maxBatch = defaultMaxBatchSize
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type HierarchyUpdateResult struct {
	Requested int
	Updated   int
}

func (s *HierarchyService) tenantID(ctx context.Context) (uuid.UUID, error) {
	if id, err := composables.UseTenantID(ctx); err == nil {
		return id, nil
	}
	if s.defaultTenant != uuid.Nil {
		return s.defaultTenant, nil
	}
	return uuid.Nil, newServiceError(http.StatusBadRequest, CodeNoTenant, "tenant_id is required", nil)
}

func (s *HierarchyService) ListNodes(ctx context.Context, kind hierarchy.Kind, scope Scope) ([]hierarchy.Node, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	if !kind.Grouped() {
		scope.SectorID = nil
	}
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"kind":      kind.String(),
	})

	key := hierarchyCacheKey(tenantID, kind, scope)
	nodes, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.WithError(err).Warn("hierarchy cache read failed")
	}
	recordCacheRequest("hierarchy", hit)
	if hit {
		return nodes, nil
	}

	err = s.repo.InTx(ctx, tenantID, func(txCtx context.Context) error {
		var innerErr error
		nodes, innerErr = s.repo.ListNodes(txCtx, tenantID, kind, scope)
		return innerErr
	})
	if err != nil {
		RecordFetchFailure(kind)
		logger.WithError(err).Error("hierarchy fetch failed")
		return nil, mapPgErrorToServiceError(err)
	}
	if nodes == nil {
		nodes = []hierarchy.Node{}
	}

	if err := s.cache.Set(ctx, tenantID, key, nodes); err != nil {
		logger.WithError(err).Warn("hierarchy cache write failed")
	}
	return nodes, nil
}

func (s *HierarchyService) UpdateHierarchy(ctx context.Context, kind hierarchy.Kind, updates []hierarchy.ParentUpdate) error {
	_, err := s.ApplyHierarchy(ctx, kind, NewUpdateHierarchyRequest(updates))
	return err
}

// ApplyHierarchy validates req as a whole against the stored forest and
// writes the parent changes in one transaction. Updates that match the stored
// parent are skipped.
func (s *HierarchyService) ApplyHierarchy(ctx context.Context, kind hierarchy.Kind, req UpdateHierarchyRequest) (HierarchyUpdateResult, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return HierarchyUpdateResult{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return HierarchyUpdateResult{}, err
	}
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"kind":      kind.String(),
		"updates":   len(req.Updates),
	})

	updates := req.ParentUpdates()
	var changed []hierarchy.ParentUpdate
	err = s.repo.InTx(ctx, tenantID, func(txCtx context.Context) error {
		nodes, err := s.repo.ListNodes(txCtx, tenantID, kind, Scope{})
		if err != nil {
			return err
		}
		snapshot := hierarchy.Build(kind, nodes)
		if err := hierarchy.ValidateBatch(snapshot, updates); err != nil {
			var rej *hierarchy.RejectionError
			if errors.As(err, &rej) {
				RecordValidation(kind, rej.Result)
			}
			return mapValidationError(err)
		}
		RecordValidation(kind, hierarchy.Accepted)

		changed = netChanges(snapshot, updates)
		if len(changed) == 0 {
			return nil
		}
		n, err := s.repo.UpdateParents(txCtx, tenantID, kind, changed)
		if err != nil {
			return err
		}
		if n != len(changed) {
			return newServiceError(http.StatusConflict, CodeConflict,
				fmt.Sprintf("expected to update %d nodes, updated %d", len(changed), n), nil)
		}
		return nil
	})
	RecordCommit(kind, err)
	if err != nil {
		logger.WithError(err).Warn("hierarchy update rejected")
		return HierarchyUpdateResult{Requested: len(updates)}, mapPgErrorToServiceError(err)
	}

	result := HierarchyUpdateResult{Requested: len(updates), Updated: len(changed)}
	if len(changed) == 0 {
		return result, nil
	}
	recordBatchSize(kind, len(changed))

	if !shouldSkipCacheInvalidation(ctx) {
		s.InvalidateTenantCache(ctx, tenantID, "write")
	}
	s.publish(ctx, tenantID, kind, changed)
	logger.WithField("updated", len(changed)).Info("hierarchy updated")
	return result, nil
}

func (s *HierarchyService) validateRequest(req UpdateHierarchyRequest) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return newServiceError(http.StatusBadRequest, CodeInvalidBody,
				fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()), err)
		}
		return newServiceError(http.StatusBadRequest, CodeInvalidBody, "invalid request body", err)
	}
	if len(req.Updates) > s.maxBatch {
		return newServiceError(http.StatusUnprocessableEntity, CodeBatchTooLarge,
			fmt.Sprintf("batch has %d updates, limit is %d", len(req.Updates), s.maxBatch), nil)
	}
	return nil
}

func (s *HierarchyService) InvalidateTenantCache(ctx context.Context, tenantID uuid.UUID, reason string) {
	if err := s.cache.InvalidateTenant(ctx, tenantID); err != nil {
		composables.UseLogger(ctx).WithError(err).WithField("tenant_id", tenantID).Warn("hierarchy cache invalidation failed")
		return
	}
	recordCacheInvalidate(reason)
}

func (s *HierarchyService) publish(ctx context.Context, tenantID uuid.UUID, kind hierarchy.Kind, changed []hierarchy.ParentUpdate) {
	if s.bus == nil {
		return
	}
	requestID, _ := composables.UseRequestID(ctx)
	ev := &events.HierarchyChangedV1{
		EventID:         uuid.New(),
		EventVersion:    events.EventVersionV1,
		RequestID:       requestID,
		TenantID:        tenantID,
		TransactionTime: s.now().UTC(),
		Kind:            kind.String(),
		Updates:         make([]events.ParentChangeV1, 0, len(changed)),
	}
	for _, u := range changed {
		ev.Updates = append(ev.Updates, events.ParentChangeV1{ID: u.ID, NewParentID: u.NewParentID})
	}
	s.bus.Publish(ev)
}

// netChanges drops updates that leave a node under its stored parent.
func netChanges(snapshot *hierarchy.Forest, updates []hierarchy.ParentUpdate) []hierarchy.ParentUpdate {
	out := make([]hierarchy.ParentUpdate, 0, len(updates))
	for _, u := range updates {
		var current *uuid.UUID
		if p, ok := snapshot.ParentOf(u.ID); ok {
			current = &p
		}
		if hierarchy.SameParent(current, u.NewParentID) {
			continue
		}
		out = append(out, u)
	}
	return out
}
