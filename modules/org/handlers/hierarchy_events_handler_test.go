package handlers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/events"
	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/infrastructure/relay"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
	"github.com/iota-uz/org-hierarchy/pkg/application"
	"github.com/iota-uz/org-hierarchy/pkg/composables"
	"github.com/iota-uz/org-hierarchy/pkg/eventbus"
)

type countingRepo struct {
	lists int
	nodes []hierarchy.Node
}

func (r *countingRepo) ListNodes(context.Context, uuid.UUID, hierarchy.Kind, services.Scope) ([]hierarchy.Node, error) {
	r.lists++
	return append([]hierarchy.Node(nil), r.nodes...), nil
}

func (r *countingRepo) UpdateParents(_ context.Context, _ uuid.UUID, _ hierarchy.Kind, updates []hierarchy.ParentUpdate) (int, error) {
	return len(updates), nil
}

func (r *countingRepo) InTx(ctx context.Context, _ uuid.UUID, fn func(context.Context) error) error {
	return fn(ctx)
}

func TestHierarchyEventsHandler(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)
	app := application.New(&application.ApplicationOptions{Logger: logger})

	repo := &countingRepo{nodes: []hierarchy.Node{{ID: uuid.New(), Kind: hierarchy.KindSector}}}
	svc := services.NewHierarchyService(repo, services.HierarchyServiceOptions{
		Cache:    services.NewMemoryCache(0),
		EventBus: app.EventPublisher(),
	})
	app.RegisterServices(svc)
	RegisterHierarchyEventHandlers(app)
	require.Equal(t, 2, app.EventPublisher().SubscribersCount())

	tenant := uuid.New()
	ctx := composables.WithTenantID(context.Background(), tenant)
	_, err := svc.ListNodes(ctx, hierarchy.KindSector, services.Scope{})
	require.NoError(t, err)
	_, err = svc.ListNodes(ctx, hierarchy.KindSector, services.Scope{})
	require.NoError(t, err)
	require.Equal(t, 1, repo.lists, "second read is cached")

	t.Run("local event is audited", func(t *testing.T) {
		ev := &events.HierarchyChangedV1{EventID: uuid.New(), TenantID: tenant, Kind: "sector"}
		app.EventPublisher().Publish(ev)

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		require.Equal(t, "hierarchy changed", entry.Message)
		require.Equal(t, ev.EventID, entry.Data["event_id"])
	})

	t.Run("remote event drops the cache", func(t *testing.T) {
		bus, ok := app.EventPublisher().(eventbus.EventBusWithError)
		require.True(t, ok)
		meta := &relay.Meta{Topic: events.TopicHierarchyChangedV1, Origin: "other", TenantID: tenant}
		require.NoError(t, bus.PublishE(meta, &events.HierarchyChangedV1{TenantID: tenant}))

		_, err := svc.ListNodes(ctx, hierarchy.KindSector, services.Scope{})
		require.NoError(t, err)
		require.Equal(t, 2, repo.lists)
	})
}
