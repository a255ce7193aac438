package relay

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/events"
	"github.com/iota-uz/org-hierarchy/pkg/eventbus"
)

func newBus(t *testing.T) eventbus.EventBusWithError {
	t.Helper()
	logger, _ := test.NewNullLogger()
	bus, ok := eventbus.NewEventPublisher(logger).(eventbus.EventBusWithError)
	require.True(t, ok)
	return bus
}

// pair wires two relays to each other without Redis.
func pair(t *testing.T) (*Relay, *Relay, eventbus.EventBusWithError) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	remoteBus := newBus(t)
	local := New(nil, newBus(t), Options{Origin: "local", Logger: logger})
	remote := New(nil, remoteBus, Options{Origin: "remote", Logger: logger})
	local.publish = func(ctx context.Context, payload []byte) error {
		require.NoError(t, local.Dispatch(ctx, payload))
		return remote.Dispatch(ctx, payload)
	}
	return local, remote, remoteBus
}

func TestRelay_ForwardReachesOtherInstance(t *testing.T) {
	local, _, remoteBus := pair(t)

	var (
		gotMeta *Meta
		gotEv   *events.HierarchyChangedV1
	)
	remoteBus.Subscribe(func(meta *Meta, ev *events.HierarchyChangedV1) error {
		gotMeta, gotEv = meta, ev
		return nil
	})

	parent := uuid.New()
	ev := &events.HierarchyChangedV1{
		EventID:         uuid.New(),
		EventVersion:    events.EventVersionV1,
		TenantID:        uuid.New(),
		TransactionTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Kind:            "sector",
		Updates:         []events.ParentChangeV1{{ID: uuid.New(), NewParentID: &parent}},
	}
	local.Forward(ev)

	require.NotNil(t, gotEv)
	require.Equal(t, "local", gotMeta.Origin)
	require.Equal(t, ev.TenantID, gotMeta.TenantID)
	require.Equal(t, events.TopicHierarchyChangedV1, gotMeta.Topic)
	require.Equal(t, ev.EventID, gotEv.EventID)
	require.Equal(t, parent, *gotEv.Updates[0].NewParentID)
}

func TestRelay_DispatchIgnoresOwnMessages(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := newBus(t)
	r := New(nil, bus, Options{Origin: "me", Logger: logger})

	called := false
	bus.Subscribe(func(*Meta, *events.HierarchyChangedV1) error {
		called = true
		return nil
	})

	payload, err := r.encode(&events.HierarchyChangedV1{EventID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, r.Dispatch(context.Background(), payload))
	require.False(t, called)
}

func TestRelay_DispatchRejectsGarbage(t *testing.T) {
	r := New(nil, newBus(t), Options{})
	require.NotEmpty(t, r.Origin())

	require.Error(t, r.Dispatch(context.Background(), []byte("not json")))
	require.Error(t, r.Dispatch(context.Background(), []byte(`{"meta":{"topic":"org.changed.v1","origin":"x"},"payload":{}}`)))
}
