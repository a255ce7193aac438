package canvas

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
)

type fakeStore struct {
	mu        sync.Mutex
	nodes     []hierarchy.Node
	lists     int
	commits   [][]hierarchy.ParentUpdate
	listErr   error
	updateErr error
	started   chan struct{}
	release   chan struct{}
}

func (s *fakeStore) ListNodes(_ context.Context, _ hierarchy.Kind, _ services.Scope) ([]hierarchy.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]hierarchy.Node, len(s.nodes))
	copy(out, s.nodes)
	return out, nil
}

func (s *fakeStore) UpdateHierarchy(_ context.Context, _ hierarchy.Kind, updates []hierarchy.ParentUpdate) error {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.commits = append(s.commits, updates)
	for _, u := range updates {
		for i := range s.nodes {
			if s.nodes[i].ID == u.ID {
				s.nodes[i].ParentID = u.NewParentID
			}
		}
	}
	return nil
}

func ref(u uuid.UUID) *uuid.UUID { return &u }

type fixture struct {
	a, b, c, d uuid.UUID
	store      *fakeStore
	ctrl       *Controller
}

// a -> b -> c, plus a lone root d.
func newFixture(t *testing.T, cb Callbacks) fixture {
	t.Helper()
	fx := fixture{a: uuid.New(), b: uuid.New(), c: uuid.New(), d: uuid.New()}
	fx.store = &fakeStore{nodes: []hierarchy.Node{
		{ID: fx.a, DisplayName: "Head office"},
		{ID: fx.b, DisplayName: "Finance", ParentID: ref(fx.a)},
		{ID: fx.c, DisplayName: "Payroll", ParentID: ref(fx.b)},
		{ID: fx.d, DisplayName: "Warehouse"},
	}}
	fx.ctrl = NewController(fx.store, Options{Kind: hierarchy.KindSector, Callbacks: cb})
	require.NoError(t, fx.ctrl.Load(context.Background()))
	return fx
}

func parentIn(t *testing.T, f *hierarchy.Forest, id uuid.UUID) *uuid.UUID {
	t.Helper()
	p, ok := f.ParentOf(id)
	if !ok {
		return nil
	}
	return &p
}

func TestController_LoadBuildsView(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	v := fx.ctrl.View()
	require.True(t, v.Loaded)
	require.Equal(t, StateClean, v.State)
	require.False(t, v.Dirty)
	require.Len(t, v.Nodes, 4)
	require.Len(t, v.Edges, 2)
	require.Equal(t, []uuid.UUID{fx.a, fx.b, fx.c, fx.d},
		[]uuid.UUID{v.Nodes[0].ID, v.Nodes[1].ID, v.Nodes[2].ID, v.Nodes[3].ID})
	require.Equal(t, 2, v.Nodes[2].Depth)
	require.Equal(t, 1, v.Nodes[0].ChildCount)
}

func TestController_LoadFailureKeepsForest(t *testing.T) {
	fx := newFixture(t, Callbacks{})
	fx.store.listErr = errors.New("connection refused")

	err := fx.ctrl.Refresh(context.Background())
	require.Error(t, err)

	v := fx.ctrl.View()
	require.Len(t, v.Nodes, 4)
	require.NotNil(t, v.Notice)
	require.Equal(t, MessageFetchFailed, v.Notice.MessageKey)
}

func TestController_ConnectRecordsAndSkipsRedundant(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	out := fx.ctrl.Connect(fx.d, fx.c)
	require.Equal(t, Outcome{Result: hierarchy.Accepted, Recorded: true}, out)
	require.Equal(t, StateModified, fx.ctrl.State())
	require.Equal(t, fx.d, *parentIn(t, fx.ctrl.Working(), fx.c))

	out = fx.ctrl.Connect(fx.d, fx.c)
	require.True(t, out.Result.OK())
	require.False(t, out.Recorded)
	require.Len(t, fx.ctrl.PendingUpdates(), 1)
}

func TestController_MovingBackCleansBuffer(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	require.True(t, fx.ctrl.Connect(fx.d, fx.c).Recorded)
	require.True(t, fx.ctrl.Connect(fx.b, fx.c).Recorded)

	require.Equal(t, StateClean, fx.ctrl.State())
	require.False(t, fx.ctrl.IsDirty())
}

func TestController_CycleAcrossBufferedEdits(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	// a under d is fine on its own.
	require.True(t, fx.ctrl.Connect(fx.d, fx.a).Recorded)

	// d under c would close d -> a -> b -> c -> d.
	out := fx.ctrl.Connect(fx.c, fx.d)
	require.Equal(t, hierarchy.RejectedCycle, out.Result)
	require.False(t, out.Recorded)
	require.Equal(t, "Org.Hierarchy.Rejected.Cycle", out.MessageKey)
	require.Nil(t, fx.ctrl.Working().FindCycle())

	v := fx.ctrl.View()
	require.NotNil(t, v.Notice)
	require.Equal(t, fx.d, v.Notice.NodeID)
}

func TestController_Rejections(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	require.Equal(t, hierarchy.RejectedSelfParent, fx.ctrl.Connect(fx.b, fx.b).Result)
	require.Equal(t, hierarchy.RejectedCycle, fx.ctrl.Connect(fx.c, fx.a).Result)
	require.Equal(t, hierarchy.RejectedUnknownNode, fx.ctrl.Connect(uuid.New(), fx.a).Result)
	require.Equal(t, hierarchy.RejectedUnknownNode, fx.ctrl.Detach(uuid.New()).Result)
	require.False(t, fx.ctrl.IsDirty())
}

func TestController_PositionsStayInSector(t *testing.T) {
	sales, ops := uuid.New(), uuid.New()
	p1, p2, p3 := uuid.New(), uuid.New(), uuid.New()
	store := &fakeStore{nodes: []hierarchy.Node{
		{ID: p1, Kind: hierarchy.KindPosition, GroupKey: sales},
		{ID: p2, Kind: hierarchy.KindPosition, GroupKey: sales},
		{ID: p3, Kind: hierarchy.KindPosition, GroupKey: ops},
	}}
	ctrl := NewController(store, Options{Kind: hierarchy.KindPosition})
	require.NoError(t, ctrl.Load(context.Background()))

	out := ctrl.Connect(p3, p1)
	require.Equal(t, hierarchy.RejectedCrossGroup, out.Result)
	require.False(t, ctrl.CanDrop(p1, &p3))

	require.True(t, ctrl.Connect(p1, p2).Recorded)
}

func TestController_DetachAndUndo(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	out := fx.ctrl.Detach(fx.b)
	require.True(t, out.Recorded)
	require.Nil(t, parentIn(t, fx.ctrl.Working(), fx.b))
	require.True(t, fx.ctrl.View().CanUndo)

	out = fx.ctrl.UndoDetach()
	require.True(t, out.Recorded)
	require.Equal(t, fx.a, *parentIn(t, fx.ctrl.Working(), fx.b))
	require.False(t, fx.ctrl.IsDirty())

	out = fx.ctrl.UndoDetach()
	require.False(t, out.Recorded)
	require.Equal(t, MessageNothingToUndo, out.MessageKey)
}

func TestController_DetachRootIsNoop(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	out := fx.ctrl.Detach(fx.d)
	require.True(t, out.Result.OK())
	require.False(t, out.Recorded)
	require.False(t, fx.ctrl.CanUndoDetach())
}

func TestController_UndoIsRevalidated(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	require.True(t, fx.ctrl.Detach(fx.b).Recorded)
	// a now hangs under its former child
	require.True(t, fx.ctrl.Connect(fx.b, fx.a).Recorded)

	out := fx.ctrl.UndoDetach()
	require.Equal(t, hierarchy.RejectedCycle, out.Result)
	require.False(t, out.Recorded)
	require.False(t, fx.ctrl.CanUndoDetach())
	require.Nil(t, fx.ctrl.Working().FindCycle())
}

func TestController_DragAndDrop(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	require.True(t, fx.ctrl.BeginDrag(fx.a))
	require.False(t, fx.ctrl.Hover(&fx.c), "descendant is not a drop target")
	require.False(t, fx.ctrl.Hover(nil))
	require.True(t, fx.ctrl.Hover(&fx.d))

	v := fx.ctrl.View()
	require.True(t, v.Drag.Active)
	for _, n := range v.Nodes {
		require.Equal(t, n.ID == fx.a, n.Dragging)
		require.Equal(t, n.ID == fx.d, n.DropTarget)
	}

	out := fx.ctrl.ReleaseDrag()
	require.True(t, out.Recorded)
	require.Equal(t, fx.d, *parentIn(t, fx.ctrl.Working(), fx.a))
	require.False(t, fx.ctrl.View().Drag.Active)
}

func TestController_ReleaseOverInvalidTargetDoesNothing(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	require.True(t, fx.ctrl.BeginDrag(fx.a))
	fx.ctrl.Hover(&fx.b)
	out := fx.ctrl.ReleaseDrag()
	require.False(t, out.Recorded)
	require.Empty(t, out.MessageKey)
	require.False(t, fx.ctrl.IsDirty())

	require.True(t, fx.ctrl.BeginDrag(fx.a))
	fx.ctrl.EndDrag()
	require.False(t, fx.ctrl.ReleaseDrag().Recorded)
}

func TestController_DropToRoot(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	require.True(t, fx.ctrl.CanDrop(fx.c, nil))
	out := fx.ctrl.Drop(fx.c, nil)
	require.True(t, out.Recorded)
	require.Equal(t, []hierarchy.ParentUpdate{{ID: fx.c}}, fx.ctrl.PendingUpdates())
	require.False(t, fx.ctrl.CanUndoDetach(), "a drop is not a detach")
}

func TestController_Discard(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	fx.ctrl.Connect(fx.d, fx.b)
	fx.ctrl.Detach(fx.c)
	require.NoError(t, fx.ctrl.Discard())

	require.Equal(t, StateClean, fx.ctrl.State())
	require.Empty(t, fx.ctrl.PendingUpdates())
	require.Equal(t, fx.a, *parentIn(t, fx.ctrl.Working(), fx.b))
}

func TestController_CommitSendsOneBatch(t *testing.T) {
	var changed []hierarchy.Kind
	fx := newFixture(t, Callbacks{HierarchyChanged: func(k hierarchy.Kind) { changed = append(changed, k) }})

	fx.ctrl.Connect(fx.d, fx.c)
	fx.ctrl.Detach(fx.b)
	fx.ctrl.Connect(fx.a, fx.c)

	require.NoError(t, fx.ctrl.Commit(context.Background()))

	require.Len(t, fx.store.commits, 1)
	require.Equal(t, []hierarchy.ParentUpdate{
		{ID: fx.c, NewParentID: ref(fx.a)},
		{ID: fx.b},
	}, fx.store.commits[0])
	require.Equal(t, 2, fx.store.lists)
	require.Equal(t, []hierarchy.Kind{hierarchy.KindSector}, changed)

	v := fx.ctrl.View()
	require.Equal(t, StateClean, v.State)
	require.False(t, v.Dirty)
	require.Equal(t, MessageSaved, v.Notice.MessageKey)
	require.Equal(t, fx.a, *parentIn(t, fx.ctrl.Working(), fx.c))
}

func TestController_CommitWhenCleanIsNoop(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	require.NoError(t, fx.ctrl.Commit(context.Background()))
	require.Empty(t, fx.store.commits)
	require.Equal(t, 1, fx.store.lists)
}

func TestController_CommitFailureKeepsBuffer(t *testing.T) {
	fx := newFixture(t, Callbacks{})
	fx.store.updateErr = errors.New("409 conflict")

	fx.ctrl.Connect(fx.d, fx.c)
	err := fx.ctrl.Commit(context.Background())
	require.Error(t, err)

	require.Equal(t, StateModified, fx.ctrl.State())
	require.Equal(t, []hierarchy.ParentUpdate{{ID: fx.c, NewParentID: ref(fx.d)}}, fx.ctrl.PendingUpdates())
	require.Equal(t, MessageCommitFailed, fx.ctrl.View().Notice.MessageKey)

	fx.store.updateErr = nil
	require.NoError(t, fx.ctrl.Commit(context.Background()))
	require.Len(t, fx.store.commits, 1)
}

func TestController_RefetchFailureAfterCommit(t *testing.T) {
	fx := newFixture(t, Callbacks{})

	fx.ctrl.Connect(fx.d, fx.c)
	fx.store.mu.Lock()
	fx.store.listErr = errors.New("timeout")
	fx.store.mu.Unlock()

	require.NoError(t, fx.ctrl.Commit(context.Background()))
	require.Equal(t, StateClean, fx.ctrl.State())
	require.Equal(t, fx.d, *parentIn(t, fx.ctrl.Working(), fx.c))
	require.Equal(t, MessageFetchFailed, fx.ctrl.View().Notice.MessageKey)
}

func TestController_GesturesRefusedWhileCommitting(t *testing.T) {
	fx := newFixture(t, Callbacks{})
	fx.store.started = make(chan struct{})
	fx.store.release = make(chan struct{})

	fx.ctrl.Connect(fx.d, fx.c)

	done := make(chan error, 1)
	go func() { done <- fx.ctrl.Commit(context.Background()) }()
	<-fx.store.started

	require.Equal(t, StateCommitting, fx.ctrl.State())
	out := fx.ctrl.Connect(fx.a, fx.d)
	require.Equal(t, Outcome{Result: hierarchy.Accepted, MessageKey: MessageBusy}, out)
	require.Equal(t, MessageBusy, fx.ctrl.Detach(fx.b).MessageKey)
	require.Equal(t, MessageBusy, fx.ctrl.UndoDetach().MessageKey)
	require.False(t, fx.ctrl.BeginDrag(fx.a))
	require.ErrorIs(t, fx.ctrl.Commit(context.Background()), ErrCommitInProgress)
	require.ErrorIs(t, fx.ctrl.Discard(), ErrCommitInProgress)
	require.ErrorIs(t, fx.ctrl.Load(context.Background()), ErrCommitInProgress)

	close(fx.store.release)
	require.NoError(t, <-done)
	require.Equal(t, StateClean, fx.ctrl.State())
	require.Len(t, fx.store.commits, 1)
}

func TestController_HostCallbacks(t *testing.T) {
	var added []*uuid.UUID
	var edited, deleted []uuid.UUID
	fx := newFixture(t, Callbacks{
		AddNode:    func(p *uuid.UUID) { added = append(added, p) },
		EditNode:   func(id uuid.UUID) { edited = append(edited, id) },
		DeleteNode: func(id uuid.UUID) { deleted = append(deleted, id) },
	})

	require.True(t, fx.ctrl.RequestAdd(nil))
	require.True(t, fx.ctrl.RequestAdd(&fx.a))
	require.False(t, fx.ctrl.RequestAdd(ref(uuid.New())))
	require.True(t, fx.ctrl.RequestEdit(fx.b))
	require.False(t, fx.ctrl.RequestEdit(uuid.New()))
	require.True(t, fx.ctrl.RequestDelete(fx.c))

	require.Len(t, added, 2)
	require.Nil(t, added[0])
	require.Equal(t, []uuid.UUID{fx.b}, edited)
	require.Equal(t, []uuid.UUID{fx.c}, deleted)

	bare := NewController(fx.store, Options{Kind: hierarchy.KindSector})
	require.False(t, bare.RequestAdd(nil))
}

func TestController_RandomGesturesKeepForest(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ids := make([]uuid.UUID, 12)
	nodes := make([]hierarchy.Node, len(ids))
	for i := range ids {
		ids[i] = uuid.New()
		nodes[i] = hierarchy.Node{ID: ids[i]}
		if i > 0 && rng.Intn(3) > 0 {
			nodes[i].ParentID = ref(ids[rng.Intn(i)])
		}
	}
	store := &fakeStore{nodes: nodes}
	ctrl := NewController(store, Options{Kind: hierarchy.KindSector})
	require.NoError(t, ctrl.Load(context.Background()))

	for i := 0; i < 500; i++ {
		x, y := ids[rng.Intn(len(ids))], ids[rng.Intn(len(ids))]
		switch rng.Intn(4) {
		case 0, 1:
			ctrl.Connect(x, y)
		case 2:
			ctrl.Detach(x)
		default:
			ctrl.UndoDetach()
		}
		working := ctrl.Working()
		require.Nil(t, working.FindCycle())
		require.Equal(t, len(ids), len(ctrl.View().Nodes))
	}

	require.NoError(t, ctrl.Commit(context.Background()))
	require.Nil(t, hierarchy.Build(hierarchy.KindSector, store.nodes).FindCycle())
}
