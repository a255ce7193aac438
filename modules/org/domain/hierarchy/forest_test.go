package hierarchy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func id(n byte) uuid.UUID {
	var u uuid.UUID
	u[15] = n
	return u
}

func ref(u uuid.UUID) *uuid.UUID { return &u }

func ids(nodes []Node) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestBuild_RootsAndChildrenKeepInsertionOrder(t *testing.T) {
	a, b, c, d := id(1), id(2), id(3), id(4)
	f := Build(KindSector, []Node{
		{ID: c, ParentID: ref(a)},
		{ID: a},
		{ID: d},
		{ID: b, ParentID: ref(a)},
	})

	require.Equal(t, 4, f.Len())
	require.Equal(t, []uuid.UUID{a, d}, ids(f.Roots()))
	require.Equal(t, []uuid.UUID{c, b}, ids(f.ChildrenOf(a)))
	require.Empty(t, f.ChildrenOf(d))
	require.Empty(t, f.ChildrenOf(id(99)))
}

func TestBuild_DanglingParentBecomesRoot(t *testing.T) {
	orphan := id(1)
	f := Build(KindSector, []Node{
		{ID: orphan, ParentID: ref(id(42))},
	})

	require.Equal(t, []uuid.UUID{orphan}, ids(f.Roots()))
	_, hasParent := f.ParentOf(orphan)
	require.False(t, hasParent)
	require.Equal(t, 0, f.Depth(orphan))
}

func TestBuild_SelfReferenceAndDuplicates(t *testing.T) {
	a := id(1)
	f := Build(KindSector, []Node{
		{ID: a, DisplayName: "first", ParentID: ref(a)},
		{ID: a, DisplayName: "second"},
		{ID: uuid.Nil, DisplayName: "ignored"},
	})

	require.Equal(t, 1, f.Len())
	n, ok := f.Node(a)
	require.True(t, ok)
	require.Equal(t, "first", n.DisplayName)
	require.Equal(t, KindSector, n.Kind)
	require.Equal(t, []uuid.UUID{a}, ids(f.Roots()))
}

func TestBuild_DoesNotAliasInputParents(t *testing.T) {
	a, b := id(1), id(2)
	parent := a
	nodes := []Node{{ID: a}, {ID: b, ParentID: &parent}}
	f := Build(KindSector, nodes)

	parent = id(77)
	p, ok := f.ParentOf(b)
	require.True(t, ok)
	require.Equal(t, a, p)
}

func TestDescendantsOf(t *testing.T) {
	a, b, c, d, e := id(1), id(2), id(3), id(4), id(5)
	f := Build(KindSector, []Node{
		{ID: a},
		{ID: b, ParentID: ref(a)},
		{ID: c, ParentID: ref(b)},
		{ID: d, ParentID: ref(a)},
		{ID: e},
	})

	require.Equal(t, map[uuid.UUID]struct{}{b: {}, c: {}, d: {}}, f.DescendantsOf(a))
	require.Equal(t, map[uuid.UUID]struct{}{c: {}}, f.DescendantsOf(b))
	require.Empty(t, f.DescendantsOf(c))
	require.Empty(t, f.DescendantsOf(id(99)))
}

func TestDescendantsOf_DeepChainDoesNotRecurse(t *testing.T) {
	const depth = 100000
	nodes := make([]Node, 0, depth)
	var prev *uuid.UUID
	for i := 0; i < depth; i++ {
		n := Node{ID: uuid.New(), ParentID: prev}
		nodes = append(nodes, n)
		prev = ref(n.ID)
	}
	f := Build(KindSector, nodes)

	require.Len(t, f.DescendantsOf(nodes[0].ID), depth-1)
	require.True(t, f.IsDescendant(nodes[0].ID, nodes[depth-1].ID))
	require.Equal(t, depth-1, f.Depth(nodes[depth-1].ID))
}

func TestIsDescendant(t *testing.T) {
	a, b, c, d := id(1), id(2), id(3), id(4)
	f := Build(KindSector, []Node{
		{ID: a},
		{ID: b, ParentID: ref(a)},
		{ID: c, ParentID: ref(b)},
		{ID: d},
	})

	require.True(t, f.IsDescendant(a, c))
	require.True(t, f.IsDescendant(b, c))
	require.False(t, f.IsDescendant(c, a))
	require.False(t, f.IsDescendant(a, a))
	require.False(t, f.IsDescendant(a, d))
	require.False(t, f.IsDescendant(a, id(99)))
}

func TestWithParents_LeavesReceiverUntouched(t *testing.T) {
	a, b, c := id(1), id(2), id(3)
	f := Build(KindSector, []Node{
		{ID: a},
		{ID: b, ParentID: ref(a)},
		{ID: c},
	})

	moved := f.WithParents(map[uuid.UUID]*uuid.UUID{
		b:      ref(c),
		a:      ref(c),
		id(99): ref(a),
	})

	require.Equal(t, []uuid.UUID{a, c}, ids(f.Roots()))
	require.Equal(t, []uuid.UUID{c}, ids(moved.Roots()))
	require.Equal(t, []uuid.UUID{a, b}, ids(moved.ChildrenOf(c)))
	require.Equal(t, 3, moved.Len())

	detached := f.WithParents(map[uuid.UUID]*uuid.UUID{b: nil})
	require.Equal(t, []uuid.UUID{a, b, c}, ids(detached.Roots()))
}

func TestFindCycle(t *testing.T) {
	a, b, c, d := id(1), id(2), id(3), id(4)
	valid := Build(KindSector, []Node{
		{ID: a},
		{ID: b, ParentID: ref(a)},
		{ID: c, ParentID: ref(b)},
	})
	require.Nil(t, valid.FindCycle())

	cyclic := Build(KindSector, []Node{
		{ID: a},
		{ID: b, ParentID: ref(c)},
		{ID: c, ParentID: ref(d)},
		{ID: d, ParentID: ref(b)},
	})
	require.ElementsMatch(t, []uuid.UUID{b, c, d}, cyclic.FindCycle())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Sectors ")
	require.NoError(t, err)
	require.Equal(t, KindSector, k)

	k, err = ParseKind("position")
	require.NoError(t, err)
	require.Equal(t, KindPosition, k)
	require.True(t, k.Grouped())

	_, err = ParseKind("contract")
	require.Error(t, err)
}
