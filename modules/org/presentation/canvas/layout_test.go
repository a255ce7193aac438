package canvas

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
)

func TestComputeLayout_CentresParentsOverChildren(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	f := hierarchy.Build(hierarchy.KindSector, []hierarchy.Node{
		{ID: a},
		{ID: b, ParentID: ref(a)},
		{ID: c, ParentID: ref(a)},
		{ID: d},
	})

	l := computeLayout(f)

	require.Equal(t, []uuid.UUID{a, b, c, d}, l.Order)
	require.Equal(t, 3, l.Width)
	require.Equal(t, 1, l.Depth)
	require.Equal(t, Point{X: 0.5, Y: 0}, l.Positions[a])
	require.Equal(t, Point{X: 0, Y: 1}, l.Positions[b])
	require.Equal(t, Point{X: 1, Y: 1}, l.Positions[c])
	require.Equal(t, Point{X: 2, Y: 0}, l.Positions[d])
}

func TestComputeLayout_DeepChainDoesNotRecurse(t *testing.T) {
	const depth = 20000
	nodes := make([]hierarchy.Node, depth)
	for i := range nodes {
		nodes[i].ID = uuid.New()
		if i > 0 {
			nodes[i].ParentID = ref(nodes[i-1].ID)
		}
	}

	l := computeLayout(hierarchy.Build(hierarchy.KindSector, nodes))

	require.Len(t, l.Order, depth)
	require.Equal(t, depth-1, l.Depth)
	require.Equal(t, 1, l.Width)
}

func TestComputeLayout_Empty(t *testing.T) {
	l := computeLayout(hierarchy.Build(hierarchy.KindSector, nil))
	require.Empty(t, l.Order)
	require.Zero(t, l.Width)
}
