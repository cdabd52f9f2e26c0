package graphstoretest

import (
	"context"
	"testing"
	"time"

	"github.com/citegraph/layout-engine/internal/graphstore"
	"github.com/citegraph/layout-engine/pkg/model"
	"github.com/citegraph/layout-engine/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_RemoveSelfLoops(t *testing.T) {
	f := New()
	f.AddEdge("a", "a")
	f.AddEdge("a", "b")

	removed, err := f.RemoveSelfLoops(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	edges, err := f.AllEdges(context.Background())
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestFake_CountSourceVertices(t *testing.T) {
	f := New()
	f.AddEdge("a", "b")
	f.AddEdge("a", "c")
	f.AddVertex("isolated")

	count, err := f.CountSourceVertices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count) // only "a" has in-degree 0 with an incident edge
}

func TestFake_TopoSortRoundtrip(t *testing.T) {
	f := New()
	f.AddEdge("a", "b")
	f.AddEdge("b", "c")

	require.NoError(t, f.InitInDegrees(context.Background(), 100))

	var order int64
	for {
		batch, err := f.ExtractZeroInDegreeBatch(context.Background(), 10)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		require.NoError(t, f.AssignTopoOrder(context.Background(), batch, order))
		order += int64(len(batch))
		require.NoError(t, f.DecrementInDegree(context.Background(), batch))
	}

	unvisited, err := f.UnvisitedUIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, unvisited)

	bad, err := f.ValidateTopoOrder(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bad)
}

func TestFake_ComponentsWCC(t *testing.T) {
	f := New()
	f.AddEdge("a", "b")
	f.AddEdge("c", "d")
	f.AddVertex("e")

	components, err := f.ComponentsWCC(context.Background())
	require.NoError(t, err)
	assert.Len(t, components, 3) // {a,b}, {c,d}, {e}
}

func TestFake_PinnedVertices(t *testing.T) {
	f := New()
	f.AddPinnedVertex("p1", 7)

	pinned, err := f.PinnedVertices(context.Background())
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, model.PinnedVertex{UID: "p1", TargetLevel: 7}, pinned[0])
}

func TestFake_SyncMarkerRendezvous(t *testing.T) {
	clock := utils.NewMockClock(time.Unix(0, 0))
	f := NewWithClock(clock)

	require.NoError(t, f.InsertSyncMarker(context.Background(), 0, 2))
	count, err := f.CountSyncMarkers(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, ok, err := f.MasterMarkerTimestamp(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(time.Second)
	require.NoError(t, f.InsertSyncMarker(context.Background(), 1, 2))
	count, err = f.CountSyncMarkers(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFake_BatchUpdatePositionsSetsCoordinates(t *testing.T) {
	f := New()
	f.AddVertex("a")

	err := f.BatchUpdatePositions(context.Background(), []graphstore.PositionUpdate{
		{UID: "a", Layer: 2, Level: 3, Status: model.StatusPlaced},
	}, 10)
	require.NoError(t, err)

	occupied, err := f.SlotOccupied(context.Background(), 2, 3)
	require.NoError(t, err)
	assert.True(t, occupied)

	maxLevel, err := f.MaxLevelInLayer(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, maxLevel)
}
