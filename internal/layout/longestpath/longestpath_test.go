package longestpath

import (
	"context"
	"testing"

	"github.com/citegraph/layout-engine/internal/graphstore/graphstoretest"
	"github.com/citegraph/layout-engine/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessor_SingleEdge(t *testing.T) {
	store := graphstoretest.New()
	store.AddEdge("a", "b")

	p := New(store, nil, 100)
	result, err := p.FindAndPlace(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.PathLength)
	assert.Equal(t, []string{"a", "b"}, p.Path())

	occupied, err := store.SlotOccupied(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.True(t, occupied)
}

func TestProcessor_DiamondPicksLengthThreePath(t *testing.T) {
	store := graphstoretest.New()
	store.AddEdge("a", "b")
	store.AddEdge("a", "c")
	store.AddEdge("b", "d")
	store.AddEdge("c", "d")

	p := New(store, nil, 100)
	result, err := p.FindAndPlace(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.PathLength)

	path := p.Path()
	require.Len(t, path, 3)
	assert.Equal(t, "a", path[0])
	assert.Equal(t, "d", path[2])
}

func TestProcessor_CachedPlacementSkipsRecompute(t *testing.T) {
	store := graphstoretest.New()
	store.AddEdge("a", "b")
	store.AddEdge("b", "c")

	p := New(store, nil, 100)
	_, err := p.FindAndPlace(context.Background())
	require.NoError(t, err)
	firstPath := p.Path()

	result, err := p.FindAndPlace(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(firstPath), result.PathLength)
	assert.Equal(t, firstPath, p.Path())
}

func TestProcessor_PlaceNeighbors(t *testing.T) {
	store := graphstoretest.New()
	store.AddEdge("a", "b")
	store.AddEdge("b", "c")
	store.AddEdge("p", "b") // dead-end predecessor of the spine's middle vertex
	store.AddEdge("b", "n") // dead-end successor of the spine's middle vertex

	p := New(store, nil, 100)
	findResult, err := p.FindAndPlace(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, p.Path())
	assert.Equal(t, 3, findResult.PathLength)

	result, err := p.PlaceNeighbors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.NeighborsCount)

	statuses := map[string]model.VertexStatus{}
	rows, errc := store.StreamNodesChunked(context.Background(), nil, 100)
	for batch := range rows {
		for _, row := range batch {
			uid, _ := row["uid"].(string)
			status, _ := row["layout_status"].(string)
			statuses[uid] = model.VertexStatus(status)
		}
	}
	require.NoError(t, <-errc)

	assert.Equal(t, model.StatusLPNeighbor, statuses["p"])
	assert.Equal(t, model.StatusLPNeighbor, statuses["n"])
}

func TestProcessor_PureCycleHasNoSourceOrSinkSoNoSpine(t *testing.T) {
	store := graphstoretest.New()
	store.AddEdge("a", "b")
	store.AddEdge("b", "c")
	store.AddEdge("c", "a")

	p := New(store, nil, 100)
	result, err := p.FindAndPlace(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.PathLength) // every vertex has both in- and out-degree > 0; no spine to place
	assert.Empty(t, p.Path())
}

func TestProcessor_CycleWithTailFindsPath(t *testing.T) {
	store := graphstoretest.New()
	store.AddEdge("a", "b")
	store.AddEdge("b", "c")
	store.AddEdge("c", "b") // b,c cycle
	store.AddEdge("c", "d") // d is a sink, reachable from the cycle

	p := New(store, nil, 100)
	result, err := p.FindAndPlace(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.PathLength) // "a" is the only source; a-b-c-d is the longest simple path
	assert.Equal(t, []string{"a", "b", "c", "d"}, p.Path())
}
