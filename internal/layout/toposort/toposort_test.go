package toposort

import (
	"context"
	"testing"

	"github.com/citegraph/layout-engine/internal/graphstore/graphstoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSorter_OrdersLinearChain(t *testing.T) {
	store := graphstoretest.New()
	store.AddEdge("a", "b")
	store.AddEdge("b", "c")

	result, err := New(store, nil, 100).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Assigned)
	assert.Equal(t, int64(0), result.CycleFallback)

	bad, err := store.ValidateTopoOrder(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bad)
}

func TestSorter_DiamondValidatesOrder(t *testing.T) {
	store := graphstoretest.New()
	store.AddEdge("a", "b")
	store.AddEdge("a", "c")
	store.AddEdge("b", "d")
	store.AddEdge("c", "d")

	_, err := New(store, nil, 100).Run(context.Background())
	require.NoError(t, err)

	bad, err := store.ValidateTopoOrder(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bad)
}

func TestSorter_ResidualCycleFallback(t *testing.T) {
	store := graphstoretest.New()
	store.AddEdge("a", "b")
	store.AddEdge("b", "c")
	store.AddEdge("c", "a")

	result, err := New(store, nil, 100).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Assigned)
	assert.Equal(t, int64(3), result.CycleFallback)

	unvisited, err := store.UnvisitedUIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, unvisited)
}

func TestSorter_MixedCycleAndDAG(t *testing.T) {
	store := graphstoretest.New()
	store.AddEdge("a", "b")
	store.AddEdge("b", "c")
	store.AddEdge("c", "b") // b,c form a cycle; a remains a proper source

	result, err := New(store, nil, 100).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Assigned) // only "a" clears via the wave loop
	assert.Equal(t, int64(2), result.CycleFallback)
}
