package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallGraph(t *testing.T) *Graph {
	t.Helper()
	nodes := []Node{
		{ID: 1, Lat: 14.6507, Lon: 121.1029},
		{ID: 2, Lat: 14.6520, Lon: 121.1040},
		{ID: 3, Lat: 14.6545, Lon: 121.1089},
	}
	edges := []Edge{
		{ID: 10, U: 1, V: 2, K: 0, LengthM: 180, RoadClass: RoadPrimary},
		{ID: 11, U: 2, V: 3, K: 0, LengthM: 220, RoadClass: RoadBridge},
	}
	g, err := Build(nodes, edges, Config{SnapCapM: 2000})
	require.NoError(t, err)
	return g
}

func TestSnapReturnsExactNodeForItsOwnCoord(t *testing.T) {
	g := smallGraph(t)
	id, err := g.Snap(Point{Lat: 14.6520, Lon: 121.1040})
	require.NoError(t, err)
	assert.Equal(t, NodeID(2), id)
}

func TestSnapFailsBeyondCap(t *testing.T) {
	g := smallGraph(t)
	_, err := g.Snap(Point{Lat: 0, Lon: 0})
	assert.ErrorIs(t, err, ErrNoNearbyNode)
}

func TestSetRiskClampsAndIsIdempotent(t *testing.T) {
	g := smallGraph(t)
	now := time.Now()

	require.NoError(t, g.SetRisk(10, 1.5, now))
	r, at := mustEdge(t, g, 10).Risk()
	assert.Equal(t, 1.0, r)
	assert.WithinDuration(t, now, at, time.Second)

	require.NoError(t, g.SetRisk(10, -0.5, now))
	r, _ = mustEdge(t, g, 10).Risk()
	assert.Equal(t, 0.0, r)

	require.NoError(t, g.SetRisk(10, 0.42, now))
	r, _ = mustEdge(t, g, 10).Risk()
	assert.Equal(t, 0.42, r)
}

func TestSetRiskUnknownEdge(t *testing.T) {
	g := smallGraph(t)
	err := g.SetRisk(999, 0.5, time.Now())
	assert.ErrorIs(t, err, ErrUnknownEdge)
}

func TestRiskHistogramSumsToEdgeCount(t *testing.T) {
	g := smallGraph(t)
	now := time.Now()
	require.NoError(t, g.SetRisk(10, 0.1, now))
	require.NoError(t, g.SetRisk(11, 0.9, now))

	h := g.RiskHistogram()
	assert.Equal(t, g.EdgeCount(), h.Total())
	assert.Equal(t, 1, h.Low)
	assert.Equal(t, 1, h.Critical)
}

func TestEdgesWithinIsDeterministicallyOrdered(t *testing.T) {
	g := smallGraph(t)
	center := Point{Lat: 14.6513, Lon: 121.1034}
	a := g.EdgesWithin(center, 5000)
	b := g.EdgesWithin(center, 5000)
	require.Equal(t, a, b)
	for i := 1; i < len(a); i++ {
		assert.Less(t, a[i-1], a[i])
	}
}

func TestEdgesFromIsSortedByEdgeID(t *testing.T) {
	g := smallGraph(t)
	edges := g.EdgesFrom(1)
	require.Len(t, edges, 1)
	assert.Equal(t, EdgeID(10), edges[0].ID)
}

func mustEdge(t *testing.T, g *Graph, id EdgeID) *Edge {
	t.Helper()
	e, err := g.Edge(id)
	require.NoError(t, err)
	return e
}
