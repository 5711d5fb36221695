package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-ai/internal/graph"
)

// buildGraph wires two parallel 1->3 corridors: a low-risk path through
// node 2, and a high-risk shortcut through node 4.
func buildGraph(t *testing.T) *graph.Graph {
	t.Helper()
	nodes := []graph.Node{
		{ID: 1, Lat: 14.650, Lon: 121.100},
		{ID: 2, Lat: 14.651, Lon: 121.101},
		{ID: 3, Lat: 14.652, Lon: 121.102},
		{ID: 4, Lat: 14.651, Lon: 121.100},
	}
	edges := []graph.Edge{
		{ID: 10, U: 1, V: 2, LengthM: 140, RoadClass: graph.RoadPrimary},
		{ID: 11, U: 2, V: 3, LengthM: 140, RoadClass: graph.RoadPrimary},
		{ID: 12, U: 1, V: 4, LengthM: 100, RoadClass: graph.RoadPrimary},
		{ID: 13, U: 4, V: 3, LengthM: 100, RoadClass: graph.RoadPrimary},
	}
	g, err := graph.Build(nodes, edges, graph.Config{SnapCapM: 2000})
	require.NoError(t, err)
	return g
}

func TestRouteSafestAvoidsFilteredHighRiskShortcut(t *testing.T) {
	g := buildGraph(t)
	require.NoError(t, g.SetRisk(12, 0.95, time.Now()))
	require.NoError(t, g.SetRisk(13, 0.95, time.Now()))

	r := New(g)
	result, err := r.Route(context.Background(), graph.Point{Lat: 14.650, Lon: 121.100}, graph.Point{Lat: 14.652, Lon: 121.102}, ModeSafest)
	require.NoError(t, err)
	assert.Equal(t, []graph.EdgeID{10, 11}, result.Path)
	assert.Empty(t, result.Warnings)
}

func TestRouteFastestPrefersShortcutDespiteRisk(t *testing.T) {
	g := buildGraph(t)
	require.NoError(t, g.SetRisk(12, 0.5, time.Now()))
	require.NoError(t, g.SetRisk(13, 0.5, time.Now()))

	r := New(g)
	result, err := r.Route(context.Background(), graph.Point{Lat: 14.650, Lon: 121.100}, graph.Point{Lat: 14.652, Lon: 121.102}, ModeFastest)
	require.NoError(t, err)
	assert.Equal(t, []graph.EdgeID{12, 13}, result.Path)
}

func TestRouteFallsBackWhenHardFilterLeavesNoPath(t *testing.T) {
	g := buildGraph(t)
	// Every corridor is above the safest threshold; safest search fails
	// outright and must retry unfiltered.
	require.NoError(t, g.SetRisk(10, 0.95, time.Now()))
	require.NoError(t, g.SetRisk(11, 0.95, time.Now()))
	require.NoError(t, g.SetRisk(12, 0.95, time.Now()))
	require.NoError(t, g.SetRisk(13, 0.95, time.Now()))

	r := New(g)
	result, err := r.Route(context.Background(), graph.Point{Lat: 14.650, Lon: 121.100}, graph.Point{Lat: 14.652, Lon: 121.102}, ModeSafest)
	require.NoError(t, err)
	require.NotEmpty(t, result.Path)
	assert.Contains(t, result.Warnings, FallbackWarning)
}

func TestRouteImpassableWhenNoEdgeExistsAtAll(t *testing.T) {
	nodes := []graph.Node{
		{ID: 1, Lat: 14.650, Lon: 121.100},
		{ID: 2, Lat: 14.900, Lon: 121.300}, // isolated, no connecting edge
	}
	g, err := graph.Build(nodes, nil, graph.Config{SnapCapM: 5000})
	require.NoError(t, err)

	r := New(g)
	_, err = r.Route(context.Background(), graph.Point{Lat: 14.650, Lon: 121.100}, graph.Point{Lat: 14.900, Lon: 121.300}, ModeBalanced)
	assert.ErrorIs(t, err, ErrImpassable)
}

func TestRouteOutsideServiceAreaWhenCoordinateDoesNotSnap(t *testing.T) {
	g := buildGraph(t)
	r := New(g)
	_, err := r.Route(context.Background(), graph.Point{Lat: -33.0, Lon: 151.0}, graph.Point{Lat: 14.652, Lon: 121.102}, ModeBalanced)
	assert.ErrorIs(t, err, ErrOutsideServiceArea)
}

func TestRouteTieBreaksOnSmallerEdgeID(t *testing.T) {
	nodes := []graph.Node{
		{ID: 1, Lat: 14.650, Lon: 121.100},
		{ID: 2, Lat: 14.651, Lon: 121.101},
	}
	edges := []graph.Edge{
		{ID: 21, U: 1, V: 2, LengthM: 140, RoadClass: graph.RoadPrimary},
		{ID: 20, U: 1, V: 2, LengthM: 140, RoadClass: graph.RoadPrimary},
	}
	g, err := graph.Build(nodes, edges, graph.Config{SnapCapM: 2000})
	require.NoError(t, err)

	r := New(g)
	result, err := r.Route(context.Background(), graph.Point{Lat: 14.650, Lon: 121.100}, graph.Point{Lat: 14.651, Lon: 121.101}, ModeBalanced)
	require.NoError(t, err)
	assert.Equal(t, []graph.EdgeID{20}, result.Path)
}

func TestRouteWarnsOnHighAndCriticalSegments(t *testing.T) {
	g := buildGraph(t)
	// Force the search onto the 10/11 corridor by filtering the
	// shortcut's risk above the safest preset's hard cap.
	require.NoError(t, g.SetRisk(12, 0.95, time.Now()))
	require.NoError(t, g.SetRisk(13, 0.95, time.Now()))
	require.NoError(t, g.SetRisk(10, 0.75, time.Now()))
	require.NoError(t, g.SetRisk(11, 0.9, time.Now()))

	r := New(g)
	result, err := r.Route(context.Background(), graph.Point{Lat: 14.650, Lon: 121.100}, graph.Point{Lat: 14.652, Lon: 121.102}, ModeSafest)
	require.NoError(t, err)
	assert.Equal(t, []graph.EdgeID{10, 11}, result.Path)
	assert.Contains(t, result.Warnings, "WARNING: route traverses HIGH risk segment >= 0.7")
	assert.Contains(t, result.Warnings, "CRITICAL: route traverses a 0.90 segment")
}

func TestRouteGeometryFallsBackToStraightLineWhenEdgeHasNone(t *testing.T) {
	g := buildGraph(t)
	r := New(g)
	result, err := r.Route(context.Background(), graph.Point{Lat: 14.650, Lon: 121.100}, graph.Point{Lat: 14.652, Lon: 121.102}, ModeBalanced)
	require.NoError(t, err)
	require.Len(t, result.Geometry, 4)
	assert.Equal(t, graph.Point{Lat: 14.650, Lon: 121.100}, result.Geometry[0])
	assert.Equal(t, graph.Point{Lat: 14.652, Lon: 121.102}, result.Geometry[3])
}

func TestRouteResultMetrics(t *testing.T) {
	g := buildGraph(t)
	require.NoError(t, g.SetRisk(10, 0.2, time.Now()))
	require.NoError(t, g.SetRisk(11, 0.4, time.Now()))
	require.NoError(t, g.SetRisk(12, 0.95, time.Now()))
	require.NoError(t, g.SetRisk(13, 0.95, time.Now()))

	r := New(g)
	result, err := r.Route(context.Background(), graph.Point{Lat: 14.650, Lon: 121.100}, graph.Point{Lat: 14.652, Lon: 121.102}, ModeSafest)
	require.NoError(t, err)
	assert.Equal(t, []graph.EdgeID{10, 11}, result.Path)
	assert.InDelta(t, 280.0, result.DistanceM, 1e-9)
	assert.InDelta(t, 280.0/500.0, result.EstimatedTimeMin, 1e-9)
	assert.InDelta(t, 0.4, result.MaxRisk, 1e-9)
	assert.InDelta(t, (0.2*140+0.4*140)/280.0, result.MeanRiskLengthWeighted, 1e-9)
}
