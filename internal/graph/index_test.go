package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNearestScansOneRingPastFirstHitWhenThatRingIsNotZero reproduces a
// boundary case the ring search must not miss: a candidate sitting in
// the far corner of a ring-1 cell can be farther away than a genuinely
// closer candidate one ring out, sitting near its own cell's inner
// edge. The search must keep going one ring past wherever the first
// candidate was found, not stop as soon as any ring past zero is
// reached.
func TestNearestScansOneRingPastFirstHitWhenThatRingIsNotZero(t *testing.T) {
	idx := newSpatialIndex(0.01)
	idx.insert(1, Point{Lat: 0.0199, Lon: 0.0199}) // ring-1 cell (1,1), far corner
	idx.insert(2, Point{Lat: 0.0, Lon: 0.0201})    // ring-2 cell (2,0), near corner, actually closer

	key, dist, found := idx.nearest(Point{Lat: 0, Lon: 0}, func(k int64) Point { return idx.points[k] })
	require.True(t, found)
	assert.Equal(t, int64(2), key, "the ring-2 candidate is closer and must win")
	assert.Less(t, dist, HaversineMeters(Point{Lat: 0, Lon: 0}, Point{Lat: 0.0199, Lon: 0.0199}))
}

func TestNearestStopsOneRingPastAFirstHitAtRingZero(t *testing.T) {
	idx := newSpatialIndex(0.01)
	idx.insert(1, Point{Lat: 0.001, Lon: 0.001}) // query's own cell

	key, _, found := idx.nearest(Point{Lat: 0, Lon: 0}, func(k int64) Point { return idx.points[k] })
	require.True(t, found)
	assert.Equal(t, int64(1), key)
}
