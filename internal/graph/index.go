package graph

import "sort"

// spatialIndex is a uniform-grid bucket index over Point-keyed entries,
// identified by an int64 key (a NodeID or an edge id cast to int64). It
// gives sub-millisecond nearest/radius queries at street-network scale
// without needing a k-d tree: buckets near the query point are scanned in
// expanding rings until a candidate is found or the search radius is
// exhausted.
type spatialIndex struct {
	cellSize float64 // degrees
	buckets  map[cellKey][]int64
	points   map[int64]Point
}

type cellKey struct {
	x, y int64
}

func newSpatialIndex(cellSize float64) *spatialIndex {
	return &spatialIndex{
		cellSize: cellSize,
		buckets:  make(map[cellKey][]int64),
		points:   make(map[int64]Point),
	}
}

func (s *spatialIndex) cellFor(p Point) cellKey {
	return cellKey{
		x: int64(p.Lon / s.cellSize),
		y: int64(p.Lat / s.cellSize),
	}
}

func (s *spatialIndex) insert(key int64, p Point) {
	s.points[key] = p
	c := s.cellFor(p)
	s.buckets[c] = append(s.buckets[c], key)
}

// nearest finds the candidate closest to coord by haversine distance,
// expanding the search ring one cell at a time until a candidate is found,
// then one extra ring to catch closer points straddling a cell boundary.
func (s *spatialIndex) nearest(coord Point, lookup func(int64) Point) (int64, float64, bool) {
	if len(s.points) == 0 {
		return 0, 0, false
	}
	center := s.cellFor(coord)

	var bestKey int64
	bestDist := -1.0
	found := false
	foundRing := -1

	maxRing := 64 // generous upper bound; bails out via the full scan fallback below
	for ring := 0; ring <= maxRing; ring++ {
		for _, k := range ringKeys(center, ring) {
			for _, candidate := range s.buckets[k] {
				d := HaversineMeters(coord, lookup(candidate))
				if !found || d < bestDist {
					bestDist = d
					bestKey = candidate
					found = true
				}
			}
		}
		if found && foundRing < 0 {
			foundRing = ring
		}
		if found && ring > foundRing {
			// One extra ring beyond the ring a candidate was first found
			// on, to cover boundary cases, then stop.
			break
		}
	}

	if !found {
		// Degenerate/sparse index: fall back to a full scan.
		for k, p := range s.points {
			d := HaversineMeters(coord, p)
			if !found || d < bestDist {
				bestDist = d
				bestKey = k
				found = true
			}
		}
	}

	return bestKey, bestDist, found
}

// within returns every key whose stored point lies within radiusM meters
// of center, sorted by key for determinism (callers may re-sort by their
// own id type afterward).
func (s *spatialIndex) within(center Point, radiusM float64) []int64 {
	// Degrees-per-meter is latitude dependent; over-approximate the ring
	// radius using the equator-worst-case conversion, then filter exactly
	// by haversine distance.
	const metersPerDegree = 111320.0
	cellRadius := int64(radiusM/metersPerDegree/s.cellSize) + 1

	c := s.cellFor(center)
	var out []int64
	for dx := -cellRadius; dx <= cellRadius; dx++ {
		for dy := -cellRadius; dy <= cellRadius; dy++ {
			k := cellKey{x: c.x + dx, y: c.y + dy}
			for _, candidate := range s.buckets[k] {
				if HaversineMeters(center, s.points[candidate]) <= radiusM {
					out = append(out, candidate)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ringKeys returns every cell exactly `ring` steps (in Chebyshev distance)
// from center; ring 0 is just center itself.
func ringKeys(center cellKey, ring int) []cellKey {
	if ring == 0 {
		return []cellKey{center}
	}
	var out []cellKey
	r := int64(ring)
	for dx := -r; dx <= r; dx++ {
		out = append(out, cellKey{x: center.x + dx, y: center.y - r})
		out = append(out, cellKey{x: center.x + dx, y: center.y + r})
	}
	for dy := -r + 1; dy <= r-1; dy++ {
		out = append(out, cellKey{x: center.x - r, y: center.y + dy})
		out = append(out, cellKey{x: center.x + r, y: center.y + dy})
	}
	return out
}

func sortEdgesByID(edges []*Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
}

func sortEdgeIDs(ids []EdgeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
