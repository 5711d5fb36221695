// Package graph holds the immutable street network and the single mutable
// per-edge risk field laid over it.
//
// Nodes and edges are loaded once at startup and never change topology
// afterward. Risk is the one mutable attribute on an edge; it is written
// exclusively by the hazard fusion core (internal/hazard) under a single
// writer lock, and read freely by the router (internal/router) and the
// evacuation planner (internal/evacuation).
package graph

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// RoadClass enumerates the handful of road types the risk calculator and
// router both care about.
type RoadClass string

const (
	RoadPrimary     RoadClass = "primary"
	RoadSecondary   RoadClass = "secondary"
	RoadTertiary    RoadClass = "tertiary"
	RoadResidential RoadClass = "residential"
	RoadService     RoadClass = "service"
	RoadBridge      RoadClass = "bridge"
	RoadHighway     RoadClass = "highway"
)

// NodeID and EdgeID are opaque, dense identifiers assigned at load time.
type NodeID int64

// EdgeID uniquely identifies one directed edge, including its parallel-edge
// disambiguator k.
type EdgeID int64

// Node is a fixed geographic point in the street network.
type Node struct {
	ID  NodeID
	Lat float64
	Lon float64
}

// Point is a bare coordinate, used for query inputs that are not yet
// snapped to a node.
type Point struct {
	Lat float64
	Lon float64
}

// Edge is one directed street segment. Every field except Risk and
// LastUpdated is fixed after load.
type Edge struct {
	ID        EdgeID
	U, V      NodeID
	K         int // disambiguates parallel edges between the same U,V
	LengthM   float64
	RoadClass RoadClass
	Geometry  []Point // optional polyline; nil means straight line U->V

	mu          sync.RWMutex
	risk        float64
	lastUpdated time.Time
}

// Risk returns the edge's current risk and the time it was last written.
func (e *Edge) Risk() (float64, time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.risk, e.lastUpdated
}

func (e *Edge) setRisk(value float64, at time.Time) {
	if value < 0 {
		value = 0
	} else if value > 1 {
		value = 1
	}
	e.mu.Lock()
	e.risk = value
	e.lastUpdated = at
	e.mu.Unlock()
}

// Midpoint returns the representative point used for radius queries: the
// midpoint of the geometry polyline if present, else the straight-line
// midpoint between endpoints.
func (e *Edge) Midpoint(g *Graph) Point {
	if len(e.Geometry) > 0 {
		mid := len(e.Geometry) / 2
		return e.Geometry[mid]
	}
	u, _ := g.Node(e.U)
	v, _ := g.Node(e.V)
	return Point{Lat: (u.Lat + v.Lat) / 2, Lon: (u.Lon + v.Lon) / 2}
}

// Errors returned by graph operations. Callers type-assert or use errors.Is.
var (
	ErrNoNearbyNode = errors.New("graph: no node within snap cap")
	ErrUnknownNode  = errors.New("graph: unknown node id")
	ErrUnknownEdge  = errors.New("graph: unknown edge id")
)

// RiskHistogram buckets edges by the thresholds in the risk-field spec.
type RiskHistogram struct {
	Low      int // risk < 0.3
	Moderate int // risk < 0.6
	High     int // risk < 0.85
	Critical int // risk >= 0.85
}

func (h RiskHistogram) Total() int {
	return h.Low + h.Moderate + h.High + h.Critical
}

// Graph is the immutable-topology, mutable-risk street network plus its two
// secondary indexes: a grid-bucketed nearest-node index and an
// edge-midpoint index for radius queries.
//
// Node and edge tables are never mutated after Build returns, so they need
// no lock. Only per-edge risk (guarded per-edge by Edge.mu) changes after
// load.
type Graph struct {
	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge

	nodeIndex *spatialIndex
	edgeIndex *spatialIndex

	snapCapM float64
}

// Config holds the snap cap. The spatial-index cell size is not
// configured; cellSizeForCount derives it from the node count.
type Config struct {
	// SnapCapM is the maximum distance, in meters, a coordinate may be
	// from its nearest node for Snap to succeed.
	SnapCapM float64
}

// Build constructs a Graph from node and edge tables. It is the only place
// topology is assembled; after this call returns, node and edge sets are
// frozen.
func Build(nodes []Node, edges []Edge, cfg Config) (*Graph, error) {
	if cfg.SnapCapM <= 0 {
		cfg.SnapCapM = 2000
	}

	g := &Graph{
		nodes:    make(map[NodeID]*Node, len(nodes)),
		edges:    make(map[EdgeID]*Edge, len(edges)),
		snapCapM: cfg.SnapCapM,
	}

	for i := range nodes {
		n := nodes[i]
		g.nodes[n.ID] = &n
	}

	g.nodeIndex = newSpatialIndex(cellSizeForCount(len(nodes)))
	for _, n := range g.nodes {
		g.nodeIndex.insert(n.ID, Point{Lat: n.Lat, Lon: n.Lon})
	}

	g.edgeIndex = newSpatialIndex(cellSizeForCount(len(edges)))
	for i := range edges {
		e := edges[i]
		if _, ok := g.nodes[e.U]; !ok {
			return nil, fmt.Errorf("graph: edge %d references unknown node %d", e.ID, e.U)
		}
		if _, ok := g.nodes[e.V]; !ok {
			return nil, fmt.Errorf("graph: edge %d references unknown node %d", e.ID, e.V)
		}
		stored := &e
		g.edges[stored.ID] = stored
	}
	for id, e := range g.edges {
		mid := e.Midpoint(g)
		g.edgeIndex.insert(edgeKeyFromID(id), mid)
	}

	return g, nil
}

// cellSizeForCount picks a grid cell size, in degrees, that keeps bucket
// occupancy roughly constant regardless of network size.
func cellSizeForCount(n int) float64 {
	if n < 1000 {
		return 0.01
	}
	if n < 10000 {
		return 0.004
	}
	return 0.002
}

// Node returns the node for id, or ErrUnknownNode.
func (g *Graph) Node(id NodeID) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return n, nil
}

// Edge returns the edge for id, or ErrUnknownEdge.
func (g *Graph) Edge(id EdgeID) (*Edge, error) {
	e, ok := g.edges[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEdge, id)
	}
	return e, nil
}

// NodeCount and EdgeCount report table sizes.
func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

// AllEdgeIDs returns every edge id in the graph, sorted for deterministic
// iteration by callers that accumulate floating-point state across a full
// pass (the hazard fusion core, in particular).
func (g *Graph) AllEdgeIDs() []EdgeID {
	out := make([]EdgeID, 0, len(g.edges))
	for id := range g.edges {
		out = append(out, id)
	}
	sortEdgeIDs(out)
	return out
}

// EdgesFrom returns the outgoing edges for a node, for router expansion.
// Order is by edge id for deterministic tie-breaking downstream.
func (g *Graph) EdgesFrom(id NodeID) []*Edge {
	// Built lazily rather than precomputed, since Build already visits
	// every edge once; an adjacency index would duplicate that pass for
	// marginal benefit at this node count (~17k).
	var out []*Edge
	for _, e := range g.edges {
		if e.U == id {
			out = append(out, e)
		}
	}
	sortEdgesByID(out)
	return out
}

// Snap returns the nearest node to coord by haversine distance, or
// ErrNoNearbyNode if the nearest candidate exceeds the configured cap.
func (g *Graph) Snap(coord Point) (NodeID, error) {
	id, dist, ok := g.nodeIndex.nearest(coord, func(k int64) Point {
		n := g.nodes[NodeID(k)]
		return Point{Lat: n.Lat, Lon: n.Lon}
	})
	if !ok || dist > g.snapCapM {
		return 0, ErrNoNearbyNode
	}
	return NodeID(id), nil
}

// EdgesWithin returns the ids of edges whose midpoint lies within radiusM
// meters of center. The result is sorted by edge id for reproducibility.
func (g *Graph) EdgesWithin(center Point, radiusM float64) []EdgeID {
	keys := g.edgeIndex.within(center, radiusM)
	out := make([]EdgeID, 0, len(keys))
	for _, k := range keys {
		out = append(out, EdgeID(k))
	}
	sortEdgeIDs(out)
	return out
}

// SetRisk clamps value to [0,1] and writes it to the edge, stamping
// last_updated with now. Idempotent: writing the same value again just
// refreshes the timestamp.
func (g *Graph) SetRisk(id EdgeID, value float64, now time.Time) error {
	e, ok := g.edges[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEdge, id)
	}
	e.setRisk(value, now)
	return nil
}

// RiskHistogram buckets every edge's current risk into the four severity
// bands used throughout the system.
func (g *Graph) RiskHistogram() RiskHistogram {
	var h RiskHistogram
	for _, e := range g.edges {
		r, _ := e.Risk()
		switch {
		case r >= 0.85:
			h.Critical++
		case r >= 0.6:
			h.High++
		case r >= 0.3:
			h.Moderate++
		default:
			h.Low++
		}
	}
	return h
}

// HaversineMeters is the great-circle distance between two points, used by
// Snap, EdgesWithin, and the router's admissible heuristic.
func HaversineMeters(a, b Point) float64 {
	const earthRadiusM = 6371000.0
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

func edgeKeyFromID(id EdgeID) int64 { return int64(id) }
