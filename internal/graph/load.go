package graph

import (
	"encoding/json"
	"fmt"
	"os"
)

// fileNode and fileEdge mirror the on-disk road network format described
// for the graph loader: nodes {id, lat, lon} and edges
// {u, v, k, length_m, road_class, geometry?}.
type fileNode struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type fileEdge struct {
	ID        int64      `json:"id"`
	U         int64      `json:"u"`
	V         int64      `json:"v"`
	K         int        `json:"k"`
	LengthM   float64    `json:"length_m"`
	RoadClass string     `json:"road_class"`
	Geometry  [][]float64 `json:"geometry,omitempty"` // [[lat,lon], ...]
}

type fileGraph struct {
	Nodes []fileNode `json:"nodes"`
	Edges []fileEdge `json:"edges"`
}

// LoadFromFile reads a serialized road network from path and builds a
// Graph from it.
func LoadFromFile(path string, cfg Config) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graph: read network file: %w", err)
	}
	var fg fileGraph
	if err := json.Unmarshal(data, &fg); err != nil {
		return nil, fmt.Errorf("graph: parse network file: %w", err)
	}

	nodes := make([]Node, 0, len(fg.Nodes))
	for _, n := range fg.Nodes {
		nodes = append(nodes, Node{ID: NodeID(n.ID), Lat: n.Lat, Lon: n.Lon})
	}

	edges := make([]Edge, 0, len(fg.Edges))
	for _, e := range fg.Edges {
		var geom []Point
		for _, pt := range e.Geometry {
			if len(pt) != 2 {
				continue
			}
			geom = append(geom, Point{Lat: pt[0], Lon: pt[1]})
		}
		edges = append(edges, Edge{
			ID:        EdgeID(e.ID),
			U:         NodeID(e.U),
			V:         NodeID(e.V),
			K:         e.K,
			LengthM:   e.LengthM,
			RoadClass: RoadClass(e.RoadClass),
			Geometry:  geom,
		})
	}

	return Build(nodes, edges, cfg)
}
