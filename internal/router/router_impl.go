package router

import (
	"container/heap"
	"context"

	"github.com/kubilitics/kubilitics-ai/internal/graph"
)

// cost is the edge weight under a given preset's weights.
func cost(e *graph.Edge, w Weights) float64 {
	risk, _ := e.Risk()
	return e.LengthM * (w.WDist + w.WRisk*risk)
}

// heuristic is an admissible, consistent lower bound on the remaining cost
// to goal: the straight-line distance times the cheapest possible per-meter
// cost factor, WDist (risk never makes an edge cheaper). It is a lower
// bound only while every edge's LengthM is at least the straight-line
// distance between its endpoints; shorter lengths can make aStar return
// a costlier path than the cheapest one.
func heuristic(g *graph.Graph, from, goal graph.NodeID, w Weights) float64 {
	a, errA := g.Node(from)
	b, errB := g.Node(goal)
	if errA != nil || errB != nil {
		return 0
	}
	d := graph.HaversineMeters(graph.Point{Lat: a.Lat, Lon: a.Lon}, graph.Point{Lat: b.Lat, Lon: b.Lon})
	return d * w.WDist
}

type searchState struct {
	node    graph.NodeID
	gScore  float64
	fScore  float64
	viaEdge graph.EdgeID // smallest edge id that currently achieves gScore, for deterministic tie-break
}

type frontier []searchState

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].fScore != f[j].fScore {
		return f[i].fScore < f[j].fScore
	}
	return f[i].viaEdge < f[j].viaEdge
}
func (f frontier) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)        { *f = append(*f, x.(searchState)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}

// aStar searches from start to goal. filter, if non-nil, suppresses any
// edge whose current risk it rejects; a nil filter means no hard filter.
// Ties between equal-cost paths into the same node are broken in favor of
// the smaller edge id, checked both on strict improvement and on exact
// cost ties.
func aStar(ctx context.Context, g *graph.Graph, start, goal graph.NodeID, w Weights, filter func(risk float64) bool) ([]graph.EdgeID, bool) {
	if start == goal {
		return nil, true
	}

	const maxEdgeID = graph.EdgeID(1<<63 - 1)

	best := map[graph.NodeID]float64{start: 0}
	bestEdge := map[graph.NodeID]graph.EdgeID{start: maxEdgeID}
	cameFromNode := map[graph.NodeID]graph.NodeID{}
	cameFromEdge := map[graph.NodeID]graph.EdgeID{}
	visited := map[graph.NodeID]bool{}

	pq := &frontier{{node: start, gScore: 0, fScore: heuristic(g, start, goal, w), viaEdge: maxEdgeID}}
	heap.Init(pq)

	for pq.Len() > 0 {
		select {
		case <-ctx.Done():
			return nil, false
		default:
		}

		cur := heap.Pop(pq).(searchState)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true

		if cur.node == goal {
			return reconstruct(cameFromNode, cameFromEdge, goal), true
		}

		for _, e := range g.EdgesFrom(cur.node) {
			risk, _ := e.Risk()
			if filter != nil && !filter(risk) {
				continue
			}
			next := e.V
			if visited[next] {
				continue
			}
			newG := cur.gScore + cost(e, w)
			prevG, seen := best[next]
			prevEdge := bestEdge[next]
			improve := !seen || newG < prevG
			tie := seen && newG == prevG && e.ID < prevEdge
			if improve || tie {
				best[next] = newG
				bestEdge[next] = e.ID
				cameFromNode[next] = cur.node
				cameFromEdge[next] = e.ID
				heap.Push(pq, searchState{
					node:    next,
					gScore:  newG,
					fScore:  newG + heuristic(g, next, goal, w),
					viaEdge: e.ID,
				})
			}
		}
	}
	return nil, false
}

func reconstruct(cameFromNode map[graph.NodeID]graph.NodeID, cameFromEdge map[graph.NodeID]graph.EdgeID, goal graph.NodeID) []graph.EdgeID {
	var path []graph.EdgeID
	node := goal
	for {
		edge, ok := cameFromEdge[node]
		if !ok {
			break
		}
		path = append(path, edge)
		node = cameFromNode[node]
	}
	// reverse into start->goal order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
