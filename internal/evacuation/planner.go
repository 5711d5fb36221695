// Package evacuation implements the evacuation planner (C8): given a
// user's coordinate, find the best reachable shelter under the current
// risk field.
package evacuation

import (
	"context"
	"fmt"
	"sync"

	"github.com/kubilitics/kubilitics-ai/internal/graph"
	"github.com/kubilitics/kubilitics-ai/internal/router"
)

// DefaultLambda is the distance/risk tradeoff in the shelter score:
// distance_m + Lambda*max_risk. Sized so that a single 0.9-risk crossing
// (0.9*Lambda ≈ 2250m) outweighs a 2km detour on safe road.
const DefaultLambda = 2500.0

// Status mirrors the outcome taxonomy the HTTP layer reports.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusNoSafeShelter Status = "no_safe_shelter"
)

// Plan is the planner's answer to one evacuation request.
type Plan struct {
	Status  Status
	Shelter Shelter
	Route   router.Result
	Score   float64
}

// Planner scores every shelter in the registry by a safest-mode route
// from the user's coordinate and returns the best one.
type Planner struct {
	g        *graph.Graph
	r        *router.Router
	shelters []Shelter
	lambda   float64

	mu        sync.RWMutex
	nodeCache map[string]graph.NodeID // shelter name -> snapped node, invalidated on reload
}

// New builds a Planner over a fixed shelter registry. lambda <= 0 uses
// DefaultLambda.
func New(g *graph.Graph, r *router.Router, shelters []Shelter, lambda float64) *Planner {
	if lambda <= 0 {
		lambda = DefaultLambda
	}
	p := &Planner{g: g, r: r, shelters: shelters, lambda: lambda}
	p.rebuildSnapCache()
	return p
}

// InvalidateSnapCache recomputes the shelter->node snap table. Call this
// after the graph has been reloaded with new topology.
func (p *Planner) InvalidateSnapCache() {
	p.rebuildSnapCache()
}

func (p *Planner) rebuildSnapCache() {
	cache := make(map[string]graph.NodeID, len(p.shelters))
	for _, s := range p.shelters {
		if node, err := p.g.Snap(s.Coord); err == nil {
			cache[s.Name] = node
		}
	}
	p.mu.Lock()
	p.nodeCache = cache
	p.mu.Unlock()
}

// Plan finds the lowest-score reachable shelter from userCoord.
func (p *Planner) Plan(ctx context.Context, userCoord graph.Point) (Plan, error) {
	userNode, err := p.g.Snap(userCoord)
	if err != nil {
		return Plan{}, fmt.Errorf("evacuation: %w", router.ErrOutsideServiceArea)
	}

	p.mu.RLock()
	cache := p.nodeCache
	p.mu.RUnlock()

	best := Plan{Status: StatusNoSafeShelter}
	haveBest := false
	for _, s := range p.shelters {
		shelterNode, ok := cache[s.Name]
		if !ok {
			continue
		}
		result, err := p.r.RouteFromNodes(ctx, userNode, shelterNode, router.ModeSafest)
		if err != nil {
			continue // impassable for this shelter; try the next
		}
		score := result.DistanceM + p.lambda*result.MaxRisk
		if !haveBest || score < best.Score {
			best = Plan{Status: StatusSuccess, Shelter: s, Route: result, Score: score}
			haveBest = true
		}
	}
	if !haveBest {
		return Plan{Status: StatusNoSafeShelter}, nil
	}
	return best, nil
}
