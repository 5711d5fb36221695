// Package router implements the risk-aware router (C7): an A* search
// over the street graph's edge-risk field with three selectable
// mode presets.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/kubilitics/kubilitics-ai/internal/graph"
)

// Mode selects the weight/filter preset a route request uses.
type Mode string

const (
	ModeSafest   Mode = "safest"
	ModeBalanced Mode = "balanced"
	ModeFastest  Mode = "fastest"
)

// Weights controls the linear blend of distance and risk in edge cost:
// cost(e) = length_m * (WDist + WRisk*risk(e)).
type Weights struct {
	WDist float64
	WRisk float64
}

// Preset pairs a mode's weights with its hard edge filter. Filter
// returns false for edges that must be suppressed during expansion.
type Preset struct {
	Weights Weights
	Filter  func(risk float64) bool
}

// Presets are the three pinned mode configurations.
var Presets = map[Mode]Preset{
	ModeSafest: {
		Weights: Weights{WDist: 0.1, WRisk: 0.9},
		Filter:  func(risk float64) bool { return risk <= 0.9 },
	},
	ModeBalanced: {
		Weights: Weights{WDist: 0.5, WRisk: 0.5},
		Filter:  func(risk float64) bool { return risk < 1.0 },
	},
	ModeFastest: {
		Weights: Weights{WDist: 0.8, WRisk: 0.2},
		Filter:  func(risk float64) bool { return risk < 1.0 },
	},
}

// FallbackWarning is attached to a result that only succeeded after the
// mode's hard filter was dropped.
const FallbackWarning = "FASTEST MODE FALLBACK"

// Errors returned by Route.
var (
	ErrOutsideServiceArea = errors.New("router: coordinate outside service area")
	ErrImpassable         = errors.New("router: no path exists")
)

// highRiskThreshold and criticalRiskThreshold gate the per-segment
// warnings buildResult appends to a route's Warnings.
const (
	highRiskThreshold     = 0.7
	criticalRiskThreshold = 0.85
)

// Result is the router's answer to one route request.
type Result struct {
	Path                   []graph.EdgeID
	Geometry               []graph.Point
	DistanceM              float64
	EstimatedTimeMin       float64
	MaxRisk                float64
	MeanRiskLengthWeighted float64
	Warnings               []string
}

// Router answers shortest-safe-path queries over a fixed graph.
type Router struct {
	g *graph.Graph
}

// New binds a Router to g. The graph's topology is assumed fixed for the
// Router's lifetime; only edge risk changes underneath it.
func New(g *graph.Graph) *Router {
	return &Router{g: g}
}

// Route finds a path from `from` to `to` under mode's weights and hard
// filter. Both endpoints must snap within the graph's configured snap
// cap, else ErrOutsideServiceArea. If no path survives the hard filter,
// Route retries once with no filter and tags the result with
// FallbackWarning; if that also fails, it returns ErrImpassable.
func (r *Router) Route(ctx context.Context, from, to graph.Point, mode Mode) (Result, error) {
	start, err := r.g.Snap(from)
	if err != nil {
		return Result{}, ErrOutsideServiceArea
	}
	goal, err := r.g.Snap(to)
	if err != nil {
		return Result{}, ErrOutsideServiceArea
	}
	return r.RouteFromNodes(ctx, start, goal, mode)
}

// RouteFromNodes runs the same search as Route but skips snapping, for
// callers that maintain their own coord->node cache (the evacuation
// planner's shelter table, in particular).
func (r *Router) RouteFromNodes(ctx context.Context, start, goal graph.NodeID, mode Mode) (Result, error) {
	preset, ok := Presets[mode]
	if !ok {
		preset = Presets[ModeBalanced]
	}

	path, found := aStar(ctx, r.g, start, goal, preset.Weights, preset.Filter)
	if !found {
		path, found = aStar(ctx, r.g, start, goal, preset.Weights, nil)
		if !found {
			return Result{}, ErrImpassable
		}
		return buildResult(r.g, path, []string{FallbackWarning}), nil
	}
	return buildResult(r.g, path, nil), nil
}

func buildResult(g *graph.Graph, path []graph.EdgeID, warnings []string) Result {
	var distance, weightedRisk, maxRisk float64
	var geometry []graph.Point
	for _, id := range path {
		e, err := g.Edge(id)
		if err != nil {
			continue
		}
		risk, _ := e.Risk()
		distance += e.LengthM
		weightedRisk += risk * e.LengthM
		if risk > maxRisk {
			maxRisk = risk
		}
		switch {
		case risk >= criticalRiskThreshold:
			warnings = append(warnings, fmt.Sprintf("CRITICAL: route traverses a %.2f segment", risk))
		case risk >= highRiskThreshold:
			warnings = append(warnings, fmt.Sprintf("WARNING: route traverses HIGH risk segment >= %.1f", highRiskThreshold))
		}
		geometry = append(geometry, edgeGeometry(g, e)...)
	}
	mean := 0.0
	if distance > 0 {
		mean = weightedRisk / distance
	}
	return Result{
		Path:                   path,
		Geometry:               geometry,
		DistanceM:              distance,
		EstimatedTimeMin:       distance / 500.0,
		MaxRisk:                maxRisk,
		MeanRiskLengthWeighted: mean,
		Warnings:               warnings,
	}
}

// edgeGeometry returns e's polyline, falling back to the straight line
// between its endpoints when no geometry was loaded for it.
func edgeGeometry(g *graph.Graph, e *graph.Edge) []graph.Point {
	if len(e.Geometry) > 0 {
		return e.Geometry
	}
	u, err := g.Node(e.U)
	if err != nil {
		return nil
	}
	v, err := g.Node(e.V)
	if err != nil {
		return nil
	}
	return []graph.Point{{Lat: u.Lat, Lon: u.Lon}, {Lat: v.Lat, Lon: v.Lon}}
}
