package hazard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-ai/internal/graph"
	"github.com/kubilitics/kubilitics-ai/internal/metrics"
	"github.com/kubilitics/kubilitics-ai/internal/raster"
	"github.com/kubilitics/kubilitics-ai/internal/risk"
)

// Config controls the fusion weights and radius used by Engine.
type Config struct {
	WeightFlood    float64
	WeightCrowd    float64
	WeightHist     float64
	DiffusionRM    float64
	CriticalAt     float64
	DebounceWindow time.Duration
	Multipliers    risk.Multipliers
}

func (c Config) withDefaults() Config {
	if c.WeightFlood == 0 && c.WeightCrowd == 0 && c.WeightHist == 0 {
		c.WeightFlood, c.WeightCrowd, c.WeightHist = WeightFloodDefault, WeightCrowdDefault, WeightHistDefault
	}
	if c.DiffusionRM <= 0 {
		c.DiffusionRM = DiffusionRDefault
	}
	if c.CriticalAt <= 0 {
		c.CriticalAt = CriticalThreshold
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 60 * time.Second
	}
	if c.Multipliers == nil {
		c.Multipliers = risk.DefaultMultipliers
	}
	return c
}

// PassResult summarizes one completed fusion pass.
type PassResult struct {
	LocationsProcessed int
	EdgesUpdated       int
	Histogram          graph.RiskHistogram
	NewlyCritical      []string
	DegradedLocations  int
}

// Engine is the hazard fusion core. It owns the flood cache, scout cache,
// and scenario handle, and is the sole writer of graph edge risk.
type Engine struct {
	cfg Config

	g   *graph.Graph
	rc  *raster.Catalog
	pub Publisher
	log *zap.Logger

	// cacheMu guards floodCache, scoutCache, and scenario. Writers
	// (UpdateHydroSample/UpdateScoutReport/SetScenario) take the full
	// lock; a fusion pass takes it only long enough to snapshot.
	cacheMu    sync.RWMutex
	floodCache map[string]HydroSample
	scoutCache map[string]ScoutReport
	scenario   Scenario

	// passMu serializes concurrent passes from step 1 to the end; in
	// practice passes never overlap because of the coalescing loop
	// below, but this also protects prevCritical/debounce bookkeeping.
	passMu       sync.Mutex
	prevCritical map[graph.EdgeID]bool
	debounce     map[string]time.Time

	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}

	consecutiveFailures int
	fatalCh             chan error
}

// maxConsecutiveFailures bounds how many fusion passes in a row may fail
// before the loop reports itself unrecoverable via Fatal.
const maxConsecutiveFailures = 5

// New constructs an Engine bound to g and rc, publishing live updates
// through pub. log may be nil, in which case a no-op logger is used.
func New(g *graph.Graph, rc *raster.Catalog, pub Publisher, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:          cfg.withDefaults(),
		g:            g,
		rc:           rc,
		pub:          pub,
		log:          log,
		floodCache:   make(map[string]HydroSample),
		scoutCache:   make(map[string]ScoutReport),
		scenario:     Scenario{ReturnPeriod: "rr01", TimeStep: 1, GeotiffEnabled: false},
		prevCritical: make(map[graph.EdgeID]bool),
		debounce:     make(map[string]time.Time),
		triggerCh:    make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		fatalCh:      make(chan error, 1),
	}
}

// Fatal reports an unrecoverable fusion loop: maxConsecutiveFailures
// passes failed in a row with no successful pass in between. The process
// is expected to exit and let its supervisor restart it rather than keep
// serving routes over a graph whose risk field has stopped updating.
func (e *Engine) Fatal() <-chan error {
	return e.fatalCh
}

// Start runs the coalescing fusion loop in a background goroutine. Every
// call to TriggerFusion either starts a pass immediately or, if one is
// already in flight, schedules exactly one follow-up.
func (e *Engine) Start(ctx context.Context) {
	go e.loop(ctx)
}

// Stop signals the loop to exit; it does not wait for an in-flight pass
// to finish. Callers that need that should watch Wait().
func (e *Engine) Stop() {
	close(e.stopCh)
}

// Wait blocks until the loop goroutine has exited.
func (e *Engine) Wait() {
	<-e.doneCh
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-e.triggerCh:
			if _, err := e.RunFusionPass(ctx); err != nil {
				e.log.Error("fusion pass failed", zap.Error(err))
				e.consecutiveFailures++
				if e.consecutiveFailures >= maxConsecutiveFailures {
					select {
					case e.fatalCh <- fmt.Errorf("hazard: %d consecutive fusion pass failures: %w", e.consecutiveFailures, err):
					default:
					}
					return
				}
			} else {
				e.consecutiveFailures = 0
			}
		}
	}
}

// TriggerFusion requests a pass. If one is already queued or running, the
// request coalesces into the single pending follow-up rather than
// queuing a second one.
func (e *Engine) TriggerFusion() {
	select {
	case e.triggerCh <- struct{}{}:
	default:
		metrics.FusionCoalescedTriggers.Inc()
	}
}

// UpdateHydroSample writes s into the flood cache, keyed by station id.
func (e *Engine) UpdateHydroSample(s HydroSample) {
	s.Value = clampNonNegative(s.Value)
	e.cacheMu.Lock()
	e.floodCache[s.StationID] = s
	e.cacheMu.Unlock()
}

// UpdateScoutReport writes r into the scout cache, keyed by location
// name, overwriting only if r is newer than what's cached.
func (e *Engine) UpdateScoutReport(r ScoutReport) {
	r.Severity = clamp01(r.Severity)
	r.Confidence = clamp01(r.Confidence)
	if r.LocationName == "" {
		return
	}
	e.cacheMu.Lock()
	if existing, ok := e.scoutCache[r.LocationName]; !ok || r.ObservedAt.After(existing.ObservedAt) {
		e.scoutCache[r.LocationName] = r
	}
	e.cacheMu.Unlock()
}

// SetScenario installs a new scenario handle and triggers exactly one
// fusion pass, per the spec's "admin mutates via typed message" rule.
func (e *Engine) SetScenario(s Scenario) {
	e.cacheMu.Lock()
	e.scenario = s
	e.cacheMu.Unlock()
	e.TriggerFusion()
}

// Scenario returns the current scenario handle.
func (e *Engine) Scenario() Scenario {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	return e.scenario
}

// RunFusionPass executes one synchronous fusion pass end to end. It is
// exported directly (in addition to the coalescing TriggerFusion path) so
// the orchestrator's assess_risk/cascade_risk_update missions and tests
// can await a specific pass's completion.
func (e *Engine) RunFusionPass(ctx context.Context) (PassResult, error) {
	start := time.Now()

	e.cacheMu.RLock()
	floodSnap := make(map[string]HydroSample, len(e.floodCache))
	for k, v := range e.floodCache {
		floodSnap[k] = v
	}
	scoutSnap := make(map[string]ScoutReport, len(e.scoutCache))
	for k, v := range e.scoutCache {
		scoutSnap[k] = v
	}
	scenario := e.scenario
	e.cacheMu.RUnlock()

	e.passMu.Lock()
	defer e.passMu.Unlock()

	// Step 1: fuse inputs into per-location risk.
	locations, degraded := e.fuseLocations(floodSnap, scoutSnap)

	// Step 2: GeoTIFF contribution per edge.
	geoRisk, err := e.geotiffContribution(scenario)
	if err != nil {
		metrics.FusionPassesTotal.WithLabelValues("failed").Inc()
		return PassResult{}, fmt.Errorf("hazard: geotiff contribution: %w", err)
	}

	// Step 3: environmental contribution with spatial falloff.
	envRisk := e.environmentalContribution(locations)

	// Step 4: write combined risk to the graph.
	now := time.Now()
	edgesUpdated := 0
	newlyCritical := make([]string, 0)
	for _, id := range e.allEdgeIDs() {
		final := clamp01(geoRisk[id] + envRisk[id])
		if err := e.g.SetRisk(id, final, now); err != nil {
			metrics.FusionPassesTotal.WithLabelValues("failed").Inc()
			return PassResult{}, fmt.Errorf("hazard: write edge %d: %w", id, err)
		}
		edgesUpdated++

		isCritical := final >= e.cfg.CriticalAt
		if isCritical && !e.prevCritical[id] {
			if e.shouldAlert(fmt.Sprintf("edge:%d", id), now) {
				newlyCritical = append(newlyCritical, fmt.Sprintf("edge:%d", id))
			}
		}
		e.prevCritical[id] = isCritical
	}

	for _, loc := range locations {
		if loc.RiskLevel >= e.cfg.CriticalAt && e.shouldAlert("location:"+loc.LocationName, now) {
			newlyCritical = append(newlyCritical, "location:"+loc.LocationName)
		}
	}

	result := PassResult{
		LocationsProcessed: len(locations),
		EdgesUpdated:       edgesUpdated,
		Histogram:          e.g.RiskHistogram(),
		NewlyCritical:      newlyCritical,
		DegradedLocations:  degraded,
	}

	// Step 5: emit updates.
	e.emitUpdates(result, scenario)

	metrics.FusionPassesTotal.WithLabelValues("success").Inc()
	metrics.FusionPassDuration.Observe(time.Since(start).Seconds())
	if degraded > 0 {
		metrics.FusionDegradedLocations.Add(float64(degraded))
	}

	return result, nil
}

func (e *Engine) allEdgeIDs() []graph.EdgeID {
	return e.g.AllEdgeIDs()
}

func (e *Engine) shouldAlert(key string, now time.Time) bool {
	last, seen := e.debounce[key]
	if seen && now.Sub(last) < e.cfg.DebounceWindow {
		return false
	}
	e.debounce[key] = now
	return true
}

// fuseLocations implements fusion step 1.
func (e *Engine) fuseLocations(flood map[string]HydroSample, scout map[string]ScoutReport) ([]FusedLocation, int) {
	type acc struct {
		depthRisk float64
		rainRisk  float64
		coord     *graph.Point
		sources   []string
	}
	byLocation := make(map[string]*acc)

	keyFor := func(s HydroSample) string {
		if s.LocationName != "" {
			return s.LocationName
		}
		return s.StationID
	}

	for _, s := range flood {
		k := keyFor(s)
		a, ok := byLocation[k]
		if !ok {
			a = &acc{}
			byLocation[k] = a
		}
		switch s.Kind {
		case StationRainfall:
			rr := rainRiskFromMMH(s.Value)
			if rr > a.rainRisk {
				a.rainRisk = rr
			}
		default: // river, dam: value is a depth in meters
			dr := risk.BaseRisk(risk.EnergyHead(s.Value, 0))
			if dr > a.depthRisk {
				a.depthRisk = dr
			}
		}
		if a.coord == nil {
			c := s.Coord
			a.coord = &c
		}
		a.sources = append(a.sources, "hydro:"+s.StationID)
	}

	for name := range scout {
		if _, ok := byLocation[name]; !ok {
			byLocation[name] = &acc{}
		}
	}

	names := make([]string, 0, len(byLocation))
	for name := range byLocation {
		names = append(names, name)
	}
	sort.Strings(names)

	degraded := 0
	out := make([]FusedLocation, 0, len(names))
	for _, name := range names {
		a := byLocation[name]
		hydroRisk := a.depthRisk
		if 0.5*a.rainRisk > hydroRisk {
			hydroRisk = 0.5 * a.rainRisk
		}

		fused := hydroRisk
		sources := append([]string{}, a.sources...)
		if rep, ok := scout[name]; ok {
			scoutRisk := rep.Severity * rep.Confidence
			if scoutRisk > fused {
				fused = scoutRisk
			}
			sources = append(sources, "scout")
			if a.coord == nil && rep.Coord != nil {
				a.coord = rep.Coord
			}
		}

		if a.coord == nil {
			degraded++
			e.log.Warn("location has no coordinate, falling back to global contribution", zap.String("location", name))
		}

		out = append(out, FusedLocation{
			LocationName: name,
			Coord:        a.coord,
			RiskLevel:    clamp01(fused),
			Sources:      sources,
		})
	}

	return out, degraded
}

// rainRiskFromMMH maps hourly rainfall to a risk contribution per the
// pinned threshold table.
func rainRiskFromMMH(mmPerHour float64) float64 {
	switch {
	case mmPerHour > 30:
		return 0.8
	case mmPerHour > 15:
		return 0.6
	case mmPerHour > 7.5:
		return 0.4
	case mmPerHour > 2.5:
		return 0.2
	default:
		return 0
	}
}

// geotiffContribution implements fusion step 2.
func (e *Engine) geotiffContribution(scenario Scenario) (map[graph.EdgeID]float64, error) {
	out := make(map[graph.EdgeID]float64)
	if !scenario.GeotiffEnabled || e.rc == nil {
		return out, nil
	}

	rp := raster.ReturnPeriod(scenario.ReturnPeriod)
	ts := raster.TimeStep(scenario.TimeStep)

	for _, id := range e.allEdgeIDs() {
		edge, err := e.g.Edge(id)
		if err != nil {
			continue
		}
		depth, err := e.rc.EdgeDepth(edge, e.g, rp, ts)
		if err != nil {
			// MissingRaster/ProjectionError degrade to zero contribution
			// for this edge; the pass still completes.
			e.log.Debug("geotiff contribution degraded", zap.Int64("edge", int64(id)), zap.Error(err))
			continue
		}
		if depth == nil {
			continue
		}
		out[id] = risk.Score(*depth, 0, edge.RoadClass, e.cfg.Multipliers) * e.cfg.WeightFlood
	}
	return out, nil
}

// environmentalContribution implements fusion step 3, iterating fused
// locations in a fixed sorted order so repeated passes over identical
// inputs accumulate floats in the same order and produce bit-identical
// results.
func (e *Engine) environmentalContribution(locations []FusedLocation) map[graph.EdgeID]float64 {
	out := make(map[graph.EdgeID]float64)
	weight := e.cfg.WeightCrowd + e.cfg.WeightHist

	sorted := make([]FusedLocation, len(locations))
	copy(sorted, locations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LocationName < sorted[j].LocationName })

	var globalFallback []FusedLocation
	for _, loc := range sorted {
		if loc.Coord == nil {
			globalFallback = append(globalFallback, loc)
			continue
		}
		hits := e.g.EdgesWithin(*loc.Coord, e.cfg.DiffusionRM)
		contribution := loc.RiskLevel * weight
		for _, edgeID := range hits {
			capped := out[edgeID] + contribution
			if capped > 1.0 {
				capped = 1.0
			}
			out[edgeID] = capped
		}
	}

	// Locations without a coordinate apply globally, per spec step 3.
	for _, loc := range globalFallback {
		contribution := loc.RiskLevel * weight
		for _, id := range e.allEdgeIDs() {
			capped := out[id] + contribution
			if capped > 1.0 {
				capped = 1.0
			}
			out[id] = capped
		}
	}

	return out
}

func (e *Engine) emitUpdates(result PassResult, scenario Scenario) {
	if e.pub == nil {
		return
	}
	now := time.Now()
	e.pub.Publish(LiveUpdate{
		Kind: KindRiskUpdate,
		Data: map[string]any{
			"histogram": map[string]int{
				"low": result.Histogram.Low, "moderate": result.Histogram.Moderate,
				"high": result.Histogram.High, "critical": result.Histogram.Critical,
			},
			"scenario": map[string]any{
				"return_period":   scenario.ReturnPeriod,
				"time_step":       scenario.TimeStep,
				"geotiff_enabled": scenario.GeotiffEnabled,
			},
		},
		EmittedAt: now,
	})

	if len(result.NewlyCritical) > 0 {
		e.pub.Publish(LiveUpdate{
			Kind: KindCriticalAlert,
			Data: map[string]any{
				"offending": result.NewlyCritical,
			},
			EmittedAt: now,
		})
		for _, src := range result.NewlyCritical {
			metrics.CriticalAlertsTotal.WithLabelValues(kindOf(src)).Inc()
		}
	}
}

func kindOf(offender string) string {
	if len(offender) >= 5 && offender[:5] == "edge:" {
		return "edge"
	}
	return "location"
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
