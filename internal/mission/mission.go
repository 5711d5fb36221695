// Package mission implements the mission FSM (C11): the orchestrator
// that drives a typed request through its component's collaborators via
// REQUEST/CONFIRM round trips on the bus, or direct calls into the
// router and evacuation planner, and records the outcome.
package mission

import (
	"time"
)

// Type is one of the four supported mission shapes. A direct typed
// request arrives already carrying one of these; a natural-language
// chat request is resolved to one by an external interpreter that is
// out of scope here.
type Type string

const (
	TypeAssessRisk             Type = "assess_risk"
	TypeRouteCalculation       Type = "route_calculation"
	TypeCoordinatedEvacuation  Type = "coordinated_evacuation"
	TypeCascadeRiskUpdate      Type = "cascade_risk_update"
)

// State is a node in a mission's fixed per-type state sequence.
type State string

const (
	StateCreated            State = "CREATED"
	StateAwaitingScout      State = "AWAITING_SCOUT"
	StateAwaitingFlood      State = "AWAITING_FLOOD"
	StateAwaitingHazard     State = "AWAITING_HAZARD"
	StateAwaitingRouting    State = "AWAITING_ROUTING"
	StateAwaitingEvacuation State = "AWAITING_EVACUATION"
	StateCompleted          State = "COMPLETED"
	StateFailed             State = "FAILED"
)

// sequences gives the full CREATED-to-COMPLETED path for each mission
// type; FAILED is reachable from any of these states and is therefore
// not listed.
var sequences = map[Type][]State{
	TypeAssessRisk:            {StateCreated, StateAwaitingScout, StateAwaitingFlood, StateAwaitingHazard, StateCompleted},
	TypeRouteCalculation:      {StateCreated, StateAwaitingRouting, StateCompleted},
	TypeCoordinatedEvacuation: {StateCreated, StateAwaitingEvacuation, StateCompleted},
	TypeCascadeRiskUpdate:     {StateCreated, StateAwaitingFlood, StateAwaitingHazard, StateCompleted},
}

// Config controls the per-state timeouts. Scout/flood/hazard values are
// pinned; routing/evacuation are this package's own choice, sized the
// same as the other synchronous steps since the spec is silent on them.
type Config struct {
	ScoutTimeout      time.Duration
	FloodTimeout      time.Duration
	HazardTimeout     time.Duration
	RoutingTimeout    time.Duration
	EvacuationTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ScoutTimeout <= 0 {
		c.ScoutTimeout = 30 * time.Second
	}
	if c.FloodTimeout <= 0 {
		c.FloodTimeout = 60 * time.Second
	}
	if c.HazardTimeout <= 0 {
		c.HazardTimeout = 30 * time.Second
	}
	if c.RoutingTimeout <= 0 {
		c.RoutingTimeout = 30 * time.Second
	}
	if c.EvacuationTimeout <= 0 {
		c.EvacuationTimeout = 30 * time.Second
	}
	return c
}

// Mission is one orchestrated request and its outcome.
type Mission struct {
	ID            string
	Type          Type
	State         State
	Params        map[string]any
	Result        any
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Snapshot returns a value copy safe to hand to a caller outside the
// engine's lock.
func (m *Mission) Snapshot() Mission {
	return *m
}
