// Package hazard implements the fusion core (C4): the component that owns
// the per-edge risk field and rebuilds it from hydrological samples,
// scout reports, and (optionally) GeoTIFF flood depths on every fusion
// pass.
package hazard

import (
	"time"

	"github.com/kubilitics/kubilitics-ai/internal/graph"
)

// StationKind enumerates the hydrological station types.
type StationKind string

const (
	StationRiver    StationKind = "river"
	StationRainfall StationKind = "rainfall"
	StationDam      StationKind = "dam"
)

// StationStatus is the alert level the station itself reports.
type StationStatus string

const (
	StatusNormal   StationStatus = "NORMAL"
	StatusAlert    StationStatus = "ALERT"
	StatusAlarm    StationStatus = "ALARM"
	StatusCritical StationStatus = "CRITICAL"
)

// HydroSample is one reading from a river gauge, weather station, or dam.
type HydroSample struct {
	StationID    string
	Kind         StationKind
	Coord        graph.Point
	LocationName string
	Value        float64 // meters for river/dam depth, mm/h for rainfall
	Unit         string
	Status       StationStatus
	ObservedAt   time.Time
}

// ScoutReport is one crowdsourced flood mention, already classified and
// scored by the scout collector (C6).
type ScoutReport struct {
	Text            string
	LocationName    string
	Coord           *graph.Point // nil if ungeocodable
	Severity        float64      // [0,1]
	Confidence      float64      // [0,1]
	ReportType      string
	IsFloodRelated  bool
	ObservedAt      time.Time
}

// Scenario is the current (return_period, time_step, geotiff_enabled)
// handle. It is mutable and owned exclusively by the hazard core; admin
// endpoints change it via a typed message, never by reaching into state.
type Scenario struct {
	ReturnPeriod    string
	TimeStep        int
	GeotiffEnabled  bool
}

// FusedLocation is the per-location output of fusion step 1. It is
// rebuilt from scratch on every pass; its lifetime is exactly one pass.
type FusedLocation struct {
	LocationName string
	Coord        *graph.Point
	RiskLevel    float64
	Sources      []string
}

// LiveUpdateKind is the taxonomy of messages the broadcaster fans out.
type LiveUpdateKind string

const (
	KindFloodUpdate   LiveUpdateKind = "flood_update"
	KindRiskUpdate    LiveUpdateKind = "risk_update"
	KindCriticalAlert LiveUpdateKind = "critical_alert"
	KindSystemStatus  LiveUpdateKind = "system_status"
)

// LiveUpdate is one ephemeral message fanned out to all live-broadcast
// subscribers.
type LiveUpdate struct {
	Kind      LiveUpdateKind
	Data      map[string]any
	EmittedAt time.Time
}

// Publisher is the minimal surface the hazard core needs from the live
// broadcaster (C12); kept as an interface here so hazard never imports
// the broadcast package directly.
type Publisher interface {
	Publish(update LiveUpdate)
}

// CriticalThreshold is the risk level at or above which an edge or
// location is considered critical.
const CriticalThreshold = 0.85

// Fusion weights, pinned per the specification's configuration inputs.
const (
	WeightFloodDefault = 0.5
	WeightCrowdDefault = 0.3
	WeightHistDefault  = 0.2
	DiffusionRDefault  = 800.0 // meters
)
