// Package risk implements the pure depth/velocity/road-class -> edge risk
// score function. It holds no state and performs no I/O; every value it
// ever computes is reproducible from its three inputs alone.
package risk

import "github.com/kubilitics/kubilitics-ai/internal/graph"

// Gravity is g in the energy-head formula E = depth + v^2/(2g).
const Gravity = 9.81

// Multipliers is the road-class multiplier table applied to the base risk
// curve. It is a configuration input: tests MUST pin fixed values here so
// results stay deterministic, per the piecewise curve's own requirement.
type Multipliers map[graph.RoadClass]float64

// DefaultMultipliers is the pinned table used unless a caller supplies its
// own. Bridges and service roads carry the highest multiplier (low-lying,
// first to flood); primary roads carry 1.0 as the baseline.
var DefaultMultipliers = Multipliers{
	graph.RoadPrimary:     1.0,
	graph.RoadHighway:     1.0,
	graph.RoadSecondary:   1.1,
	graph.RoadTertiary:    1.2,
	graph.RoadResidential: 1.2,
	graph.RoadService:     1.4,
	graph.RoadBridge:      1.5,
}

func (m Multipliers) factor(rc graph.RoadClass) float64 {
	if f, ok := m[rc]; ok {
		return f
	}
	return 1.0
}

// EnergyHead computes E = depth + v^2/(2g); velocity defaults to 0 when
// unknown, per the caller passing 0.
func EnergyHead(depthM, velocityMS float64) float64 {
	return depthM + (velocityMS*velocityMS)/(2*Gravity)
}

// BaseRisk maps an energy head to the base (pre-multiplier) risk value
// using the pinned piecewise curve:
//
//	E <= 0.1          -> 0
//	E <= 0.3          -> linear 0 -> 0.4
//	E <= 0.6          -> linear 0.4 -> 0.7
//	E <= 1.0          -> linear 0.7 -> 0.9
//	E > 1.0           -> min(0.9 + (E-1.0)*0.1, 1.0)
func BaseRisk(energyHead float64) float64 {
	switch {
	case energyHead <= 0.1:
		return 0
	case energyHead <= 0.3:
		return lerp(energyHead, 0.1, 0.3, 0, 0.4)
	case energyHead <= 0.6:
		return lerp(energyHead, 0.3, 0.6, 0.4, 0.7)
	case energyHead <= 1.0:
		return lerp(energyHead, 0.6, 1.0, 0.7, 0.9)
	default:
		v := 0.9 + (energyHead-1.0)*0.1
		if v > 1.0 {
			return 1.0
		}
		return v
	}
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	t := (x - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}

// Score computes the final clamped [0,1] edge risk for a given depth,
// velocity, and road class, using mult for the road-class multiplier
// table (pass DefaultMultipliers unless a config override applies).
func Score(depthM, velocityMS float64, rc graph.RoadClass, mult Multipliers) float64 {
	if mult == nil {
		mult = DefaultMultipliers
	}
	e := EnergyHead(depthM, velocityMS)
	base := BaseRisk(e)
	scored := base * mult.factor(rc)
	return clamp01(scored)
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
