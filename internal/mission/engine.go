package mission

import (
	"container/ring"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-ai/internal/audit"
	"github.com/kubilitics/kubilitics-ai/internal/bus"
	"github.com/kubilitics/kubilitics-ai/internal/evacuation"
	"github.com/kubilitics/kubilitics-ai/internal/graph"
	"github.com/kubilitics/kubilitics-ai/internal/router"
)

// Content types exchanged with the scout/flood/hazard mailboxes. These
// duplicate the collector and hazard packages' own constants
// deliberately, the same way internal/hazard/listener.go documents its
// side of each wire contract independently of its callers.
const (
	contentCollectNow    = "collect_now"
	contentTriggerFusion = "trigger_fusion"
)

const historySize = 1024

// errStepTimeout is returned internally when a bus round trip exceeds
// its per-state timeout; it always surfaces as a FAILED mission with a
// structured reason, never to the caller of RunMission.
var errStepTimeout = errors.New("mission: step timed out")

// Engine drives missions to completion, recording every outcome. The bus
// round trips of concurrent missions are serialized by awaitMu below;
// their router and planner calls are not.
type Engine struct {
	cfg      Config
	b        *bus.Bus
	selfID   string
	scoutID  string
	floodID  string
	hazardID string
	rt       *router.Router
	planner  *evacuation.Planner
	log      *zap.Logger
	audit    audit.Logger

	// awaitMu serializes bus REQUEST/CONFIRM round trips across
	// concurrently running missions so each mission's reply is
	// unambiguous on the engine's single shared mailbox, without needing
	// a per-mission mailbox the bus has no way to unregister.
	awaitMu sync.Mutex

	mu       sync.RWMutex
	missions map[string]*Mission

	historyMu sync.Mutex
	history   *ring.Ring
}

// New constructs a mission Engine. rt and planner may be nil if the
// corresponding mission types will never be run.
func New(b *bus.Bus, selfID, scoutID, floodID, hazardID string, rt *router.Router, planner *evacuation.Planner, cfg Config, log *zap.Logger, auditLog audit.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		b:        b,
		selfID:   selfID,
		scoutID:  scoutID,
		floodID:  floodID,
		hazardID: hazardID,
		rt:       rt,
		planner:  planner,
		log:      log,
		audit:    auditLog,
		missions: make(map[string]*Mission),
		history:  ring.New(historySize),
	}
}

// Get returns a snapshot of a mission by id.
func (e *Engine) Get(id string) (Mission, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.missions[id]
	if !ok {
		return Mission{}, false
	}
	return m.Snapshot(), true
}

// ActiveCount returns the number of missions that have not yet reached
// COMPLETED or FAILED, used by the shutdown path to decide when it is
// safe to stop.
func (e *Engine) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, m := range e.missions {
		if m.State != StateCompleted && m.State != StateFailed {
			n++
		}
	}
	return n
}

// History returns the completed/failed missions retained in the ring
// buffer, oldest first.
func (e *Engine) History() []Mission {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	out := make([]Mission, 0, historySize)
	e.history.Do(func(v any) {
		if v == nil {
			return
		}
		out = append(out, v.(Mission))
	})
	return out
}

// RunMission creates a mission of the given type and drives it through
// its fixed state sequence to COMPLETED or FAILED, returning the final
// snapshot. It blocks for the duration of the mission.
func (e *Engine) RunMission(ctx context.Context, mtype Type, params map[string]any) (Mission, error) {
	m, err := e.createMission(ctx, mtype, params)
	if err != nil {
		return Mission{}, err
	}
	e.drive(ctx, m)
	return m.Snapshot(), nil
}

// StartMission creates a mission and drives it in the background,
// returning its id as soon as the record exists. Callers poll Get for
// the outcome; this is what the non-blocking orchestrator endpoint uses.
func (e *Engine) StartMission(ctx context.Context, mtype Type, params map[string]any) (string, error) {
	m, err := e.createMission(ctx, mtype, params)
	if err != nil {
		return "", err
	}
	go e.drive(context.Background(), m)
	return m.ID, nil
}

func (e *Engine) createMission(ctx context.Context, mtype Type, params map[string]any) (*Mission, error) {
	if _, ok := sequences[mtype]; !ok {
		return nil, fmt.Errorf("mission: unknown mission type %q", mtype)
	}

	now := time.Now()
	m := &Mission{
		ID:        uuid.New().String(),
		Type:      mtype,
		State:     StateCreated,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.mu.Lock()
	e.missions[m.ID] = m
	e.mu.Unlock()

	if e.audit != nil {
		_ = e.audit.LogMissionCreated(ctx, m.ID, string(mtype))
	}
	return m, nil
}

// drive runs m's steps to completion and archives the outcome. ctx
// governs the steps themselves; StartMission detaches it from the
// originating request so a client disconnect never aborts a mission
// already in flight.
func (e *Engine) drive(ctx context.Context, m *Mission) {
	start := time.Now()
	var err error
	switch m.Type {
	case TypeAssessRisk:
		err = e.runAssessRisk(ctx, m)
	case TypeRouteCalculation:
		err = e.runRouteCalculation(ctx, m)
	case TypeCoordinatedEvacuation:
		err = e.runCoordinatedEvacuation(ctx, m)
	case TypeCascadeRiskUpdate:
		err = e.runCascadeRiskUpdate(ctx, m)
	}

	if err != nil {
		e.transition(m, StateFailed)
		m.FailureReason = err.Error()
		if e.audit != nil {
			_ = e.audit.LogMissionFailed(ctx, m.ID, err.Error())
		}
	} else {
		e.transition(m, StateCompleted)
		if e.audit != nil {
			_ = e.audit.LogMissionCompleted(ctx, m.ID, time.Since(start))
		}
	}

	e.archive(m)
}

func (e *Engine) transition(m *Mission, s State) {
	m.State = s
	m.UpdatedAt = time.Now()
}

func (e *Engine) archive(m *Mission) {
	e.historyMu.Lock()
	e.history.Value = m.Snapshot()
	e.history = e.history.Next()
	e.historyMu.Unlock()
}

func (e *Engine) runAssessRisk(ctx context.Context, m *Mission) error {
	e.transition(m, StateAwaitingScout)
	if _, err := e.sendAndAwait(ctx, e.scoutID, contentCollectNow, m.ID, e.cfg.ScoutTimeout); err != nil {
		return fmt.Errorf("assess_risk: scout step: %w", err)
	}

	e.transition(m, StateAwaitingFlood)
	if _, err := e.sendAndAwait(ctx, e.floodID, contentCollectNow, m.ID, e.cfg.FloodTimeout); err != nil {
		return fmt.Errorf("assess_risk: flood step: %w", err)
	}

	e.transition(m, StateAwaitingHazard)
	env, err := e.sendAndAwait(ctx, e.hazardID, contentTriggerFusion, m.ID, e.cfg.HazardTimeout)
	if err != nil {
		return fmt.Errorf("assess_risk: hazard step: %w", err)
	}
	m.Result = env.Payload
	return nil
}

func (e *Engine) runCascadeRiskUpdate(ctx context.Context, m *Mission) error {
	e.transition(m, StateAwaitingFlood)
	if _, err := e.sendAndAwait(ctx, e.floodID, contentCollectNow, m.ID, e.cfg.FloodTimeout); err != nil {
		return fmt.Errorf("cascade_risk_update: flood step: %w", err)
	}

	e.transition(m, StateAwaitingHazard)
	env, err := e.sendAndAwait(ctx, e.hazardID, contentTriggerFusion, m.ID, e.cfg.HazardTimeout)
	if err != nil {
		return fmt.Errorf("cascade_risk_update: hazard step: %w", err)
	}
	m.Result = env.Payload
	return nil
}

func (e *Engine) runRouteCalculation(ctx context.Context, m *Mission) error {
	if e.rt == nil {
		return fmt.Errorf("route_calculation: router not configured")
	}
	start, ok1 := m.Params["start"].(graph.Point)
	end, ok2 := m.Params["end"].(graph.Point)
	mode, _ := m.Params["mode"].(router.Mode)
	if !ok1 || !ok2 {
		return fmt.Errorf("route_calculation: missing start/end coordinates")
	}

	e.transition(m, StateAwaitingRouting)
	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.RoutingTimeout)
	defer cancel()

	result, err := e.rt.Route(stepCtx, start, end, mode)
	if err != nil {
		return fmt.Errorf("route_calculation: %w", err)
	}
	m.Result = result
	return nil
}

func (e *Engine) runCoordinatedEvacuation(ctx context.Context, m *Mission) error {
	if e.planner == nil {
		return fmt.Errorf("coordinated_evacuation: planner not configured")
	}
	userCoord, ok := m.Params["user_coord"].(graph.Point)
	if !ok {
		return fmt.Errorf("coordinated_evacuation: missing user_coord")
	}

	e.transition(m, StateAwaitingEvacuation)
	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.EvacuationTimeout)
	defer cancel()

	plan, err := e.planner.Plan(stepCtx, userCoord)
	if err != nil {
		return fmt.Errorf("coordinated_evacuation: %w", err)
	}
	m.Result = plan
	return nil
}

// sendAndAwait sends one REQUEST and waits for the matching CONFIRM on
// the engine's own mailbox, tagging the round trip with conversationID
// so a reply can be told apart from another mission's in the log even
// though delivery itself is serialized by awaitMu.
func (e *Engine) sendAndAwait(ctx context.Context, receiver, contentType, conversationID string, timeout time.Duration) (bus.Envelope, error) {
	e.awaitMu.Lock()
	defer e.awaitMu.Unlock()

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := e.b.Send(bus.Envelope{
		Performative:   bus.REQUEST,
		SenderID:       e.selfID,
		ReceiverID:     receiver,
		ContentType:    contentType,
		ConversationID: conversationID,
	}); err != nil {
		return bus.Envelope{}, err
	}

	env, ok, err := e.b.Receive(stepCtx, e.selfID, timeout)
	if err != nil {
		return bus.Envelope{}, err
	}
	if !ok {
		return bus.Envelope{}, errStepTimeout
	}
	if env.Performative == bus.FAILURE {
		return bus.Envelope{}, fmt.Errorf("%s refused: %v", receiver, env.Payload)
	}
	return env, nil
}
