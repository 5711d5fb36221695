package mission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-ai/internal/bus"
	"github.com/kubilitics/kubilitics-ai/internal/evacuation"
	"github.com/kubilitics/kubilitics-ai/internal/graph"
	"github.com/kubilitics/kubilitics-ai/internal/router"
)

// respondOnce services exactly one REQUEST on mailbox and replies with
// performative/payload, mimicking a collector or the hazard core's
// listener without pulling in those packages.
func respondOnce(t *testing.T, b *bus.Bus, mailbox string, performative bus.Performative, payload any) {
	t.Helper()
	go func() {
		env, ok, err := b.Receive(context.Background(), mailbox, 2*time.Second)
		if err != nil || !ok {
			return
		}
		_ = b.Send(bus.Envelope{
			Performative:   performative,
			SenderID:       mailbox,
			ReceiverID:     env.SenderID,
			ContentType:    "result",
			Payload:        payload,
			ConversationID: env.ConversationID,
		})
	}()
}

func newTestBus(t *testing.T, ids ...string) *bus.Bus {
	t.Helper()
	b := bus.New(0)
	for _, id := range ids {
		require.NoError(t, b.Register(id))
	}
	return b
}

func TestRunMissionAssessRiskCompletesOnAllConfirms(t *testing.T) {
	b := newTestBus(t, "mission-fsm", "scout-collector", "flood-collector", "hazard")
	e := New(b, "mission-fsm", "scout-collector", "flood-collector", "hazard", nil, nil, Config{
		ScoutTimeout: time.Second, FloodTimeout: time.Second, HazardTimeout: time.Second,
	}, nil, nil)

	respondOnce(t, b, "scout-collector", bus.CONFIRM, nil)
	respondOnce(t, b, "flood-collector", bus.CONFIRM, nil)
	respondOnce(t, b, "hazard", bus.CONFIRM, "fusion-ok")

	m, err := e.RunMission(context.Background(), TypeAssessRisk, nil)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, m.State)
	assert.Equal(t, "fusion-ok", m.Result)
}

func TestRunMissionFailsOnComponentFailure(t *testing.T) {
	b := newTestBus(t, "mission-fsm", "scout-collector", "flood-collector", "hazard")
	e := New(b, "mission-fsm", "scout-collector", "flood-collector", "hazard", nil, nil, Config{
		ScoutTimeout: time.Second, FloodTimeout: time.Second, HazardTimeout: time.Second,
	}, nil, nil)

	respondOnce(t, b, "scout-collector", bus.CONFIRM, nil)
	respondOnce(t, b, "flood-collector", bus.CONFIRM, nil)
	respondOnce(t, b, "hazard", bus.FAILURE, "raster load error")

	m, err := e.RunMission(context.Background(), TypeAssessRisk, nil)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, m.State)
	assert.Contains(t, m.FailureReason, "raster load error")
}

func TestRunMissionTimesOutWhenComponentDoesNotRespond(t *testing.T) {
	b := newTestBus(t, "mission-fsm", "scout-collector", "flood-collector", "hazard")
	e := New(b, "mission-fsm", "scout-collector", "flood-collector", "hazard", nil, nil, Config{
		ScoutTimeout: 20 * time.Millisecond,
	}, nil, nil)

	m, err := e.RunMission(context.Background(), TypeAssessRisk, nil)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, m.State)
	assert.NotEmpty(t, m.FailureReason)
}

func TestRunMissionRouteCalculationUsesRouterDirectly(t *testing.T) {
	nodes := []graph.Node{
		{ID: 1, Lat: 14.650, Lon: 121.100},
		{ID: 2, Lat: 14.651, Lon: 121.101},
	}
	edges := []graph.Edge{{ID: 10, U: 1, V: 2, LengthM: 140, RoadClass: graph.RoadPrimary}}
	g, err := graph.Build(nodes, edges, graph.Config{SnapCapM: 2000})
	require.NoError(t, err)
	rt := router.New(g)

	e := New(nil, "mission-fsm", "", "", "", rt, nil, Config{}, nil, nil)
	m, err := e.RunMission(context.Background(), TypeRouteCalculation, map[string]any{
		"start": graph.Point{Lat: 14.650, Lon: 121.100},
		"end":   graph.Point{Lat: 14.651, Lon: 121.101},
		"mode":  router.ModeBalanced,
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, m.State)
	result, ok := m.Result.(router.Result)
	require.True(t, ok)
	assert.InDelta(t, 140.0, result.DistanceM, 1e-9)
}

func TestRunMissionCoordinatedEvacuationCompletesEvenWhenNoSafeShelter(t *testing.T) {
	nodes := []graph.Node{
		{ID: 1, Lat: 14.650, Lon: 121.100},
		{ID: 5, Lat: 14.900, Lon: 121.300}, // isolated shelter
	}
	g, err := graph.Build(nodes, nil, graph.Config{SnapCapM: 2000})
	require.NoError(t, err)
	rt := router.New(g)
	planner := evacuation.New(g, rt, []evacuation.Shelter{
		{Name: "B", Coord: graph.Point{Lat: 14.900, Lon: 121.300}},
	}, 0)

	e := New(nil, "mission-fsm", "", "", "", rt, planner, Config{}, nil, nil)
	m, err := e.RunMission(context.Background(), TypeCoordinatedEvacuation, map[string]any{
		"user_coord": graph.Point{Lat: 14.650, Lon: 121.100},
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, m.State)
	plan, ok := m.Result.(evacuation.Plan)
	require.True(t, ok)
	assert.Equal(t, evacuation.StatusNoSafeShelter, plan.Status)
}

func TestHistoryRecordsCompletedMissions(t *testing.T) {
	nodes := []graph.Node{
		{ID: 1, Lat: 14.650, Lon: 121.100},
		{ID: 2, Lat: 14.651, Lon: 121.101},
	}
	edges := []graph.Edge{{ID: 10, U: 1, V: 2, LengthM: 140, RoadClass: graph.RoadPrimary}}
	g, err := graph.Build(nodes, edges, graph.Config{SnapCapM: 2000})
	require.NoError(t, err)
	rt := router.New(g)

	e := New(nil, "mission-fsm", "", "", "", rt, nil, Config{}, nil, nil)
	_, err = e.RunMission(context.Background(), TypeRouteCalculation, map[string]any{
		"start": graph.Point{Lat: 14.650, Lon: 121.100},
		"end":   graph.Point{Lat: 14.651, Lon: 121.101},
		"mode":  router.ModeBalanced,
	})
	require.NoError(t, err)

	history := e.History()
	require.Len(t, history, 1)
	assert.Equal(t, StateCompleted, history[0].State)
}

func TestGetReturnsMissionSnapshot(t *testing.T) {
	nodes := []graph.Node{
		{ID: 1, Lat: 14.650, Lon: 121.100},
		{ID: 2, Lat: 14.651, Lon: 121.101},
	}
	edges := []graph.Edge{{ID: 10, U: 1, V: 2, LengthM: 140, RoadClass: graph.RoadPrimary}}
	g, err := graph.Build(nodes, edges, graph.Config{SnapCapM: 2000})
	require.NoError(t, err)
	rt := router.New(g)

	e := New(nil, "mission-fsm", "", "", "", rt, nil, Config{}, nil, nil)
	m, err := e.RunMission(context.Background(), TypeRouteCalculation, map[string]any{
		"start": graph.Point{Lat: 14.650, Lon: 121.100},
		"end":   graph.Point{Lat: 14.651, Lon: 121.101},
		"mode":  router.ModeBalanced,
	})
	require.NoError(t, err)

	got, ok := e.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, StateCompleted, got.State)
}

func TestStartMissionReturnsImmediatelyThenCompletesInBackground(t *testing.T) {
	nodes := []graph.Node{
		{ID: 1, Lat: 14.650, Lon: 121.100},
		{ID: 2, Lat: 14.651, Lon: 121.101},
	}
	edges := []graph.Edge{{ID: 10, U: 1, V: 2, LengthM: 140, RoadClass: graph.RoadPrimary}}
	g, err := graph.Build(nodes, edges, graph.Config{SnapCapM: 2000})
	require.NoError(t, err)
	rt := router.New(g)

	e := New(nil, "mission-fsm", "", "", "", rt, nil, Config{}, nil, nil)
	id, err := e.StartMission(context.Background(), TypeRouteCalculation, map[string]any{
		"start": graph.Point{Lat: 14.650, Lon: 121.100},
		"end":   graph.Point{Lat: 14.651, Lon: 121.101},
		"mode":  router.ModeBalanced,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		m, ok := e.Get(id)
		return ok && m.State == StateCompleted
	}, time.Second, time.Millisecond)
}

func TestStartMissionRejectsUnknownType(t *testing.T) {
	e := New(nil, "mission-fsm", "", "", "", nil, nil, Config{}, nil, nil)
	_, err := e.StartMission(context.Background(), Type("bogus"), nil)
	assert.Error(t, err)
}
