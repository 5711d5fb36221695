package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kubilitics/kubilitics-ai/internal/graph"
	"github.com/kubilitics/kubilitics-ai/internal/mission"
	"github.com/kubilitics/kubilitics-ai/internal/router"
)

type missionRequest struct {
	Type   mission.Type   `json:"type"`
	Params map[string]any `json:"params"`
}

func pointFromAny(v any) (graph.Point, bool) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return graph.Point{}, false
	}
	lat, ok1 := pair[0].(float64)
	lon, ok2 := pair[1].(float64)
	if !ok1 || !ok2 {
		return graph.Point{}, false
	}
	return graph.Point{Lat: lat, Lon: lon}, true
}

// buildMissionParams converts the request's loosely-typed JSON params
// into the concrete types internal/mission's step functions expect.
// assess_risk and cascade_risk_update ignore params entirely, so they
// pass through unchanged.
func buildMissionParams(mtype mission.Type, raw map[string]any) (map[string]any, error) {
	switch mtype {
	case mission.TypeRouteCalculation:
		start, ok := pointFromAny(raw["start"])
		if !ok {
			return nil, fmt.Errorf("missing or invalid start coordinate")
		}
		end, ok := pointFromAny(raw["end"])
		if !ok {
			return nil, fmt.Errorf("missing or invalid end coordinate")
		}
		mode := router.ModeBalanced
		if rawMode, ok := raw["mode"].(string); ok && rawMode != "" {
			mode = router.Mode(rawMode)
		}
		return map[string]any{"start": start, "end": end, "mode": mode}, nil

	case mission.TypeCoordinatedEvacuation:
		coord, ok := pointFromAny(raw["user_coord"])
		if !ok {
			return nil, fmt.Errorf("missing or invalid user_coord")
		}
		return map[string]any{"user_coord": coord}, nil

	default:
		return raw, nil
	}
}

func (s *Server) handleOrchestratorMission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req missionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	params, err := buildMissionParams(req.Type, req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.deps.Missions.StartMission(r.Context(), req.Type, params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"mission_id": id})
}

func (s *Server) handleOrchestratorMissionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/orchestrator/mission/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing mission id")
		return
	}
	m, ok := s.deps.Missions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown mission id")
		return
	}
	writeJSON(w, http.StatusOK, m)
}
