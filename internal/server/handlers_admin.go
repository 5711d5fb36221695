package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kubilitics/kubilitics-ai/internal/hazard"
)

func (s *Server) handleAdminCollectFloodData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	stats := s.deps.Scheduler.TriggerNow(r.Context())
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) withScenario(w http.ResponseWriter, mutate func(hazard.Scenario) hazard.Scenario) {
	if s.deps.Hazard == nil {
		writeError(w, http.StatusServiceUnavailable, "hazard engine not configured")
		return
	}
	next := mutate(s.deps.Hazard.Scenario())
	s.deps.Hazard.SetScenario(next)
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleAdminGeotiffEnable(w http.ResponseWriter, r *http.Request) {
	s.withScenario(w, func(sc hazard.Scenario) hazard.Scenario {
		sc.GeotiffEnabled = true
		return sc
	})
}

func (s *Server) handleAdminGeotiffDisable(w http.ResponseWriter, r *http.Request) {
	s.withScenario(w, func(sc hazard.Scenario) hazard.Scenario {
		sc.GeotiffEnabled = false
		return sc
	})
}

func (s *Server) handleAdminGeotiffStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hazard == nil {
		writeError(w, http.StatusServiceUnavailable, "hazard engine not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Hazard.Scenario())
}

var validReturnPeriods = map[string]bool{"rr01": true, "rr02": true, "rr03": true, "rr04": true}

type setScenarioRequest struct {
	RP string `json:"rp"`
	TS int    `json:"ts"`
}

func (s *Server) handleAdminGeotiffSetScenario(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if s.deps.Hazard == nil {
		writeError(w, http.StatusServiceUnavailable, "hazard engine not configured")
		return
	}
	var req setScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !validReturnPeriods[req.RP] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown return period %q", req.RP))
		return
	}
	if req.TS < 1 || req.TS > 18 {
		writeError(w, http.StatusBadRequest, "ts must be in [1,18]")
		return
	}

	sc := s.deps.Hazard.Scenario()
	sc.ReturnPeriod = req.RP
	sc.TimeStep = req.TS
	s.deps.Hazard.SetScenario(sc)
	writeJSON(w, http.StatusOK, sc)
}
