package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kubilitics/kubilitics-ai/internal/evacuation"
	"github.com/kubilitics/kubilitics-ai/internal/graph"
	"github.com/kubilitics/kubilitics-ai/internal/hazard"
	"github.com/kubilitics/kubilitics-ai/internal/metrics"
	"github.com/kubilitics/kubilitics-ai/internal/router"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func latLon(pair [2]float64) graph.Point {
	return graph.Point{Lat: pair[0], Lon: pair[1]}
}

// routeRequest mirrors §6's `/route` input shape.
type routeRequest struct {
	Start       [2]float64 `json:"start"`
	End         [2]float64 `json:"end"`
	Preferences struct {
		AvoidFloods bool `json:"avoid_floods"`
		Fastest     bool `json:"fastest"`
	} `json:"preferences"`
}

type routeResponse struct {
	Status                 string        `json:"status"`
	Path                   []int64       `json:"path,omitempty"`
	Geometry               []graph.Point `json:"geometry,omitempty"`
	DistanceM              float64       `json:"distance_m"`
	EstimatedTimeMin       float64       `json:"estimated_time_min"`
	MaxRisk                float64       `json:"max_risk"`
	MeanRiskLengthWeighted float64       `json:"mean_risk_length_weighted"`
	Warnings               []string      `json:"warnings,omitempty"`
}

// presetForPreferences maps the request's boolean preferences onto one
// of the three router presets. avoid_floods wins over fastest when both
// are set, since safety is the stricter of the two constraints; neither
// set falls back to balanced. The spec leaves the exact precedence
// unstated, so this is a resolved Open Question (see DESIGN.md).
func presetForPreferences(avoidFloods, fastest bool) router.Mode {
	switch {
	case avoidFloods:
		return router.ModeSafest
	case fastest:
		return router.ModeFastest
	default:
		return router.ModeBalanced
	}
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	mode := presetForPreferences(req.Preferences.AvoidFloods, req.Preferences.Fastest)
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	start := time.Now()
	result, err := s.deps.Router.Route(ctx, latLon(req.Start), latLon(req.End), mode)
	metrics.RouteComputeDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())

	if err != nil {
		switch {
		case errors.Is(err, router.ErrOutsideServiceArea):
			metrics.RouteRequestsTotal.WithLabelValues(string(mode), "outside_service_area").Inc()
			writeError(w, http.StatusBadRequest, "coordinate outside service area")
		case errors.Is(err, router.ErrImpassable):
			metrics.RouteRequestsTotal.WithLabelValues(string(mode), "impassable").Inc()
			writeJSON(w, http.StatusOK, routeResponse{Status: "impassable"})
		default:
			metrics.RouteRequestsTotal.WithLabelValues(string(mode), "error").Inc()
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	status := "success"
	for _, warn := range result.Warnings {
		if warn == router.FallbackWarning {
			status = "no_safe_route"
		}
	}
	metrics.RouteRequestsTotal.WithLabelValues(string(mode), status).Inc()

	path := make([]int64, len(result.Path))
	for i, id := range result.Path {
		path[i] = int64(id)
	}
	writeJSON(w, http.StatusOK, routeResponse{
		Status:                 status,
		Path:                   path,
		Geometry:               result.Geometry,
		DistanceM:              result.DistanceM,
		EstimatedTimeMin:       result.EstimatedTimeMin,
		MaxRisk:                result.MaxRisk,
		MeanRiskLengthWeighted: result.MeanRiskLengthWeighted,
		Warnings:               result.Warnings,
	})
}

type evacuationRequest struct {
	Location [2]float64 `json:"location"`
}

type evacuationResponse struct {
	Status  string             `json:"status"`
	Shelter evacuation.Shelter `json:"shelter,omitempty"`
	Route   routeResponse      `json:"route"`
}

func (s *Server) handleEvacuationCenter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req evacuationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	plan, err := s.deps.Planner.Plan(ctx, latLon(req.Location))
	if err != nil {
		metrics.EvacuationRequestsTotal.WithLabelValues("outside_service_area").Inc()
		writeError(w, http.StatusBadRequest, "coordinate outside service area")
		return
	}
	metrics.EvacuationRequestsTotal.WithLabelValues(string(plan.Status)).Inc()

	path := make([]int64, len(plan.Route.Path))
	for i, id := range plan.Route.Path {
		path[i] = int64(id)
	}
	writeJSON(w, http.StatusOK, evacuationResponse{
		Status:  string(plan.Status),
		Shelter: plan.Shelter,
		Route: routeResponse{
			Status:                 string(plan.Status),
			Path:                   path,
			Geometry:               plan.Route.Geometry,
			DistanceM:              plan.Route.DistanceM,
			EstimatedTimeMin:       plan.Route.EstimatedTimeMin,
			MaxRisk:                plan.Route.MaxRisk,
			MeanRiskLengthWeighted: plan.Route.MeanRiskLengthWeighted,
			Warnings:               plan.Route.Warnings,
		},
	})
}

type feedbackRequest struct {
	RouteID      string     `json:"route_id"`
	FeedbackType string     `json:"feedback_type"`
	Location     [2]float64 `json:"location"`
	Severity     float64    `json:"severity"`
	Description  string     `json:"description,omitempty"`
}

var validFeedbackTypes = map[string]bool{
	"clear": true, "blocked": true, "flooded": true, "traffic": true,
}

// handleFeedback accepts a structured citizen report and hands it
// straight to the hazard core as a scout report, the same sink the
// scout collector's text classifier feeds — this path just skips
// classification since the submission already arrives typed.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if !validFeedbackTypes[req.FeedbackType] {
		writeError(w, http.StatusUnprocessableEntity, "unknown feedback_type")
		return
	}
	severity := req.Severity
	if severity < 0 {
		severity = 0
	}
	if severity > 1 {
		severity = 1
	}

	coord := latLon(req.Location)
	if s.deps.Hazard != nil {
		s.deps.Hazard.UpdateScoutReport(hazard.ScoutReport{
			Text:           req.Description,
			Coord:          &coord,
			Severity:       severity,
			Confidence:     1.0,
			ReportType:     req.FeedbackType,
			IsFloodRelated: req.FeedbackType == "flooded" || req.FeedbackType == "blocked",
			ObservedAt:     time.Now(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type healthResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Graph         map[string]any `json:"graph"`
	Scenario      hazard.Scenario `json:"scenario,omitempty"`
	Broadcast     map[string]any `json:"broadcast,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	s.mu.RLock()
	uptime := time.Since(s.startedAt).Seconds()
	s.mu.RUnlock()

	resp := healthResponse{
		Status:        "healthy",
		UptimeSeconds: uptime,
		Graph: map[string]any{
			"nodes": s.deps.Graph.NodeCount(),
			"edges": s.deps.Graph.EdgeCount(),
		},
	}
	if s.deps.Hazard != nil {
		resp.Scenario = s.deps.Hazard.Scenario()
	}
	if s.deps.Broadcast != nil {
		resp.Broadcast = map[string]any{"subscribers": s.deps.Broadcast.SubscriberCount()}
	}
	writeJSON(w, http.StatusOK, resp)
}
