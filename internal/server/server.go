// Package server exposes the routing service's HTTP and WebSocket
// surface (§6 of the specification): route/evacuation/feedback queries,
// admin scenario controls, the mission orchestrator endpoints, and the
// live-update WebSocket channel. Every handler is a thin adapter onto
// the already-built components (graph, router, evacuation, hazard,
// scheduler, mission engine, broadcaster); this package owns no
// business state of its own beyond the HTTP listener.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-ai/internal/broadcast"
	"github.com/kubilitics/kubilitics-ai/internal/collector/flood"
	"github.com/kubilitics/kubilitics-ai/internal/collector/scout"
	"github.com/kubilitics/kubilitics-ai/internal/config"
	"github.com/kubilitics/kubilitics-ai/internal/evacuation"
	"github.com/kubilitics/kubilitics-ai/internal/graph"
	"github.com/kubilitics/kubilitics-ai/internal/hazard"
	"github.com/kubilitics/kubilitics-ai/internal/mission"
	"github.com/kubilitics/kubilitics-ai/internal/router"
	"github.com/kubilitics/kubilitics-ai/internal/scheduler"
)

// Deps bundles every component the HTTP surface calls into. New rejects
// a Deps without Config, Graph, Router or Planner; Log defaults to a
// no-op logger. FloodCollector, ScoutCollector, Hazard, Scheduler and
// Broadcast may be nil: Stop skips them, the admin endpoints that need
// them answer 503, and /ws/route-updates is not registered without
// Broadcast.
type Deps struct {
	Config         *config.Config
	Graph          *graph.Graph
	Hazard         *hazard.Engine
	FloodCollector *flood.Collector
	ScoutCollector *scout.Collector
	Router         *router.Router
	Planner        *evacuation.Planner
	Scheduler      *scheduler.Scheduler
	Missions       *mission.Engine
	Broadcast      *broadcast.Broadcaster
	Log            *zap.Logger
}

// Server owns the HTTP listener and dispatches onto Deps.
type Server struct {
	deps Deps
	log  *zap.Logger

	httpServer *http.Server

	mu      sync.RWMutex
	running bool

	startedAt time.Time
}

// New constructs a Server. It does not start listening; call Start.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	if deps.Graph == nil || deps.Router == nil || deps.Planner == nil {
		return nil, fmt.Errorf("server: graph, router, and planner are required")
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{deps: deps, log: log}, nil
}

// Start begins serving HTTP in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server: already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	addr := fmt.Sprintf("%s:%d", s.deps.Config.Server.Host, s.deps.Config.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.log.Info("server: listening", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: listen error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts the HTTP listener down and flushes the
// broadcaster's subscriber buffers, per the cooperative-shutdown
// contract: schedulers stop firing, collectors stop on their next tick,
// broadcaster flushes within 2s before dropping.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server: not running")
	}
	s.running = false
	s.mu.Unlock()

	if s.deps.Scheduler != nil {
		s.deps.Scheduler.Stop()
	}
	if s.deps.FloodCollector != nil {
		s.deps.FloodCollector.Stop()
	}
	if s.deps.ScoutCollector != nil {
		s.deps.ScoutCollector.Stop()
	}
	if s.deps.Hazard != nil {
		s.deps.Hazard.Stop()
	}
	if s.deps.Broadcast != nil {
		s.deps.Broadcast.Shutdown(2 * time.Second)
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/route", s.handleRoute)
	mux.HandleFunc("/evacuation-center", s.handleEvacuationCenter)
	mux.HandleFunc("/feedback", s.handleFeedback)
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/admin/collect-flood-data", s.handleAdminCollectFloodData)
	mux.HandleFunc("/admin/geotiff/enable", s.handleAdminGeotiffEnable)
	mux.HandleFunc("/admin/geotiff/disable", s.handleAdminGeotiffDisable)
	mux.HandleFunc("/admin/geotiff/status", s.handleAdminGeotiffStatus)
	mux.HandleFunc("/admin/geotiff/set-scenario", s.handleAdminGeotiffSetScenario)

	mux.HandleFunc("/orchestrator/mission", s.handleOrchestratorMission)
	mux.HandleFunc("/orchestrator/mission/", s.handleOrchestratorMissionByID)

	if s.deps.Broadcast != nil {
		mux.HandleFunc("/ws/route-updates", s.handleWebSocket)
	}
}
