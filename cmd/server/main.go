// Command server runs the Marikina flood-aware routing service: it loads
// the street graph and flood-depth rasters, starts the flood and scout
// collectors, the hazard fusion core, the collection scheduler, the
// mission orchestrator, and the live broadcaster, then serves the HTTP
// and WebSocket surface described in the service's external interface
// until it receives a termination signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kubilitics/kubilitics-ai/internal/audit"
	"github.com/kubilitics/kubilitics-ai/internal/broadcast"
	"github.com/kubilitics/kubilitics-ai/internal/bus"
	"github.com/kubilitics/kubilitics-ai/internal/collector/flood"
	"github.com/kubilitics/kubilitics-ai/internal/collector/scout"
	"github.com/kubilitics/kubilitics-ai/internal/config"
	"github.com/kubilitics/kubilitics-ai/internal/evacuation"
	"github.com/kubilitics/kubilitics-ai/internal/graph"
	"github.com/kubilitics/kubilitics-ai/internal/hazard"
	"github.com/kubilitics/kubilitics-ai/internal/mission"
	"github.com/kubilitics/kubilitics-ai/internal/raster"
	"github.com/kubilitics/kubilitics-ai/internal/risk"
	"github.com/kubilitics/kubilitics-ai/internal/router"
	"github.com/kubilitics/kubilitics-ai/internal/scheduler"
	"github.com/kubilitics/kubilitics-ai/internal/server"
)

const (
	mailboxHazard   = "hazard"
	mailboxFlood    = "flood-collector"
	mailboxScout    = "scout-collector"
	mailboxSchedule = "scheduler"
	mailboxMission  = "mission-fsm"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return fmt.Errorf("config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	cfg := mgr.Get(ctx)

	log, err := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	auditLog, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Logging.AuditLogPath,
		AppLogPath:   cfg.Logging.AppLogPath,
		MaxSize:      cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("build audit logger: %w", err)
	}
	defer auditLog.Close()

	g, err := graph.LoadFromFile(cfg.Graph.NetworkPath, graph.Config{SnapCapM: cfg.Graph.SnapCapM})
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	log.Info("graph loaded", zap.Int("nodes", g.NodeCount()), zap.Int("edges", g.EdgeCount()))

	tileLoader := &raster.FileTileLoader{Dir: cfg.Raster.Dir}
	catalog := raster.NewCatalog(tileLoader, cfg.Raster.MaxResidentTiles)

	b := bus.New(0)
	for _, id := range []string{mailboxHazard, mailboxFlood, mailboxScout, mailboxSchedule, mailboxMission} {
		if err := b.Register(id); err != nil {
			return fmt.Errorf("register mailbox %q: %w", id, err)
		}
	}

	broadcaster := broadcast.New(cfg.Broadcast.SubscriberBufferSize, log)

	hazardEngine := hazard.New(g, catalog, broadcaster, hazard.Config{
		WeightFlood: cfg.Hazard.WeightFlood,
		WeightCrowd: cfg.Hazard.WeightCrowd,
		WeightHist:  cfg.Hazard.WeightHist,
		DiffusionRM: cfg.Graph.DiffusionRM,
		CriticalAt:  cfg.Hazard.CriticalAt,
		Multipliers: risk.DefaultMultipliers,
	}, log)
	hazardEngine.Start(ctx)
	go hazardEngine.Listen(ctx, b, mailboxHazard)

	floodSources := buildFloodSources(cfg.WeatherAPIKey)
	floodCollector := flood.New(floodSources, flood.Config{
		Period:     time.Duration(cfg.Collectors.FloodPeriodSeconds) * time.Second,
		Timeout:    time.Duration(cfg.Collectors.FloodTimeoutSeconds) * time.Second,
		MaxRetries: cfg.Collectors.FloodMaxRetries,
	}, b, mailboxFlood, mailboxHazard, log)
	floodCollector.Start(ctx)
	go floodCollector.Listen(ctx, b, mailboxFlood)

	scoutFeed, err := buildScoutFeed(cfg)
	if err != nil {
		return fmt.Errorf("build scout feed: %w", err)
	}
	gazetteer, err := scout.LoadGazetteer(cfg.Collectors.ScoutGazetteerPath)
	if err != nil {
		return fmt.Errorf("load gazetteer: %w", err)
	}
	strict := scout.Lenient
	if cfg.Collectors.ScoutStrictMode {
		strict = scout.Strict
	}
	scoutCollector := scout.New(scoutFeed, gazetteer, scout.Config{
		Period: time.Duration(cfg.Scheduler.PeriodSeconds) * time.Second,
		Strict: strict,
	}, b, mailboxScout, mailboxHazard, log)
	scoutCollector.Start(ctx)
	go scoutCollector.Listen(ctx, b, mailboxScout)

	rt := router.New(g)

	shelters, err := evacuation.LoadShelters(cfg.Evacuation.ShelterRegistryPath)
	if err != nil {
		return fmt.Errorf("load shelter registry: %w", err)
	}
	planner := evacuation.New(g, rt, shelters, cfg.Evacuation.RiskPenaltyLambda)

	sched := scheduler.New(b, mailboxSchedule, mailboxFlood, mailboxScout, scheduler.Config{
		Period:       time.Duration(cfg.Scheduler.PeriodSeconds) * time.Second,
		ScoutEnabled: cfg.Scheduler.ScoutEnabled,
	}, log)
	sched.Start(ctx)

	missions := mission.New(b, mailboxMission, mailboxScout, mailboxFlood, mailboxHazard, rt, planner, mission.Config{}, log, auditLog)

	srv, err := server.New(server.Deps{
		Config:         cfg,
		Graph:          g,
		Hazard:         hazardEngine,
		FloodCollector: floodCollector,
		ScoutCollector: scoutCollector,
		Router:         rt,
		Planner:        planner,
		Scheduler:      sched,
		Missions:       missions,
		Broadcast:      broadcaster,
		Log:            log,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	log.Info("server started", zap.String("host", cfg.Server.Host), zap.Int("port", cfg.Server.Port))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-hazardEngine.Fatal():
		log.Error("hazard fusion loop unrecoverable, exiting for supervisor restart", zap.Error(err))
		drainAndStop(missions, srv, log)
		return err
	}

	drainAndStop(missions, srv, log)
	return nil
}

// drainAndStop waits up to 5s for in-flight missions to finish, then
// stops every component and the HTTP listener.
func drainAndStop(missions *mission.Engine, srv *server.Server, log *zap.Logger) {
	deadline := time.Now().Add(5 * time.Second)
	for missions.ActiveCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if n := missions.ActiveCount(); n > 0 {
		log.Warn("shutting down with missions still in flight", zap.Int("count", n))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("server stop", zap.Error(err))
	}
}

func newLogger(level, format string) (*zap.Logger, error) {
	var zapCfg zap.Config
	if format == "text" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	parsedLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		parsedLevel = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	return zapCfg.Build()
}

// buildFloodSources wires the three official hydrological feeds the
// flood collector polls each tick. apiKey is appended as a query
// parameter, the same convention every upstream station uses.
func buildFloodSources(apiKey string) []flood.Source {
	return []flood.Source{
		flood.NewHTTPSource("marikina-river-gauge", hazard.StationRiver,
			fmt.Sprintf("https://api.pagasa.dost.gov.ph/marikina/river?key=%s", apiKey)),
		flood.NewHTTPSource("marikina-rainfall", hazard.StationRainfall,
			fmt.Sprintf("https://api.pagasa.dost.gov.ph/marikina/rainfall?key=%s", apiKey)),
		flood.NewHTTPSource("la-mesa-dam", hazard.StationDam,
			fmt.Sprintf("https://api.mwss.gov.ph/la-mesa/spillway?key=%s", apiKey)),
	}
}

// buildScoutFeed selects the replay feed for local simulation or the
// live HTTP feed against the scout source, token-authenticated.
func buildScoutFeed(cfg *config.Config) (scout.Feed, error) {
	if cfg.Collectors.ScoutSimulation {
		return scout.NewReplayFeed(cfg.Collectors.ScoutReplayPath, 20)
	}
	url := fmt.Sprintf("https://api.marikina.gov.ph/scout/feed?token=%s", cfg.ScoutFeedToken)
	return scout.NewHTTPFeed(url), nil
}
