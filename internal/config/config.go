package config

import "context"

// Package config provides configuration management for the routing service.
//
// Responsibilities:
//   - Load configuration from a YAML file and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support hot reload for non-structural settings (risk weights, thresholds)
//   - Keep sensitive data (feed credentials, API keys) out of dumped config
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (MARIKINA_* prefix)
//   2. YAML config file (default: config.yaml)
//   3. Built-in defaults
// No setting is read from CLI flags; the server's -config flag only
// chooses the YAML file path.
//
// Main Configuration Sections:
//
//   1. Server — listen address, WebSocket allowed origins
//   2. Graph — road network file path, snap distance cap, diffusion radius
//   3. Raster — floodmaps directory, LRU tile capacity, default scenario
//   4. Hazard — blend weights and critical threshold
//   5. Collectors — flood collector tick period and per-source timeout/retry;
//      scout collector feed mode (live/simulation) and gazetteer path
//   6. Evacuation — shelter registry path, risk-penalty lambda
//   7. Scheduler — tick period
//   8. Broadcast — per-subscriber buffer size, heartbeat interval
//   9. Logging — level, audit/app log paths, rotation policy
//
// Road-class multipliers (internal/risk) and router presets
// (internal/router) are fixed in code, not configured here.
//
// Config struct contains all configuration fields.
type Config struct {
	Server struct {
		Host           string
		Port           int
		AllowedOrigins []string
	}

	Graph struct {
		NetworkPath  string
		SnapCapM     float64
		DiffusionRM  float64
	}

	Raster struct {
		Dir            string
		MaxResidentTiles int
		DefaultRP      string
		DefaultTS      int
		GeotiffEnabled bool
	}

	Hazard struct {
		WeightFlood float64
		WeightCrowd float64
		WeightHist  float64
		CriticalAt  float64
	}

	Collectors struct {
		FloodPeriodSeconds int
		FloodTimeoutSeconds int
		FloodMaxRetries     int
		ScoutSimulation     bool
		ScoutReplayPath     string
		ScoutGazetteerPath  string
		ScoutStrictMode     bool
	}

	Evacuation struct {
		ShelterRegistryPath string
		RiskPenaltyLambda   float64
	}

	Scheduler struct {
		PeriodSeconds int
		ScoutEnabled  bool
	}

	Broadcast struct {
		SubscriberBufferSize int
		HeartbeatSeconds     int
	}

	Logging struct {
		Level       string
		Format      string
		AppLogPath  string
		AuditLogPath string
		MaxSizeMB   int
		MaxBackups  int
		MaxAgeDays  int
		Compress    bool
	}

	// Secrets — populated from environment only, never written back out.
	WeatherAPIKey  string
	ScoutFeedToken string
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with the default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("config.yaml")
}
