package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("MARIKINA")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file — defaults + env vars are enough to run.
		} else if os.IsNotExist(err) {
			// Same as above, surfaced via the os layer instead of viper's.
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full — drop the update, the next tick will catch up.
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	d := DefaultConfig()

	m.viper.SetDefault("server.host", d.Server.Host)
	m.viper.SetDefault("server.port", d.Server.Port)
	m.viper.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	m.viper.SetDefault("graph.network_path", d.Graph.NetworkPath)
	m.viper.SetDefault("graph.snap_cap_m", d.Graph.SnapCapM)
	m.viper.SetDefault("graph.diffusion_r_m", d.Graph.DiffusionRM)

	m.viper.SetDefault("raster.dir", d.Raster.Dir)
	m.viper.SetDefault("raster.max_resident_tiles", d.Raster.MaxResidentTiles)
	m.viper.SetDefault("raster.default_rp", d.Raster.DefaultRP)
	m.viper.SetDefault("raster.default_ts", d.Raster.DefaultTS)
	m.viper.SetDefault("raster.geotiff_enabled", d.Raster.GeotiffEnabled)

	m.viper.SetDefault("hazard.weight_flood", d.Hazard.WeightFlood)
	m.viper.SetDefault("hazard.weight_crowd", d.Hazard.WeightCrowd)
	m.viper.SetDefault("hazard.weight_hist", d.Hazard.WeightHist)
	m.viper.SetDefault("hazard.critical_at", d.Hazard.CriticalAt)

	m.viper.SetDefault("collectors.flood_period_seconds", d.Collectors.FloodPeriodSeconds)
	m.viper.SetDefault("collectors.flood_timeout_seconds", d.Collectors.FloodTimeoutSeconds)
	m.viper.SetDefault("collectors.flood_max_retries", d.Collectors.FloodMaxRetries)
	m.viper.SetDefault("collectors.scout_simulation", d.Collectors.ScoutSimulation)
	m.viper.SetDefault("collectors.scout_replay_path", d.Collectors.ScoutReplayPath)
	m.viper.SetDefault("collectors.scout_gazetteer_path", d.Collectors.ScoutGazetteerPath)
	m.viper.SetDefault("collectors.scout_strict_mode", d.Collectors.ScoutStrictMode)

	m.viper.SetDefault("evacuation.shelter_registry_path", d.Evacuation.ShelterRegistryPath)
	m.viper.SetDefault("evacuation.risk_penalty_lambda", d.Evacuation.RiskPenaltyLambda)

	m.viper.SetDefault("scheduler.period_seconds", d.Scheduler.PeriodSeconds)
	m.viper.SetDefault("scheduler.scout_enabled", d.Scheduler.ScoutEnabled)

	m.viper.SetDefault("broadcast.subscriber_buffer_size", d.Broadcast.SubscriberBufferSize)
	m.viper.SetDefault("broadcast.heartbeat_seconds", d.Broadcast.HeartbeatSeconds)

	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.format", d.Logging.Format)
	m.viper.SetDefault("logging.app_log_path", d.Logging.AppLogPath)
	m.viper.SetDefault("logging.audit_log_path", d.Logging.AuditLogPath)
	m.viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", d.Logging.Compress)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")

	cfg.Graph.NetworkPath = m.viper.GetString("graph.network_path")
	cfg.Graph.SnapCapM = m.viper.GetFloat64("graph.snap_cap_m")
	cfg.Graph.DiffusionRM = m.viper.GetFloat64("graph.diffusion_r_m")

	cfg.Raster.Dir = m.viper.GetString("raster.dir")
	cfg.Raster.MaxResidentTiles = m.viper.GetInt("raster.max_resident_tiles")
	cfg.Raster.DefaultRP = m.viper.GetString("raster.default_rp")
	cfg.Raster.DefaultTS = m.viper.GetInt("raster.default_ts")
	cfg.Raster.GeotiffEnabled = m.viper.GetBool("raster.geotiff_enabled")

	cfg.Hazard.WeightFlood = m.viper.GetFloat64("hazard.weight_flood")
	cfg.Hazard.WeightCrowd = m.viper.GetFloat64("hazard.weight_crowd")
	cfg.Hazard.WeightHist = m.viper.GetFloat64("hazard.weight_hist")
	cfg.Hazard.CriticalAt = m.viper.GetFloat64("hazard.critical_at")

	cfg.Collectors.FloodPeriodSeconds = m.viper.GetInt("collectors.flood_period_seconds")
	cfg.Collectors.FloodTimeoutSeconds = m.viper.GetInt("collectors.flood_timeout_seconds")
	cfg.Collectors.FloodMaxRetries = m.viper.GetInt("collectors.flood_max_retries")
	cfg.Collectors.ScoutSimulation = m.viper.GetBool("collectors.scout_simulation")
	cfg.Collectors.ScoutReplayPath = m.viper.GetString("collectors.scout_replay_path")
	cfg.Collectors.ScoutGazetteerPath = m.viper.GetString("collectors.scout_gazetteer_path")
	cfg.Collectors.ScoutStrictMode = m.viper.GetBool("collectors.scout_strict_mode")

	cfg.Evacuation.ShelterRegistryPath = m.viper.GetString("evacuation.shelter_registry_path")
	cfg.Evacuation.RiskPenaltyLambda = m.viper.GetFloat64("evacuation.risk_penalty_lambda")

	cfg.Scheduler.PeriodSeconds = m.viper.GetInt("scheduler.period_seconds")
	cfg.Scheduler.ScoutEnabled = m.viper.GetBool("scheduler.scout_enabled")

	cfg.Broadcast.SubscriberBufferSize = m.viper.GetInt("broadcast.subscriber_buffer_size")
	cfg.Broadcast.HeartbeatSeconds = m.viper.GetInt("broadcast.heartbeat_seconds")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
// These are kept out of the viper-unmarshaled struct path so they never show
// up in a dumped config blob even if the env var name happens to collide
// with a YAML key.
func (m *viperConfigManager) applyEnvOverrides() {
	if key := os.Getenv("MARIKINA_WEATHER_API_KEY"); key != "" {
		m.config.WeatherAPIKey = key
	}
	if token := os.Getenv("MARIKINA_SCOUT_FEED_TOKEN"); token != "" {
		m.config.ScoutFeedToken = token
	}

	if portEnv := os.Getenv("MARIKINA_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("server.port")
	}
}
