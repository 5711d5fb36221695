package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8090
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

	cfg.Graph.NetworkPath = "data/marikina_network.json"
	cfg.Graph.SnapCapM = 2000
	cfg.Graph.DiffusionRM = 800

	cfg.Raster.Dir = "data/floodmaps"
	cfg.Raster.MaxResidentTiles = 16
	cfg.Raster.DefaultRP = "rr01"
	cfg.Raster.DefaultTS = 1
	cfg.Raster.GeotiffEnabled = false

	cfg.Hazard.WeightFlood = 0.5
	cfg.Hazard.WeightCrowd = 0.3
	cfg.Hazard.WeightHist = 0.2
	cfg.Hazard.CriticalAt = 0.85

	cfg.Collectors.FloodPeriodSeconds = 300
	cfg.Collectors.FloodTimeoutSeconds = 15
	cfg.Collectors.FloodMaxRetries = 3
	cfg.Collectors.ScoutSimulation = false
	cfg.Collectors.ScoutReplayPath = "data/scout_replay.json"
	cfg.Collectors.ScoutGazetteerPath = "data/gazetteer.csv"
	cfg.Collectors.ScoutStrictMode = false

	cfg.Evacuation.ShelterRegistryPath = "data/shelters.csv"
	cfg.Evacuation.RiskPenaltyLambda = 5000

	cfg.Scheduler.PeriodSeconds = 300
	cfg.Scheduler.ScoutEnabled = true

	cfg.Broadcast.SubscriberBufferSize = 64
	cfg.Broadcast.HeartbeatSeconds = 30

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AppLogPath = "logs/app.log"
	cfg.Logging.AuditLogPath = "logs/audit.log"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	return cfg
}
