package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if c.Graph.NetworkPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "graph.network_path",
			Message: "graph.network_path is required",
		})
	}
	if c.Graph.SnapCapM <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "graph.snap_cap_m",
			Message: fmt.Sprintf("snap_cap_m must be positive, got %f", c.Graph.SnapCapM),
		})
	}

	if c.Raster.Dir == "" {
		errs = append(errs, &ValidationError{
			Field:   "raster.dir",
			Message: "raster.dir is required",
		})
	}
	if c.Raster.MaxResidentTiles < 1 {
		errs = append(errs, &ValidationError{
			Field:   "raster.max_resident_tiles",
			Message: fmt.Sprintf("max_resident_tiles must be at least 1, got %d", c.Raster.MaxResidentTiles),
		})
	}
	validRP := map[string]bool{"rr01": true, "rr02": true, "rr03": true, "rr04": true}
	if !validRP[c.Raster.DefaultRP] {
		errs = append(errs, &ValidationError{
			Field:   "raster.default_rp",
			Message: fmt.Sprintf("invalid return period '%s', must be one of rr01..rr04", c.Raster.DefaultRP),
		})
	}
	if c.Raster.DefaultTS < 1 || c.Raster.DefaultTS > 18 {
		errs = append(errs, &ValidationError{
			Field:   "raster.default_ts",
			Message: fmt.Sprintf("default_ts must be between 1 and 18, got %d", c.Raster.DefaultTS),
		})
	}

	if c.Hazard.WeightFlood < 0 || c.Hazard.WeightCrowd < 0 || c.Hazard.WeightHist < 0 {
		errs = append(errs, &ValidationError{
			Field:   "hazard",
			Message: "fusion weights cannot be negative",
		})
	}
	if c.Hazard.CriticalAt <= 0 || c.Hazard.CriticalAt > 1 {
		errs = append(errs, &ValidationError{
			Field:   "hazard.critical_at",
			Message: fmt.Sprintf("critical_at must be in (0,1], got %f", c.Hazard.CriticalAt),
		})
	}

	if c.Collectors.FloodPeriodSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "collectors.flood_period_seconds",
			Message: fmt.Sprintf("flood_period_seconds must be at least 1, got %d", c.Collectors.FloodPeriodSeconds),
		})
	}
	if c.Collectors.FloodTimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "collectors.flood_timeout_seconds",
			Message: fmt.Sprintf("flood_timeout_seconds must be at least 1, got %d", c.Collectors.FloodTimeoutSeconds),
		})
	}
	if c.Collectors.FloodMaxRetries < 0 {
		errs = append(errs, &ValidationError{
			Field:   "collectors.flood_max_retries",
			Message: "flood_max_retries cannot be negative",
		})
	}
	if c.Collectors.ScoutSimulation && c.Collectors.ScoutReplayPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "collectors.scout_replay_path",
			Message: "scout_replay_path is required when scout_simulation is true",
		})
	}

	if c.Evacuation.ShelterRegistryPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "evacuation.shelter_registry_path",
			Message: "evacuation.shelter_registry_path is required",
		})
	}
	if c.Evacuation.RiskPenaltyLambda < 0 {
		errs = append(errs, &ValidationError{
			Field:   "evacuation.risk_penalty_lambda",
			Message: "risk_penalty_lambda cannot be negative",
		})
	}

	if c.Scheduler.PeriodSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "scheduler.period_seconds",
			Message: fmt.Sprintf("period_seconds must be at least 1, got %d", c.Scheduler.PeriodSeconds),
		})
	}

	if c.Broadcast.SubscriberBufferSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "broadcast.subscriber_buffer_size",
			Message: "subscriber_buffer_size must be at least 1",
		})
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	return errs
}
