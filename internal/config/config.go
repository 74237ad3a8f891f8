// Package config loads and validates the simulation daemon's YAML
// configuration.
package config

import (
	"time"

	"factionsim/internal/database"
)

// SimConfig is the root configuration for a simd instance.
type SimConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Database   database.Config  `yaml:"database"`
	Simulation SimulationConfig `yaml:"simulation"`
	FX         FXConfig         `yaml:"fx"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Snapshots  SnapshotsConfig  `yaml:"snapshots"`
	Health     HealthConfig     `yaml:"health"`
}

// InstanceConfig identifies this daemon.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// SimulationConfig holds tick runner settings.
type SimulationConfig struct {
	TickInterval         time.Duration      `yaml:"tick_interval"`
	SimTimePerTick       time.Duration      `yaml:"sim_time_per_tick"`
	ProductionPerCapita  float64            `yaml:"production_per_capita"`
	ConsumptionPerCapita float64            `yaml:"consumption_per_capita"`
	SurplusFactor        float64            `yaml:"surplus_factor"`
	OfferFraction        float64            `yaml:"offer_fraction"`
	BasePrices           map[string]float64 `yaml:"base_prices"`
}

// FXConfig holds exchange-rate job settings.
type FXConfig struct {
	Interval          time.Duration `yaml:"interval"`
	BaseFactionID     string        `yaml:"base_faction_id"`
	InflationBeta     float64       `yaml:"inflation_beta"`
	ReversionStrength float64       `yaml:"reversion_strength"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

// BroadcastConfig holds the observer websocket endpoint settings.
type BroadcastConfig struct {
	Port         int           `yaml:"port"`
	Path         string        `yaml:"path"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PriceWindow  time.Duration `yaml:"price_window"`
	QueueInitial int           `yaml:"queue_initial"`
	QueueMax     int           `yaml:"queue_max"`
}

// SnapshotsConfig holds the disk archiver settings.
type SnapshotsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Dir      string        `yaml:"dir"`
	Keep     int           `yaml:"keep"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
