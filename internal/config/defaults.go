package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultTickInterval         = 5 * time.Second
	DefaultSimTimePerTick       = time.Hour
	DefaultProductionPerCapita  = 0.12
	DefaultConsumptionPerCapita = 0.1
	DefaultSurplusFactor        = 3.0
	DefaultOfferFraction        = 0.25

	DefaultFXInterval        = 15 * time.Second
	DefaultInflationBeta     = 0.5
	DefaultReversionStrength = 0.005
	DefaultCacheTTL          = 5 * time.Second

	DefaultBroadcastPort = 8080
	DefaultBroadcastPath = "/ws"
	DefaultWriteTimeout  = 5 * time.Second
	DefaultPriceWindow   = 250 * time.Millisecond
	DefaultQueueInitial  = 64
	DefaultQueueMax      = 4096

	DefaultSnapshotInterval = time.Minute
	DefaultSnapshotKeep     = 24

	DefaultHealthPort = 9090
	DefaultHealthPath = "/healthz"
)

func (c *SimConfig) applyDefaults() {
	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Simulation defaults
	if c.Simulation.TickInterval == 0 {
		c.Simulation.TickInterval = DefaultTickInterval
	}
	if c.Simulation.SimTimePerTick == 0 {
		c.Simulation.SimTimePerTick = DefaultSimTimePerTick
	}
	if c.Simulation.ProductionPerCapita == 0 {
		c.Simulation.ProductionPerCapita = DefaultProductionPerCapita
	}
	if c.Simulation.ConsumptionPerCapita == 0 {
		c.Simulation.ConsumptionPerCapita = DefaultConsumptionPerCapita
	}
	if c.Simulation.SurplusFactor == 0 {
		c.Simulation.SurplusFactor = DefaultSurplusFactor
	}
	if c.Simulation.OfferFraction == 0 {
		c.Simulation.OfferFraction = DefaultOfferFraction
	}
	if len(c.Simulation.BasePrices) == 0 {
		c.Simulation.BasePrices = map[string]float64{
			"grain": 4,
			"ore":   10,
			"fuel":  25,
		}
	}

	// FX defaults
	if c.FX.Interval == 0 {
		c.FX.Interval = DefaultFXInterval
	}
	if c.FX.InflationBeta == 0 {
		c.FX.InflationBeta = DefaultInflationBeta
	}
	if c.FX.ReversionStrength == 0 {
		c.FX.ReversionStrength = DefaultReversionStrength
	}
	if c.FX.CacheTTL == 0 {
		c.FX.CacheTTL = DefaultCacheTTL
	}

	// Broadcast defaults
	if c.Broadcast.Port == 0 {
		c.Broadcast.Port = DefaultBroadcastPort
	}
	if c.Broadcast.Path == "" {
		c.Broadcast.Path = DefaultBroadcastPath
	}
	if c.Broadcast.WriteTimeout == 0 {
		c.Broadcast.WriteTimeout = DefaultWriteTimeout
	}
	if c.Broadcast.PriceWindow == 0 {
		c.Broadcast.PriceWindow = DefaultPriceWindow
	}
	if c.Broadcast.QueueInitial == 0 {
		c.Broadcast.QueueInitial = DefaultQueueInitial
	}
	if c.Broadcast.QueueMax == 0 {
		c.Broadcast.QueueMax = DefaultQueueMax
	}

	// Snapshot defaults
	if c.Snapshots.Interval == 0 {
		c.Snapshots.Interval = DefaultSnapshotInterval
	}
	if c.Snapshots.Keep == 0 {
		c.Snapshots.Keep = DefaultSnapshotKeep
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
}
