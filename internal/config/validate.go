package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *SimConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.Password == "" {
		return errors.New("database.password is required")
	}
	if c.Database.MaxConns < 1 {
		return errors.New("database.max_conns must be >= 1")
	}
	if c.Database.MinConns < 0 {
		return errors.New("database.min_conns must be >= 0")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) cannot exceed max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	if c.Simulation.TickInterval <= 0 {
		return errors.New("simulation.tick_interval must be positive")
	}
	if c.Simulation.OfferFraction <= 0 || c.Simulation.OfferFraction > 1 {
		return fmt.Errorf("simulation.offer_fraction must be in (0, 1], got %v", c.Simulation.OfferFraction)
	}

	if c.FX.BaseFactionID == "" {
		return errors.New("fx.base_faction_id is required")
	}
	if c.FX.Interval <= 0 {
		return errors.New("fx.interval must be positive")
	}

	if c.Broadcast.Port < 1 || c.Broadcast.Port > 65535 {
		return fmt.Errorf("broadcast.port must be between 1 and 65535, got %d", c.Broadcast.Port)
	}
	if c.Broadcast.QueueMax < c.Broadcast.QueueInitial {
		return fmt.Errorf("broadcast.queue_max (%d) cannot be below queue_initial (%d)",
			c.Broadcast.QueueMax, c.Broadcast.QueueInitial)
	}

	if c.Snapshots.Enabled && c.Snapshots.Dir == "" {
		return errors.New("snapshots.dir is required when snapshots are enabled")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}
