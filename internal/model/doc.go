// Package model defines the core domain types shared across the simulation:
// factions, trade offers, completed trades, exchange-rate batches, and the
// full world snapshot delivered to freshly connected observers.
package model
