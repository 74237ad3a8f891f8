// Package store is the persistence boundary of the simulation. The core
// assumes reads are consistent for the duration of one tick or job run and
// that any single write failure is recoverable (log and skip that entity
// this cycle).
package store

import (
	"context"

	"github.com/google/uuid"

	"factionsim/internal/model"
)

// Store is the document-store boundary the schedulers write through.
type Store interface {
	LoadFactions(ctx context.Context) ([]model.Faction, error)
	SaveFaction(ctx context.Context, f model.Faction) error

	LoadOpenOffers(ctx context.Context) ([]model.TradeOffer, error)
	SaveOffer(ctx context.Context, o model.TradeOffer) error
	DeleteOffer(ctx context.Context, id uuid.UUID) error

	// SaveTrade appends to the immutable trade log.
	SaveTrade(ctx context.Context, t model.Trade) error
}
