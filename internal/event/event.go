// Package event defines the domain events emitted by the simulation and their
// wire encoding. Events are a sealed tagged union: adding a kind means adding
// a type here plus a case in Decode, which the compiler and tests enforce.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"factionsim/internal/model"
)

// Wire event names. Server -> client.
const (
	NameTimeTick          = "time.tick"
	NameWorldUpdate       = "world.update"
	NameWorldUpdateBatch  = "world.update.batch"
	NameTradeOfferCreated = "trade.offer.created"
	NameTradeCompleted    = "trade.completed"
	NameMarketPriceBatch  = "market.price.batch"
	NameFXRateBatch       = "fx.rate.batch"
	NameSyncState         = "sync.state"
)

// Event is the sealed union of all broadcastable domain events.
type Event interface {
	Name() string
}

// TimeTick announces one simulation advance.
type TimeTick struct {
	Tick    uint64    `json:"tick"`
	SimTime time.Time `json:"sim_time"`
}

func (TimeTick) Name() string { return NameTimeTick }

// WorldUpdate carries one faction's refreshed indicators.
type WorldUpdate struct {
	Faction model.Faction `json:"faction"`
}

func (WorldUpdate) Name() string { return NameWorldUpdate }

// WorldUpdateBatch carries all factions touched by one tick.
type WorldUpdateBatch struct {
	Tick     uint64          `json:"tick"`
	Factions []model.Faction `json:"factions"`
}

func (WorldUpdateBatch) Name() string { return NameWorldUpdateBatch }

// TradeOfferCreated announces a new standing offer.
type TradeOfferCreated struct {
	Offer model.TradeOffer `json:"offer"`
}

func (TradeOfferCreated) Name() string { return NameTradeOfferCreated }

// TradeCompleted announces a settlement.
type TradeCompleted struct {
	Trade model.Trade `json:"trade"`
}

func (TradeCompleted) Name() string { return NameTradeCompleted }

// MarketPriceBatch is a coalesced window of price ticks: the latest value per
// "faction/resource" key, intermediate values dropped.
type MarketPriceBatch struct {
	Tick   uint64             `json:"tick"`
	Prices map[string]float64 `json:"prices"`
}

func (MarketPriceBatch) Name() string { return NameMarketPriceBatch }

// FXRateBatch is the full exchange-rate snapshot; broadcast every job run
// even when nothing changed, so TTL-driven displays refresh.
type FXRateBatch struct {
	Batch model.ExchangeRateBatch `json:"batch"`
}

func (FXRateBatch) Name() string { return NameFXRateBatch }

// SyncState is the full snapshot delivered on connect or sync.request.
type SyncState struct {
	Snapshot model.WorldSnapshot `json:"snapshot"`
}

func (SyncState) Name() string { return NameSyncState }

// Envelope is the wire frame around one event. Seq is assigned in production
// order by the broadcast hub; within one session frames arrive in Seq order.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq"`
	EmitTS  int64           `json:"emit_ts"` // µs since epoch
	Payload json.RawMessage `json:"payload"`
}

// Encode frames an event for the wire.
func Encode(seq uint64, emitted time.Time, ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.Name(), err)
	}
	return json.Marshal(Envelope{
		Type:    ev.Name(),
		Seq:     seq,
		EmitTS:  emitted.UnixMicro(),
		Payload: payload,
	})
}

// Decode parses a wire frame back into its concrete event type.
func Decode(data []byte) (Envelope, Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("decode envelope: %w", err)
	}

	var ev Event
	switch env.Type {
	case NameTimeTick:
		ev = &TimeTick{}
	case NameWorldUpdate:
		ev = &WorldUpdate{}
	case NameWorldUpdateBatch:
		ev = &WorldUpdateBatch{}
	case NameTradeOfferCreated:
		ev = &TradeOfferCreated{}
	case NameTradeCompleted:
		ev = &TradeCompleted{}
	case NameMarketPriceBatch:
		ev = &MarketPriceBatch{}
	case NameFXRateBatch:
		ev = &FXRateBatch{}
	case NameSyncState:
		ev = &SyncState{}
	default:
		return env, nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	if err := json.Unmarshal(env.Payload, ev); err != nil {
		return env, nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return env, deref(ev), nil
}

// deref returns the value form so callers can type-switch on concrete types.
func deref(ev Event) Event {
	switch e := ev.(type) {
	case *TimeTick:
		return *e
	case *WorldUpdate:
		return *e
	case *WorldUpdateBatch:
		return *e
	case *TradeOfferCreated:
		return *e
	case *TradeCompleted:
		return *e
	case *MarketPriceBatch:
		return *e
	case *FXRateBatch:
		return *e
	case *SyncState:
		return *e
	}
	return ev
}
