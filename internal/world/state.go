// Package world holds the authoritative in-memory simulation state: the
// faction table, per-faction CPI and money-supply history, open trade offers,
// and the bounded recent-trade ring.
//
// The state is an explicit struct passed to the schedulers rather than
// module-level maps, so the tick loop and exchange-rate job are testable with
// injected state. Writers are the TickRunner and ExchangeRateJob only; reads
// from the broadcast layer get value copies.
package world

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"factionsim/internal/model"
)

// RecentTradeCap bounds the recent-trades ring.
const RecentTradeCap = 20

// State is the single mutable shared resource of the simulation.
type State struct {
	mu sync.RWMutex

	tick    uint64
	simTime time.Time
	perTick time.Duration // simulated time advanced per tick

	factions map[string]model.Faction

	// Process-memory history, keyed by faction ID. Not persisted: a reset
	// loses history but re-derives from current indicators on the next run.
	cpi        map[string]float64
	prevSupply map[string]float64

	offers map[uuid.UUID]model.TradeOffer
	trades []model.Trade // ring, newest last

	rates model.ExchangeRateBatch
}

// New creates an empty state. perTick is how much simulated time one tick
// advances; epoch is the simulation start time.
func New(epoch time.Time, perTick time.Duration) *State {
	return &State{
		simTime:    epoch,
		perTick:    perTick,
		factions:   make(map[string]model.Faction),
		cpi:        make(map[string]float64),
		prevSupply: make(map[string]float64),
		offers:     make(map[uuid.UUID]model.TradeOffer),
	}
}

// AdvanceTick advances the simulated clock and returns the new tick number.
func (s *State) AdvanceTick() (uint64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	s.simTime = s.simTime.Add(s.perTick)
	return s.tick, s.simTime
}

// Tick returns the current tick number.
func (s *State) Tick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// ReplaceFactions installs the full faction set, e.g. after the initial load.
func (s *State) ReplaceFactions(factions []model.Faction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factions = make(map[string]model.Faction, len(factions))
	for _, f := range factions {
		s.factions[f.ID] = f.Clone()
	}
}

// Faction returns a copy of one faction.
func (s *State) Faction(id string) (model.Faction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.factions[id]
	if !ok {
		return model.Faction{}, false
	}
	return f.Clone(), true
}

// Factions returns copies of all factions, sorted by ID for deterministic
// iteration order in the schedulers.
func (s *State) Factions() []model.Faction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Faction, 0, len(s.factions))
	for _, f := range s.factions {
		out = append(out, f.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetFaction writes back one faction record.
func (s *State) SetFaction(f model.Faction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factions[f.ID] = f.Clone()
}

// CPI returns the smoothed CPI history for a faction (zero when unseeded).
func (s *State) CPI(id string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cpi[id]
}

// SetCPI records the smoothed CPI for a faction.
func (s *State) SetCPI(id string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpi[id] = v
}

// PrevMoneySupply returns the previous-run money supply (zero when unseeded).
func (s *State) PrevMoneySupply(id string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prevSupply[id]
}

// SetMoneySupply records the money supply for the next run's inflation delta.
func (s *State) SetMoneySupply(id string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prevSupply[id] = v
}

// AddOffer registers an open trade offer.
func (s *State) AddOffer(o model.TradeOffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[o.ID] = o
}

// RemoveOffer drops an offer on fulfillment or cancellation.
func (s *State) RemoveOffer(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.offers, id)
}

// OpenOffers returns all open offers, oldest first (ties by ID).
func (s *State) OpenOffers() []model.TradeOffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TradeOffer, 0, len(s.offers))
	for _, o := range s.offers {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// HasOfferBy reports whether a faction already has an open offer for a resource.
func (s *State) HasOfferBy(factionID, resource string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.offers {
		if o.Seller == factionID && o.Resource == resource {
			return true
		}
	}
	return false
}

// RecordTrade appends to the recent-trade ring, evicting the oldest entry
// once the cap is reached.
func (s *State) RecordTrade(t model.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	if len(s.trades) > RecentTradeCap {
		s.trades = s.trades[len(s.trades)-RecentTradeCap:]
	}
}

// RecentTrades returns the ring contents, oldest first.
func (s *State) RecentTrades() []model.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// SetRates stores the latest exchange-rate batch for snapshot delivery.
func (s *State) SetRates(b model.ExchangeRateBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = b
}

// Rates returns the latest exchange-rate batch.
func (s *State) Rates() model.ExchangeRateBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyBatch(s.rates)
}

// Snapshot assembles the full world view for a freshly connected observer.
func (s *State) Snapshot() model.WorldSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	factions := make([]model.Faction, 0, len(s.factions))
	for _, f := range s.factions {
		factions = append(factions, f.Clone())
	}
	sort.Slice(factions, func(i, j int) bool { return factions[i].ID < factions[j].ID })

	trades := make([]model.Trade, len(s.trades))
	copy(trades, s.trades)

	offers := make([]model.TradeOffer, 0, len(s.offers))
	for _, o := range s.offers {
		offers = append(offers, o)
	}
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].CreatedAt.Before(offers[j].CreatedAt)
	})

	return model.WorldSnapshot{
		Tick:         s.tick,
		SimTime:      s.simTime,
		Factions:     factions,
		Rates:        copyBatch(s.rates),
		RecentTrades: trades,
		OpenOffers:   offers,
	}
}

func copyBatch(b model.ExchangeRateBatch) model.ExchangeRateBatch {
	out := b
	out.Rates = make(map[string]float64, len(b.Rates))
	for k, v := range b.Rates {
		out.Rates[k] = v
	}
	return out
}
