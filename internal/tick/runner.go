// Package tick drives the master simulation loop: on a fixed wall-clock
// cadence it advances simulated time, applies production and consumption,
// settles eligible trade offers, refreshes aggregate indicators, and
// publishes the resulting domain events.
package tick

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"factionsim/internal/econ"
	"factionsim/internal/event"
	"factionsim/internal/model"
	"factionsim/internal/protocol"
	"factionsim/internal/store"
	"factionsim/internal/world"
)

// Publisher is the broadcast boundary: fire-and-forget from the runner's
// perspective; delivery to individual sockets is the transport's job.
type Publisher interface {
	Publish(room string, ev event.Event)
	OfferPrice(key string, price float64)
}

// Config holds runner tuning.
type Config struct {
	Interval time.Duration // wall-clock tick cadence

	// BasePrices seeds price formation per resource.
	BasePrices map[string]float64

	// Per-capita production and consumption applied each tick.
	ProductionPerCapita  float64
	ConsumptionPerCapita float64

	// A faction posts a sell offer when a stockpile exceeds
	// SurplusFactor times its tick demand; the offer covers
	// OfferFraction of the stockpile.
	SurplusFactor float64
	OfferFraction float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
		BasePrices: map[string]float64{
			"grain": 4,
			"ore":   10,
			"fuel":  25,
		},
		ProductionPerCapita:  0.12,
		ConsumptionPerCapita: 0.1,
		SurplusFactor:        3,
		OfferFraction:        0.25,
	}
}

// Stats exposes runner counters for health checks.
type Stats struct {
	Running  bool  `json:"running"`
	Ticks    int64 `json:"ticks"`
	Overruns int64 `json:"overruns"` // timer firings skipped because a tick was still in flight
	Failures int64 `json:"failures"` // per-faction updates isolated and skipped
}

// Runner is the master scheduler. State machine: stopped -> running -> stopped.
type Runner struct {
	cfg    Config
	state  *world.State
	store  store.Store
	bus    Publisher
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running  atomic.Bool
	inFlight atomic.Bool
	ticks    atomic.Int64
	overruns atomic.Int64
	failures atomic.Int64
}

// New creates a runner over the given state.
func New(cfg Config, st *world.State, db store.Store, bus Publisher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		state:  st,
		store:  db,
		bus:    bus,
		logger: logger,
	}
}

// Start arms the periodic timer.
func (r *Runner) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("tick runner already running")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("tick runner started", "interval", r.cfg.Interval)
	return nil
}

// Stop cancels the next scheduled tick and waits for any in-flight tick to
// finish, so no faction is left half-updated.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.running.Store(false)
		r.logger.Info("tick runner stopped", "ticks", r.ticks.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Running:  r.running.Load(),
		Ticks:    r.ticks.Load(),
		Overruns: r.overruns.Load(),
		Failures: r.failures.Load(),
	}
}

func (r *Runner) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			// At most one tick in flight, covering the full async span
			// including persistence writes. A firing that lands while the
			// previous tick still runs is skipped, not queued; the overrun
			// counter keeps the skip observable.
			if !r.inFlight.CompareAndSwap(false, true) {
				n := r.overruns.Add(1)
				r.logger.Warn("tick overrun, skipping firing", "overruns", n)
				continue
			}
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				defer r.inFlight.Store(false)
				// Cancellation only stops scheduling. The in-flight tick
				// keeps a live context so its persistence writes land in
				// full; Stop waits for it via the wait group.
				r.doTick(context.WithoutCancel(r.ctx))
			}()
		}
	}
}

// doTick executes one logical simulation transaction over process memory.
func (r *Runner) doTick(ctx context.Context) {
	tickNum, simTime := r.state.AdvanceTick()
	start := time.Now()

	factions := r.state.Factions()
	updated := make([]model.Faction, 0, len(factions))

	for _, f := range factions {
		out, err := r.updateFaction(ctx, f, simTime)
		if err != nil {
			// One corrupt record must not halt the simulation.
			r.failures.Add(1)
			r.logger.Error("faction update failed, skipping", "faction", f.ID, "error", err)
			continue
		}
		updated = append(updated, out)
	}

	r.settleOffers(ctx, tickNum, simTime)
	r.postOffers(ctx, updated, simTime)

	r.bus.Publish(protocol.RoomWorld, event.TimeTick{Tick: tickNum, SimTime: simTime})
	r.bus.Publish(protocol.RoomWorld, event.WorldUpdateBatch{Tick: tickNum, Factions: updated})

	r.ticks.Add(1)
	r.logger.Debug("tick complete",
		"tick", tickNum,
		"factions", len(updated),
		"duration", time.Since(start),
	)
}

// updateFaction applies one tick of production, consumption, and price
// formation to a single faction. Panics are converted to errors so the
// caller can isolate them.
func (r *Runner) updateFaction(ctx context.Context, f model.Faction, simTime time.Time) (out model.Faction, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if f.Stock == nil {
		f.Stock = make(map[string]float64)
	}
	if f.Prices == nil {
		f.Prices = make(map[string]float64)
	}

	demand := f.Population * r.cfg.ConsumptionPerCapita
	production := f.Population * r.cfg.ProductionPerCapita * (f.ProsperityIndex / 100)

	for resource, basePrice := range r.cfg.BasePrices {
		stock := f.Stock[resource] + production - demand
		if stock < 0 {
			stock = 0
		}
		f.Stock[resource] = stock

		price := econ.ResourcePrice(basePrice, stock, demand)
		f.Prices[resource] = price
		r.bus.OfferPrice(f.ID+"/"+resource, price)
	}

	// Net trade flow accrues to the treasury; the balance itself nudges
	// prosperity.
	f.Treasury = econ.TreasuryAccrual(f.Treasury, f.ExportRevenue, f.ImportCost)
	f.ProsperityIndex = econ.ProsperityDrift(f.ProsperityIndex, f.ExportRevenue, f.ImportCost)
	f.UpdatedAt = simTime

	r.state.SetFaction(f)
	if err := r.store.SaveFaction(ctx, f); err != nil {
		// Recoverable: the authoritative copy is already updated in memory;
		// the next successful save catches the store up.
		r.logger.Warn("faction save failed", "faction", f.ID, "error", err)
	}
	return f, nil
}

// postOffers creates sell offers for factions sitting on a surplus.
func (r *Runner) postOffers(ctx context.Context, factions []model.Faction, simTime time.Time) {
	for _, f := range factions {
		demand := f.Population * r.cfg.ConsumptionPerCapita
		for resource := range r.cfg.BasePrices {
			if f.Stock[resource] <= demand*r.cfg.SurplusFactor {
				continue
			}
			if r.state.HasOfferBy(f.ID, resource) {
				continue
			}

			offer := model.TradeOffer{
				ID:        uuid.New(),
				Seller:    f.ID,
				Resource:  resource,
				Quantity:  f.Stock[resource] * r.cfg.OfferFraction,
				UnitPrice: f.Prices[resource],
				Currency:  f.CurrencyCode,
				CreatedAt: simTime,
			}
			r.state.AddOffer(offer)
			if err := r.store.SaveOffer(ctx, offer); err != nil {
				r.logger.Warn("offer save failed", "offer", offer.ID, "error", err)
			}
			r.bus.Publish(protocol.RoomTrades, event.TradeOfferCreated{Offer: offer})
		}
	}
}

// settleOffers matches standing offers against the neediest solvent buyer.
// Simple offer/accept, not an order book: one buyer per offer per tick.
func (r *Runner) settleOffers(ctx context.Context, tickNum uint64, simTime time.Time) {
	factions := r.state.Factions()

	var totalExports float64
	for _, f := range factions {
		totalExports += f.ExportRevenue
	}

	for _, offer := range r.state.OpenOffers() {
		if err := r.settleOne(ctx, offer, factions, totalExports, tickNum, simTime); err != nil {
			r.failures.Add(1)
			r.logger.Error("settlement failed, skipping offer", "offer", offer.ID, "error", err)
		}
		// Refresh views changed by the previous settlement.
		factions = r.state.Factions()
	}
}

func (r *Runner) settleOne(ctx context.Context, offer model.TradeOffer, factions []model.Faction, totalExports float64, tickNum uint64, simTime time.Time) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	seller, ok := r.state.Faction(offer.Seller)
	if !ok {
		// Seller vanished; cancel the orphaned offer.
		r.state.RemoveOffer(offer.ID)
		if derr := r.store.DeleteOffer(ctx, offer.ID); derr != nil {
			r.logger.Warn("offer delete failed", "offer", offer.ID, "error", derr)
		}
		return nil
	}

	share := econ.MarketShare(seller.ExportRevenue, totalExports)
	gross := offer.Quantity * offer.UnitPrice
	tax := econ.AntiMonopolyTax(share, gross)
	cost := econ.TradeCost(offer.Quantity, offer.UnitPrice, share)

	buyer, ok := pickBuyer(factions, offer, cost, r.cfg.ConsumptionPerCapita)
	if !ok {
		return nil // no eligible buyer this tick; the offer stands
	}

	// Seller side.
	seller.Stock[offer.Resource] -= offer.Quantity
	if seller.Stock[offer.Resource] < 0 {
		seller.Stock[offer.Resource] = 0
	}
	seller.Treasury += gross
	seller.ExportRevenue, seller.ImportCost = econ.TradeBalanceAfter(seller.ExportRevenue, seller.ImportCost, gross, true)
	seller.GDP = econ.GDPImpact(seller.GDP, gross)
	seller.UpdatedAt = simTime

	// Buyer side.
	if buyer.Stock == nil {
		buyer.Stock = make(map[string]float64)
	}
	buyer.Stock[offer.Resource] += offer.Quantity
	buyer.Treasury -= cost
	buyer.ExportRevenue, buyer.ImportCost = econ.TradeBalanceAfter(buyer.ExportRevenue, buyer.ImportCost, gross, false)
	buyer.GDP = econ.GDPImpact(buyer.GDP, gross)
	buyer.UpdatedAt = simTime

	trade := model.Trade{
		ID:         uuid.New(),
		Seller:     seller.ID,
		Buyer:      buyer.ID,
		Resource:   offer.Resource,
		Quantity:   offer.Quantity,
		UnitPrice:  offer.UnitPrice,
		Currency:   offer.Currency,
		TotalCost:  cost,
		Tax:        tax,
		Tick:       tickNum,
		ExecutedAt: simTime,
	}

	// Write-back order: state first (authoritative), then the store; store
	// failures are recoverable.
	r.state.SetFaction(seller)
	r.state.SetFaction(buyer)
	r.state.RemoveOffer(offer.ID)
	r.state.RecordTrade(trade)

	for _, f := range []model.Faction{seller, buyer} {
		if serr := r.store.SaveFaction(ctx, f); serr != nil {
			r.logger.Warn("faction save failed", "faction", f.ID, "error", serr)
		}
	}
	if serr := r.store.SaveTrade(ctx, trade); serr != nil {
		r.logger.Warn("trade save failed", "trade", trade.ID, "error", serr)
	}
	if derr := r.store.DeleteOffer(ctx, offer.ID); derr != nil {
		r.logger.Warn("offer delete failed", "offer", offer.ID, "error", derr)
	}

	r.bus.Publish(protocol.RoomTrades, event.TradeCompleted{Trade: trade})
	return nil
}

// pickBuyer returns the eligible faction with the lowest stock of the offered
// resource (ties by ID), or ok=false when nobody needs it or can afford it.
func pickBuyer(factions []model.Faction, offer model.TradeOffer, cost float64, consumptionPerCapita float64) (model.Faction, bool) {
	var best model.Faction
	found := false
	for _, f := range factions {
		if f.ID == offer.Seller || f.Treasury < cost {
			continue
		}
		need := f.Population * consumptionPerCapita
		if f.Stock[offer.Resource] >= need {
			continue
		}
		if !found ||
			f.Stock[offer.Resource] < best.Stock[offer.Resource] ||
			(f.Stock[offer.Resource] == best.Stock[offer.Resource] && f.ID < best.ID) {
			best = f
			found = true
		}
	}
	return best, found
}
