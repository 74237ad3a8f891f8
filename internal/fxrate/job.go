package fxrate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"factionsim/internal/broadcast"
	"factionsim/internal/econ"
	"factionsim/internal/event"
	"factionsim/internal/model"
	"factionsim/internal/protocol"
	"factionsim/internal/store"
	"factionsim/internal/world"
)

// changeThreshold is the minimum rate movement that counts as a change: below
// it nothing is persisted and the batch's changed flag stays false, though the
// batch itself is still broadcast.
const changeThreshold = 0.0001

// Broadcaster is the slice of the hub the job needs.
type Broadcaster interface {
	Publish(room string, ev event.Event)
}

// Config holds job tuning.
type Config struct {
	Interval      time.Duration // recompute cadence
	BaseFactionID string        // faction whose currency is pinned at 1.0

	InflationBeta     float64 // weight of the money-supply delta in the rate
	ReversionStrength float64 // per-run pull toward the configured base rate
	CacheTTL          time.Duration
}

// DefaultConfig returns sensible defaults; BaseFactionID has no default and
// must be set.
func DefaultConfig() Config {
	return Config{
		Interval:          15 * time.Second,
		InflationBeta:     0.5,
		ReversionStrength: econ.DefaultReversionStrength,
		CacheTTL:          5 * time.Second,
	}
}

// Stats exposes job counters for health checks.
type Stats struct {
	Running bool  `json:"running"`
	Runs    int64 `json:"runs"`
	Aborted int64 `json:"aborted"` // runs skipped because the base faction was missing
}

// Job periodically recomputes all exchange rates. Runs are synchronous within
// the job's goroutine, so two runs never overlap.
type Job struct {
	cfg    Config
	state  *world.State
	store  store.Store
	bus    Broadcaster
	cache  Cache
	clock  broadcast.Clock
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running atomic.Bool
	runs    atomic.Int64
	aborted atomic.Int64
}

// New creates a job over the given state. A nil cache disables caching; a nil
// clock selects the system clock.
func New(cfg Config, st *world.State, db store.Store, bus Broadcaster, cache Cache, clock broadcast.Clock, logger *slog.Logger) *Job {
	if clock == nil {
		clock = broadcast.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		cfg:    cfg,
		state:  st,
		store:  db,
		bus:    bus,
		cache:  cache,
		clock:  clock,
		logger: logger,
	}
}

// Start arms the periodic timer.
func (j *Job) Start(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return fmt.Errorf("exchange rate job already running")
	}
	j.ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go j.run()

	j.logger.Info("exchange rate job started",
		"interval", j.cfg.Interval,
		"base_faction", j.cfg.BaseFactionID,
	)
	return nil
}

// Stop cancels the timer and waits for an in-flight run to finish.
func (j *Job) Stop(ctx context.Context) error {
	if j.cancel != nil {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.running.Store(false)
		j.logger.Info("exchange rate job stopped", "runs", j.runs.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (j *Job) Stats() Stats {
	return Stats{
		Running: j.running.Load(),
		Runs:    j.runs.Load(),
		Aborted: j.aborted.Load(),
	}
}

func (j *Job) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			// Cancellation only stops scheduling; the run in progress keeps
			// a live context so its persistence writes land in full.
			if err := j.runOnce(context.WithoutCancel(j.ctx)); err != nil {
				// Recoverable per-run failure: skip this run, keep the schedule.
				j.aborted.Add(1)
				j.logger.Error("exchange rate run aborted", "error", err)
			}
		}
	}
}

// runOnce recomputes every faction's rate against the base currency. The same
// inputs always produce the same batch: CPI seeding is a fixed point of the
// smoothing, inflation is zero when the money supply is unchanged, and the
// rate is rebuilt from the configured base each run rather than compounded.
func (j *Job) runOnce(ctx context.Context) error {
	base, ok := j.state.Faction(j.cfg.BaseFactionID)
	if !ok {
		return fmt.Errorf("base faction %q not loaded", j.cfg.BaseFactionID)
	}

	// The base currency is the unit of account: its stored rate is pinned at
	// exactly 1.0, not just the one in the emitted batch. A stale seed value
	// would otherwise leak into every world update.
	if base.CurrentExchangeRate != 1.0 {
		base.CurrentExchangeRate = 1.0
		base.UpdatedAt = j.clock.Now()
		j.state.SetFaction(base)
		if err := j.store.SaveFaction(ctx, base); err != nil {
			j.logger.Warn("rate save failed", "faction", base.ID, "error", err)
		}
	}

	baseCPI := econ.WorldCPI(j.state.CPI(base.ID), base.ProsperityIndex, base.ExportRevenue, base.ImportCost)
	j.state.SetCPI(base.ID, baseCPI)

	factions := j.state.Factions()
	rates := make(map[string]float64, len(factions))
	rates[base.CurrencyCode] = 1.0

	changed := false
	for _, f := range factions {
		if f.ID == base.ID {
			continue
		}
		rate := j.computeRate(f, baseCPI)
		rates[f.CurrencyCode] = rate

		if math.Abs(rate-f.CurrentExchangeRate) <= changeThreshold {
			continue
		}
		changed = true
		f.CurrentExchangeRate = rate
		f.UpdatedAt = j.clock.Now()
		j.state.SetFaction(f)
		if err := j.store.SaveFaction(ctx, f); err != nil {
			j.logger.Warn("rate save failed", "faction", f.ID, "error", err)
		}
	}

	batch := model.ExchangeRateBatch{
		BaseCurrency: base.CurrencyCode,
		Rates:        rates,
		Changed:      changed,
		ComputedAt:   j.clock.Now(),
	}
	j.state.SetRates(batch)
	j.cacheBatch(batch)
	j.bus.Publish(protocol.RoomWorld, event.FXRateBatch{Batch: batch})

	j.runs.Add(1)
	j.logger.Debug("exchange rates computed", "currencies", len(rates), "changed", changed)
	return nil
}

// computeRate derives one faction's rate: PPP against the base price level,
// scaled by inflation, pulled toward the configured base, then clamped and
// rounded exactly once.
func (j *Job) computeRate(f model.Faction, baseCPI float64) float64 {
	cpi := econ.WorldCPI(j.state.CPI(f.ID), f.ProsperityIndex, f.ExportRevenue, f.ImportCost)
	j.state.SetCPI(f.ID, cpi)

	demand := econ.DemandFactor(f.ExportRevenue, f.ImportCost)
	supply := econ.MoneySupply(f.ExportRevenue, f.ImportCost, f.GDP)
	inflation := econ.Inflation(supply, j.state.PrevMoneySupply(f.ID), j.cfg.InflationBeta)
	j.state.SetMoneySupply(f.ID, supply)

	ppp := econ.PPPRate(cpi, baseCPI, demand, f.CurrencyVolatility)
	rate := f.BaseExchangeRate * ppp * (1 + inflation)
	rate = econ.MeanReversion(rate, f.BaseExchangeRate, j.cfg.ReversionStrength)
	rate = econ.ClampRate(rate, f.BaseExchangeRate)
	return econ.Round4(rate)
}

func (j *Job) cacheBatch(batch model.ExchangeRateBatch) {
	if j.cache == nil {
		return
	}
	if err := j.cache.Set(MatrixKey, batch, j.cfg.CacheTTL); err != nil {
		j.logger.Warn("rate cache write failed", "key", MatrixKey, "error", err)
	}
	for code, rate := range batch.Rates {
		if err := j.cache.Set(RateKey+code, rate, j.cfg.CacheTTL); err != nil {
			j.logger.Warn("rate cache write failed", "key", RateKey+code, "error", err)
		}
	}
}
