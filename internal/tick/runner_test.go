package tick

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"factionsim/internal/event"
	"factionsim/internal/model"
	"factionsim/internal/world"
)

// mockStore counts calls and can slow down or gate SaveFaction.
type mockStore struct {
	saveDelay time.Duration
	gate      chan struct{} // when set, first SaveFaction signals started and blocks until gate closes
	started   chan struct{}
	startOnce sync.Once

	saveErr error

	mu      sync.Mutex
	ctxErrs []error // ctx.Err() observed at each SaveFaction write

	cur, max  atomic.Int32
	saves     atomic.Int32
	trades    atomic.Int32
	offerSave atomic.Int32
	offerDel  atomic.Int32
}

func (m *mockStore) LoadFactions(context.Context) ([]model.Faction, error) { return nil, nil }

func (m *mockStore) SaveFaction(ctx context.Context, _ model.Faction) error {
	cur := m.cur.Add(1)
	defer m.cur.Add(-1)
	for {
		old := m.max.Load()
		if cur <= old || m.max.CompareAndSwap(old, cur) {
			break
		}
	}

	if m.gate != nil {
		m.startOnce.Do(func() { close(m.started) })
		<-m.gate
	}
	if m.saveDelay > 0 {
		time.Sleep(m.saveDelay)
	}

	m.mu.Lock()
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	m.mu.Unlock()
	m.saves.Add(1)
	return m.saveErr
}

func (m *mockStore) ctxErrors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.ctxErrs...)
}

func (m *mockStore) LoadOpenOffers(context.Context) ([]model.TradeOffer, error) { return nil, nil }

func (m *mockStore) SaveOffer(context.Context, model.TradeOffer) error {
	m.offerSave.Add(1)
	return nil
}

func (m *mockStore) DeleteOffer(context.Context, uuid.UUID) error {
	m.offerDel.Add(1)
	return nil
}

func (m *mockStore) SaveTrade(context.Context, model.Trade) error {
	m.trades.Add(1)
	return nil
}

// mockBus records published events; OfferPrice can be made to panic per key.
type mockBus struct {
	mu       sync.Mutex
	events   []event.Event
	panicKey string
}

func (b *mockBus) Publish(_ string, ev event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *mockBus) OfferPrice(key string, _ float64) {
	if b.panicKey != "" && strings.HasPrefix(key, b.panicKey+"/") {
		panic("corrupt faction record")
	}
}

func (b *mockBus) byName(name string) []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []event.Event
	for _, ev := range b.events {
		if ev.Name() == name {
			out = append(out, ev)
		}
	}
	return out
}

func testFaction(id string, population, stock float64) model.Faction {
	return model.Faction{
		ID:              id,
		Name:            id,
		CurrencyCode:    strings.ToUpper(id)[:3],
		GDP:             10000,
		Population:      population,
		ProsperityIndex: 50,
		Treasury:        100000,
		Stock:           map[string]float64{"ore": stock},
		Prices:          map[string]float64{},
	}
}

func testConfig() Config {
	return Config{
		Interval:             time.Hour, // ticks triggered manually in tests
		BasePrices:           map[string]float64{"ore": 10},
		ProductionPerCapita:  0.12,
		ConsumptionPerCapita: 0.1,
		SurplusFactor:        3,
		OfferFraction:        0.25,
	}
}

func TestRunner_AtMostOneTickInFlight(t *testing.T) {
	st := world.New(time.Now(), time.Hour)
	st.ReplaceFactions([]model.Faction{testFaction("alba", 100, 10)})

	db := &mockStore{saveDelay: 5 * time.Millisecond}
	bus := &mockBus{}

	cfg := testConfig()
	cfg.Interval = time.Millisecond // fires far faster than a tick completes
	r := New(cfg, st, db, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := db.max.Load(); got > 1 {
		t.Errorf("concurrent ticks observed: %d, want at most 1", got)
	}
	stats := r.Stats()
	if stats.Overruns == 0 {
		t.Error("expected overruns under sustained overload")
	}
	if stats.Ticks == 0 {
		t.Error("expected at least one completed tick")
	}
}

func TestRunner_StopWaitsForInFlightTick(t *testing.T) {
	st := world.New(time.Now(), time.Hour)
	st.ReplaceFactions([]model.Faction{testFaction("alba", 100, 10)})

	db := &mockStore{
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	bus := &mockBus{}

	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	r := New(cfg, st, db, bus, nil)

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-db.started // a tick is now blocked mid-flight inside SaveFaction

	stopDone := make(chan error, 1)
	go func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopDone <- r.Stop(stopCtx)
	}()

	select {
	case <-stopDone:
		t.Fatal("Stop returned while a tick was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(db.gate) // let the tick finish

	select {
	case err := <-stopDone:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the in-flight tick completed")
	}

	// The interrupted tick ran to completion: its time.tick event was
	// published after the gate opened.
	if got := len(bus.byName(event.NameTimeTick)); got == 0 {
		t.Error("in-flight tick did not complete")
	}
}

func TestRunner_StopDoesNotCancelInFlightSaves(t *testing.T) {
	st := world.New(time.Now(), time.Hour)
	st.ReplaceFactions([]model.Faction{
		testFaction("alba", 100, 10),
		testFaction("brack", 100, 10),
	})

	db := &mockStore{
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	bus := &mockBus{}

	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	r := New(cfg, st, db, bus, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-db.started // the first save of a tick is now blocked mid-flight

	stopDone := make(chan error, 1)
	go func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopDone <- r.Stop(stopCtx)
	}()

	// Give Stop time to cancel scheduling while the tick is still blocked,
	// then let the tick's writes proceed.
	time.Sleep(50 * time.Millisecond)
	close(db.gate)

	select {
	case err := <-stopDone:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	// Every write of the interrupted tick must have seen a live context; a
	// cancelled one would leave the store with a torn, mixed-tick faction set.
	errs := db.ctxErrors()
	if len(errs) < 2 {
		t.Fatalf("saves observed = %d, want the full tick (2 factions)", len(errs))
	}
	for i, err := range errs {
		if err != nil {
			t.Errorf("save %d ran with a dead context: %v", i, err)
		}
	}
}

func TestRunner_FactionFailureIsolated(t *testing.T) {
	st := world.New(time.Now(), time.Hour)
	st.ReplaceFactions([]model.Faction{
		testFaction("bad", 100, 10),
		testFaction("good", 100, 10),
	})

	db := &mockStore{}
	bus := &mockBus{panicKey: "bad"}
	r := New(testConfig(), st, db, bus, nil)

	r.doTick(context.Background())

	if got := r.Stats().Failures; got != 1 {
		t.Errorf("failures = %d, want 1", got)
	}

	batches := bus.byName(event.NameWorldUpdateBatch)
	if len(batches) != 1 {
		t.Fatalf("world update batches = %d, want 1", len(batches))
	}
	batch := batches[0].(event.WorldUpdateBatch)
	if len(batch.Factions) != 1 || batch.Factions[0].ID != "good" {
		t.Errorf("batch should contain only the healthy faction, got %+v", batch.Factions)
	}

	// The healthy faction was persisted despite the neighbor's panic.
	if db.saves.Load() == 0 {
		t.Error("healthy faction was not saved")
	}
}

func TestRunner_OfferLifecycleAndSettlement(t *testing.T) {
	st := world.New(time.Now(), time.Hour)
	// alba sits on a huge ore surplus; brack is starved but solvent.
	seller := testFaction("alba", 10, 1000)
	buyer := testFaction("brack", 200, 0)
	st.ReplaceFactions([]model.Faction{seller, buyer})

	db := &mockStore{}
	bus := &mockBus{}
	r := New(testConfig(), st, db, bus, nil)

	// Tick 1 posts the offer; tick 2 settles it.
	r.doTick(context.Background())

	created := bus.byName(event.NameTradeOfferCreated)
	if len(created) != 1 {
		t.Fatalf("offers created = %d, want 1", len(created))
	}
	offer := created[0].(event.TradeOfferCreated).Offer
	if offer.Seller != "alba" || offer.Resource != "ore" {
		t.Errorf("offer = %+v, want alba/ore", offer)
	}

	r.doTick(context.Background())

	completed := bus.byName(event.NameTradeCompleted)
	if len(completed) != 1 {
		t.Fatalf("trades completed = %d, want 1", len(completed))
	}
	trade := completed[0].(event.TradeCompleted).Trade
	if trade.Seller != "alba" || trade.Buyer != "brack" {
		t.Errorf("trade = %s -> %s, want alba -> brack", trade.Seller, trade.Buyer)
	}
	if trade.TotalCost <= trade.Quantity*trade.UnitPrice {
		t.Error("total cost should include the transaction fee")
	}

	// The settled offer is gone (the seller may already have reposted), the
	// trade is in the ring, both sides moved.
	for _, open := range st.OpenOffers() {
		if open.ID == offer.ID {
			t.Error("settled offer still open")
		}
	}
	if len(st.RecentTrades()) != 1 {
		t.Error("trade not recorded in recent ring")
	}

	after, _ := st.Faction("brack")
	if after.Stock["ore"] <= 0 {
		t.Error("buyer received no goods")
	}
	if after.ImportCost == 0 {
		t.Error("buyer import cost not updated")
	}
	sellerAfter, _ := st.Faction("alba")
	if sellerAfter.ExportRevenue == 0 {
		t.Error("seller export revenue not updated")
	}
	if db.trades.Load() != 1 || db.offerDel.Load() != 1 {
		t.Errorf("store calls: trades=%d offerDel=%d, want 1/1", db.trades.Load(), db.offerDel.Load())
	}
}

func TestRunner_SaveFailureDoesNotAbortTick(t *testing.T) {
	st := world.New(time.Now(), time.Hour)
	st.ReplaceFactions([]model.Faction{testFaction("alba", 100, 10)})

	db := &mockStore{saveErr: errors.New("connection reset")}
	bus := &mockBus{}
	r := New(testConfig(), st, db, bus, nil)

	r.doTick(context.Background())

	if got := len(bus.byName(event.NameTimeTick)); got != 1 {
		t.Errorf("tick events = %d, want 1 (tick must survive store failures)", got)
	}
	// The in-memory copy still advanced.
	f, _ := st.Faction("alba")
	if f.UpdatedAt.IsZero() {
		t.Error("faction not updated in memory")
	}
}

func TestRunner_DoubleStartRejected(t *testing.T) {
	st := world.New(time.Now(), time.Hour)
	r := New(testConfig(), st, &mockStore{}, &mockBus{}, nil)

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
