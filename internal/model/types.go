package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Factions
// -----------------------------------------------------------------------------

// Faction is an economic actor with its own currency and aggregate indicators.
// There is exactly one authoritative copy per faction, owned by the simulation
// loop; everything handed to observers is a value copy.
type Faction struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CurrencyCode string `json:"currency_code"`

	GDP             float64 `json:"gdp"`
	Population      float64 `json:"population"`
	ProsperityIndex float64 `json:"prosperity_index"` // 0-100
	Treasury        float64 `json:"treasury"`

	ExportRevenue float64 `json:"export_revenue"`
	ImportCost    float64 `json:"import_cost"`

	CurrencyVolatility  float64 `json:"currency_volatility"`
	BaseExchangeRate    float64 `json:"base_exchange_rate"`
	CurrentExchangeRate float64 `json:"current_exchange_rate"`
	MoneySupply         float64 `json:"money_supply"` // derived, see econ.MoneySupply

	// Per-resource stockpiles and last computed market prices,
	// keyed by resource name.
	Stock  map[string]float64 `json:"stock"`
	Prices map[string]float64 `json:"prices"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy, safe to hand outside the simulation loop.
func (f Faction) Clone() Faction {
	c := f
	c.Stock = make(map[string]float64, len(f.Stock))
	for k, v := range f.Stock {
		c.Stock[k] = v
	}
	c.Prices = make(map[string]float64, len(f.Prices))
	for k, v := range f.Prices {
		c.Prices[k] = v
	}
	return c
}

// -----------------------------------------------------------------------------
// Trade
// -----------------------------------------------------------------------------

// TradeOffer is a standing sell offer. Created on seller action, removed on
// fulfillment or cancellation.
type TradeOffer struct {
	ID        uuid.UUID `json:"id"`
	Seller    string    `json:"seller"` // faction ID
	Resource  string    `json:"resource"`
	Quantity  float64   `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// Trade is the immutable record of a completed settlement between two
// factions. Append-only; recent trades are kept in a bounded ring.
type Trade struct {
	ID         uuid.UUID `json:"id"`
	Seller     string    `json:"seller"`
	Buyer      string    `json:"buyer"`
	Resource   string    `json:"resource"`
	Quantity   float64   `json:"quantity"`
	UnitPrice  float64   `json:"unit_price"`
	Currency   string    `json:"currency"`
	TotalCost  float64   `json:"total_cost"` // gross + fee + anti-monopoly tax
	Tax        float64   `json:"tax"`
	Tick       uint64    `json:"tick"`
	ExecutedAt time.Time `json:"executed_at"`
}

// -----------------------------------------------------------------------------
// Exchange rates
// -----------------------------------------------------------------------------

// ExchangeRateBatch is a point-in-time snapshot of all currency rates against
// the base currency. The base currency is always present at exactly 1.0.
type ExchangeRateBatch struct {
	BaseCurrency string             `json:"base_currency"`
	Rates        map[string]float64 `json:"rates"`
	Changed      bool               `json:"changed"` // any rate moved by more than 0.0001
	ComputedAt   time.Time          `json:"computed_at"`
}

// -----------------------------------------------------------------------------
// Snapshot
// -----------------------------------------------------------------------------

// WorldSnapshot carries everything a freshly connected observer needs to
// render a consistent view without further requests.
type WorldSnapshot struct {
	Tick         uint64            `json:"tick"`
	SimTime      time.Time         `json:"sim_time"`
	Factions     []Faction         `json:"factions"`
	Rates        ExchangeRateBatch `json:"rates"`
	RecentTrades []Trade           `json:"recent_trades"`
	OpenOffers   []TradeOffer      `json:"open_offers"`
}
