package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"factionsim/internal/model"
)

// Postgres implements Store on a pgx pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// EnsureSchema creates the tables if they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS factions (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	currency_code         TEXT NOT NULL,
	gdp                   DOUBLE PRECISION NOT NULL,
	population            DOUBLE PRECISION NOT NULL,
	prosperity_index      DOUBLE PRECISION NOT NULL,
	treasury              DOUBLE PRECISION NOT NULL,
	export_revenue        DOUBLE PRECISION NOT NULL,
	import_cost           DOUBLE PRECISION NOT NULL,
	currency_volatility   DOUBLE PRECISION NOT NULL,
	base_exchange_rate    DOUBLE PRECISION NOT NULL,
	current_exchange_rate DOUBLE PRECISION NOT NULL,
	money_supply          DOUBLE PRECISION NOT NULL,
	stock                 JSONB NOT NULL DEFAULT '{}',
	prices                JSONB NOT NULL DEFAULT '{}',
	updated_at            TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_offers (
	id         UUID PRIMARY KEY,
	seller     TEXT NOT NULL REFERENCES factions(id),
	resource   TEXT NOT NULL,
	quantity   DOUBLE PRECISION NOT NULL,
	unit_price DOUBLE PRECISION NOT NULL,
	currency   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id          UUID PRIMARY KEY,
	seller      TEXT NOT NULL,
	buyer       TEXT NOT NULL,
	resource    TEXT NOT NULL,
	quantity    DOUBLE PRECISION NOT NULL,
	unit_price  DOUBLE PRECISION NOT NULL,
	currency    TEXT NOT NULL,
	total_cost  DOUBLE PRECISION NOT NULL,
	tax         DOUBLE PRECISION NOT NULL,
	tick        BIGINT NOT NULL,
	executed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_executed_at_idx ON trades (executed_at DESC);`

	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadFactions reads the full faction table.
func (p *Postgres) LoadFactions(ctx context.Context) ([]model.Faction, error) {
	const q = `
SELECT id, name, currency_code, gdp, population, prosperity_index, treasury,
       export_revenue, import_cost, currency_volatility,
       base_exchange_rate, current_exchange_rate, money_supply,
       stock, prices, updated_at
FROM factions ORDER BY id`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query factions: %w", err)
	}
	defer rows.Close()

	var out []model.Faction
	for rows.Next() {
		var f model.Faction
		var stock, prices []byte
		if err := rows.Scan(
			&f.ID, &f.Name, &f.CurrencyCode, &f.GDP, &f.Population,
			&f.ProsperityIndex, &f.Treasury, &f.ExportRevenue, &f.ImportCost,
			&f.CurrencyVolatility, &f.BaseExchangeRate, &f.CurrentExchangeRate,
			&f.MoneySupply, &stock, &prices, &f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan faction: %w", err)
		}
		if f.Stock, err = decodeMap(stock); err != nil {
			return nil, fmt.Errorf("decode stock for %s: %w", f.ID, err)
		}
		if f.Prices, err = decodeMap(prices); err != nil {
			return nil, fmt.Errorf("decode prices for %s: %w", f.ID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SaveFaction upserts one faction record.
func (p *Postgres) SaveFaction(ctx context.Context, f model.Faction) error {
	const q = `
INSERT INTO factions (
	id, name, currency_code, gdp, population, prosperity_index, treasury,
	export_revenue, import_cost, currency_volatility,
	base_exchange_rate, current_exchange_rate, money_supply,
	stock, prices, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	currency_code = EXCLUDED.currency_code,
	gdp = EXCLUDED.gdp,
	population = EXCLUDED.population,
	prosperity_index = EXCLUDED.prosperity_index,
	treasury = EXCLUDED.treasury,
	export_revenue = EXCLUDED.export_revenue,
	import_cost = EXCLUDED.import_cost,
	currency_volatility = EXCLUDED.currency_volatility,
	base_exchange_rate = EXCLUDED.base_exchange_rate,
	current_exchange_rate = EXCLUDED.current_exchange_rate,
	money_supply = EXCLUDED.money_supply,
	stock = EXCLUDED.stock,
	prices = EXCLUDED.prices,
	updated_at = EXCLUDED.updated_at`

	stock, err := encodeMap(f.Stock)
	if err != nil {
		return fmt.Errorf("encode stock: %w", err)
	}
	prices, err := encodeMap(f.Prices)
	if err != nil {
		return fmt.Errorf("encode prices: %w", err)
	}

	_, err = p.pool.Exec(ctx, q,
		f.ID, f.Name, f.CurrencyCode, f.GDP, f.Population, f.ProsperityIndex,
		f.Treasury, f.ExportRevenue, f.ImportCost, f.CurrencyVolatility,
		f.BaseExchangeRate, f.CurrentExchangeRate, f.MoneySupply,
		stock, prices, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save faction %s: %w", f.ID, err)
	}
	return nil
}

// LoadOpenOffers reads all standing offers.
func (p *Postgres) LoadOpenOffers(ctx context.Context) ([]model.TradeOffer, error) {
	const q = `
SELECT id, seller, resource, quantity, unit_price, currency, created_at
FROM trade_offers ORDER BY created_at`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	var out []model.TradeOffer
	for rows.Next() {
		var o model.TradeOffer
		if err := rows.Scan(&o.ID, &o.Seller, &o.Resource, &o.Quantity,
			&o.UnitPrice, &o.Currency, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SaveOffer inserts a standing offer.
func (p *Postgres) SaveOffer(ctx context.Context, o model.TradeOffer) error {
	const q = `
INSERT INTO trade_offers (id, seller, resource, quantity, unit_price, currency, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING`

	if _, err := p.pool.Exec(ctx, q, o.ID, o.Seller, o.Resource,
		o.Quantity, o.UnitPrice, o.Currency, o.CreatedAt); err != nil {
		return fmt.Errorf("save offer %s: %w", o.ID, err)
	}
	return nil
}

// DeleteOffer removes an offer on fulfillment or cancellation.
func (p *Postgres) DeleteOffer(ctx context.Context, id uuid.UUID) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM trade_offers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete offer %s: %w", id, err)
	}
	return nil
}

// SaveTrade appends one settlement to the trade log.
func (p *Postgres) SaveTrade(ctx context.Context, t model.Trade) error {
	const q = `
INSERT INTO trades (id, seller, buyer, resource, quantity, unit_price,
	currency, total_cost, tax, tick, executed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	if _, err := p.pool.Exec(ctx, q, t.ID, t.Seller, t.Buyer, t.Resource,
		t.Quantity, t.UnitPrice, t.Currency, t.TotalCost, t.Tax, t.Tick,
		t.ExecutedAt); err != nil {
		return fmt.Errorf("save trade %s: %w", t.ID, err)
	}
	return nil
}

func encodeMap(m map[string]float64) ([]byte, error) {
	if m == nil {
		m = map[string]float64{}
	}
	return json.Marshal(m)
}

func decodeMap(data []byte) (map[string]float64, error) {
	if len(data) == 0 {
		return map[string]float64{}, nil
	}
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
