package econ

import "math"

// Tunable constants. These are damping/shape parameters, not derived values.
const (
	// CPI formation.
	cpiBase            = 80.0
	cpiProsperityScale = 0.4
	cpiTradeWeight     = 0.05
	cpiSmoothing       = 0.9 // weight of the previous CPI in the rolling average

	// Demand factor shape.
	demandTradeScale = 0.1
	demandMin        = 0.8
	demandMax        = 1.2

	// Money supply floor.
	gdpFloor = 1000.0

	// DefaultReversionStrength is the per-tick fraction by which a rate is
	// pulled back toward its configured base.
	DefaultReversionStrength = 0.005

	// Exchange rates are clamped to [base*RateMinMult, base*RateMaxMult].
	RateMinMult = 0.5
	RateMaxMult = 2.0

	// Resource price bounds relative to the configured base price.
	priceMinMult = 0.5
	priceMaxMult = 2.0
)

// WorldCPI returns the smoothed CPI proxy for a faction.
//
// baseCPI ranges ~80-120 by construction (prosperity is 0-100). The trade
// balance nudges it by at most ±5%. The result is an exponential smoothing of
// prevCPI and tradeCPI with weights 0.9/0.1, which damps single-tick shocks.
// A non-positive prevCPI seeds the series with tradeCPI, so the first call
// never jumps from an arbitrary seed and prev==tradeCPI is a fixed point.
func WorldCPI(prevCPI, prosperity, exportRev, importCost float64) float64 {
	prosperity = clamp(prosperity, 0, 100)
	baseCPI := cpiBase + prosperity*cpiProsperityScale
	tb := tradeBalance(exportRev, importCost)
	tradeCPI := baseCPI * (1 + tb*cpiTradeWeight)

	if prevCPI <= 0 {
		return tradeCPI
	}
	return prevCPI*cpiSmoothing + tradeCPI*(1-cpiSmoothing)
}

// PPPRate returns the purchasing-power-parity exchange rate implied by the
// two price levels, with the demand adjustment amplified by the faction's
// currency volatility. The result is unclamped and unrounded: rescaling by
// the configured base rate, mean reversion, clamping, and rounding are policy
// decisions that belong to the caller.
func PPPRate(localCPI, baseCPI, demand, volatility float64) float64 {
	ratio := localCPI / math.Max(baseCPI, 1)
	if volatility < 0 {
		volatility = 0
	}
	return ratio * (1 + (demand-1)*(1+volatility))
}

// MeanReversion pulls current toward base by a fixed fraction.
func MeanReversion(current, base, strength float64) float64 {
	return current - (current-base)*strength
}

// MoneySupply derives a faction's money supply from GDP and its trade flow.
func MoneySupply(exportRev, importCost, gdp float64) float64 {
	return math.Max(gdp, gdpFloor) + (exportRev - importCost)
}

// Inflation returns the beta-weighted relative change in money supply.
// A zero previous supply yields zero (no history, no inflation signal).
func Inflation(current, previous, beta float64) float64 {
	if previous == 0 {
		return 0
	}
	return beta * (current - previous) / previous
}

// DemandFactor is a trade-balance-driven multiplier around 1.0. Strong
// exports raise currency demand (factor > 1); the result is clamped to
// [0.8, 1.2] so trade extremes cannot blow up the rate computation.
func DemandFactor(exportRev, importCost float64) float64 {
	return clamp(1+tradeBalance(exportRev, importCost)*demandTradeScale, demandMin, demandMax)
}

// ResourcePrice forms a market price from a resource's base price, the
// current stockpile, and tick demand. Scarcity raises the price, saturation
// lowers it; output is bounded to [0.5x, 2x] of the base price.
func ResourcePrice(basePrice, stock, demand float64) float64 {
	if basePrice <= 0 {
		return 0
	}
	pressure := (demand - stock) / math.Max(demand+stock, 1)
	return clamp(basePrice*(1+pressure), basePrice*priceMinMult, basePrice*priceMaxMult)
}

// ClampRate bounds a rate to [base*RateMinMult, base*RateMaxMult].
func ClampRate(rate, base float64) float64 {
	return clamp(rate, base*RateMinMult, base*RateMaxMult)
}

// Round4 rounds to 4 decimal places. Rates are rounded exactly once, at the
// output boundary, to avoid compounding rounding error across ticks.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// tradeBalance is the normalized export/import skew in [-1, 1].
func tradeBalance(exportRev, importCost float64) float64 {
	return (exportRev - importCost) / math.Max(exportRev+importCost, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
