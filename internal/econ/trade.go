package econ

import "math"

const (
	// Flat transaction fee applied to every settlement.
	transactionFeeRate = 0.02

	// Anti-monopoly tax: kicks in above 30% market share and scales
	// linearly up to 15% of trade value at 100% share.
	monopolyShareThreshold = 0.3
	monopolyTaxCeiling     = 0.15

	// Fraction of settled trade value that feeds back into GDP.
	gdpTradeMultiplier = 0.1

	// Share of the net trade flow that accrues to the treasury each tick.
	treasuryAccrualRate = 0.01

	// Maximum per-tick prosperity movement from the trade balance, in
	// index points.
	prosperityDriftScale = 0.1
)

// MarketShare returns a faction's share of total traded volume in [0, 1].
func MarketShare(volume, totalVolume float64) float64 {
	if totalVolume <= 0 || volume <= 0 {
		return 0
	}
	return clamp(volume/totalVolume, 0, 1)
}

// AntiMonopolyTax returns the tax levied on a trade of the given gross value
// when the seller holds the given market share. Zero below the threshold.
func AntiMonopolyTax(share, value float64) float64 {
	share = clamp(share, 0, 1)
	if share <= monopolyShareThreshold || value <= 0 {
		return 0
	}
	rate := monopolyTaxCeiling * (share - monopolyShareThreshold) / (1 - monopolyShareThreshold)
	return value * rate
}

// TradeCost returns the total cost of buying quantity units at unitPrice
// from a seller holding sellerShare of the market: gross value plus the
// transaction fee plus any anti-monopoly tax.
func TradeCost(quantity, unitPrice, sellerShare float64) float64 {
	gross := math.Max(quantity, 0) * math.Max(unitPrice, 0)
	return gross + gross*transactionFeeRate + AntiMonopolyTax(sellerShare, gross)
}

// TradeBalanceAfter applies a settled trade of the given value to one side's
// trade flow and returns the new (exportRevenue, importCost) pair.
func TradeBalanceAfter(exportRev, importCost, value float64, isExport bool) (float64, float64) {
	if value < 0 {
		value = 0
	}
	if isExport {
		return exportRev + value, importCost
	}
	return exportRev, importCost + value
}

// GDPImpact returns the new GDP after a settled trade of the given value.
func GDPImpact(gdp, tradeValue float64) float64 {
	if tradeValue < 0 {
		tradeValue = 0
	}
	return gdp + tradeValue*gdpTradeMultiplier
}

// TreasuryAccrual returns the new treasury after one tick of net trade flow.
func TreasuryAccrual(treasury, exportRev, importCost float64) float64 {
	return treasury + (exportRev-importCost)*treasuryAccrualRate
}

// ProsperityDrift returns the new prosperity index after one tick: the
// normalized trade balance moves it by at most prosperityDriftScale points,
// clamped to [0, 100].
func ProsperityDrift(prosperity, exportRev, importCost float64) float64 {
	total := exportRev + importCost
	if total < 1 {
		total = 1
	}
	return clamp(prosperity+(exportRev-importCost)/total*prosperityDriftScale, 0, 100)
}
