package econ

// Quote is one faction's current ask for a resource, together with the
// seller's market share (which drives the anti-monopoly tax on the buy leg).
type Quote struct {
	FactionID string
	Price     float64
	Share     float64
}

// Opportunity describes the best cross-faction price spread for a resource,
// net of transaction cost and tax.
type Opportunity struct {
	Resource string
	BuyFrom  string
	SellTo   string
	Quantity float64
	Cost     float64 // total cost of the buy leg
	Profit   float64 // sell-leg revenue minus Cost
}

// HasArbitrage reports whether any profitable spread exists for the resource.
func HasArbitrage(resource string, quotes []Quote, quantity float64) bool {
	_, ok := BestArbitrage(resource, quotes, quantity)
	return ok
}

// BestArbitrage compares every buy/sell pairing of the given quotes and
// returns the most profitable one, or ok=false when no pairing nets a
// positive profit. Pure comparison: no mutation, no side effects.
//
// Ties are broken by lowest total cost, then by smallest buy-side faction ID,
// then by smallest sell-side faction ID, so the result is stable regardless
// of input order.
func BestArbitrage(resource string, quotes []Quote, quantity float64) (Opportunity, bool) {
	if quantity <= 0 || len(quotes) < 2 {
		return Opportunity{}, false
	}

	var best Opportunity
	found := false

	for _, buy := range quotes {
		cost := TradeCost(quantity, buy.Price, buy.Share)
		for _, sell := range quotes {
			if sell.FactionID == buy.FactionID {
				continue
			}
			profit := quantity*sell.Price - cost
			if profit <= 0 {
				continue
			}
			cand := Opportunity{
				Resource: resource,
				BuyFrom:  buy.FactionID,
				SellTo:   sell.FactionID,
				Quantity: quantity,
				Cost:     cost,
				Profit:   profit,
			}
			if !found || better(cand, best) {
				best = cand
				found = true
			}
		}
	}

	return best, found
}

// better reports whether a should be preferred over b.
func better(a, b Opportunity) bool {
	if a.Profit != b.Profit {
		return a.Profit > b.Profit
	}
	if a.Cost != b.Cost {
		return a.Cost < b.Cost
	}
	if a.BuyFrom != b.BuyFrom {
		return a.BuyFrom < b.BuyFrom
	}
	return a.SellTo < b.SellTo
}
