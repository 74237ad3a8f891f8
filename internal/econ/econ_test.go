package econ

import (
	"math"
	"testing"
)

func TestWorldCPI_SeedsFromTradeCPI(t *testing.T) {
	// First call with no history must return tradeCPI unchanged, not a
	// smoothed jump from an arbitrary seed.
	got := WorldCPI(0, 100, 0, 0)
	want := 120.0 // 80 + 100*0.4, zero trade balance
	if got != want {
		t.Errorf("WorldCPI(seed) = %v, want %v", got, want)
	}
}

func TestWorldCPI_FixedPoint(t *testing.T) {
	tradeCPI := 120.0
	got := WorldCPI(tradeCPI, 100, 0, 0)
	if got != tradeCPI {
		t.Errorf("WorldCPI(prev=tradeCPI) = %v, want %v", got, tradeCPI)
	}
}

func TestWorldCPI_ConvergesToTradeCPI(t *testing.T) {
	// Prosperity 100, no trade: the series must converge to ~120.
	cpi := WorldCPI(0, 50, 0, 0) // start from a different regime
	for i := 0; i < 300; i++ {
		cpi = WorldCPI(cpi, 100, 0, 0)
	}
	if math.Abs(cpi-120) > 0.01 {
		t.Errorf("CPI after 300 ticks = %v, want ~120", cpi)
	}
}

func TestWorldCPI_TradeBalanceSkew(t *testing.T) {
	exporter := WorldCPI(0, 50, 1000, 0)
	importer := WorldCPI(0, 50, 0, 1000)
	neutral := WorldCPI(0, 50, 500, 500)

	if exporter <= neutral {
		t.Errorf("exporter CPI %v should exceed neutral %v", exporter, neutral)
	}
	if importer >= neutral {
		t.Errorf("importer CPI %v should be below neutral %v", importer, neutral)
	}
	// Max skew is ±5% of base CPI.
	base := 80 + 50*0.4
	if want := base * 1.05; exporter != want {
		t.Errorf("pure-exporter CPI = %v, want %v", exporter, want)
	}
}

func TestWorldCPI_ClampsProsperity(t *testing.T) {
	if got, want := WorldCPI(0, 1e9, 0, 0), 120.0; got != want {
		t.Errorf("WorldCPI(prosperity=1e9) = %v, want %v", got, want)
	}
	if got, want := WorldCPI(0, -50, 0, 0), 80.0; got != want {
		t.Errorf("WorldCPI(prosperity=-50) = %v, want %v", got, want)
	}
}

func TestPPPRate(t *testing.T) {
	// Equal price levels, neutral demand, no volatility: parity.
	if got := PPPRate(100, 100, 1, 0); got != 1 {
		t.Errorf("PPPRate(parity) = %v, want 1", got)
	}
	// Higher local price level weakens the currency proportionally.
	if got := PPPRate(120, 100, 1, 0); got != 1.2 {
		t.Errorf("PPPRate(120/100) = %v, want 1.2", got)
	}
	// Volatility amplifies the demand adjustment, never the ratio itself.
	calm := PPPRate(100, 100, 1.1, 0)
	wild := PPPRate(100, 100, 1.1, 1)
	if wild <= calm {
		t.Errorf("volatile rate %v should exceed calm rate %v", wild, calm)
	}
	// Division-by-zero guard on the base CPI.
	if got := PPPRate(50, 0, 1, 0); got != 50 {
		t.Errorf("PPPRate(baseCPI=0) = %v, want 50", got)
	}
}

func TestPPPRate_Deterministic(t *testing.T) {
	a := PPPRate(103.4, 99.1, 1.07, 0.3)
	b := PPPRate(103.4, 99.1, 1.07, 0.3)
	if a != b {
		t.Errorf("PPPRate not deterministic: %v != %v", a, b)
	}
}

func TestMeanReversion(t *testing.T) {
	got := MeanReversion(2.5, 2.0, 0.005)
	want := 2.5 - 0.5*0.005
	if got != want {
		t.Errorf("MeanReversion = %v, want %v", got, want)
	}
	// A value at base stays at base.
	if got := MeanReversion(2.0, 2.0, 0.005); got != 2.0 {
		t.Errorf("MeanReversion(at base) = %v, want 2.0", got)
	}
}

func TestMoneySupply_GDPFloor(t *testing.T) {
	if got, want := MoneySupply(500, 200, 0), 1300.0; got != want {
		t.Errorf("MoneySupply(gdp=0) = %v, want %v", got, want)
	}
	if got, want := MoneySupply(0, 0, 50000), 50000.0; got != want {
		t.Errorf("MoneySupply = %v, want %v", got, want)
	}
}

func TestInflation(t *testing.T) {
	if got := Inflation(1100, 1000, 0.5); got != 0.05 {
		t.Errorf("Inflation = %v, want 0.05", got)
	}
	// Zero history must not divide by zero.
	if got := Inflation(1100, 0, 0.5); got != 0 {
		t.Errorf("Inflation(prev=0) = %v, want 0", got)
	}
}

func TestDemandFactor(t *testing.T) {
	if got := DemandFactor(0, 0); got != 1 {
		t.Errorf("DemandFactor(no trade) = %v, want 1", got)
	}
	if got := DemandFactor(1000, 0); got != 1.1 {
		t.Errorf("DemandFactor(pure export) = %v, want 1.1", got)
	}
	if got := DemandFactor(0, 1000); got != 0.9 {
		t.Errorf("DemandFactor(pure import) = %v, want 0.9", got)
	}
}

func TestResourcePrice(t *testing.T) {
	base := 10.0
	scarce := ResourcePrice(base, 10, 1000)
	glut := ResourcePrice(base, 1000, 10)
	if scarce <= base {
		t.Errorf("scarce price %v should exceed base %v", scarce, base)
	}
	if glut >= base {
		t.Errorf("glut price %v should be below base %v", glut, base)
	}
	// Bounds hold even for extreme pressure.
	if got := ResourcePrice(base, 0, 1e12); got != base*2 {
		t.Errorf("price ceiling = %v, want %v", got, base*2)
	}
	if got := ResourcePrice(base, 1e12, 0); got != base*0.5 {
		t.Errorf("price floor = %v, want %v", got, base*0.5)
	}
}

func TestClampRate(t *testing.T) {
	base := 2.0
	if got := ClampRate(10, base); got != base*RateMaxMult {
		t.Errorf("ClampRate(high) = %v, want %v", got, base*RateMaxMult)
	}
	if got := ClampRate(0.1, base); got != base*RateMinMult {
		t.Errorf("ClampRate(low) = %v, want %v", got, base*RateMinMult)
	}
	if got := ClampRate(2.5, base); got != 2.5 {
		t.Errorf("ClampRate(in range) = %v, want 2.5", got)
	}
}

func TestRound4(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{1.23456, 1.2346},
		{1.23454, 1.2345},
		{2.0, 2.0},
		{0.00005, 0.0001},
	}
	for _, c := range cases {
		if got := Round4(c.in); got != c.want {
			t.Errorf("Round4(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestTreasuryAccrual(t *testing.T) {
	// Net exporters accrue 1% of the surplus; net importers bleed it.
	if got, want := TreasuryAccrual(1000, 500, 300), 1002.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("TreasuryAccrual(exporter) = %v, want %v", got, want)
	}
	if got, want := TreasuryAccrual(1000, 0, 500), 995.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("TreasuryAccrual(importer) = %v, want %v", got, want)
	}
	// Balanced trade leaves the treasury untouched.
	if got := TreasuryAccrual(1000, 400, 400); got != 1000 {
		t.Errorf("TreasuryAccrual(balanced) = %v, want 1000", got)
	}
}

func TestProsperityDrift(t *testing.T) {
	// A pure exporter gains the full per-tick movement; a pure importer
	// loses it.
	if got, want := ProsperityDrift(50, 1000, 0), 50.1; math.Abs(got-want) > 1e-9 {
		t.Errorf("ProsperityDrift(exporter) = %v, want %v", got, want)
	}
	if got, want := ProsperityDrift(50, 0, 1000), 49.9; math.Abs(got-want) > 1e-9 {
		t.Errorf("ProsperityDrift(importer) = %v, want %v", got, want)
	}
	if got := ProsperityDrift(50, 400, 400); got != 50 {
		t.Errorf("ProsperityDrift(balanced) = %v, want 50", got)
	}
	// Tiny volumes cannot swing the index by the full scale.
	if got, want := ProsperityDrift(50, 0.4, 0), 50.04; math.Abs(got-want) > 1e-9 {
		t.Errorf("ProsperityDrift(thin trade) = %v, want %v", got, want)
	}
	// Clamped at both ends.
	if got := ProsperityDrift(100, 1000, 0); got != 100 {
		t.Errorf("ProsperityDrift(at ceiling) = %v, want 100", got)
	}
	if got := ProsperityDrift(0, 0, 1000); got != 0 {
		t.Errorf("ProsperityDrift(at floor) = %v, want 0", got)
	}
}
