package risk

import (
	"testing"

	"main/internal/schema"
)

func TestPortfolioRiskAggregates(t *testing.T) {
	e := newTestEngine(t, Limits{VolatilityPct: 10})
	mustFill(t, e, 1, schema.SideBuy, units(10), units(100)) // 1000
	mustFill(t, e, 2, schema.SideBuy, units(100), units(30)) // 3000
	mustFill(t, e, 3, schema.SideSell, units(50), units(10)) // 500 short

	r := e.CheckPortfolioRisk()
	if r.TotalExposure != schema.Notional(units(4500)) {
		t.Fatalf("total exposure: got %d want %d", r.TotalExposure, units(4500))
	}
	if r.VaREstimate != schema.Notional(units(450)) {
		t.Fatalf("var estimate: got %d want %d", r.VaREstimate, units(450))
	}
	if r.TopSymbol != 2 {
		t.Fatalf("top symbol: %d", r.TopSymbol)
	}
	// 3000 of 4500 is 66.66%.
	if r.ConcentrationBps != 6666 {
		t.Fatalf("concentration: got %d bps want 6666", r.ConcentrationBps)
	}
	if r.Breaches != 0 {
		t.Fatalf("unlimited portfolio breached: %b", r.Breaches)
	}
}

func TestPortfolioBreaches(t *testing.T) {
	e := newTestEngine(t, Limits{
		MaxPortfolioValue: schema.Notional(units(4000)),
		MaxConcentration:  60,
	})
	mustFill(t, e, 1, schema.SideBuy, units(10), units(100))
	mustFill(t, e, 2, schema.SideBuy, units(100), units(30))
	mustFill(t, e, 3, schema.SideSell, units(50), units(10))

	r := e.CheckPortfolioRisk()
	if !r.Breaches.Has(schema.RulePortfolioValue) {
		t.Fatalf("portfolio value breach missed: %b", r.Breaches)
	}
	if !r.Breaches.Has(schema.RuleConcentration) {
		t.Fatalf("concentration breach missed: %b", r.Breaches)
	}
}

func TestPortfolioVaRBreach(t *testing.T) {
	e := newTestEngine(t, Limits{
		MaxPortfolioValue: schema.Notional(units(5000)),
		VolatilityPct:     10,
		MaxVaRPct:         5,
	})
	mustFill(t, e, 1, schema.SideBuy, units(10), units(100))
	mustFill(t, e, 2, schema.SideBuy, units(100), units(30))
	mustFill(t, e, 3, schema.SideSell, units(50), units(10))

	// VaR 450 against a 250 allowance (5% of 5000); exposure itself fits.
	r := e.CheckPortfolioRisk()
	if !r.Breaches.Has(schema.RuleVaRLimit) {
		t.Fatalf("VaR breach missed: %b", r.Breaches)
	}
	if r.Breaches.Has(schema.RulePortfolioValue) {
		t.Fatalf("portfolio value breached within limit: %b", r.Breaches)
	}
}

func TestPortfolioFlatBookIsQuiet(t *testing.T) {
	e := newTestEngine(t, Limits{MaxPortfolioValue: schema.Notional(units(1))})
	mustFill(t, e, 1, schema.SideBuy, units(10), units(100))
	mustFill(t, e, 1, schema.SideSell, units(10), units(100))

	r := e.CheckPortfolioRisk()
	if r.TotalExposure != 0 || r.Breaches != 0 || r.ConcentrationBps != 0 {
		t.Fatalf("flat book: %+v", r)
	}
}

func mustFill(t *testing.T, e *Engine, sym schema.SymbolID, side schema.Side, price, qty uint64) {
	t.Helper()
	if err := e.UpdatePosition(sym, side, schema.Price(price), schema.Quantity(qty)); err != nil {
		t.Fatalf("fill symbol %d: %v", sym, err)
	}
}
