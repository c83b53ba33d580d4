package risk

import "main/internal/schema"

// PortfolioRisk is one portfolio-level report: total absolute exposure
// marked at last traded prices, a flat-volatility VaR estimate, and the
// largest single-symbol concentration in basis points.
type PortfolioRisk struct {
	TotalExposure    schema.Notional
	VaREstimate      schema.Notional
	ConcentrationBps uint32
	TopSymbol        schema.SymbolID
	Breaches         schema.RuleMask
}

// CheckPortfolioRisk sweeps every active position and reports aggregate
// exposure. It runs off the hot path, on the engine owner's thread. The
// VaR model is deliberately crude: exposure times the configured flat
// volatility. Breaches carry RulePortfolioValue, RuleConcentration, and
// RuleVaRLimit bits when the corresponding limits are configured and
// exceeded.
func (e *Engine) CheckPortfolioRisk() PortfolioRisk {
	lim := e.limits.Load()

	var r PortfolioRisk
	var top uint64
	for i := range e.table {
		p := &e.table[i]
		if !p.active {
			continue
		}
		exp, ok := schema.MulNotional(p.LastPrice, schema.Quantity(abs64(p.NetQty())))
		if !ok {
			continue
		}
		r.TotalExposure += exp
		if uint64(exp) > top {
			top = uint64(exp)
			r.TopSymbol = p.SymbolID
		}
	}

	r.VaREstimate = schema.Notional(uint64(r.TotalExposure) * uint64(lim.VolatilityPct) / 100)
	if r.TotalExposure > 0 {
		r.ConcentrationBps = uint32(mulDiv(top, 10_000, uint64(r.TotalExposure)))
	}

	if lim.MaxPortfolioValue > 0 && r.TotalExposure > lim.MaxPortfolioValue {
		r.Breaches |= schema.RulePortfolioValue
	}
	if lim.MaxConcentration > 0 && r.ConcentrationBps > lim.MaxConcentration*100 {
		r.Breaches |= schema.RuleConcentration
	}
	if lim.MaxVaRPct > 0 && lim.MaxPortfolioValue > 0 &&
		uint64(r.VaREstimate)*100 > uint64(lim.MaxPortfolioValue)*uint64(lim.MaxVaRPct) {
		r.Breaches |= schema.RuleVaRLimit
	}
	return r
}
