// Package risk implements the pre-trade risk engine: per-symbol position
// accounting, order checks against configured limits, and portfolio-level
// exposure reporting. The engine is single-writer per instance; see Engine.
package risk

import (
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Limits is one immutable set of risk limits. A zero value for any limit
// disables that check. Swapped atomically via Engine.ReplaceLimits, so a
// reload never tears a half-old, half-new limit set.
type Limits struct {
	MaxPositionValue  schema.Notional // absolute notional per symbol
	MaxOrderValue     schema.Notional // notional of a single order
	MaxDailyVolume    schema.Quantity // traded quantity per symbol per day
	MaxOrdersPerSec   uint32          // evaluated orders per symbol per second
	MaxCancelRatioPct uint32          // cancels per evaluated order in the rate window, percent
	MaxPortfolioValue schema.Notional // summed absolute exposure
	MaxVaRPct         uint32          // VaR estimate as a share of MaxPortfolioValue, percent
	MaxConcentration  uint32          // largest single-symbol share, percent
	VolatilityPct     uint32          // flat assumed volatility for VaR
	MarginPct         uint32          // flat margin requirement on order value
	SoftWarnings      bool            // emit Warning above 90% of a limit
	Version           uint32
}

// Validate rejects limit sets that cannot be evaluated.
func (l Limits) Validate() error {
	if l.VolatilityPct > 100 {
		return errors.Errorf("volatility %d%% out of range", l.VolatilityPct)
	}
	if l.MarginPct > 100 {
		return errors.Errorf("margin %d%% out of range", l.MarginPct)
	}
	if l.MaxConcentration > 100 {
		return errors.Errorf("concentration %d%% out of range", l.MaxConcentration)
	}
	if l.MaxVaRPct > 100 {
		return errors.Errorf("VaR limit %d%% out of range", l.MaxVaRPct)
	}
	if l.MaxCancelRatioPct > 100 {
		return errors.Errorf("cancel ratio %d%% out of range", l.MaxCancelRatioPct)
	}
	return nil
}

// warnThreshold returns the value above which a passing check should
// carry a warning: 90% of the limit, computed without overflow.
func warnThreshold(limit uint64) uint64 {
	return limit - limit/10
}
