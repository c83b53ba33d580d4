package risk

import (
	"math/bits"

	"main/internal/schema"
)

// Position is the per-symbol book: separate long and short sides with
// cost-basis accounting, plus the rolling counters the order checks need.
// Cost is total open notional, so average price is derived and fills do
// not accumulate rounding drift.
type Position struct {
	SymbolID schema.SymbolID

	LongQty   schema.Quantity
	LongCost  schema.Notional
	ShortQty  schema.Quantity
	ShortCost schema.Notional

	RealizedPnL int64
	LastPrice   schema.Price

	DailyVolume schema.Quantity
	volumeDay   int64

	windowStart   int64
	windowCount   uint32
	windowCancels uint32

	LastUpdateNanos int64
	active          bool
}

// NetQty is the signed net quantity, long minus short.
func (p *Position) NetQty() int64 {
	return int64(p.LongQty) - int64(p.ShortQty)
}

// LongAvgPrice is the volume-weighted average open price of the long side.
func (p *Position) LongAvgPrice() schema.Price {
	return avgPrice(p.LongCost, p.LongQty)
}

// ShortAvgPrice is the volume-weighted average open price of the short side.
func (p *Position) ShortAvgPrice() schema.Price {
	return avgPrice(p.ShortCost, p.ShortQty)
}

// UnrealizedPnL marks both sides against the given price.
func (p *Position) UnrealizedPnL(mark schema.Price) int64 {
	var pnl int64
	if p.LongQty > 0 {
		v, _ := schema.MulNotional(mark, p.LongQty)
		pnl += int64(v) - int64(p.LongCost)
	}
	if p.ShortQty > 0 {
		v, _ := schema.MulNotional(mark, p.ShortQty)
		pnl += int64(p.ShortCost) - int64(v)
	}
	return pnl
}

// fill applies one executed trade. A buy closes short exposure first and
// opens long with the remainder; a sell mirrors that. Closing a side
// realizes PnL against its proportional cost basis.
func (p *Position) fill(side schema.Side, price schema.Price, qty schema.Quantity) {
	switch side {
	case schema.SideBuy:
		close := qty
		if close > p.ShortQty {
			close = p.ShortQty
		}
		if close > 0 {
			removed := proportionalCost(p.ShortCost, close, p.ShortQty)
			paid, _ := schema.MulNotional(price, close)
			p.RealizedPnL += int64(removed) - int64(paid)
			p.ShortCost -= removed
			p.ShortQty -= close
			qty -= close
		}
		if qty > 0 {
			opened, _ := schema.MulNotional(price, qty)
			p.LongCost += opened
			p.LongQty += qty
		}
	case schema.SideSell:
		close := qty
		if close > p.LongQty {
			close = p.LongQty
		}
		if close > 0 {
			removed := proportionalCost(p.LongCost, close, p.LongQty)
			received, _ := schema.MulNotional(price, close)
			p.RealizedPnL += int64(received) - int64(removed)
			p.LongCost -= removed
			p.LongQty -= close
			qty -= close
		}
		if qty > 0 {
			opened, _ := schema.MulNotional(price, qty)
			p.ShortCost += opened
			p.ShortQty += qty
		}
	}
	p.LastPrice = price
}

// avgPrice computes cost × PriceScale / qty with a 128-bit intermediate.
func avgPrice(cost schema.Notional, qty schema.Quantity) schema.Price {
	if qty == 0 {
		return 0
	}
	return schema.Price(mulDiv(uint64(cost), schema.PriceScale, uint64(qty)))
}

// proportionalCost returns cost × part / total, the cost basis attributed
// to closing part of a position.
func proportionalCost(cost schema.Notional, part, total schema.Quantity) schema.Notional {
	if total == 0 {
		return 0
	}
	return schema.Notional(mulDiv(uint64(cost), uint64(part), uint64(total)))
}

func mulDiv(a, b, div uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= div {
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, div)
	return q
}
