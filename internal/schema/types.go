package schema

// PriceScale is the implied decimal scale for Price and Quantity values.
// A Price of 1_000_000 represents 1.0. All money math in the pipeline is
// integer math at this scale; floating point never touches a price.
const PriceScale = 1_000_000

// Price is an unsigned fixed-point price scaled by PriceScale.
type Price uint64

// Quantity is an unsigned fixed-point quantity scaled by PriceScale.
type Quantity uint64

// Notional is a fixed-point value (price × quantity / PriceScale).
type Notional uint64

// SymbolID identifies a tradable instrument within a session.
type SymbolID uint32

// QueueID identifies one hardware receive/transmit queue.
type QueueID uint16

// Side describes trade or order direction.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// MsgType describes the meaning of a market data record.
type MsgType uint8

const (
	MsgUnknown MsgType = iota
	MsgTrade
	MsgQuote
	MsgOrderNew
	MsgOrderCancel
)

// OrderType describes order type.
type OrderType uint8

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

// MulNotional computes price × qty at PriceScale. The second result is
// false when the multiplication would overflow.
func MulNotional(price Price, qty Quantity) (Notional, bool) {
	if price == 0 || qty == 0 {
		return 0, true
	}
	const maxUint64 = ^uint64(0)
	p := uint64(price)
	q := uint64(qty)
	if p > maxUint64/q {
		return 0, false
	}
	return Notional(p * q / PriceScale), true
}
