package schema

// PayloadPrefixSize is how many raw payload bytes a MarketDataEvent keeps
// for downstream consumers that want to inspect the original record.
const PayloadPrefixSize = 16

// HardwareTimestamp records the capture-time provenance of one frame.
// It is fully populated before the event leaves the ingestion worker;
// the cycle counter is monotonic per core.
type HardwareTimestamp struct {
	CycleCount   uint64 // CPU cycle counter at parse time
	DeviceNanos  uint64 // timestamp reported by the receive hardware
	ArrivalNanos int64  // software wall-clock arrival, UnixNano
	QueueID      QueueID
	WireBytes    uint32 // frame length on the wire
}

// MarketDataEvent is one parsed inbound quote or trade.
type MarketDataEvent struct {
	Timestamp HardwareTimestamp
	Seq       uint64
	SymbolID  SymbolID
	MsgType   MsgType
	Side      Side
	Price     Price
	Qty       Quantity
	Prefix    [PayloadPrefixSize]byte
}

// OrderEvent is one outbound order intent. It is immutable once
// constructed; OrderID is unique per session.
type OrderEvent struct {
	Timestamp     HardwareTimestamp
	OrderID       uint64
	ClientOrderID uint64
	SymbolID      SymbolID
	VenueID       uint16
	Side          Side
	OrderType     OrderType
	Price         Price
	Qty           Quantity
}

// DecisionStatus is the outcome of one risk evaluation.
type DecisionStatus uint8

const (
	StatusPass DecisionStatus = iota
	StatusFail
	StatusWarning
)

// RuleMask is a bitmask of violated (or near-violated) risk rules. A
// decision carries the union of every rule that failed, not just the
// first.
type RuleMask uint32

const (
	RulePositionLimit RuleMask = 1 << iota
	RuleOrderValue
	RuleDailyVolume
	RuleRateLimit
	RulePortfolioValue
	RuleConcentration
	RulePositionTableFull
	RuleCancelRatio
	RuleVaRLimit
)

// RiskDecision is the output of one risk evaluation. ProcessingNanos is
// recorded on every outcome, violations included.
type RiskDecision struct {
	TimestampNanos  int64
	OrderID         uint64
	SymbolID        SymbolID
	Price           Price
	Qty             Quantity
	Status          DecisionStatus
	Violations      RuleMask
	ProcessingNanos uint64
	ExposureDelta   int64 // signed notional change at PriceScale
	VaRDelta        int64
	MarginRequired  uint64
}

// Has reports whether the mask carries the given rule bit.
func (m RuleMask) Has(rule RuleMask) bool {
	return m&rule != 0
}

// Violated reports whether the decision carries the given rule bit.
func (d RiskDecision) Violated(rule RuleMask) bool {
	return d.Violations.Has(rule)
}
