package risk

import (
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/obs"
	"main/internal/schema"
)

const (
	nanosPerSecond = int64(time.Second)
	nanosPerDay    = 24 * 60 * 60 * nanosPerSecond
)

// Config sizes and wires one engine instance.
type Config struct {
	// MaxSymbols bounds the position table. Symbols beyond the bound are
	// rejected fail-closed, never silently admitted.
	MaxSymbols int
	// Accelerator, when set, evaluates batches; the engine falls back to
	// its own loop on any accelerator error.
	Accelerator Accelerator
	Metrics     *obs.Metrics
	Limits      Limits
}

// Engine evaluates orders against positions and limits. One engine is
// owned by exactly one worker thread: the position table is unlocked by
// contract, and only ReplaceLimits/Limits are safe to call from other
// goroutines. Decisions are deterministic for a fixed table and limit
// set.
type Engine struct {
	limits  atomic.Pointer[Limits]
	table   []Position
	accel   Accelerator
	metrics *obs.Metrics

	// batch staging, reused across CheckBatchRisk calls
	batch    BatchInput
	verdicts []BatchVerdict
	slots    []*Position

	now func() int64
}

// NewEngine builds an engine with an empty position table.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.MaxSymbols <= 0 {
		return nil, errors.New("risk: max symbols must be positive")
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, errors.Wrap(err, "risk limits")
	}
	e := &Engine{
		table:   make([]Position, cfg.MaxSymbols+1),
		accel:   cfg.Accelerator,
		metrics: cfg.Metrics,
		now:     func() int64 { return time.Now().UnixNano() },
	}
	lim := cfg.Limits
	e.limits.Store(&lim)
	return e, nil
}

// ReplaceLimits swaps in a new limit set. Safe to call concurrently with
// order checks; in-flight evaluations finish on the set they started with.
func (e *Engine) ReplaceLimits(lim Limits) error {
	if err := lim.Validate(); err != nil {
		return errors.Wrap(err, "risk limits")
	}
	e.limits.Store(&lim)
	return nil
}

// Limits returns the active limit set.
func (e *Engine) Limits() Limits {
	return *e.limits.Load()
}

// slot returns the position for a symbol, lazily activating it. The
// second result is false when the symbol falls outside the table.
func (e *Engine) slot(symbol schema.SymbolID) (*Position, bool) {
	idx := int(symbol)
	if idx <= 0 || idx >= len(e.table) {
		return nil, false
	}
	p := &e.table[idx]
	if !p.active {
		p.SymbolID = symbol
		p.active = true
	}
	return p, true
}

// Position returns a copy of the symbol's position, or false if the
// symbol has never been touched.
func (e *Engine) Position(symbol schema.SymbolID) (Position, bool) {
	idx := int(symbol)
	if idx <= 0 || idx >= len(e.table) || !e.table[idx].active {
		return Position{}, false
	}
	return e.table[idx], true
}

// Positions copies every active position, for journaling and reports.
func (e *Engine) Positions() []Position {
	out := make([]Position, 0, 16)
	for i := range e.table {
		if e.table[i].active {
			out = append(out, e.table[i])
		}
	}
	return out
}

// CheckOrderRisk evaluates one order against the active limits. Every
// configured rule is checked; the decision carries the union of all
// violations, and processing time is recorded on every outcome. Daily
// volume headroom is consumed only by orders that pass.
func (e *Engine) CheckOrderRisk(order *schema.OrderEvent) schema.RiskDecision {
	t0 := time.Now()
	lim := e.limits.Load()
	now := e.now()

	d := schema.RiskDecision{
		TimestampNanos: now,
		OrderID:        order.OrderID,
		SymbolID:       order.SymbolID,
		Price:          order.Price,
		Qty:            order.Qty,
	}

	pos, ok := e.slot(order.SymbolID)
	if !ok {
		d.Status = schema.StatusFail
		d.Violations = schema.RulePositionTableFull
		e.finish(&d, t0)
		return d
	}

	in := e.prepare(pos, order, now)
	d.Status, d.Violations = ruleVerdict(lim, in)
	derive(&d, lim, in)
	if d.Status != schema.StatusFail {
		pos.DailyVolume = schema.Quantity(in.dailyAfter)
	}
	e.finish(&d, t0)
	return d
}

// stepInput is the prepared, rule-ready view of one order against its
// position. prepare mutates the position's rolling counters (rate
// window, daily reset); the rule math itself is pure.
type stepInput struct {
	orderValue uint64
	posValue   uint64
	curValue   uint64
	dailyAfter uint64
	rateCount  uint32
	cancelPct  uint32
	flags      uint8
}

const (
	flagOrderOverflow = 1 << iota
	flagPosOverflow
)

// rollWindow resets the rolling rate counters when their period lapses.
func rollWindow(pos *Position, now int64) {
	day := now / nanosPerDay
	if pos.volumeDay != day {
		pos.volumeDay = day
		pos.DailyVolume = 0
	}
	if now-pos.windowStart >= nanosPerSecond {
		pos.windowStart = now
		pos.windowCount = 0
		pos.windowCancels = 0
	}
}

func (e *Engine) prepare(pos *Position, order *schema.OrderEvent, now int64) stepInput {
	rollWindow(pos, now)
	// Every evaluated order counts against the rate window, rejections
	// included, so a rejected burst cannot be retried at full speed.
	pos.windowCount++

	var in stepInput
	in.rateCount = pos.windowCount
	in.cancelPct = pos.windowCancels * 100 / pos.windowCount
	in.dailyAfter = uint64(pos.DailyVolume) + uint64(order.Qty)

	ov, ok := schema.MulNotional(order.Price, order.Qty)
	in.orderValue = uint64(ov)
	if !ok {
		in.flags |= flagOrderOverflow
	}

	net := pos.NetQty()
	projected := net
	if order.Side == schema.SideSell {
		projected -= int64(order.Qty)
	} else {
		projected += int64(order.Qty)
	}
	pv, ok := schema.MulNotional(order.Price, schema.Quantity(abs64(projected)))
	in.posValue = uint64(pv)
	if !ok {
		in.flags |= flagPosOverflow
	}
	cv, ok := schema.MulNotional(order.Price, schema.Quantity(abs64(net)))
	if ok {
		in.curValue = uint64(cv)
	}
	return in
}

// derive fills the exposure, VaR, and margin fields from prepared
// inputs, on the same limit set the verdict was computed under.
func derive(d *schema.RiskDecision, lim *Limits, in stepInput) {
	if in.flags == 0 {
		d.ExposureDelta = int64(in.posValue) - int64(in.curValue)
	}
	d.VaRDelta = d.ExposureDelta * int64(lim.VolatilityPct) / 100
	d.MarginRequired = in.orderValue * uint64(lim.MarginPct) / 100
}

func (e *Engine) finish(d *schema.RiskDecision, t0 time.Time) {
	e.record(d, uint64(time.Since(t0)))
}

func (e *Engine) record(d *schema.RiskDecision, nanos uint64) {
	d.ProcessingNanos = nanos
	e.metrics.ObserveDecision(d.ProcessingNanos)
	switch d.Status {
	case schema.StatusPass:
		e.metrics.IncDecisionPassed()
	case schema.StatusWarning:
		e.metrics.IncDecisionWarned()
	default:
		e.metrics.IncDecisionFailed()
	}
}

// UpdatePosition applies one executed trade to the position book. Traded
// quantity is not re-added to the daily volume counter here; headroom was
// already consumed when the order passed its check.
func (e *Engine) UpdatePosition(symbol schema.SymbolID, side schema.Side, price schema.Price, qty schema.Quantity) error {
	pos, ok := e.slot(symbol)
	if !ok {
		return errors.Errorf("symbol %d outside position table", symbol)
	}
	if side != schema.SideBuy && side != schema.SideSell {
		return errors.Errorf("symbol %d: fill with unknown side %d", symbol, side)
	}
	pos.fill(side, price, qty)
	pos.LastUpdateNanos = e.now()
	return nil
}

// RecordCancel counts one order cancellation against the symbol's rate
// window, feeding the cancel-ratio rule on subsequent checks.
func (e *Engine) RecordCancel(symbol schema.SymbolID) error {
	pos, ok := e.slot(symbol)
	if !ok {
		return errors.Errorf("symbol %d outside position table", symbol)
	}
	rollWindow(pos, e.now())
	pos.windowCancels++
	return nil
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
