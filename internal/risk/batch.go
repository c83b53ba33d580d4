package risk

import (
	"time"

	"main/internal/schema"
)

const flagTableFull = 1 << 2

// BatchInput is the structure-of-arrays view of a prepared batch. The
// slices are parallel, one element per order, laid out contiguously so a
// co-processor (or an auto-vectorized loop) can evaluate them
// element-wise without touching the position table.
type BatchInput struct {
	OrderValue []uint64
	PosValue   []uint64
	DailyAfter []uint64
	RateCount  []uint32
	CancelPct  []uint32
	Flags      []uint8
}

// BatchVerdict is one element of a batch evaluation result.
type BatchVerdict struct {
	Status     schema.DecisionStatus
	Violations schema.RuleMask
}

// Accelerator evaluates a prepared batch against one limit set. An
// implementation must produce, for every element, exactly the verdict the
// engine's own rule math produces; the engine verifies nothing and trusts
// the result. Any error makes the engine fall back to its own loop for
// the whole batch.
type Accelerator interface {
	EvaluateBatch(in *BatchInput, lim Limits, out []BatchVerdict) error
}

func (b *BatchInput) reset(n int) {
	if cap(b.OrderValue) < n {
		b.OrderValue = make([]uint64, 0, n)
		b.PosValue = make([]uint64, 0, n)
		b.DailyAfter = make([]uint64, 0, n)
		b.RateCount = make([]uint32, 0, n)
		b.CancelPct = make([]uint32, 0, n)
		b.Flags = make([]uint8, 0, n)
	}
	b.OrderValue = b.OrderValue[:0]
	b.PosValue = b.PosValue[:0]
	b.DailyAfter = b.DailyAfter[:0]
	b.RateCount = b.RateCount[:0]
	b.CancelPct = b.CancelPct[:0]
	b.Flags = b.Flags[:0]
}

func (b *BatchInput) append(in stepInput) {
	b.OrderValue = append(b.OrderValue, in.orderValue)
	b.PosValue = append(b.PosValue, in.posValue)
	b.DailyAfter = append(b.DailyAfter, in.dailyAfter)
	b.RateCount = append(b.RateCount, in.rateCount)
	b.CancelPct = append(b.CancelPct, in.cancelPct)
	b.Flags = append(b.Flags, in.flags)
}

// Len is the number of staged elements.
func (b *BatchInput) Len() int {
	return len(b.Flags)
}

func (b *BatchInput) at(i int) stepInput {
	return stepInput{
		orderValue: b.OrderValue[i],
		posValue:   b.PosValue[i],
		dailyAfter: b.DailyAfter[i],
		rateCount:  b.RateCount[i],
		cancelPct:  b.CancelPct[i],
		flags:      b.Flags[i],
	}
}

// ruleVerdict is the rule math shared by the scalar path, the batch
// fallback, and any accelerator implementation's contract. It checks
// every configured rule and returns the union of violations. Overflowed
// notionals fail closed regardless of configured limits.
func ruleVerdict(lim *Limits, in stepInput) (schema.DecisionStatus, schema.RuleMask) {
	if in.flags&flagTableFull != 0 {
		return schema.StatusFail, schema.RulePositionTableFull
	}

	var mask schema.RuleMask
	if in.flags&flagOrderOverflow != 0 {
		mask |= schema.RuleOrderValue
	} else if lim.MaxOrderValue > 0 && in.orderValue > uint64(lim.MaxOrderValue) {
		mask |= schema.RuleOrderValue
	}
	if in.flags&flagPosOverflow != 0 {
		mask |= schema.RulePositionLimit
	} else if lim.MaxPositionValue > 0 && in.posValue > uint64(lim.MaxPositionValue) {
		mask |= schema.RulePositionLimit
	}
	if lim.MaxDailyVolume > 0 && in.dailyAfter > uint64(lim.MaxDailyVolume) {
		mask |= schema.RuleDailyVolume
	}
	if lim.MaxOrdersPerSec > 0 && in.rateCount > lim.MaxOrdersPerSec {
		mask |= schema.RuleRateLimit
	}
	if lim.MaxCancelRatioPct > 0 && in.cancelPct > lim.MaxCancelRatioPct {
		mask |= schema.RuleCancelRatio
	}
	if mask != 0 {
		return schema.StatusFail, mask
	}

	if lim.SoftWarnings {
		if lim.MaxOrderValue > 0 && in.orderValue > warnThreshold(uint64(lim.MaxOrderValue)) {
			mask |= schema.RuleOrderValue
		}
		if lim.MaxPositionValue > 0 && in.posValue > warnThreshold(uint64(lim.MaxPositionValue)) {
			mask |= schema.RulePositionLimit
		}
		if lim.MaxDailyVolume > 0 && in.dailyAfter > warnThreshold(uint64(lim.MaxDailyVolume)) {
			mask |= schema.RuleDailyVolume
		}
		if mask != 0 {
			return schema.StatusWarning, mask
		}
	}
	return schema.StatusPass, 0
}

// CheckBatchRisk evaluates up to min(len(orders), len(out)) orders in one
// pass and returns the count. With an accelerator configured the staged
// batch is handed over wholesale; on accelerator error the engine
// silently re-evaluates on the CPU, so callers see identical decisions
// either way. Orders in one batch are checked against the position state
// at batch entry: a pass earlier in the batch does not shrink the volume
// headroom seen by later orders in the same batch.
func (e *Engine) CheckBatchRisk(orders []schema.OrderEvent, out []schema.RiskDecision) int {
	n := len(orders)
	if len(out) < n {
		n = len(out)
	}
	if n == 0 {
		return 0
	}
	t0 := time.Now()
	lim := e.limits.Load()
	now := e.now()

	e.batch.reset(n)
	if cap(e.verdicts) < n {
		e.verdicts = make([]BatchVerdict, n)
		e.slots = make([]*Position, n)
	}
	verdicts := e.verdicts[:n]
	slots := e.slots[:n]

	for i := 0; i < n; i++ {
		order := &orders[i]
		pos, ok := e.slot(order.SymbolID)
		if !ok {
			slots[i] = nil
			e.batch.append(stepInput{flags: flagTableFull})
			continue
		}
		slots[i] = pos
		e.batch.append(e.prepare(pos, order, now))
	}

	evaluated := false
	if e.accel != nil {
		if err := e.accel.EvaluateBatch(&e.batch, *lim, verdicts); err != nil {
			e.metrics.IncAccelError()
		} else {
			evaluated = true
		}
	}
	if !evaluated {
		for i := 0; i < n; i++ {
			verdicts[i].Status, verdicts[i].Violations = ruleVerdict(lim, e.batch.at(i))
		}
	}

	per := uint64(time.Since(t0)) / uint64(n)
	if per == 0 {
		per = 1
	}
	for i := 0; i < n; i++ {
		order := &orders[i]
		in := e.batch.at(i)
		d := schema.RiskDecision{
			TimestampNanos: now,
			OrderID:        order.OrderID,
			SymbolID:       order.SymbolID,
			Price:          order.Price,
			Qty:            order.Qty,
			Status:         verdicts[i].Status,
			Violations:     verdicts[i].Violations,
		}
		derive(&d, lim, in)
		if d.Status != schema.StatusFail && slots[i] != nil {
			slots[i].DailyVolume = schema.Quantity(in.dailyAfter)
		}
		e.record(&d, per)
		out[i] = d
	}
	return n
}

// SoftwareAccelerator is the reference batch implementation: a plain
// element-wise sweep over the staged buffers, structured the way a
// co-processor kernel would consume them. It never fails.
type SoftwareAccelerator struct{}

func (SoftwareAccelerator) EvaluateBatch(in *BatchInput, lim Limits, out []BatchVerdict) error {
	for i := 0; i < in.Len() && i < len(out); i++ {
		out[i].Status, out[i].Violations = ruleVerdict(&lim, in.at(i))
	}
	return nil
}
