// Package feedgen produces synthetic market data for paper runs, replay
// capture, and load tests: a seeded random walk per symbol, framed
// exactly like production traffic.
package feedgen

import (
	"math/rand"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/codec"
	"main/internal/driver"
	"main/internal/ingest"
	"main/internal/schema"
)

// Config shapes one generator.
type Config struct {
	Symbols    []schema.SymbolID
	StartPrice string // decimal, e.g. "4500.25"
	TickSize   string // decimal step of the walk
	Seed       int64
	Count      int // total events; 0 means unbounded
}

// Generator walks each symbol's price independently and emits events in
// a deterministic order for a fixed seed.
type Generator struct {
	symbols []schema.SymbolID
	prices  []schema.Price
	tick    uint64
	rng     *rand.Rand
	seq     uint64
	count   int
	emitted int
	next    int
}

// New builds a generator. Prices are decimal strings converted once to
// fixed-point; generation itself is all integer math.
func New(cfg Config) (*Generator, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("feedgen: at least one symbol")
	}
	start, err := parseFixed(cfg.StartPrice)
	if err != nil {
		return nil, errors.Wrap(err, "startPrice")
	}
	if start == 0 {
		return nil, errors.New("feedgen: start price must be positive")
	}
	tick, err := parseFixed(cfg.TickSize)
	if err != nil {
		return nil, errors.Wrap(err, "tickSize")
	}
	if tick == 0 {
		tick = schema.PriceScale / 100
	}

	g := &Generator{
		symbols: append([]schema.SymbolID(nil), cfg.Symbols...),
		prices:  make([]schema.Price, len(cfg.Symbols)),
		tick:    tick,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		count:   cfg.Count,
	}
	for i := range g.prices {
		g.prices[i] = schema.Price(start)
	}
	return g, nil
}

// Next produces one event, or false when the configured count is spent.
func (g *Generator) Next() (schema.MarketDataEvent, bool) {
	if g.count > 0 && g.emitted >= g.count {
		return schema.MarketDataEvent{}, false
	}
	g.emitted++
	g.seq++

	i := g.next
	g.next = (g.next + 1) % len(g.symbols)

	step := uint64(g.rng.Intn(3)) * g.tick
	side := schema.SideBuy
	price := uint64(g.prices[i])
	if g.rng.Intn(2) == 0 {
		side = schema.SideSell
		if price > step+g.tick {
			price -= step
		}
	} else {
		price += step
	}
	g.prices[i] = schema.Price(price)

	msgType := schema.MsgTrade
	if g.seq%4 == 0 {
		msgType = schema.MsgQuote
	}

	return schema.MarketDataEvent{
		Seq:      g.seq,
		SymbolID: g.symbols[i],
		MsgType:  msgType,
		Side:     side,
		Price:    schema.Price(price),
		Qty:      schema.Quantity(uint64(1+g.rng.Intn(10)) * schema.PriceScale),
		Timestamp: schema.HardwareTimestamp{
			DeviceNanos: g.seq, // synthetic device clock
		},
	}, true
}

// FrameSource adapts the generator to the simulator driver: each call
// encodes the next event into buf as a complete wire frame.
func (g *Generator) FrameSource(f *ingest.Framer) driver.FrameSource {
	var rec [codec.MarketDataRecordSize]byte
	return func(queue schema.QueueID, buf []byte) int {
		if cap(buf) < ingest.FrameHeaderSize+codec.MarketDataRecordSize {
			return 0 // caller's buffer cannot hold a frame
		}
		e, ok := g.Next()
		if !ok {
			return 0
		}
		payload := codec.EncodeMarketData(rec[:0], e)
		return len(f.Build(buf[:cap(buf)], payload))
	}
}

func parseFixed(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, errors.New("value must not be negative")
	}
	scaled := d.Shift(6).Truncate(0)
	if !scaled.BigInt().IsUint64() {
		return 0, errors.New("value out of range")
	}
	return scaled.BigInt().Uint64(), nil
}
