package pipeline

import (
	"sync/atomic"
	"testing"
	"time"

	"main/internal/driver"
	"main/internal/feedgen"
	"main/internal/ingest"
	"main/internal/ops"
	"main/internal/risk"
	"main/internal/schema"
)

func testLoaded() ops.Loaded {
	reg := schema.NewRegistry(64)
	reg.Add("ES")
	return ops.Loaded{
		Registry:     reg,
		MaxSymbols:   64,
		RingCapacity: 1024,
		Burst:        16,
		RiskCore:     -1,
		Queues:       []ops.QueuePlan{{Queue: 0, RxCore: -1, TxCore: -1}},
		ArenaBytes:   4 << 20,
		PoolBuffers:  32,
		Features:     ops.FeatureFlags{Accelerator: true},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	const events = 20

	gen, err := feedgen.New(feedgen.Config{
		Symbols:    []schema.SymbolID{1},
		StartPrice: "100",
		TickSize:   "0.25",
		Seed:       7,
		Count:      events,
	})
	if err != nil {
		t.Fatalf("feedgen: %v", err)
	}

	loaded := testLoaded()
	sim := driver.NewSim(gen.FrameSource(ingest.NewFramer(loaded.Endpoint)))

	var decisions uint64
	var md uint64
	var orderID uint64

	var p *Pipeline
	p, err = New(Config{
		Loaded: loaded,
		Driver: sim,
		OnMarketData: func(e *schema.MarketDataEvent) {
			atomic.AddUint64(&md, 1)
			// One order per tick, sized to always pass.
			p.SubmitOrder(schema.OrderEvent{
				OrderID:  atomic.AddUint64(&orderID, 1),
				SymbolID: e.SymbolID,
				Side:     e.Side,
				Price:    e.Price,
				Qty:      schema.Quantity(schema.PriceScale),
			})
		},
		OnDecision: func(d *schema.RiskDecision) {
			if d.Status != schema.StatusPass {
				t.Errorf("unexpected decision: %+v", d)
			}
			atomic.AddUint64(&decisions, 1)
		},
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	p.Start()
	waitFor(t, "decisions", func() bool { return atomic.LoadUint64(&decisions) >= events })
	waitFor(t, "transmits", func() bool { return len(sim.Sent(0)) >= events })
	p.Stop()

	if got := atomic.LoadUint64(&md); got != events {
		t.Fatalf("market data callbacks: got %d want %d", got, events)
	}

	s := p.Metrics().Snapshot()
	if s.PacketsReceived != events {
		t.Fatalf("packets received: %d", s.PacketsReceived)
	}
	if s.DecisionsPassed != events {
		t.Fatalf("decisions passed: %d", s.DecisionsPassed)
	}
	if s.PacketsSent != events {
		t.Fatalf("packets sent: %d", s.PacketsSent)
	}
	if s.ParseDrops != 0 || s.QueueDrops != 0 {
		t.Fatalf("drops: %+v", s)
	}
}

func TestPipelineOfferOrder(t *testing.T) {
	loaded := testLoaded()
	loaded.Limits = risk.Limits{MaxOrderValue: schema.Notional(10 * schema.PriceScale)}
	sim := driver.NewSim(nil)

	var failed uint64
	p, err := New(Config{
		Loaded: loaded,
		Driver: sim,
		OnDecision: func(d *schema.RiskDecision) {
			if d.Status == schema.StatusFail && d.Violated(schema.RuleOrderValue) {
				atomic.AddUint64(&failed, 1)
			}
		},
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start()

	ok := p.OfferOrder(schema.OrderEvent{
		OrderID:  1,
		SymbolID: 1,
		Side:     schema.SideBuy,
		Price:    schema.Price(100 * schema.PriceScale),
		Qty:      schema.Quantity(schema.PriceScale),
	})
	if !ok {
		t.Fatalf("offer rejected on empty ring")
	}

	waitFor(t, "rejection", func() bool { return atomic.LoadUint64(&failed) == 1 })
	p.Stop()

	if sent := len(sim.Sent(0)); sent != 0 {
		t.Fatalf("rejected order transmitted: %d frames", sent)
	}
}

func TestPipelinePortfolioSweep(t *testing.T) {
	loaded := testLoaded()
	sim := driver.NewSim(nil)

	var sweeps uint64
	p, err := New(Config{
		Loaded:         loaded,
		Driver:         sim,
		PortfolioEvery: time.Millisecond,
		OnPortfolio: func(r risk.PortfolioRisk) {
			atomic.AddUint64(&sweeps, 1)
		},
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if err := p.Engine().UpdatePosition(1, schema.SideBuy, schema.Price(10*schema.PriceScale), schema.Quantity(5*schema.PriceScale)); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	p.Start()
	waitFor(t, "portfolio sweep", func() bool { return atomic.LoadUint64(&sweeps) > 0 })
	p.Stop()
}
