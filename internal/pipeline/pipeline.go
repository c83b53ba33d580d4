// Package pipeline assembles the full data path: NUMA-placed buffers,
// per-queue receive workers, the risk thread, and per-queue transmit
// workers, joined by lock-free rings. It owns worker lifecycle; policy
// (strategy callbacks, limit reloads) stays with the caller.
package pipeline

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/driver"
	"main/internal/ingest"
	"main/internal/journal"
	"main/internal/mempool"
	"main/internal/numa"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/ring"
	"main/internal/risk"
	"main/internal/schema"
)

const frameBufSize = 2048

// Config wires one pipeline instance.
type Config struct {
	Loaded  ops.Loaded
	Driver  driver.Driver
	Journal *journal.Journal // optional

	// OnMarketData runs on the risk thread for every inbound event.
	// SubmitOrder may be called from inside it and nowhere else.
	OnMarketData func(*schema.MarketDataEvent)
	// OnDecision runs on the risk thread for every decision.
	OnDecision func(*schema.RiskDecision)
	// OnPortfolio receives periodic portfolio sweeps on the risk thread.
	OnPortfolio func(risk.PortfolioRisk)
	// PortfolioEvery defaults to one second.
	PortfolioEvery time.Duration
}

type queuePath struct {
	plan      ops.QueuePlan
	mdRing    *ring.Ring[schema.MarketDataEvent]
	orderRing *ring.Ring[schema.OrderEvent]
	rx        *ingest.RxWorker
	tx        *ingest.TxWorker
}

// Pipeline is one assembled instance. Start/Stop are not reentrant.
type Pipeline struct {
	cfg     Config
	metrics *obs.Metrics
	alloc   *mempool.Allocator
	pool    *mempool.BufferPool
	engine  *risk.Engine
	queues  []queuePath

	// pending fans in externally submitted orders to the risk thread.
	pending *ring.MPSC[schema.OrderEvent]

	stop    uint32
	done    []chan struct{}
	nextTx  int
	started bool
}

// New builds a pipeline from resolved configuration. The only fatal
// environment condition is a topology with zero usable cores; everything
// else degrades (no pin, no huge pages, heap-backed buffers).
func New(cfg Config) (*Pipeline, error) {
	if cfg.Driver == nil {
		return nil, errors.New("pipeline: driver is required")
	}
	if len(cfg.Loaded.Queues) == 0 {
		return nil, errors.New("pipeline: at least one queue")
	}
	if cfg.PortfolioEvery <= 0 {
		cfg.PortfolioEvery = time.Second
	}

	topo, err := numa.Discover()
	if err != nil {
		return nil, errors.Wrap(err, "discover topology")
	}
	alloc, err := mempool.NewAllocator(topo, mempool.Config{
		ArenaSize: cfg.Loaded.ArenaBytes,
		HugePages: cfg.Loaded.HugePages,
	})
	if err != nil {
		return nil, errors.Wrap(err, "numa allocator")
	}

	metrics := obs.NewMetrics()
	pool, err := mempool.NewBufferPool(frameBufSize, cfg.Loaded.PoolBuffers, 8, func(bytes int) []byte {
		return alloc.Allocate(0, bytes, mempool.Policy{Kind: mempool.PreferredLocal})
	})
	if err != nil {
		alloc.Close()
		return nil, errors.Wrap(err, "frame pool")
	}

	var accel risk.Accelerator
	if cfg.Loaded.Features.Accelerator {
		accel = risk.SoftwareAccelerator{}
	}
	engine, err := risk.NewEngine(risk.Config{
		MaxSymbols:  cfg.Loaded.MaxSymbols,
		Accelerator: accel,
		Metrics:     metrics,
		Limits:      cfg.Loaded.Limits,
	})
	if err != nil {
		alloc.Close()
		return nil, errors.Wrap(err, "risk engine")
	}

	p := &Pipeline{
		cfg:     cfg,
		metrics: metrics,
		alloc:   alloc,
		pool:    pool,
		engine:  engine,
		pending: ring.NewMPSC[schema.OrderEvent](cfg.Loaded.RingCapacity),
	}

	burst := cfg.Loaded.Burst
	if burst <= 0 || burst > ingest.MaxBurst {
		burst = ingest.MaxBurst
	}

	framer := ingest.NewFramer(cfg.Loaded.Endpoint)
	for _, plan := range cfg.Loaded.Queues {
		qp := queuePath{
			plan:      plan,
			mdRing:    ring.New[schema.MarketDataEvent](cfg.Loaded.RingCapacity),
			orderRing: ring.New[schema.OrderEvent](cfg.Loaded.RingCapacity),
		}
		qp.rx, err = ingest.NewRxWorker(ingest.RxConfig{
			Queue:   plan.Queue,
			Core:    plan.RxCore,
			Burst:   burst,
			Driver:  cfg.Driver,
			Out:     qp.mdRing,
			Pool:    pool,
			Metrics: metrics,
		})
		if err != nil {
			alloc.Close()
			return nil, errors.Wrapf(err, "queue %d rx", plan.Queue)
		}
		// Each transmit worker owns a private pool: BufferPool is a
		// single-owner structure, and the tx threads run concurrently.
		// The initial chunk is carved from the arena here on the main
		// thread; later growth (rare: a burst returns every buffer each
		// cycle) is heap-backed to stay off the single-owner bump path.
		firstChunk := true
		txPool, err := mempool.NewBufferPool(frameBufSize, burst, 4, func(bytes int) []byte {
			if firstChunk {
				firstChunk = false
				if buf := alloc.Allocate(0, bytes, mempool.Policy{Kind: mempool.PreferredLocal}); buf != nil {
					return buf
				}
			}
			return make([]byte, bytes)
		})
		if err != nil {
			alloc.Close()
			return nil, errors.Wrapf(err, "queue %d tx pool", plan.Queue)
		}
		qp.tx, err = ingest.NewTxWorker(ingest.TxConfig{
			Queue:   plan.Queue,
			Core:    plan.TxCore,
			Burst:   burst,
			Driver:  cfg.Driver,
			In:      qp.orderRing,
			Framer:  framer,
			Pool:    txPool,
			Metrics: metrics,
		})
		if err != nil {
			alloc.Close()
			return nil, errors.Wrapf(err, "queue %d tx", plan.Queue)
		}
		p.queues = append(p.queues, qp)
	}
	return p, nil
}

// Start launches every worker thread.
func (p *Pipeline) Start() {
	if p.started {
		return
	}
	p.started = true
	for i := range p.queues {
		rxDone := make(chan struct{})
		txDone := make(chan struct{})
		p.queues[i].rx.Run(&p.stop, rxDone)
		p.queues[i].tx.Run(&p.stop, txDone)
		p.done = append(p.done, rxDone, txDone)
	}
	riskDone := make(chan struct{})
	p.done = append(p.done, riskDone)
	go p.riskLoop(riskDone)
}

// Stop halts every worker and releases arena memory. Queued but
// untransmitted orders are dropped, consistent with the no-retry policy.
func (p *Pipeline) Stop() {
	if !p.started {
		return
	}
	atomic.StoreUint32(&p.stop, 1)
	for _, done := range p.done {
		<-done
	}
	for i := range p.queues {
		p.queues[i].rx.Close()
	}
	p.alloc.Close()
	p.started = false
}

// OfferOrder hands an order to the risk thread from any goroutine. The
// decision arrives through OnDecision; false means the intake ring was
// full and the order was dropped unevaluated.
func (p *Pipeline) OfferOrder(o schema.OrderEvent) bool {
	if p.pending.Push(o) {
		return true
	}
	p.metrics.IncQueueDrop()
	return false
}

// SubmitOrder evaluates an order synchronously. It must only be called
// from the risk thread, i.e. inside OnMarketData.
func (p *Pipeline) SubmitOrder(o schema.OrderEvent) schema.RiskDecision {
	return p.decide(&o)
}

// Engine exposes the risk engine for limit reloads and reports. Only
// ReplaceLimits and Limits are safe off the risk thread.
func (p *Pipeline) Engine() *risk.Engine { return p.engine }

// Metrics exposes the pipeline counter block.
func (p *Pipeline) Metrics() *obs.Metrics { return p.metrics }

// AllocStats reports arena allocator counters.
func (p *Pipeline) AllocStats() mempool.Stats { return p.alloc.Stats() }

func (p *Pipeline) riskLoop(done chan<- struct{}) {
	runtime.LockOSThread()
	ring.SetAffinity(p.cfg.Loaded.RiskCore)
	defer func() {
		runtime.UnlockOSThread()
		close(done)
	}()

	batch := make([]schema.MarketDataEvent, ingest.MaxBurst)
	lastSweep := time.Now()
	var iter uint64

	for atomic.LoadUint32(&p.stop) == 0 {
		progress := 0
		for i := range p.queues {
			n := p.queues[i].mdRing.PopBatch(batch)
			for j := 0; j < n; j++ {
				ev := &batch[j]
				if ev.MsgType == schema.MsgOrderCancel {
					_ = p.engine.RecordCancel(ev.SymbolID)
				}
				if p.cfg.OnMarketData != nil {
					p.cfg.OnMarketData(ev)
				}
			}
			progress += n
		}

		var o schema.OrderEvent
		for p.pending.Pop(&o) {
			p.decide(&o)
			progress++
		}

		// The portfolio sweep is off the per-event path; the wall clock
		// is only consulted every few thousand iterations.
		iter++
		if p.cfg.OnPortfolio != nil && iter&0x0fff == 0 {
			if now := time.Now(); now.Sub(lastSweep) >= p.cfg.PortfolioEvery {
				lastSweep = now
				p.cfg.OnPortfolio(p.engine.CheckPortfolioRisk())
			}
		}

		if progress == 0 {
			ring.Relax()
		}
	}
}

// decide runs one order through the engine, fans the decision out, and
// routes passing orders to a transmit queue round-robin.
func (p *Pipeline) decide(o *schema.OrderEvent) schema.RiskDecision {
	d := p.engine.CheckOrderRisk(o)
	if p.cfg.OnDecision != nil {
		p.cfg.OnDecision(&d)
	}
	if p.cfg.Journal != nil {
		p.cfg.Journal.Offer(d)
	}
	if d.Status != schema.StatusFail {
		q := &p.queues[p.nextTx]
		p.nextTx = (p.nextTx + 1) % len(p.queues)
		if !q.orderRing.Push(*o) {
			p.metrics.IncQueueDrop()
		}
	}
	return d
}
