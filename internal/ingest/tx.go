package ingest

import (
	"runtime"
	"sync/atomic"

	"github.com/yanun0323/errors"

	"main/internal/codec"
	"main/internal/driver"
	"main/internal/mempool"
	"main/internal/obs"
	"main/internal/ring"
	"main/internal/schema"
)

// TxConfig wires one transmit worker to its queue.
type TxConfig struct {
	Queue   schema.QueueID
	Core    int
	Burst   int // 0 or >MaxBurst clamps to MaxBurst
	Driver  driver.Driver
	In      *ring.Ring[schema.OrderEvent]
	Framer  *Framer
	Pool    *mempool.BufferPool // frame buffers; nil builds a private heap pool
	Metrics *obs.Metrics
}

// TxWorker drains the outbound order ring in bursts, frames each order,
// and submits the burst in one driver call. A short transmit count is
// the driver reporting descriptor-queue pushback: the unsent remainder
// is dropped and counted, never retried synchronously, so downstream
// congestion cannot stall the worker.
type TxWorker struct {
	cfg    TxConfig
	orders []schema.OrderEvent
	frames [][]byte
	rec    [codec.OrderRecordSize]byte
}

// NewTxWorker allocates the worker's burst staging.
func NewTxWorker(cfg TxConfig) (*TxWorker, error) {
	if cfg.Driver == nil || cfg.In == nil || cfg.Framer == nil {
		return nil, errors.New("ingest: tx worker needs a driver, an input ring, and a framer")
	}
	if cfg.Burst <= 0 || cfg.Burst > MaxBurst {
		cfg.Burst = MaxBurst
	}
	if cfg.Pool == nil {
		pool, err := mempool.NewBufferPool(frameBufSize, cfg.Burst, 4, nil)
		if err != nil {
			return nil, errors.Wrap(err, "ingest: tx buffer pool")
		}
		cfg.Pool = pool
	}
	return &TxWorker{
		cfg:    cfg,
		orders: make([]schema.OrderEvent, cfg.Burst),
		frames: make([][]byte, 0, cfg.Burst),
	}, nil
}

// Run polls the ring on a dedicated OS thread pinned to the configured
// core until *stop becomes nonzero, then closes done.
func (w *TxWorker) Run(stop *uint32, done chan<- struct{}) {
	go func() {
		runtime.LockOSThread()
		ring.SetAffinity(w.cfg.Core)
		defer func() {
			runtime.UnlockOSThread()
			close(done)
		}()

		for atomic.LoadUint32(stop) == 0 {
			if w.flush() == 0 {
				ring.Relax()
			}
		}
	}()
}

// flush drains and transmits one burst, returning how many orders it
// consumed from the ring.
func (w *TxWorker) flush() int {
	n := w.cfg.In.PopBatch(w.orders)
	if n == 0 {
		return 0
	}

	w.frames = w.frames[:0]
	for i := 0; i < n; i++ {
		buf := w.cfg.Pool.Get()
		if buf == nil {
			// Buffer exhaustion drops the order the same way queue
			// pushback would.
			w.cfg.Metrics.AddTxDrops(1)
			continue
		}
		payload := codec.EncodeOrder(w.rec[:0], w.orders[i])
		w.frames = append(w.frames, w.cfg.Framer.Build(buf, payload))
	}

	sent := w.cfg.Driver.TransmitBurst(w.cfg.Queue, w.frames)
	var bytes uint64
	for _, f := range w.frames[:sent] {
		bytes += uint64(len(f))
	}
	w.cfg.Metrics.AddPacketsSent(uint64(sent), bytes)
	if dropped := len(w.frames) - sent; dropped > 0 {
		w.cfg.Metrics.AddTxDrops(uint64(dropped))
	}

	for _, f := range w.frames {
		w.cfg.Pool.Put(f)
	}
	return n
}
