package ingest

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/codec"
	"main/internal/driver"
	"main/internal/mempool"
	"main/internal/obs"
	"main/internal/ring"
	"main/internal/schema"
	"main/internal/tsc"
)

// MaxBurst caps how many frames one receive or transmit call handles.
const MaxBurst = 64

// frameBufSize fits the largest frame this pipeline exchanges, with
// headroom for foreign traffic on raw-socket drivers.
const frameBufSize = 2048

// RxConfig wires one receive worker to its queue.
type RxConfig struct {
	Queue   schema.QueueID
	Core    int
	Burst   int // 0 or >MaxBurst clamps to MaxBurst
	Driver  driver.Driver
	Out     *ring.Ring[schema.MarketDataEvent]
	Pool    *mempool.BufferPool // frame buffers; nil falls back to heap
	Metrics *obs.Metrics
}

// RxWorker drains one hardware receive queue in bursts, parses each
// frame into a market data event, stamps capture timestamps, and pushes
// into its ring. Malformed frames and ring overflow are counted and
// dropped; the worker itself never stalls on them.
type RxWorker struct {
	cfg  RxConfig
	bufs [][]byte
}

// NewRxWorker allocates the worker's burst buffers up front.
func NewRxWorker(cfg RxConfig) (*RxWorker, error) {
	if cfg.Driver == nil || cfg.Out == nil {
		return nil, errors.New("ingest: rx worker needs a driver and an output ring")
	}
	if cfg.Burst <= 0 || cfg.Burst > MaxBurst {
		cfg.Burst = MaxBurst
	}
	w := &RxWorker{cfg: cfg, bufs: make([][]byte, cfg.Burst)}
	for i := range w.bufs {
		var buf []byte
		if cfg.Pool != nil {
			buf = cfg.Pool.Get()
		}
		if buf == nil {
			buf = make([]byte, 0, frameBufSize)
		}
		w.bufs[i] = buf
	}
	return w, nil
}

// Run polls the queue on a dedicated OS thread pinned to the configured
// core until *stop becomes nonzero, then closes done.
func (w *RxWorker) Run(stop *uint32, done chan<- struct{}) {
	go func() {
		runtime.LockOSThread()
		ring.SetAffinity(w.cfg.Core)
		defer func() {
			runtime.UnlockOSThread()
			close(done)
		}()

		for atomic.LoadUint32(stop) == 0 {
			n := w.cfg.Driver.ReceiveBurst(w.cfg.Queue, w.bufs)
			if n == 0 {
				ring.Relax()
				continue
			}
			w.process(w.bufs[:n])
		}
	}()
}

// process parses one received burst. The device timestamp register is
// read once per burst; cycle counts are taken per frame.
func (w *RxWorker) process(frames [][]byte) {
	t0 := time.Now()
	device := w.cfg.Driver.ReadHardwareTimestamp()
	arrival := t0.UnixNano()

	var bytes uint64
	for _, frame := range frames {
		bytes += uint64(len(frame))

		payload, err := ParseFrame(frame)
		if err != nil {
			w.cfg.Metrics.IncParseDrop()
			continue
		}
		e, ok := codec.DecodeMarketData(payload)
		if !ok {
			w.cfg.Metrics.IncParseDrop()
			continue
		}

		e.Timestamp.CycleCount = tsc.Cycles()
		e.Timestamp.DeviceNanos = device
		e.Timestamp.ArrivalNanos = arrival
		e.Timestamp.QueueID = w.cfg.Queue
		e.Timestamp.WireBytes = uint32(len(frame))
		copy(e.Prefix[:], payload)

		if !w.cfg.Out.Push(e) {
			w.cfg.Metrics.IncQueueDrop()
		}
	}

	w.cfg.Metrics.AddPacketsReceived(uint64(len(frames)), bytes)
	per := uint64(time.Since(t0)) / uint64(len(frames))
	if per == 0 {
		per = 1
	}
	for range frames {
		w.cfg.Metrics.ObserveParse(per)
	}
}

// Close returns pooled buffers.
func (w *RxWorker) Close() {
	if w.cfg.Pool == nil {
		return
	}
	for _, buf := range w.bufs {
		w.cfg.Pool.Put(buf)
	}
	w.bufs = nil
}
