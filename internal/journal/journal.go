package journal

import (
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Record is one persisted risk decision.
type Record struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	TimestampNanos  int64  `gorm:"index"`
	OrderID         uint64 `gorm:"index"`
	SymbolID        uint32
	Symbol          string
	Price           uint64
	Qty             uint64
	Status          uint8
	Violations      uint32
	ProcessingNanos uint64
	ExposureDelta   int64
	VaRDelta        int64
	MarginRequired  uint64
}

// TableName keeps the table name stable across gorm naming strategies.
func (Record) TableName() string { return "risk_decisions" }

// Store persists batches of records.
type Store interface {
	Save(records []Record) error
	Close() error
}

// Config shapes one journal writer.
type Config struct {
	Store      Store
	Registry   *schema.Registry // optional, resolves symbol names
	BatchSize  int
	QueueDepth int
	// FlushEvery bounds how long a partial batch may sit unwritten.
	FlushEvery time.Duration
}

// Journal is the asynchronous decision writer. Offer never blocks: when
// the queue is full the decision is counted and discarded, because the
// journal is an audit convenience and must not become a throughput
// ceiling.
type Journal struct {
	cfg   Config
	in    chan schema.RiskDecision
	drops uint64
	done  chan struct{}
}

// New starts a journal writer.
func New(cfg Config) (*Journal, error) {
	if cfg.Store == nil {
		return nil, errors.New("journal: store is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1 << 12
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = time.Second
	}
	j := &Journal{
		cfg:  cfg,
		in:   make(chan schema.RiskDecision, cfg.QueueDepth),
		done: make(chan struct{}),
	}
	go j.run()
	return j, nil
}

// Offer enqueues a decision, returning false when it was dropped.
func (j *Journal) Offer(d schema.RiskDecision) bool {
	select {
	case j.in <- d:
		return true
	default:
		atomic.AddUint64(&j.drops, 1)
		return false
	}
}

// Drops reports how many decisions were discarded on a full queue.
func (j *Journal) Drops() uint64 {
	return atomic.LoadUint64(&j.drops)
}

// Close drains the queue, writes the final batch, and closes the store.
func (j *Journal) Close() error {
	close(j.in)
	<-j.done
	return j.cfg.Store.Close()
}

func (j *Journal) run() {
	defer close(j.done)

	batch := make([]Record, 0, j.cfg.BatchSize)
	ticker := time.NewTicker(j.cfg.FlushEvery)
	defer ticker.Stop()

	for {
		select {
		case d, ok := <-j.in:
			if !ok {
				j.flush(batch)
				return
			}
			batch = append(batch, j.record(d))
			if len(batch) >= j.cfg.BatchSize {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (j *Journal) record(d schema.RiskDecision) Record {
	r := Record{
		TimestampNanos:  d.TimestampNanos,
		OrderID:         d.OrderID,
		SymbolID:        uint32(d.SymbolID),
		Price:           uint64(d.Price),
		Qty:             uint64(d.Qty),
		Status:          uint8(d.Status),
		Violations:      uint32(d.Violations),
		ProcessingNanos: d.ProcessingNanos,
		ExposureDelta:   d.ExposureDelta,
		VaRDelta:        d.VaRDelta,
		MarginRequired:  d.MarginRequired,
	}
	if j.cfg.Registry != nil {
		if name, ok := j.cfg.Registry.Name(d.SymbolID); ok {
			r.Symbol = name
		}
	}
	return r
}

func (j *Journal) flush(batch []Record) {
	if len(batch) == 0 {
		return
	}
	if err := j.cfg.Store.Save(batch); err != nil {
		// A failed write loses this batch; the pipeline keeps trading.
		logs.Errorf("journal write failed, %d decisions lost: %v", len(batch), err)
	}
}
