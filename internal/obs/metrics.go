// Package obs collects the pipeline's counters and latency stats with
// plain atomics so the hot path never allocates or locks.
package obs

import "sync/atomic"

// Metrics is the pipeline's counter block. All fields are updated with
// atomics from pinned worker threads and read by Snapshot/Flush.
type Metrics struct {
	packetsReceived uint64
	bytesReceived   uint64
	packetsSent     uint64
	bytesSent       uint64
	parseDrops      uint64
	queueDrops      uint64
	txDrops         uint64

	decisionsPassed uint64
	decisionsFailed uint64
	decisionsWarned uint64
	accelErrors     uint64

	parseLatency    LatencyStats
	decisionLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Sum   uint64
	Min   uint64
	Max   uint64
}

// Snapshot captures the current counter values.
type Snapshot struct {
	PacketsReceived uint64
	BytesReceived   uint64
	PacketsSent     uint64
	BytesSent       uint64
	ParseDrops      uint64
	QueueDrops      uint64
	TxDrops         uint64
	DecisionsPassed uint64
	DecisionsFailed uint64
	DecisionsWarned uint64
	AccelErrors     uint64
	ParseLatency    LatencySnapshot
	DecisionLatency LatencySnapshot
}

// NewMetrics allocates a metrics block.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) AddPacketsReceived(n, bytes uint64) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.packetsReceived, n)
	atomic.AddUint64(&m.bytesReceived, bytes)
}

func (m *Metrics) AddPacketsSent(n, bytes uint64) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.packetsSent, n)
	atomic.AddUint64(&m.bytesSent, bytes)
}

func (m *Metrics) IncParseDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.parseDrops, 1)
}

func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

func (m *Metrics) AddTxDrops(n uint64) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.txDrops, n)
}

func (m *Metrics) IncDecisionPassed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.decisionsPassed, 1)
}

func (m *Metrics) IncDecisionFailed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.decisionsFailed, 1)
}

func (m *Metrics) IncDecisionWarned() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.decisionsWarned, 1)
}

func (m *Metrics) IncAccelError() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.accelErrors, 1)
}

// ObserveParse records one frame's parse latency.
func (m *Metrics) ObserveParse(nanos uint64) {
	if m == nil {
		return
	}
	m.parseLatency.Observe(nanos)
}

// ObserveDecision records one risk decision's processing time.
func (m *Metrics) ObserveDecision(nanos uint64) {
	if m == nil {
		return
	}
	m.decisionLatency.Observe(nanos)
}

// Snapshot returns a copy of the current values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		PacketsReceived: atomic.LoadUint64(&m.packetsReceived),
		BytesReceived:   atomic.LoadUint64(&m.bytesReceived),
		PacketsSent:     atomic.LoadUint64(&m.packetsSent),
		BytesSent:       atomic.LoadUint64(&m.bytesSent),
		ParseDrops:      atomic.LoadUint64(&m.parseDrops),
		QueueDrops:      atomic.LoadUint64(&m.queueDrops),
		TxDrops:         atomic.LoadUint64(&m.txDrops),
		DecisionsPassed: atomic.LoadUint64(&m.decisionsPassed),
		DecisionsFailed: atomic.LoadUint64(&m.decisionsFailed),
		DecisionsWarned: atomic.LoadUint64(&m.decisionsWarned),
		AccelErrors:     atomic.LoadUint64(&m.accelErrors),
		ParseLatency:    m.parseLatency.Snapshot(),
		DecisionLatency: m.decisionLatency.Snapshot(),
	}
}

// Flush pushes the current values through a sink.
func (m *Metrics) Flush(sink Sink) {
	if m == nil || sink == nil {
		return
	}
	s := m.Snapshot()
	sink.RecordMetric("packets_received", s.PacketsReceived)
	sink.RecordMetric("bytes_received", s.BytesReceived)
	sink.RecordMetric("packets_sent", s.PacketsSent)
	sink.RecordMetric("bytes_sent", s.BytesSent)
	sink.RecordMetric("parse_drops", s.ParseDrops)
	sink.RecordMetric("queue_drops", s.QueueDrops)
	sink.RecordMetric("tx_drops", s.TxDrops)
	sink.RecordMetric("decisions_passed", s.DecisionsPassed)
	sink.RecordMetric("decisions_failed", s.DecisionsFailed)
	sink.RecordMetric("decisions_warned", s.DecisionsWarned)
	sink.RecordMetric("accelerator_errors", s.AccelErrors)
	if s.DecisionLatency.Count > 0 {
		sink.RecordLatency("risk_decision_max", s.DecisionLatency.Max)
		sink.RecordLatency("risk_decision_avg", s.DecisionLatency.Sum/s.DecisionLatency.Count)
	}
	if s.ParseLatency.Count > 0 {
		sink.RecordLatency("frame_parse_max", s.ParseLatency.Max)
		sink.RecordLatency("frame_parse_avg", s.ParseLatency.Sum/s.ParseLatency.Count)
	}
}

// Observe records one duration sample.
func (l *LatencyStats) Observe(nanos uint64) {
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Sum:   atomic.LoadUint64(&l.sum),
		Min:   atomic.LoadUint64(&l.min),
		Max:   atomic.LoadUint64(&l.max),
	}
}
