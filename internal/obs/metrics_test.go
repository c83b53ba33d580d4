package obs

import (
	"sync"
	"testing"
)

func TestCountersAccumulate(t *testing.T) {
	m := NewMetrics()
	m.AddPacketsReceived(3, 300)
	m.AddPacketsSent(2, 128)
	m.IncParseDrop()
	m.IncDecisionPassed()
	m.IncDecisionFailed()
	m.IncDecisionWarned()
	m.IncAccelError()
	m.AddTxDrops(5)

	s := m.Snapshot()
	if s.PacketsReceived != 3 || s.BytesReceived != 300 {
		t.Fatalf("rx counters: %+v", s)
	}
	if s.PacketsSent != 2 || s.BytesSent != 128 {
		t.Fatalf("tx counters: %+v", s)
	}
	if s.ParseDrops != 1 || s.TxDrops != 5 {
		t.Fatalf("drop counters: %+v", s)
	}
	if s.DecisionsPassed != 1 || s.DecisionsFailed != 1 || s.DecisionsWarned != 1 || s.AccelErrors != 1 {
		t.Fatalf("decision counters: %+v", s)
	}
}

func TestLatencyStats(t *testing.T) {
	var l LatencyStats
	for _, v := range []uint64{50, 10, 90, 20} {
		l.Observe(v)
	}
	s := l.Snapshot()
	if s.Count != 4 || s.Min != 10 || s.Max != 90 || s.Sum != 170 {
		t.Fatalf("latency snapshot: %+v", s)
	}
}

func TestLatencyStatsConcurrent(t *testing.T) {
	var l LatencyStats
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 1; i <= 1000; i++ {
				l.Observe(uint64(g*1000 + i))
			}
		}(g)
	}
	wg.Wait()
	s := l.Snapshot()
	if s.Count != 8000 {
		t.Fatalf("count: got %d want 8000", s.Count)
	}
	if s.Min != 1 || s.Max != 8000 {
		t.Fatalf("bounds: min %d max %d", s.Min, s.Max)
	}
}

type recordingSink struct {
	metrics   map[string]uint64
	latencies map[string]uint64
}

func (r *recordingSink) RecordMetric(name string, value uint64) {
	r.metrics[name] = value
}

func (r *recordingSink) RecordLatency(name string, nanos uint64) {
	r.latencies[name] = nanos
}

func TestFlushPushesThroughSink(t *testing.T) {
	m := NewMetrics()
	m.AddPacketsReceived(7, 700)
	m.ObserveDecision(40)
	m.ObserveDecision(60)

	sink := &recordingSink{metrics: map[string]uint64{}, latencies: map[string]uint64{}}
	m.Flush(sink)

	if sink.metrics["packets_received"] != 7 {
		t.Fatalf("flushed packets_received: %d", sink.metrics["packets_received"])
	}
	if sink.latencies["risk_decision_max"] != 60 {
		t.Fatalf("flushed max latency: %d", sink.latencies["risk_decision_max"])
	}
	if sink.latencies["risk_decision_avg"] != 50 {
		t.Fatalf("flushed avg latency: %d", sink.latencies["risk_decision_avg"])
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncParseDrop()
	m.ObserveDecision(1)
	m.Flush(NopSink{})
	if s := m.Snapshot(); s.ParseDrops != 0 {
		t.Fatalf("nil metrics snapshot: %+v", s)
	}
}
