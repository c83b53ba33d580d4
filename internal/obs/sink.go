package obs

import "github.com/yanun0323/logs"

// Sink receives counters and latency samples from the pipeline. The
// concrete sink (cloud export, log file, no-op) is external to the core;
// the pipeline only ever calls these two methods.
type Sink interface {
	RecordMetric(name string, value uint64)
	RecordLatency(name string, durationNanos uint64)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordMetric(name string, value uint64)          {}
func (NopSink) RecordLatency(name string, durationNanos uint64) {}

// LogSink writes every sample through the process logger. Useful for
// paper runs; too chatty for production rates.
type LogSink struct{}

func (LogSink) RecordMetric(name string, value uint64) {
	logs.Infof("metric %s=%d", name, value)
}

func (LogSink) RecordLatency(name string, durationNanos uint64) {
	logs.Infof("latency %s=%dns", name, durationNanos)
}
