//go:build !amd64 || noasm

// Package tsc reads the CPU cycle counter for nanosecond-free latency
// stamps on the hot path. On amd64 this is a raw RDTSC; elsewhere it
// degrades to the monotonic clock, which preserves the per-core
// monotonicity contract at lower resolution.
package tsc

import "time"

var base = time.Now()

// Cycles returns monotonic nanoseconds since process start on targets
// without a cycle-counter instruction.
func Cycles() uint64 {
	return uint64(time.Since(base))
}
