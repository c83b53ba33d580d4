//go:build amd64 && !noasm

// Package tsc reads the CPU cycle counter for nanosecond-free latency
// stamps on the hot path. On amd64 this is a raw RDTSC; elsewhere it
// degrades to the monotonic clock, which preserves the per-core
// monotonicity contract at lower resolution.
package tsc

// Cycles returns the current value of the time-stamp counter.
//
//go:noescape
func Cycles() uint64
