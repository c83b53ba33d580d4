//go:build !linux

package ring

// SetAffinity is a no-op on platforms without sched_setaffinity.
func SetAffinity(cpu int) {}
