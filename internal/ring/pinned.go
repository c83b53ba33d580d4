package ring

import (
	"runtime"
	"sync/atomic"
)

const spinBudget = 256 // tight polls before inserting spin hints

// Relax hints the CPU that the caller is in a spin-wait loop. Exposed
// for poll loops that live outside this package but follow the same
// never-sleep discipline.
func Relax() { cpuRelax() }

// PinnedConsumer drains r on a dedicated OS thread pinned to core until
// *stop becomes nonzero, then closes done exactly once. The loop never
// sleeps in the kernel: after spinBudget consecutive misses it inserts a
// cpuRelax per iteration, keeping wake-up latency in the nanosecond
// range at the cost of a busy core.
func PinnedConsumer[T any](core int, r *Ring[T], stop *uint32, fn func(*T), done chan<- struct{}) {
	go func() {
		runtime.LockOSThread()
		SetAffinity(core)
		defer func() {
			runtime.UnlockOSThread()
			close(done)
		}()

		var v T
		miss := 0
		for {
			if r.Pop(&v) {
				fn(&v)
				miss = 0
				continue
			}
			if atomic.LoadUint32(stop) != 0 {
				return
			}
			if miss < spinBudget {
				miss++
				continue
			}
			cpuRelax()
		}
	}()
}
