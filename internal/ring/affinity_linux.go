//go:build linux

package ring

import "golang.org/x/sys/unix"

// SetAffinity pins the calling OS thread to one logical CPU. Errors are
// swallowed: on containerised or cgroup-restricted hosts the call may be
// denied, and the fallback is simply no pin.
func SetAffinity(cpu int) {
	if cpu < 0 {
		return
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	_ = unix.SchedSetaffinity(0, &set)
}
