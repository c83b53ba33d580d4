//go:build amd64 && !noasm

package ring

// cpuRelax executes the x86-64 PAUSE instruction so busy-wait loops
// back off politely without leaving userspace.
//
//go:noescape
func cpuRelax()
