//go:build linux

package mempool

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux memory policy modes for mbind(2). x/sys/unix carries the syscall
// number but not the MPOL_* constants.
const mpolBind = 2

// mapArena maps an anonymous region for one arena, preferring huge pages
// and binding the range to the given NUMA node. Either refinement may be
// unavailable (no hugetlb reservation, single-node host, masked
// capability); both degrade silently because the arena still works, just
// without the latency benefit.
func mapArena(size int, node int, hugePages bool) ([]byte, bool, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if hugePages {
		mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, flags|unix.MAP_HUGETLB)
		if err == nil {
			bindToNode(mem, node)
			return mem, true, nil
		}
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, false, err
	}
	bindToNode(mem, node)
	return mem, true, nil
}

func unmapArena(mem []byte) {
	_ = unix.Munmap(mem)
}

func bindToNode(mem []byte, node int) {
	if node < 0 || node >= 64 || len(mem) == 0 {
		return
	}
	nodemask := uint64(1) << uint(node)
	_, _, _ = unix.Syscall6(
		unix.SYS_MBIND,
		uintptr(unsafe.Pointer(unsafe.SliceData(mem))),
		uintptr(len(mem)),
		mpolBind,
		uintptr(unsafe.Pointer(&nodemask)),
		64,
		0,
	)
}
