//go:build !linux

package mempool

// mapArena falls back to a heap-backed arena on platforms without mmap
// node binding. The allocator behaves identically; only the physical
// placement guarantee is lost.
func mapArena(size int, node int, hugePages bool) ([]byte, bool, error) {
	return make([]byte, size), false, nil
}

func unmapArena(mem []byte) {}
