package mempool

import (
	"testing"
	"unsafe"

	"main/internal/numa"
)

func testAllocator(t *testing.T, arenaSize int) *Allocator {
	t.Helper()
	topo, err := numa.Discover()
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	a, err := NewAllocator(topo, Config{ArenaSize: arenaSize})
	if err != nil {
		t.Fatalf("allocator: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func bufAddr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// exhaustBump spends the cpu's whole carve so the next small allocation
// has to route to the bitmap region.
func exhaustBump(a *Allocator, cpu int) {
	b := a.bumps[cpu]
	b.off = len(b.mem)
}

func TestAllocationsDoNotOverlap(t *testing.T) {
	a := testAllocator(t, 1<<20)
	type span struct{ lo, hi uintptr }
	var live []span
	for i := 0; i < 200; i++ {
		buf := a.Allocate(0, 128, Policy{Kind: PreferredLocal})
		if buf == nil {
			t.Fatalf("allocation %d failed", i)
		}
		lo := bufAddr(buf)
		hi := lo + uintptr(cap(buf))
		for _, s := range live {
			if lo < s.hi && s.lo < hi {
				t.Fatalf("allocation %d overlaps live span [%x,%x)", i, s.lo, s.hi)
			}
		}
		live = append(live, span{lo, hi})
	}
}

func TestBitmapFreeAndReuse(t *testing.T) {
	a := testAllocator(t, 1<<20)

	exhaustBump(a, 0)

	buf := a.Allocate(0, 48, Policy{Kind: LocalOnly})
	if buf == nil {
		t.Fatalf("small allocation failed after bump exhaustion")
	}
	if !a.Owns(buf) {
		t.Fatalf("small allocation not arena-backed")
	}
	addr := bufAddr(buf)

	a.Deallocate(buf)
	if got := a.Stats().BitmapFrees; got != 1 {
		t.Fatalf("bitmap frees: got %d want 1", got)
	}

	// double free is detected, not corrupting
	a.Deallocate(buf)
	if got := a.Stats().DoubleFrees; got != 1 {
		t.Fatalf("double frees: got %d want 1", got)
	}

	// freed block is eligible for reuse: the very next bitmap alloc may
	// return the same address
	again := a.Allocate(0, 48, Policy{Kind: LocalOnly})
	if again == nil {
		t.Fatalf("reallocation failed")
	}
	if bufAddr(again) != addr {
		t.Fatalf("freed block not reused: got %x want %x", bufAddr(again), addr)
	}
}

func TestLocalOnlyExhaustionReturnsNil(t *testing.T) {
	a := testAllocator(t, 1<<16)
	exhaustBump(a, 0)
	// drain bitmap
	for a.Allocate(0, SmallBlockSize, Policy{Kind: LocalOnly}) != nil {
	}
	if buf := a.Allocate(0, SmallBlockSize, Policy{Kind: LocalOnly}); buf != nil {
		t.Fatalf("local-only allocation succeeded on exhausted arena")
	}
	if a.Stats().Failures == 0 {
		t.Fatalf("exhaustion not counted as failure")
	}
}

func TestPreferredLocalFallsBackToGeneral(t *testing.T) {
	a := testAllocator(t, 1<<16)
	exhaustBump(a, 0)
	// the contract: preferred-local never fails while general
	// allocation remains available
	for i := 0; i < 32; i++ {
		if a.Allocate(0, 4096, Policy{Kind: PreferredLocal}) == nil {
			t.Fatalf("preferred-local allocation %d failed", i)
		}
	}
	if a.Stats().GeneralAllocs == 0 {
		t.Fatalf("expected general fallback after bump exhaustion")
	}
}

func TestResetCPUReclaimsBumpCarve(t *testing.T) {
	a := testAllocator(t, 1<<20)
	first := a.Allocate(0, 256, Policy{Kind: LocalOnly})
	if first == nil {
		t.Fatalf("first allocation failed")
	}
	firstAddr := bufAddr(first)
	a.ResetCPU(0)
	second := a.Allocate(0, 256, Policy{Kind: LocalOnly})
	if second == nil {
		t.Fatalf("post-reset allocation failed")
	}
	if bufAddr(second) != firstAddr {
		t.Fatalf("bump carve not rewound: got %x want %x", bufAddr(second), firstAddr)
	}
}

func TestInterleavedAndSpecificNode(t *testing.T) {
	a := testAllocator(t, 1<<20)
	for i := 0; i < 64; i++ {
		buf := a.Allocate(0, 32, Policy{Kind: Interleaved})
		if buf == nil {
			t.Fatalf("interleaved allocation %d failed", i)
		}
		a.Deallocate(buf)
	}
	buf := a.Allocate(0, 32, Policy{Kind: SpecificNode, Node: 0})
	if buf == nil {
		t.Fatalf("specific-node allocation failed")
	}
	a.Deallocate(buf)
}

func TestZeroAndNegativeSizes(t *testing.T) {
	a := testAllocator(t, 1<<20)
	if a.Allocate(0, 0, Policy{}) != nil {
		t.Fatalf("zero-size allocation returned a buffer")
	}
	if a.Allocate(0, -1, Policy{}) != nil {
		t.Fatalf("negative-size allocation returned a buffer")
	}
}
