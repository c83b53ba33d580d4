// Package mempool implements the NUMA-aware allocation layer under the
// ingestion and risk paths. Each NUMA node owns one large, node-bound,
// optionally huge-page-backed arena split into a per-CPU bump region
// (the fast path) and a shared 64-byte bitmap region (the small-object
// overflow path). Everything outside an arena is ordinary Go allocation.
//
// Allocation failure is a nil return, never a panic; deallocation routes
// by address-range containment back to whichever sub-allocator owns the
// address, so freeing through the wrong path cannot happen.
package mempool

import (
	"sync/atomic"
	"unsafe"

	"github.com/yanun0323/errors"

	"main/internal/numa"
)

// PolicyKind selects where an allocation may be placed.
type PolicyKind uint8

const (
	// PreferredLocal tries the caller's node arena, then general
	// allocation. The default.
	PreferredLocal PolicyKind = iota
	// LocalOnly allows only the caller's node arena; exhaustion is a
	// nil return.
	LocalOnly
	// Interleaved rotates small allocations across node arenas.
	Interleaved
	// SpecificNode targets one node's arena.
	SpecificNode
)

// Policy is an allocation placement request.
type Policy struct {
	Kind PolicyKind
	Node int // used by SpecificNode
}

// Config sizes the arenas.
type Config struct {
	// ArenaSize is the per-node arena size in bytes.
	ArenaSize int
	// BitmapFraction is the arena share (1/N) handed to the small-object
	// bitmap allocator. Defaults to 8.
	BitmapFraction int
	// HugePages requests MAP_HUGETLB backing, falling back silently.
	HugePages bool
}

// Stats are monotonic allocator counters.
type Stats struct {
	BumpAllocs    uint64
	BitmapAllocs  uint64
	GeneralAllocs uint64
	Failures      uint64
	BumpReleases  uint64
	BitmapFrees   uint64
	DoubleFrees   uint64
}

type bump struct {
	mem []byte
	off int
}

type nodeArena struct {
	node   int
	mem    []byte
	base   uintptr
	limit  uintptr
	mapped bool
	small  *bitmapAlloc
}

// Allocator owns one arena per NUMA node plus a bump carve per logical
// CPU. Each bump carve is touched only by its pinned owner thread, so
// the fast path has no synchronization at all; the bitmap path is
// lock-free CAS. There is no lock anywhere in this type.
type Allocator struct {
	topo   *numa.Topology
	arenas map[int]*nodeArena
	bumps  map[int]*bump // logical CPU -> its carve
	rr     uint64        // interleave cursor

	bumpAllocs    uint64
	bitmapAllocs  uint64
	generalAllocs uint64
	failures      uint64
	bumpReleases  uint64
	bitmapFrees   uint64
	doubleFrees   uint64
}

// NewAllocator maps one arena per discovered node and carves the bump
// region across the node's CPUs. ArenaSize must be positive.
func NewAllocator(topo *numa.Topology, cfg Config) (*Allocator, error) {
	if topo == nil || topo.NodeCount() == 0 {
		return nil, errors.New("mempool: nil or empty topology")
	}
	if cfg.ArenaSize <= 0 {
		return nil, errors.New("mempool: arena size must be > 0")
	}
	if cfg.BitmapFraction <= 0 {
		cfg.BitmapFraction = 8
	}

	a := &Allocator{
		topo:   topo,
		arenas: make(map[int]*nodeArena, topo.NodeCount()),
		bumps:  make(map[int]*bump),
	}
	for _, node := range topo.Nodes {
		mem, mapped, err := mapArena(cfg.ArenaSize, node.ID, cfg.HugePages)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "map arena")
		}
		smallBytes := len(mem) / cfg.BitmapFraction
		smallBytes -= smallBytes % SmallBlockSize
		bumpBytes := len(mem) - smallBytes

		na := &nodeArena{
			node:   node.ID,
			mem:    mem,
			base:   uintptr(unsafe.Pointer(unsafe.SliceData(mem))),
			limit:  uintptr(unsafe.Pointer(unsafe.SliceData(mem))) + uintptr(len(mem)),
			mapped: mapped,
			small:  newBitmapAlloc(mem[bumpBytes:]),
		}
		a.arenas[node.ID] = na

		carve := bumpBytes / len(node.CPUs)
		carve -= carve % SmallBlockSize
		for i, cpu := range node.CPUs {
			lo := i * carve
			a.bumps[cpu] = &bump{mem: mem[lo : lo+carve : lo+carve]}
		}
	}
	return a, nil
}

// Allocate returns a buffer of at least size bytes placed per policy,
// or nil when the policy cannot be satisfied. cpu identifies the calling
// worker's pinned logical CPU and selects its bump carve. A prefetch
// touch pulls the buffer's first cache line before it is returned.
func (a *Allocator) Allocate(cpu, size int, pol Policy) []byte {
	if size <= 0 {
		return nil
	}
	var buf []byte
	switch pol.Kind {
	case LocalOnly:
		buf = a.allocArena(cpu, size)
		if buf == nil {
			atomic.AddUint64(&a.failures, 1)
			return nil
		}
	case PreferredLocal:
		buf = a.allocArena(cpu, size)
		if buf == nil {
			buf = a.allocGeneral(size)
		}
	case Interleaved:
		node := a.topo.Nodes[atomic.AddUint64(&a.rr, 1)%uint64(len(a.topo.Nodes))].ID
		buf = a.allocRemote(node, size)
		if buf == nil {
			buf = a.allocGeneral(size)
		}
	case SpecificNode:
		buf = a.allocRemote(pol.Node, size)
		if buf == nil {
			buf = a.allocGeneral(size)
		}
	default:
		buf = a.allocGeneral(size)
	}
	if len(buf) > 0 {
		prefetch(buf)
	}
	return buf
}

// allocArena serves from the caller's bump carve, then from the local
// node's bitmap region for small objects.
func (a *Allocator) allocArena(cpu, size int) []byte {
	if b, ok := a.bumps[cpu]; ok {
		aligned := alignUp(size)
		if b.off+aligned <= len(b.mem) {
			buf := b.mem[b.off : b.off+size : b.off+aligned]
			b.off += aligned
			atomic.AddUint64(&a.bumpAllocs, 1)
			return buf
		}
	}
	if size <= SmallBlockSize {
		if na, ok := a.arenas[a.topo.NodeOf(cpu)]; ok {
			if buf := na.small.alloc(); buf != nil {
				atomic.AddUint64(&a.bitmapAllocs, 1)
				return buf[:size:SmallBlockSize]
			}
		}
	}
	return nil
}

// allocRemote serves small objects from a specific node's bitmap region.
// Larger cross-node requests defer to general allocation: the bump
// carves are single-owner by design and never shared across nodes.
func (a *Allocator) allocRemote(node, size int) []byte {
	if size > SmallBlockSize {
		return nil
	}
	na, ok := a.arenas[node]
	if !ok {
		return nil
	}
	buf := na.small.alloc()
	if buf == nil {
		return nil
	}
	atomic.AddUint64(&a.bitmapAllocs, 1)
	return buf[:size:SmallBlockSize]
}

func (a *Allocator) allocGeneral(size int) []byte {
	atomic.AddUint64(&a.generalAllocs, 1)
	return make([]byte, size)
}

// Deallocate routes buf back to its owning sub-allocator by address
// range: bitmap region → clear the occupancy bit; bump region → released
// in bulk by ResetCPU; outside every arena → garbage collected.
func (a *Allocator) Deallocate(buf []byte) {
	if len(buf) == 0 {
		return
	}
	p := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	for _, na := range a.arenas {
		if p < na.base || p >= na.limit {
			continue
		}
		if na.small.contains(p) {
			if na.small.free(p) {
				atomic.AddUint64(&a.bitmapFrees, 1)
			} else {
				atomic.AddUint64(&a.doubleFrees, 1)
			}
		} else {
			atomic.AddUint64(&a.bumpReleases, 1)
		}
		return
	}
	// general allocation, GC-owned
}

// ResetCPU rewinds one CPU's bump carve. Only the owning worker may call
// it, and only when every allocation from the carve is dead.
func (a *Allocator) ResetCPU(cpu int) {
	if b, ok := a.bumps[cpu]; ok {
		b.off = 0
	}
}

// Owns reports whether buf lives inside any arena.
func (a *Allocator) Owns(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	p := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	for _, na := range a.arenas {
		if p >= na.base && p < na.limit {
			return true
		}
	}
	return false
}

// Stats returns a snapshot of the allocator counters.
func (a *Allocator) Stats() Stats {
	return Stats{
		BumpAllocs:    atomic.LoadUint64(&a.bumpAllocs),
		BitmapAllocs:  atomic.LoadUint64(&a.bitmapAllocs),
		GeneralAllocs: atomic.LoadUint64(&a.generalAllocs),
		Failures:      atomic.LoadUint64(&a.failures),
		BumpReleases:  atomic.LoadUint64(&a.bumpReleases),
		BitmapFrees:   atomic.LoadUint64(&a.bitmapFrees),
		DoubleFrees:   atomic.LoadUint64(&a.doubleFrees),
	}
}

// Close unmaps every arena. Outstanding arena buffers become invalid.
func (a *Allocator) Close() {
	for _, na := range a.arenas {
		if na.mapped {
			unmapArena(na.mem)
		}
	}
	a.arenas = map[int]*nodeArena{}
	a.bumps = map[int]*bump{}
}

// alignUp rounds size to the cache-line grain the bump carve hands out.
func alignUp(size int) int {
	return (size + 63) &^ 63
}

// prefetch pulls the first cache line of buf before first use.
func prefetch(buf []byte) {
	_ = buf[0]
}
