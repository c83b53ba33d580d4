// Package ring provides fixed-capacity lock-free queues for one-way
// hand-off between pinned pipeline threads.
//
// Ring is single-producer/single-consumer; MPSC is the documented
// multi-producer variant. Both use per-slot sequence numbers so a push
// or pop succeeds only when the slot's sequence matches the expected
// generation, which detects the wrap-around race without locks. The
// producer publishes payload with a release store of the sequence; the
// consumer acquire-loads the sequence before reading payload. Go's
// sync/atomic is sequentially consistent, a conservative superset of
// the required acquire/release ordering.
//
// A full queue rejects pushes instead of blocking; queue-full is a
// normal condition and the caller owns the retry/drop policy. Nothing
// allocates after construction.
package ring

import "sync/atomic"

// A slot packs the sequence word next to its payload, so adjacent
// slots share a cache line when T is much smaller than a line. The
// pipeline rings carry near-line-sized event structs, which keeps
// neighboring slots on separate lines without per-slot padding.
type slot[T any] struct {
	seq uint64
	val T
}

// Ring is a fixed-capacity circular buffer dedicated to exactly one
// producer thread and one consumer thread. Head and tail cursors live on
// separate cache lines to avoid false sharing.
type Ring[T any] struct {
	_    [64]byte
	head uint64 // consumer cursor
	_    [56]byte
	tail uint64 // producer cursor
	_    [56]byte
	mask uint64
	buf  []slot[T]
}

// New allocates a ring. Capacity must be a power of two so the cursor
// masking stays valid; anything else panics at construction, which is
// the only place this package is allowed to fail loudly.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be > 0 and a power of two")
	}
	r := &Ring[T]{
		mask: uint64(capacity - 1),
		buf:  make([]slot[T], capacity),
	}
	for i := range r.buf {
		r.buf[i].seq = uint64(i)
	}
	return r
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Push enqueues v by value copy, returning false when the ring is full.
func (r *Ring[T]) Push(v T) bool {
	t := r.tail
	s := &r.buf[t&r.mask]
	if atomic.LoadUint64(&s.seq) != t {
		return false // consumer has not reclaimed the slot yet
	}
	s.val = v
	atomic.StoreUint64(&s.seq, t+1)
	r.tail = t + 1
	return true
}

// Pop dequeues into out, returning false when the ring is empty.
// Ownership of the value transfers to the consumer on return.
func (r *Ring[T]) Pop(out *T) bool {
	h := r.head
	s := &r.buf[h&r.mask]
	if atomic.LoadUint64(&s.seq) != h+1 {
		return false // producer has not published to the slot yet
	}
	*out = s.val
	atomic.StoreUint64(&s.seq, h+uint64(len(r.buf)))
	r.head = h + 1
	return true
}

// PopBatch dequeues up to len(out) items, returning how many were
// taken. Used by burst-granularity consumers.
func (r *Ring[T]) PopBatch(out []T) int {
	n := 0
	for n < len(out) && r.Pop(&out[n]) {
		n++
	}
	return n
}
