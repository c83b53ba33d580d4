package ring

import "sync/atomic"

// MPSC is the multi-producer/single-consumer variant. Producers claim a
// slot by CAS on the tail cursor, then publish payload with a release
// store of the slot sequence. The consumer side is identical to Ring.
type MPSC[T any] struct {
	_    [64]byte
	head uint64 // consumer cursor
	_    [56]byte
	tail uint64 // producer cursor, CAS-claimed
	_    [56]byte
	mask uint64
	buf  []slot[T]
}

// NewMPSC allocates an MPSC queue. Capacity must be a power of two.
func NewMPSC[T any](capacity int) *MPSC[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be > 0 and a power of two")
	}
	q := &MPSC[T]{
		mask: uint64(capacity - 1),
		buf:  make([]slot[T], capacity),
	}
	for i := range q.buf {
		q.buf[i].seq = uint64(i)
	}
	return q
}

// Cap returns the fixed capacity.
func (q *MPSC[T]) Cap() int { return len(q.buf) }

// Push enqueues v from any producer thread, returning false when the
// queue is full. Producers that lose a CAS race retry on the next slot;
// a full queue is detected when the claimed slot still holds a sequence
// from the previous generation.
func (q *MPSC[T]) Push(v T) bool {
	for {
		t := atomic.LoadUint64(&q.tail)
		s := &q.buf[t&q.mask]
		seq := atomic.LoadUint64(&s.seq)
		switch {
		case seq == t:
			if atomic.CompareAndSwapUint64(&q.tail, t, t+1) {
				s.val = v
				atomic.StoreUint64(&s.seq, t+1)
				return true
			}
		case seq < t:
			return false // slot not reclaimed: queue full
		default:
			// another producer claimed t; reload and retry
		}
	}
}

// Pop dequeues into out from the single consumer thread, returning
// false when the queue is empty.
func (q *MPSC[T]) Pop(out *T) bool {
	h := q.head
	s := &q.buf[h&q.mask]
	if atomic.LoadUint64(&s.seq) != h+1 {
		return false
	}
	*out = s.val
	atomic.StoreUint64(&s.seq, h+uint64(len(q.buf)))
	q.head = h + 1
	return true
}
