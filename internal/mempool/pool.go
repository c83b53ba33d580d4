package mempool

import (
	"sync"

	"github.com/yanun0323/errors"
)

// BufferPool hands out fixed-size frame buffers to one worker. Buffers
// come from doubling chunks: each growth allocates twice as many buffers
// as the previous chunk, up to MaxChunks chunks. Growth is the only
// operation that takes the mutex — it is rare and off the hot path; Get
// and Put on a warm pool are plain slice operations on the owner thread.
type BufferPool struct {
	bufSize    int
	nextCount  int
	maxChunks  int
	chunkAlloc func(count int) []byte

	mu     sync.Mutex
	chunks int
	free   [][]byte
}

// NewBufferPool creates a pool of bufSize-byte buffers. initialCount is
// the first chunk's buffer count; each later chunk doubles it. alloc
// supplies chunk backing memory (an Allocator carve or nil for heap).
func NewBufferPool(bufSize, initialCount, maxChunks int, alloc func(bytes int) []byte) (*BufferPool, error) {
	if bufSize <= 0 || initialCount <= 0 || maxChunks <= 0 {
		return nil, errors.New("mempool: buffer pool sizes must be > 0")
	}
	p := &BufferPool{
		bufSize:   bufSize,
		nextCount: initialCount,
		maxChunks: maxChunks,
	}
	if alloc == nil {
		alloc = func(bytes int) []byte { return make([]byte, bytes) }
	}
	p.chunkAlloc = alloc
	if !p.grow() {
		return nil, errors.New("mempool: initial chunk allocation failed")
	}
	return p, nil
}

// Get returns one buffer sliced to zero length, or nil when the pool is
// exhausted and cannot grow further. The caller must Put it back.
func (p *BufferPool) Get() []byte {
	if n := len(p.free); n > 0 {
		buf := p.free[n-1]
		p.free = p.free[:n-1]
		return buf[:0]
	}
	if !p.grow() {
		return nil
	}
	n := len(p.free)
	buf := p.free[n-1]
	p.free = p.free[:n-1]
	return buf[:0]
}

// Put returns a buffer to the free list.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) < p.bufSize {
		return // not ours
	}
	p.free = append(p.free, buf[:0])
}

// Free reports how many buffers are currently available without growth.
func (p *BufferPool) Free() int { return len(p.free) }

// BufSize returns the fixed buffer size.
func (p *BufferPool) BufSize() int { return p.bufSize }

func (p *BufferPool) grow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.chunks >= p.maxChunks {
		return false
	}
	count := p.nextCount
	chunk := p.chunkAlloc(count * p.bufSize)
	if chunk == nil || len(chunk) < count*p.bufSize {
		return false
	}
	for i := 0; i < count; i++ {
		lo := i * p.bufSize
		p.free = append(p.free, chunk[lo:lo:lo+p.bufSize])
	}
	p.chunks++
	p.nextCount = count * 2
	return true
}
