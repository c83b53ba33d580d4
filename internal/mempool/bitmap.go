package mempool

import (
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// SmallBlockSize is the largest object the bitmap allocator serves.
const SmallBlockSize = 64

// bitmapAlloc serves fixed 64-byte blocks from a contiguous arena slice.
// Occupancy lives in a word-per-64-blocks bitmap manipulated with CAS,
// so concurrent allocation from remote-node callers stays lock-free.
type bitmapAlloc struct {
	mem   []byte
	base  uintptr
	words []uint64
}

func newBitmapAlloc(mem []byte) *bitmapAlloc {
	blocks := len(mem) / SmallBlockSize
	if blocks == 0 {
		return &bitmapAlloc{}
	}
	return &bitmapAlloc{
		mem:   mem[:blocks*SmallBlockSize],
		base:  uintptr(unsafe.Pointer(unsafe.SliceData(mem))),
		words: make([]uint64, (blocks+63)/64),
	}
}

// alloc claims one free block, returning nil when the region is full.
func (b *bitmapAlloc) alloc() []byte {
	blocks := len(b.mem) / SmallBlockSize
	for w := range b.words {
		for {
			word := atomic.LoadUint64(&b.words[w])
			free := ^word
			if free == 0 {
				break // word fully occupied, next word
			}
			bit := bits.TrailingZeros64(free)
			block := w*64 + bit
			if block >= blocks {
				return nil // trailing bits past the region
			}
			if atomic.CompareAndSwapUint64(&b.words[w], word, word|(1<<uint(bit))) {
				off := block * SmallBlockSize
				return b.mem[off : off+SmallBlockSize : off+SmallBlockSize]
			}
		}
	}
	return nil
}

// contains reports whether p falls inside the bitmap region.
func (b *bitmapAlloc) contains(p uintptr) bool {
	return len(b.mem) > 0 && p >= b.base && p < b.base+uintptr(len(b.mem))
}

// free releases the block containing p. Returns false on a double free,
// which the caller surfaces as a counted fault rather than corruption.
func (b *bitmapAlloc) free(p uintptr) bool {
	block := int(p-b.base) / SmallBlockSize
	w, bit := block/64, uint(block%64)
	for {
		word := atomic.LoadUint64(&b.words[w])
		if word&(1<<bit) == 0 {
			return false
		}
		if atomic.CompareAndSwapUint64(&b.words[w], word, word&^(1<<bit)) {
			return true
		}
	}
}
