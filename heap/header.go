package heap

import (
	"unsafe"
)

const (
	// Alignment is the maximum fundamental alignment the heap imposes on
	// payloads. Allocation sizes are rounded up to a multiple of it.
	Alignment uint = 16

	// PatternUninitialized is the byte written across the payload of a fresh
	// allocation. Reading it back signals use of uninitialized memory.
	PatternUninitialized byte = 0xCD
	// PatternFreed is the byte written across the payload of a freed block.
	// Reading it back signals use-after-free.
	PatternFreed byte = 0xDD

	// minSplitPayload is the smallest payload worth carving a new free block
	// for. Remainders at or below HeaderSize+minSplitPayload stay in the
	// allocated block as slack.
	minSplitPayload = 8
)

const nilOffset int64 = -1

// blockHeader lives at the beginning of every block inside the heap region:
// [blockHeader][payload bytes ...]. The struct is padded to a multiple of
// Alignment so that payloads start aligned and split remainders keep every
// block capacity a multiple of Alignment.
type blockHeader struct {
	id        int64
	start     int64 // heap-relative offset of the first payload byte
	size      int64 // payload capacity in bytes
	requested int64 // user-requested size; 0 for free blocks
	cacheHits int64
	next      int64 // heap-relative offset of the next header, or nilOffset
	free      bool
	cacheable bool
	_         [14]byte
}

// HeaderSize is the number of bytes each block header occupies inside the heap.
const HeaderSize = int(unsafe.Sizeof(blockHeader{}))

// Block is a borrowed view of one block inside the heap. It stays valid for as
// long as the block's header remains at its offset: allocated blocks never
// move, free blocks may be absorbed by coalescing.
type Block struct {
	heap   *Heap
	offset int
}

func (b Block) header() *blockHeader {
	return b.heap.header(b.offset)
}

// Offset returns the heap-relative byte offset of the block's header.
func (b Block) Offset() int { return b.offset }

// ID returns the block's id, or -1 for free blocks.
func (b Block) ID() int64 { return b.header().id }

// PayloadOffset returns the heap-relative byte offset of the first payload byte.
func (b Block) PayloadOffset() int { return int(b.header().start) }

// Size returns the payload capacity in bytes.
func (b Block) Size() int { return int(b.header().size) }

// RequestedSize returns the size the user originally asked for, or 0 for free
// blocks.
func (b Block) RequestedSize() int { return int(b.header().requested) }

// IsFree reports whether the block is a free hole.
func (b Block) IsFree() bool { return b.header().free }

// Cacheable reports whether accesses through this block route through the
// cache hierarchy.
func (b Block) Cacheable() bool { return b.header().cacheable }

// CacheHits returns how many times this block was pushed through the cache via
// the access operation.
func (b Block) CacheHits() int64 { return b.header().cacheHits }

// SetCacheable flips whether accesses through this block route through the
// cache hierarchy.
func (b Block) SetCacheable(cacheable bool) {
	b.header().cacheable = cacheable
}

// RecordCacheHit bumps the block's access counter.
func (b Block) RecordCacheHit() {
	b.header().cacheHits++
}

// Payload returns the block's payload bytes as a mutable view into the heap
// region.
func (b Block) Payload() []byte {
	hdr := b.header()
	return b.heap.data[hdr.start : hdr.start+hdr.size]
}

// Next returns the block that physically follows this one, if any.
func (b Block) Next() (Block, bool) {
	next := b.header().next
	if next == nilOffset {
		return Block{}, false
	}
	return Block{heap: b.heap, offset: int(next)}, true
}
