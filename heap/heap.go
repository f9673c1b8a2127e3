package heap

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/goat-simulator444/Memory-Management-Simulator/memutils"
)

// Heap manages an externally supplied, fixed-size byte region as an intrusive
// singly-linked block list. Headers live inside the region itself; Heap only
// holds the slice and an initialization flag. The region is initialized lazily
// on first use to a single free block spanning the whole heap.
//
// Heap is not safe for concurrent use; the consumer serializes access.
type Heap struct {
	data        []byte
	initialized bool
}

var _ memutils.Validatable = &Heap{}

// New wraps an externally owned byte region. The region must be able to hold
// at least one header and a minimal payload, and must be word-aligned so the
// header overlay is valid; buffers from make always are.
func New(storage []byte) (*Heap, error) {
	if len(storage) < HeaderSize+int(Alignment) {
		return nil, errors.Errorf("heap region of %d bytes cannot hold a block header and a minimal payload", len(storage))
	}

	if uintptr(unsafe.Pointer(&storage[0]))%unsafe.Alignof(blockHeader{}) != 0 {
		return nil, errors.Errorf("heap region is not aligned to %d bytes", unsafe.Alignof(blockHeader{}))
	}

	return &Heap{data: storage}, nil
}

// Size returns the total size of the heap region in bytes, headers included.
func (h *Heap) Size() int { return len(h.data) }

func (h *Heap) header(offset int) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(&h.data[offset]))
}

// EnsureInitialized lays down the initial single free block spanning the whole
// region. Every operation calls it, so consumers get lazy initialization for
// free.
func (h *Heap) EnsureInitialized() {
	if h.initialized {
		return
	}

	memutils.DebugCheckPow2(Alignment, "heap alignment")

	head := h.header(0)
	head.id = -1
	head.start = int64(HeaderSize)
	head.size = int64(len(h.data) - HeaderSize)
	head.requested = 0
	head.free = true
	head.cacheable = false
	head.cacheHits = 0
	head.next = nilOffset

	h.initialized = true
}

// First returns the block at the bottom of the heap.
func (h *Heap) First() Block {
	h.EnsureInitialized()
	return Block{heap: h, offset: 0}
}

// BlockAt reconstructs a Block view from a header offset previously obtained
// via Block.Offset. The offset must belong to a live allocated block.
func (h *Heap) BlockAt(offset int) Block {
	return Block{heap: h, offset: offset}
}

// FindFit walks the block list for a free block with capacity of at least size
// bytes, selected according to strategy. Best and worst fit break ties in
// favor of the lowest address.
func (h *Heap) FindFit(size int, strategy FitStrategy) (Block, bool) {
	h.EnsureInitialized()

	var candidate Block
	found := false

	for curr, ok := h.First(), true; ok; curr, ok = curr.Next() {
		hdr := curr.header()
		if !hdr.free || hdr.size < int64(size) {
			continue
		}

		if strategy == FitFirst {
			return curr, true
		}

		if !found {
			candidate = curr
			found = true
			continue
		}

		switch strategy {
		case FitBest:
			if hdr.size < candidate.header().size {
				candidate = curr
			}
		case FitWorst:
			if hdr.size > candidate.header().size {
				candidate = curr
			}
		}
	}

	return candidate, found
}

// FindByID returns the allocated block carrying the given id.
func (h *Heap) FindByID(id int64) (Block, bool) {
	h.EnsureInitialized()

	for curr, ok := h.First(), true; ok; curr, ok = curr.Next() {
		hdr := curr.header()
		if !hdr.free && hdr.id == id {
			return curr, true
		}
	}

	return Block{}, false
}

// Allocate commits a fit candidate: it splits off the tail of the chosen block
// when the remainder can hold a header plus a minimal payload, marks the block
// allocated under the given id, and poisons the payload with
// PatternUninitialized. The candidate must be free and alignedSize must not
// exceed its capacity.
func (h *Heap) Allocate(b Block, id int64, requestedSize, alignedSize int) {
	h.splitIfNeeded(b, alignedSize)

	hdr := b.header()
	hdr.free = false
	hdr.id = id
	hdr.cacheable = true
	hdr.cacheHits = 0
	hdr.start = int64(b.offset + HeaderSize)
	hdr.requested = int64(requestedSize)

	fill(b.Payload(), PatternUninitialized)
}

func (h *Heap) splitIfNeeded(b Block, size int) {
	hdr := b.header()
	remaining := int(hdr.size) - size
	if remaining <= HeaderSize+minSplitPayload {
		return
	}

	newOffset := b.offset + HeaderSize + size
	newHdr := h.header(newOffset)
	newHdr.id = -1
	newHdr.start = int64(newOffset + HeaderSize)
	newHdr.size = int64(remaining - HeaderSize)
	newHdr.requested = 0
	newHdr.free = true
	newHdr.cacheable = false
	newHdr.cacheHits = 0
	newHdr.next = hdr.next

	hdr.size = int64(size)
	hdr.next = int64(newOffset)
}

// Free turns the block back into a hole: the payload is poisoned with
// PatternFreed, the header is reset to the free state, and adjacent free
// neighbors are coalesced.
func (h *Heap) Free(b Block) {
	hdr := b.header()
	fill(h.data[hdr.start:hdr.start+hdr.size], PatternFreed)

	hdr.free = true
	hdr.id = -1
	hdr.requested = 0
	hdr.cacheable = false
	hdr.cacheHits = 0

	h.coalesce()
}

// coalesce merges every adjacent pair of free, physically contiguous blocks.
// The scan stays on a merged block until its new successor has been checked,
// so a single left-to-right pass suffices.
func (h *Heap) coalesce() {
	offset := int64(0)
	for offset != nilOffset {
		hdr := h.header(int(offset))
		next := hdr.next
		if next != nilOffset && hdr.free {
			nextHdr := h.header(int(next))
			if nextHdr.free && offset+int64(HeaderSize)+hdr.size == next {
				hdr.size += int64(HeaderSize) + nextHdr.size
				hdr.requested = 0
				hdr.next = nextHdr.next
				continue
			}
		}
		offset = hdr.next
	}
}

// AddDetailedStatistics sums this heap's block statistics into stats.
func (h *Heap) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	h.EnsureInitialized()

	for curr, ok := h.First(), true; ok; curr, ok = curr.Next() {
		hdr := curr.header()
		if hdr.free {
			stats.AddFreeRegion(int(hdr.size))
		} else {
			stats.AddAllocation(int(hdr.size), int(hdr.requested))
		}
	}
}

// Validate performs internal consistency checks on the block list: contiguous
// coverage of the region, coalesced free space, aligned allocated capacities,
// and distinct live ids. When the heap is functioning correctly it should not
// be possible for this method to return an error.
func (h *Heap) Validate() error {
	h.EnsureInitialized()

	expectedOffset := 0
	covered := 0
	prevFree := false
	liveIDs := make(map[int64]struct{})

	for curr, ok := h.First(), true; ok; curr, ok = curr.Next() {
		hdr := curr.header()

		if curr.offset != expectedOffset {
			return errors.Errorf("block header at offset %d does not start at the end of the previous block (expected offset %d)", curr.offset, expectedOffset)
		}

		if hdr.start != int64(curr.offset+HeaderSize) {
			return errors.Errorf("block at offset %d reports payload offset %d, expected %d", curr.offset, hdr.start, curr.offset+HeaderSize)
		}

		if hdr.free {
			if prevFree {
				return errors.Errorf("adjacent free blocks ending at offset %d were not coalesced", curr.offset)
			}
			if hdr.id != -1 {
				return errors.Errorf("free block at offset %d carries id %d, expected -1", curr.offset, hdr.id)
			}
			if hdr.requested != 0 {
				return errors.Errorf("free block at offset %d has requested size %d, expected 0", curr.offset, hdr.requested)
			}
			if hdr.cacheable {
				return errors.Errorf("free block at offset %d is marked cacheable", curr.offset)
			}
		} else {
			if hdr.size < hdr.requested {
				return errors.Errorf("allocated block %d has capacity %d smaller than its requested size %d", hdr.id, hdr.size, hdr.requested)
			}
			if hdr.size%int64(Alignment) != 0 {
				return errors.Errorf("allocated block %d has capacity %d, which is not a multiple of the heap alignment %d", hdr.id, hdr.size, Alignment)
			}
			if _, dup := liveIDs[hdr.id]; dup {
				return errors.Errorf("id %d appears on more than one live block", hdr.id)
			}
			liveIDs[hdr.id] = struct{}{}
		}

		prevFree = hdr.free
		covered += HeaderSize + int(hdr.size)
		expectedOffset = curr.offset + HeaderSize + int(hdr.size)
	}

	if covered != len(h.data) {
		return errors.Errorf("block list covers %d bytes but the heap region is %d bytes", covered, len(h.data))
	}

	return nil
}

func fill(dst []byte, pattern byte) {
	for i := range dst {
		dst[i] = pattern
	}
}
