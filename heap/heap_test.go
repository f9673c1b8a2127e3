package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goat-simulator444/Memory-Management-Simulator/memutils"
)

const testHeapSize = 64 * 1024

func testHeap(t *testing.T) *Heap {
	t.Helper()

	h, err := New(make([]byte, testHeapSize))
	require.NoError(t, err)
	return h
}

// alloc drives a FindFit+Allocate round trip the way the façade does.
func alloc(t *testing.T, h *Heap, id int64, size int, strategy FitStrategy) Block {
	t.Helper()

	alignedSize := memutils.AlignUp(size, Alignment)
	block, ok := h.FindFit(alignedSize, strategy)
	require.True(t, ok)

	h.Allocate(block, id, size, alignedSize)
	return block
}

func TestHeaderSizeIsAligned(t *testing.T) {
	require.Zero(t, HeaderSize%int(Alignment))
}

func TestNewRejectsTinyRegion(t *testing.T) {
	_, err := New(make([]byte, HeaderSize))
	require.Error(t, err)
}

func TestInitialSingleFreeBlock(t *testing.T) {
	h := testHeap(t)

	block := h.First()
	require.True(t, block.IsFree())
	require.Equal(t, int64(-1), block.ID())
	require.Equal(t, testHeapSize-HeaderSize, block.Size())
	require.Equal(t, 0, block.RequestedSize())
	require.False(t, block.Cacheable())
	require.Equal(t, HeaderSize, block.PayloadOffset())

	_, hasNext := block.Next()
	require.False(t, hasNext)

	require.NoError(t, h.Validate())
}

func TestAllocateSplitsLargeBlock(t *testing.T) {
	h := testHeap(t)

	block := alloc(t, h, 0, 100, FitFirst)
	require.False(t, block.IsFree())
	require.Equal(t, int64(0), block.ID())
	require.Equal(t, 112, block.Size())
	require.Equal(t, 100, block.RequestedSize())
	require.True(t, block.Cacheable())

	for _, b := range block.Payload() {
		require.Equal(t, PatternUninitialized, b)
	}

	remainder, hasNext := block.Next()
	require.True(t, hasNext)
	require.True(t, remainder.IsFree())
	require.Equal(t, HeaderSize+112, remainder.Offset())
	require.Equal(t, testHeapSize-2*HeaderSize-112, remainder.Size())

	require.NoError(t, h.Validate())
}

func TestAllocateKeepsSlackWhenRemainderTooSmall(t *testing.T) {
	h := testHeap(t)

	wholePayload := testHeapSize - HeaderSize

	// A remainder of HeaderSize bytes is below the split threshold, so the
	// allocation absorbs it as slack.
	requested := wholePayload - HeaderSize
	alignedSize := memutils.AlignUp(requested, Alignment)
	require.Equal(t, wholePayload-HeaderSize, alignedSize)

	block, ok := h.FindFit(alignedSize, FitFirst)
	require.True(t, ok)
	h.Allocate(block, 0, requested, alignedSize)

	require.Equal(t, wholePayload, block.Size())
	_, hasNext := block.Next()
	require.False(t, hasNext)

	require.NoError(t, h.Validate())
}

func TestAllocateSplitsWhenRemainderFitsHeaderAndPayload(t *testing.T) {
	h := testHeap(t)

	wholePayload := testHeapSize - HeaderSize
	alignedSize := wholePayload - HeaderSize - int(Alignment)

	block, ok := h.FindFit(alignedSize, FitFirst)
	require.True(t, ok)
	h.Allocate(block, 0, alignedSize, alignedSize)

	require.Equal(t, alignedSize, block.Size())

	remainder, hasNext := block.Next()
	require.True(t, hasNext)
	require.True(t, remainder.IsFree())
	require.Equal(t, int(Alignment), remainder.Size())

	require.NoError(t, h.Validate())
}

func TestFindFitStrategies(t *testing.T) {
	h := testHeap(t)

	alloc(t, h, 0, 100, FitFirst)
	middle := alloc(t, h, 1, 1000, FitFirst)
	alloc(t, h, 2, 100, FitFirst)

	h.Free(middle)

	// The hole left by the middle block is 1008 bytes; the tail block is far
	// larger.
	holeOffset := middle.Offset()

	best, ok := h.FindFit(64, FitBest)
	require.True(t, ok)
	require.Equal(t, holeOffset, best.Offset())

	first, ok := h.FindFit(64, FitFirst)
	require.True(t, ok)
	require.Equal(t, holeOffset, first.Offset())

	worst, ok := h.FindFit(64, FitWorst)
	require.True(t, ok)
	require.NotEqual(t, holeOffset, worst.Offset())
	require.Greater(t, worst.Size(), best.Size())
}

func TestFindFitTieBreaksToLowestAddress(t *testing.T) {
	h := testHeap(t)

	a := alloc(t, h, 0, 100, FitFirst)
	alloc(t, h, 1, 100, FitFirst)
	c := alloc(t, h, 2, 100, FitFirst)
	alloc(t, h, 3, 100, FitFirst)

	// Pin down the tail so the two identical holes are the only candidates.
	tail, ok := h.FindFit(1024, FitFirst)
	require.True(t, ok)
	h.Allocate(tail, 4, tail.Size(), tail.Size())

	h.Free(a)
	h.Free(c)

	best, ok := h.FindFit(64, FitBest)
	require.True(t, ok)
	require.Equal(t, a.Offset(), best.Offset())

	worst, ok := h.FindFit(64, FitWorst)
	require.True(t, ok)
	require.Equal(t, a.Offset(), worst.Offset())
}

func TestFindFitFailsWhenNothingFits(t *testing.T) {
	h := testHeap(t)

	_, ok := h.FindFit(testHeapSize, FitFirst)
	require.False(t, ok)
}

func TestFreeCoalescesToSingleBlock(t *testing.T) {
	h := testHeap(t)

	a := alloc(t, h, 0, 100, FitFirst)
	b := alloc(t, h, 1, 200, FitFirst)

	h.Free(a)
	require.NoError(t, h.Validate())

	h.Free(b)
	require.NoError(t, h.Validate())

	block := h.First()
	require.True(t, block.IsFree())
	require.Equal(t, testHeapSize-HeaderSize, block.Size())

	_, hasNext := block.Next()
	require.False(t, hasNext)
}

func TestFreeMergesAcrossEarlierHoles(t *testing.T) {
	h := testHeap(t)

	a := alloc(t, h, 0, 100, FitFirst)
	b := alloc(t, h, 1, 100, FitFirst)
	c := alloc(t, h, 2, 100, FitFirst)

	h.Free(a)
	h.Free(c)
	require.NoError(t, h.Validate())

	// Freeing the middle block joins both holes and the tail in one pass.
	h.Free(b)
	require.NoError(t, h.Validate())

	block := h.First()
	require.True(t, block.IsFree())
	require.Equal(t, testHeapSize-HeaderSize, block.Size())
}

func TestFreePoisonsPayload(t *testing.T) {
	h := testHeap(t)

	a := alloc(t, h, 0, 100, FitFirst)
	alloc(t, h, 1, 100, FitFirst)

	payload := a.Payload()
	for i := range payload {
		payload[i] = 0x42
	}

	h.Free(a)

	// The used neighbor blocks coalescing, so the hole keeps its exact shape.
	hole := h.First()
	require.True(t, hole.IsFree())
	require.Equal(t, 112, hole.Size())
	for _, b := range hole.Payload() {
		require.Equal(t, PatternFreed, b)
	}
}

func TestReuseOverwritesFreedPoison(t *testing.T) {
	h := testHeap(t)

	a := alloc(t, h, 0, 100, FitFirst)
	alloc(t, h, 1, 100, FitFirst)
	h.Free(a)

	reused := alloc(t, h, 2, 100, FitFirst)
	require.Equal(t, a.Offset(), reused.Offset())
	for _, b := range reused.Payload() {
		require.Equal(t, PatternUninitialized, b)
	}
}

func TestFindByID(t *testing.T) {
	h := testHeap(t)

	alloc(t, h, 7, 100, FitFirst)
	b := alloc(t, h, 9, 100, FitFirst)

	found, ok := h.FindByID(9)
	require.True(t, ok)
	require.Equal(t, b.Offset(), found.Offset())

	_, ok = h.FindByID(42)
	require.False(t, ok)
}

func TestAddDetailedStatistics(t *testing.T) {
	h := testHeap(t)

	alloc(t, h, 0, 100, FitFirst)
	alloc(t, h, 1, 200, FitFirst)

	var stats memutils.DetailedStatistics
	stats.Clear()
	h.AddDetailedStatistics(&stats)

	require.Equal(t, 2, stats.UsedBlockCount)
	require.Equal(t, 112+208, stats.UsedBytes)
	require.Equal(t, 20, stats.InternalFragmentationBytes)
	require.Equal(t, 1, stats.FreeBlockCount)

	expectedFree := testHeapSize - 3*HeaderSize - 112 - 208
	require.Equal(t, expectedFree, stats.FreeBytes)
	require.Equal(t, expectedFree, stats.LargestFreeRegion)
}

func TestBlockCacheAccounting(t *testing.T) {
	h := testHeap(t)

	block := alloc(t, h, 0, 100, FitFirst)
	require.True(t, block.Cacheable())

	block.SetCacheable(false)
	require.False(t, block.Cacheable())

	require.Equal(t, int64(0), block.CacheHits())
	block.RecordCacheHit()
	block.RecordCacheHit()
	require.Equal(t, int64(2), block.CacheHits())
}
