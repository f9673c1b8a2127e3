package memsim

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/dolthub/swiss"
	"github.com/pkg/errors"

	"github.com/goat-simulator444/Memory-Management-Simulator/cache"
	"github.com/goat-simulator444/Memory-Management-Simulator/heap"
	"github.com/goat-simulator444/Memory-Management-Simulator/memutils"
)

// WritePolicy controls what happens when a write's destination range still
// contains poison bytes.
type WritePolicy uint32

const (
	// WriteAllowGarbage flags the garbage but performs the write anyway.
	WriteAllowGarbage WritePolicy = iota
	// WriteRejectGarbage refuses the write and reports failure without
	// touching memory or the cache.
	WriteRejectGarbage
)

var writePolicyMapping = map[WritePolicy]string{
	WriteAllowGarbage:  "WriteAllowGarbage",
	WriteRejectGarbage: "WriteRejectGarbage",
}

func (p WritePolicy) String() string {
	return writePolicyMapping[p]
}

// CreateOptions tunes a new Allocator. The zero value selects first fit, the
// permissive write policy, the default logger, and stdout for dump/stats
// output.
type CreateOptions struct {
	Strategy    heap.FitStrategy
	WritePolicy WritePolicy
	Logger      *slog.Logger
	Output      io.Writer
}

// Allocator is the façade over the heap and the cache hierarchy. It owns the
// id counter, the id index, the allocation counters, and the default fit
// strategy, and it is the only component that crosses from allocator-land into
// cache-land: every simulated memory access funnels through here.
//
// A single mutex serializes all public operations.
type Allocator struct {
	logger *slog.Logger
	out    io.Writer
	mutex  sync.Mutex

	heap      *heap.Heap
	hierarchy *cache.Hierarchy

	strategy    heap.FitStrategy
	writePolicy WritePolicy

	nextID     int64
	blocksByID *swiss.Map[int64, int]

	allocRequests  uint64
	allocSuccesses uint64
	allocFailures  uint64

	cacheConfigured bool
}

var _ memutils.Validatable = &Allocator{}

// New wraps an externally owned heap region. The region's length is the heap
// size for the allocator's whole lifetime.
func New(storage []byte, options CreateOptions) (*Allocator, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := options.Output
	if out == nil {
		out = os.Stdout
	}

	h, err := heap.New(storage)
	if err != nil {
		return nil, err
	}

	return &Allocator{
		logger:      logger,
		out:         out,
		heap:        h,
		hierarchy:   cache.New(logger),
		strategy:    options.Strategy,
		writePolicy: options.WritePolicy,
		blocksByID:  swiss.NewMap[int64, int](42),
	}, nil
}

// ensureInit is called at the top of every operation. The heap lays down its
// initial free block lazily; the cache hierarchy gets the stock two-level
// configuration unless the consumer configured it explicitly first.
func (a *Allocator) ensureInit() {
	if !a.cacheConfigured {
		a.hierarchy.InitDefault()
		a.cacheConfigured = true
	}
	a.heap.EnsureInitialized()
}

// Malloc allocates size bytes using the allocator's current default strategy
// and returns the new block's id, or -1 on failure.
func (a *Allocator) Malloc(size int) int64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.malloc(size, a.strategy)
}

// MallocWithStrategy allocates size bytes using the given fit strategy and
// returns the new block's id, or -1 on failure.
func (a *Allocator) MallocWithStrategy(size int, strategy heap.FitStrategy) int64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.malloc(size, strategy)
}

// MallocWithStrategyName allocates size bytes using a strategy given by name
// ("first", "best", "worst" and common variants). Unknown names fall back to
// first fit.
func (a *Allocator) MallocWithStrategyName(size int, strategy string) int64 {
	return a.MallocWithStrategy(size, heap.ParseFitStrategy(strategy))
}

func (a *Allocator) malloc(size int, strategy heap.FitStrategy) int64 {
	a.ensureInit()

	if size <= 0 {
		return -1
	}

	a.allocRequests++
	alignedSize := memutils.AlignUp(size, heap.Alignment)

	block, ok := a.heap.FindFit(alignedSize, strategy)
	if !ok {
		a.allocFailures++
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Malloc FAILED",
			slog.Int("Size", size),
			slog.String("Strategy", strategy.String()))
		return -1
	}

	id := a.nextID
	a.nextID++

	a.heap.Allocate(block, id, size, alignedSize)
	a.blocksByID.Put(id, block.Offset())
	a.allocSuccesses++

	memutils.DebugValidate(a.heap)

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Malloc",
		slog.Int64("Id", id),
		slog.Int("Size", size),
		slog.Int("AlignedSize", alignedSize),
		slog.String("Strategy", strategy.String()))

	return id
}

// SetStrategy changes the default fit strategy used by Malloc.
func (a *Allocator) SetStrategy(strategy heap.FitStrategy) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.strategy = strategy
}

// SetWritePolicy changes how Write treats destination ranges that still hold
// poison bytes.
func (a *Allocator) SetWritePolicy(policy WritePolicy) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.writePolicy = policy
}

// Free releases the block with the given id, poisons its payload, and
// coalesces the surrounding free space. Negative and unknown ids are ignored.
func (a *Allocator) Free(id int64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.ensureInit()

	if id < 0 {
		return
	}

	offset, ok := a.blocksByID.Get(id)
	if !ok {
		return
	}

	a.heap.Free(a.heap.BlockAt(offset))
	a.blocksByID.Delete(id)

	memutils.DebugValidate(a.heap)

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Free",
		slog.Int64("Id", id))
}

// SetCacheable flips whether accesses to the given block route through the
// cache hierarchy. Negative and unknown ids are ignored.
func (a *Allocator) SetCacheable(id int64, cacheable bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.ensureInit()

	if id < 0 {
		return
	}

	block, ok := a.findBlock(id)
	if !ok {
		return
	}

	block.SetCacheable(cacheable)
}

// Access simulates one cache access to the first payload byte of the given
// block and bumps the block's access counter. Blocks marked non-cacheable are
// ignored.
func (a *Allocator) Access(id int64, isWrite bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.ensureInit()

	if id < 0 {
		return
	}

	block, ok := a.findBlock(id)
	if !ok || !block.Cacheable() {
		return
	}

	a.hierarchy.Access(uint64(block.PayloadOffset()), isWrite)
	block.RecordCacheHit()
}

// Read copies bytes from the block's payload into dst, simulating one cache
// access per byte in increasing offset order. The range must lie inside the
// block's requested size. When the source still holds poison bytes the copy
// is completed anyway, but Read returns false and the caller must treat the
// data as untrusted.
func (a *Allocator) Read(id int64, offset int, dst []byte) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.ensureInit()

	if id < 0 || offset < 0 || len(dst) == 0 {
		return false
	}

	block, ok := a.findBlock(id)
	if !ok || block.IsFree() {
		return false
	}

	if offset+len(dst) > block.RequestedSize() {
		return false
	}

	payload := block.Payload()
	base := uint64(block.PayloadOffset() + offset)
	garbage := false

	for i := range dst {
		a.hierarchy.Access(base+uint64(i), false)

		value := payload[offset+i]
		if value == heap.PatternUninitialized || value == heap.PatternFreed {
			garbage = true
		}
		dst[i] = value
	}

	return !garbage
}

// Write copies src into the block's payload, simulating one cache access per
// byte in increasing offset order. The range must lie inside the block's
// requested size. A destination that still holds poison bytes fails the write
// only under WriteRejectGarbage; the default policy proceeds regardless.
func (a *Allocator) Write(id int64, offset int, src []byte) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.ensureInit()

	if id < 0 || offset < 0 || len(src) == 0 {
		return false
	}

	block, ok := a.findBlock(id)
	if !ok || block.IsFree() {
		return false
	}

	if offset+len(src) > block.RequestedSize() {
		return false
	}

	payload := block.Payload()

	garbage := false
	for i := range src {
		old := payload[offset+i]
		if old == heap.PatternUninitialized || old == heap.PatternFreed {
			garbage = true
			break
		}
	}

	if garbage && a.writePolicy == WriteRejectGarbage {
		return false
	}

	base := uint64(block.PayloadOffset() + offset)
	for i := range src {
		a.hierarchy.Access(base+uint64(i), true)
		payload[offset+i] = src[i]
	}

	return true
}

func (a *Allocator) findBlock(id int64) (heap.Block, bool) {
	offset, ok := a.blocksByID.Get(id)
	if !ok {
		return heap.Block{}, false
	}
	return a.heap.BlockAt(offset), true
}

// AllocationCounters returns the lifetime request, success, and failure
// counts.
func (a *Allocator) AllocationCounters() (requests, successes, failures uint64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.allocRequests, a.allocSuccesses, a.allocFailures
}

// Cache exposes the underlying hierarchy for inspection. Mutations should go
// through the Cache* façade operations instead so that explicit configuration
// is not clobbered by lazy initialization.
func (a *Allocator) Cache() *cache.Hierarchy {
	return a.hierarchy
}

// CacheInitDefault resets the hierarchy to the stock two-level configuration.
func (a *Allocator) CacheInitDefault() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.hierarchy.InitDefault()
	a.cacheConfigured = true
}

// CacheReset discards every cache level and all cache counters.
func (a *Allocator) CacheReset() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.hierarchy.Reset()
	a.cacheConfigured = true
}

// CacheAddLevel appends a cache level below the current bottom of the
// hierarchy.
func (a *Allocator) CacheAddLevel(sizeBytes, blockSize, associativity, latencyCycles int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.hierarchy.AddLevel(sizeBytes, blockSize, associativity, latencyCycles)
	a.cacheConfigured = true
}

// CacheConfigureLevel rebuilds the level at the given index. Out-of-range
// indexes are ignored.
func (a *Allocator) CacheConfigureLevel(levelIndex, sizeBytes, blockSize, associativity, latencyCycles int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.hierarchy.ConfigureLevel(levelIndex, sizeBytes, blockSize, associativity, latencyCycles)
	a.cacheConfigured = true
}

// CacheLevelCount returns the number of configured cache levels.
func (a *Allocator) CacheLevelCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.hierarchy.LevelCount()
}

// CacheSetMemoryLatency sets the main-memory penalty in cycles.
func (a *Allocator) CacheSetMemoryLatency(latencyCycles int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.hierarchy.SetMemoryLatency(latencyCycles)
	a.cacheConfigured = true
}

// Validate performs internal consistency checks on the heap, the cache
// hierarchy, and the id index.
func (a *Allocator) Validate() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.ensureInit()

	if err := a.heap.Validate(); err != nil {
		return err
	}
	if err := a.hierarchy.Validate(); err != nil {
		return err
	}

	var err error
	a.blocksByID.Iter(func(id int64, offset int) bool {
		block := a.heap.BlockAt(offset)
		if block.IsFree() || block.ID() != id {
			err = errors.Errorf("index maps id %d to a block reporting id %d", id, block.ID())
			return true
		}
		return false
	})

	return err
}
