package cache

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/goat-simulator444/Memory-Management-Simulator/memutils"
)

// DefaultMemoryLatency is the main-memory penalty the hierarchy resets to, in
// cycles.
const DefaultMemoryLatency = 100

// Default geometry installed by InitDefault.
const (
	defaultL1Size    = 4 * 1024
	defaultL1Block   = 64
	defaultL1Assoc   = 4
	defaultL1Latency = 1

	defaultL2Size    = 32 * 1024
	defaultL2Block   = 64
	defaultL2Assoc   = 8
	defaultL2Latency = 8
)

// Hierarchy is an ordered sequence of inclusive cache levels in front of a
// main-memory penalty. A global logical clock advances once per access and
// provides the LRU timestamps for every level.
//
// Hierarchy is not safe for concurrent use; the consumer serializes access.
type Hierarchy struct {
	logger *slog.Logger

	levels        []*Level
	memoryLatency int
	clock         uint64

	totalAccesses uint64
	totalHits     uint64
	totalMisses   uint64
	totalPenalty  uint64
}

var _ memutils.Validatable = &Hierarchy{}

// New creates an empty hierarchy with the default main-memory latency. A nil
// logger is replaced with slog.Default().
func New(logger *slog.Logger) *Hierarchy {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hierarchy{
		logger:        logger,
		memoryLatency: DefaultMemoryLatency,
	}
}

// Reset discards all levels and counters, returns the logical clock to 0, and
// restores the default main-memory latency.
func (c *Hierarchy) Reset() {
	c.levels = nil
	c.memoryLatency = DefaultMemoryLatency
	c.clock = 0
	c.totalAccesses = 0
	c.totalHits = 0
	c.totalMisses = 0
	c.totalPenalty = 0

	c.logger.Debug("Hierarchy::Reset")
}

// InitDefault resets the hierarchy and installs the stock two-level
// configuration: L1 4 KiB / 64 B blocks / 4-way / 1 cycle and L2 32 KiB /
// 64 B blocks / 8-way / 8 cycles, with a 100-cycle main memory.
func (c *Hierarchy) InitDefault() {
	c.Reset()
	c.AddLevel(defaultL1Size, defaultL1Block, defaultL1Assoc, defaultL1Latency)
	c.AddLevel(defaultL2Size, defaultL2Block, defaultL2Assoc, defaultL2Latency)
	c.SetMemoryLatency(DefaultMemoryLatency)
}

// SetMemoryLatency sets the cycles a main-memory access costs. Zero is lifted
// to 1.
func (c *Hierarchy) SetMemoryLatency(latencyCycles int) {
	if latencyCycles <= 0 {
		latencyCycles = 1
	}
	c.memoryLatency = latencyCycles
}

// MemoryLatency returns the configured main-memory penalty in cycles.
func (c *Hierarchy) MemoryLatency() int { return c.memoryLatency }

// AddLevel appends a new level below the current bottom of the hierarchy: L1
// is index 0, L2 is index 1, and so on.
func (c *Hierarchy) AddLevel(sizeBytes, blockSize, associativity, latencyCycles int) {
	level := NewLevel(sizeBytes, blockSize, associativity, latencyCycles, len(c.levels))
	c.levels = append(c.levels, level)

	c.logger.LogAttrs(context.Background(), slog.LevelDebug, "Hierarchy::AddLevel",
		slog.Int("Index", level.Index()),
		slog.Int("SizeBytes", level.SizeBytes()),
		slog.Int("BlockSize", level.BlockSize()),
		slog.Int("Associativity", level.Associativity()),
		slog.Int("Latency", level.Latency()))
}

// ConfigureLevel replaces the level at the given index with a freshly built
// one, discarding its lines and counters. Out-of-range indexes are ignored.
func (c *Hierarchy) ConfigureLevel(levelIndex, sizeBytes, blockSize, associativity, latencyCycles int) {
	if levelIndex < 0 || levelIndex >= len(c.levels) {
		return
	}
	c.levels[levelIndex] = NewLevel(sizeBytes, blockSize, associativity, latencyCycles, levelIndex)
}

// LevelCount returns the number of configured levels.
func (c *Hierarchy) LevelCount() int { return len(c.levels) }

// Level returns the level at the given index.
func (c *Hierarchy) Level(levelIndex int) *Level { return c.levels[levelIndex] }

// Clock returns the current value of the global logical clock.
func (c *Hierarchy) Clock() uint64 { return c.clock }

type missRecord struct {
	level       int
	penaltyUpTo uint64
}

// Access simulates one read or write of addr through the hierarchy. The
// isWrite flag is accepted for interface symmetry; reads and writes currently
// behave identically.
//
// The access walks the levels in order, accumulating each level's latency
// until one hits or main memory is reached. The touched block is then filled
// into every level from L1 down to the hit level inclusive, which preserves
// inclusion, and each level that missed is charged the cycles the access spent
// below it.
func (c *Hierarchy) Access(addr uint64, isWrite bool) {
	if len(c.levels) == 0 {
		return
	}

	c.clock++
	c.totalAccesses++

	var penalty uint64
	hitLevel := -1
	var misses []missRecord

	for i, level := range c.levels {
		stats := level.Stats()

		penalty += uint64(level.Latency())
		stats.Accesses++

		if level.Lookup(addr, c.clock) {
			stats.Hits++
			hitLevel = i
			break
		}

		stats.Misses++
		misses = append(misses, missRecord{level: i, penaltyUpTo: penalty})
	}

	if hitLevel < 0 {
		penalty += uint64(c.memoryLatency)
		hitLevel = len(c.levels)
		c.totalMisses++
	} else {
		c.totalHits++
	}

	// Inclusive fill: a hit at level k refreshes levels 0..k, a full miss
	// fills every level from memory.
	fillUpTo := hitLevel
	if fillUpTo == len(c.levels) {
		fillUpTo = len(c.levels) - 1
	}
	for i := 0; i <= fillUpTo; i++ {
		c.levels[i].Insert(addr, c.clock)
	}

	for _, rec := range misses {
		if penalty > rec.penaltyUpTo {
			c.levels[rec.level].Stats().MissPenaltyAccum += penalty - rec.penaltyUpTo
		}
	}

	c.totalPenalty += penalty
}

// Validate performs internal consistency checks on the hierarchy and each of
// its levels.
func (c *Hierarchy) Validate() error {
	if c.totalHits+c.totalMisses != c.totalAccesses {
		return errors.Errorf("hierarchy counted %d hits and %d misses for %d accesses", c.totalHits, c.totalMisses, c.totalAccesses)
	}

	for i, level := range c.levels {
		if level.Index() != i {
			return errors.Errorf("level at position %d reports index %d", i, level.Index())
		}
		if err := level.Validate(); err != nil {
			return err
		}
	}

	return nil
}
