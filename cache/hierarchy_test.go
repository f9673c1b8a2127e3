package cache

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func testHierarchy() *Hierarchy {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger)
}

func TestInitDefault(t *testing.T) {
	c := testHierarchy()
	c.InitDefault()

	require.Equal(t, 2, c.LevelCount())
	require.Equal(t, DefaultMemoryLatency, c.MemoryLatency())

	l1 := c.Level(0)
	require.Equal(t, 4096, l1.SizeBytes())
	require.Equal(t, 64, l1.BlockSize())
	require.Equal(t, 4, l1.Associativity())
	require.Equal(t, 1, l1.Latency())

	l2 := c.Level(1)
	require.Equal(t, 32*1024, l2.SizeBytes())
	require.Equal(t, 64, l2.BlockSize())
	require.Equal(t, 8, l2.Associativity())
	require.Equal(t, 8, l2.Latency())
}

func TestAccessWithoutLevelsIsNoOp(t *testing.T) {
	c := testHierarchy()
	c.Reset()

	c.Access(0x100, false)

	require.Zero(t, c.Clock())
	require.NoError(t, c.Validate())
}

func TestColdMissThenHit(t *testing.T) {
	c := testHierarchy()
	c.InitDefault()

	c.Access(0x40, false)

	l1 := c.Level(0).Stats()
	l2 := c.Level(1).Stats()

	require.Equal(t, uint64(1), l1.Accesses)
	require.Equal(t, uint64(0), l1.Hits)
	require.Equal(t, uint64(1), l1.Misses)
	require.Equal(t, uint64(1), l2.Accesses)
	require.Equal(t, uint64(1), l2.Misses)

	// Second access to the same address hits L1 and never reaches L2.
	c.Access(0x40, false)

	require.Equal(t, uint64(2), l1.Accesses)
	require.Equal(t, uint64(1), l1.Hits)
	require.Equal(t, uint64(1), l1.Misses)
	require.Equal(t, uint64(1), l2.Accesses)

	require.Equal(t, uint64(2), c.totalAccesses)
	require.Equal(t, uint64(1), c.totalHits)
	require.Equal(t, uint64(1), c.totalMisses)

	require.NoError(t, c.Validate())
}

func TestMissPenaltyAttribution(t *testing.T) {
	c := testHierarchy()
	c.InitDefault()

	// Cold access: 1 (L1) + 8 (L2) + 100 (memory) = 109 cycles. L1 is charged
	// the 108 cycles spent below it, L2 the 100 memory cycles.
	c.Access(0x40, false)

	require.Equal(t, uint64(108), c.Level(0).Stats().MissPenaltyAccum)
	require.Equal(t, uint64(100), c.Level(1).Stats().MissPenaltyAccum)
	require.Equal(t, uint64(109), c.totalPenalty)

	// An L1 hit adds its latency only.
	c.Access(0x40, false)
	require.Equal(t, uint64(110), c.totalPenalty)
}

func TestL2HitRefreshesL1(t *testing.T) {
	// A tiny direct-mapped L1 in front of a large L2: conflicting addresses
	// evict each other from L1 but survive in L2.
	c := testHierarchy()
	c.Reset()
	c.AddLevel(64, 64, 1, 1)
	c.AddLevel(32*1024, 64, 8, 8)

	c.Access(0x0, false)  // cold miss everywhere
	c.Access(0x40, false) // evicts 0x0 from the single-line L1

	// 0x0 misses L1 but hits L2; the fill restores it into L1.
	c.Access(0x0, false)

	l1 := c.Level(0).Stats()
	l2 := c.Level(1).Stats()
	require.Equal(t, uint64(1), l2.Hits)
	require.Equal(t, uint64(3), l1.Misses)

	// Now 0x0 is back in L1.
	c.Access(0x0, false)
	require.Equal(t, uint64(1), l1.Hits)

	require.NoError(t, c.Validate())
}

func TestLogicalClockAdvancesOncePerAccess(t *testing.T) {
	c := testHierarchy()
	c.InitDefault()

	previous := c.Clock()
	for i := 0; i < 10; i++ {
		c.Access(uint64(i*64), i%2 == 0)
		require.Equal(t, previous+1, c.Clock())
		previous = c.Clock()
	}
}

func TestWritesAndReadsBehaveIdentically(t *testing.T) {
	read := testHierarchy()
	read.InitDefault()
	write := testHierarchy()
	write.InitDefault()

	addrs := []uint64{0, 64, 0, 128, 64, 4096}
	for _, addr := range addrs {
		read.Access(addr, false)
		write.Access(addr, true)
	}

	require.Equal(t, read.totalHits, write.totalHits)
	require.Equal(t, read.totalMisses, write.totalMisses)
	require.Equal(t, read.totalPenalty, write.totalPenalty)
}

func TestResetClearsEverything(t *testing.T) {
	c := testHierarchy()
	c.InitDefault()
	c.SetMemoryLatency(55)
	c.Access(0x40, false)

	c.Reset()

	require.Zero(t, c.LevelCount())
	require.Zero(t, c.Clock())
	require.Zero(t, c.totalAccesses)
	require.Equal(t, DefaultMemoryLatency, c.MemoryLatency())
}

func TestSetMemoryLatencyLiftsZero(t *testing.T) {
	c := testHierarchy()
	c.SetMemoryLatency(0)
	require.Equal(t, 1, c.MemoryLatency())
}

func TestConfigureLevelReplacesGeometryAndCounters(t *testing.T) {
	c := testHierarchy()
	c.InitDefault()
	c.Access(0x40, false)

	c.ConfigureLevel(0, 8192, 32, 2, 3)

	l1 := c.Level(0)
	require.Equal(t, 8192, l1.SizeBytes())
	require.Equal(t, 32, l1.BlockSize())
	require.Equal(t, 2, l1.Associativity())
	require.Equal(t, 3, l1.Latency())
	require.Zero(t, l1.Stats().Accesses)

	// Out-of-range indexes are ignored.
	c.ConfigureLevel(5, 1, 1, 1, 1)
	c.ConfigureLevel(-1, 1, 1, 1, 1)
	require.Equal(t, 2, c.LevelCount())
}

func TestRepeatedAccessesMissAtMostOnce(t *testing.T) {
	c := testHierarchy()
	c.InitDefault()

	for i := 0; i < 20; i++ {
		c.Access(0x1000, false)
	}

	require.Equal(t, uint64(1), c.Level(0).Stats().Misses)
	require.Equal(t, uint64(1), c.Level(1).Stats().Misses)
	require.Equal(t, uint64(19), c.Level(0).Stats().Hits)
}

func TestWriteStats(t *testing.T) {
	c := testHierarchy()
	c.InitDefault()
	c.Access(0x40, false)
	c.Access(0x40, false)

	var buffer bytes.Buffer
	c.WriteStats(&buffer)
	output := buffer.String()

	require.Contains(t, output, "Multi-level cache statistics:")
	require.Contains(t, output, "Levels: 2")
	require.Contains(t, output, "Main memory latency: 100 cycles")
	require.Contains(t, output, "Total accesses: 2")
	require.Contains(t, output, "Global hit ratio: 50.00%")
	require.Contains(t, output, "L1: size=4096 bytes, block=64 bytes, assoc=4-way, sets=16, latency=1 cycles")
	require.Contains(t, output, "L2: size=32768 bytes")
}
