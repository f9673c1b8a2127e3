package cache

import (
	"fmt"
	"io"
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// WriteStats renders the hierarchy's statistics as text: the global counters
// first, then one geometry line and one counter line per level.
func (c *Hierarchy) WriteStats(w io.Writer) {
	fmt.Fprintf(w, "Multi-level cache statistics:\n")
	fmt.Fprintf(w, "  Levels: %d\n", len(c.levels))
	fmt.Fprintf(w, "  Main memory latency: %d cycles\n", c.memoryLatency)
	fmt.Fprintf(w, "  Total accesses: %d\n", c.totalAccesses)
	fmt.Fprintf(w, "  Total hits:     %d\n", c.totalHits)
	fmt.Fprintf(w, "  Total misses:   %d\n", c.totalMisses)

	globalHitRatio := 0.0
	if c.totalAccesses != 0 {
		globalHitRatio = 100.0 * float64(c.totalHits) / float64(c.totalAccesses)
	}
	fmt.Fprintf(w, "  Global hit ratio: %.2f%%\n", globalHitRatio)

	avgPenalty := 0.0
	if c.totalAccesses != 0 {
		avgPenalty = float64(c.totalPenalty) / float64(c.totalAccesses)
	}
	fmt.Fprintf(w, "  Avg access penalty: %.2f cycles/access\n", avgPenalty)

	fmt.Fprintf(w, "\nPer-level details:\n")
	for i, level := range c.levels {
		stats := level.Stats()
		fmt.Fprintf(w, "  L%d: size=%d bytes, block=%d bytes, assoc=%d-way, sets=%d, latency=%d cycles\n",
			i+1, level.SizeBytes(), level.BlockSize(), level.Associativity(), level.NumSets(), level.Latency())

		hitRatio := 0.0
		if stats.Accesses != 0 {
			hitRatio = 100.0 * float64(stats.Hits) / float64(stats.Accesses)
		}
		avgMissPenalty := 0.0
		if stats.Misses != 0 {
			avgMissPenalty = float64(stats.MissPenaltyAccum) / float64(stats.Misses)
		}
		fmt.Fprintf(w, "     accesses=%d, hits=%d, misses=%d, hit ratio=%.2f%%, avg miss penalty to lower levels=%.2f cycles\n",
			stats.Accesses, stats.Hits, stats.Misses, hitRatio, avgMissPenalty)
	}
}

// StatsJsonData populates a json object with the hierarchy's global counters
// and a per-level breakdown.
func (c *Hierarchy) StatsJsonData(json jwriter.ObjectState) {
	json.Name("Levels").Int(len(c.levels))
	json.Name("MainMemoryLatency").Int(c.memoryLatency)
	json.Name("TotalAccesses").Int(int(c.totalAccesses))
	json.Name("TotalHits").Int(int(c.totalHits))
	json.Name("TotalMisses").Int(int(c.totalMisses))
	json.Name("TotalPenaltyCycles").Int(int(c.totalPenalty))
	json.Name("LogicalClock").Int(int(c.clock))

	levelArray := json.Name("PerLevel").Array()
	defer levelArray.End()

	for i, level := range c.levels {
		stats := level.Stats()

		obj := levelArray.Object()
		obj.Name("Level").String("L" + strconv.Itoa(i+1))
		obj.Name("SizeBytes").Int(level.SizeBytes())
		obj.Name("BlockSize").Int(level.BlockSize())
		obj.Name("Associativity").Int(level.Associativity())
		obj.Name("Sets").Int(level.NumSets())
		obj.Name("LatencyCycles").Int(level.Latency())
		obj.Name("Accesses").Int(int(stats.Accesses))
		obj.Name("Hits").Int(int(stats.Hits))
		obj.Name("Misses").Int(int(stats.Misses))
		obj.Name("MissPenaltyCycles").Int(int(stats.MissPenaltyAccum))
		obj.End()
	}
}
