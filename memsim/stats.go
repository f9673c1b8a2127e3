package memsim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/goat-simulator444/Memory-Management-Simulator/heap"
	"github.com/goat-simulator444/Memory-Management-Simulator/memutils"
)

// Dump writes the block list to the allocator's configured output.
func (a *Allocator) Dump() {
	a.DumpTo(a.out)
}

// DumpTo writes one line per block, in address order, to w.
func (a *Allocator) DumpTo(w io.Writer) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.ensureInit()

	fmt.Fprintf(w, "Heap dump (block list):\n")

	index := 0
	for curr, ok := a.heap.First(), true; ok; curr, ok = curr.Next() {
		state := "USED"
		if curr.IsFree() {
			state = "FREE"
		}
		cacheable := "no"
		if curr.Cacheable() {
			cacheable = "yes"
		}

		fmt.Fprintf(w, "  Block %d: offset=%d, id=%d, start=%d, size=%d, %s, cacheable=%s, cache_hits=%d\n",
			index, curr.Offset(), curr.ID(), curr.PayloadOffset(), curr.Size(), state, cacheable, curr.CacheHits())
		index++
	}

	fmt.Fprintf(w, "%d bytes per block header\n", heap.HeaderSize)
}

// Stats writes the allocator and cache statistics to the allocator's
// configured output.
func (a *Allocator) Stats() {
	a.StatsTo(a.out)
}

// StatsTo writes the allocator statistics, followed by the cache statistics,
// to w.
func (a *Allocator) StatsTo(w io.Writer) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.ensureInit()

	var stats memutils.DetailedStatistics
	stats.Clear()
	a.heap.AddDetailedStatistics(&stats)

	heapSize := a.heap.Size()
	utilization := 0.0
	if heapSize != 0 {
		utilization = 100.0 * float64(stats.UsedBytes) / float64(heapSize)
	}

	successRate := 0.0
	failureRate := 0.0
	if a.allocRequests != 0 {
		successRate = 100.0 * float64(a.allocSuccesses) / float64(a.allocRequests)
		failureRate = 100.0 * float64(a.allocFailures) / float64(a.allocRequests)
	}

	fmt.Fprintf(w, "Allocator stats:\n")
	fmt.Fprintf(w, "  Heap size: %d bytes\n", heapSize)
	fmt.Fprintf(w, "  Used:      %d bytes in %d block(s)\n", stats.UsedBytes, stats.UsedBlockCount)
	fmt.Fprintf(w, "  Free:      %d bytes in %d block(s)\n", stats.FreeBytes, stats.FreeBlockCount)
	fmt.Fprintf(w, "  Internal fragmentation: %d bytes (%.2f%%)\n", stats.InternalFragmentationBytes, stats.InternalFragmentationRatio())
	fmt.Fprintf(w, "  External fragmentation: %.2f%%\n", stats.ExternalFragmentationRatio())
	fmt.Fprintf(w, "  Largest free block:     %d bytes\n", stats.LargestFreeRegion)
	fmt.Fprintf(w, "  Allocation requests:    %d\n", a.allocRequests)
	fmt.Fprintf(w, "    Success:              %d (%.2f%%)\n", a.allocSuccesses, successRate)
	fmt.Fprintf(w, "    Failures:             %d (%.2f%%)\n", a.allocFailures, failureRate)
	fmt.Fprintf(w, "  Memory utilization:     %.2f%% of heap\n", utilization)

	fmt.Fprintf(w, "\nCache statistics:\n")
	a.hierarchy.WriteStats(w)
}

// BuildStatsString renders the allocator's full state, block list and cache
// counters included, as a JSON string.
func (a *Allocator) BuildStatsString(pretty bool) string {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.ensureInit()

	var stats memutils.DetailedStatistics
	stats.Clear()
	a.heap.AddDetailedStatistics(&stats)

	writer := jwriter.NewWriter()
	root := writer.Object()

	root.Name("HeapSize").Int(a.heap.Size())
	root.Name("HeaderSize").Int(heap.HeaderSize)
	root.Name("UsedBytes").Int(stats.UsedBytes)
	root.Name("UsedBlocks").Int(stats.UsedBlockCount)
	root.Name("FreeBytes").Int(stats.FreeBytes)
	root.Name("FreeBlocks").Int(stats.FreeBlockCount)
	root.Name("InternalFragmentationBytes").Int(stats.InternalFragmentationBytes)
	root.Name("LargestFreeBlock").Int(stats.LargestFreeRegion)
	root.Name("AllocationRequests").Int(int(a.allocRequests))
	root.Name("AllocationSuccesses").Int(int(a.allocSuccesses))
	root.Name("AllocationFailures").Int(int(a.allocFailures))
	root.Name("Strategy").String(a.strategy.String())
	root.Name("WritePolicy").String(a.writePolicy.String())

	a.blocksJsonData(root)

	cacheObj := root.Name("Cache").Object()
	a.hierarchy.StatsJsonData(cacheObj)
	cacheObj.End()

	root.End()

	data := writer.Bytes()
	if pretty {
		var indented bytes.Buffer
		if err := json.Indent(&indented, data, "", "  "); err == nil {
			return indented.String()
		}
	}

	return string(data)
}

func (a *Allocator) blocksJsonData(json jwriter.ObjectState) {
	arrayState := json.Name("Blocks").Array()
	defer arrayState.End()

	index := 0
	for curr, ok := a.heap.First(), true; ok; curr, ok = curr.Next() {
		obj := arrayState.Object()
		obj.Name("Index").Int(index)
		obj.Name("Offset").Int(curr.Offset())
		obj.Name("Id").Int(int(curr.ID()))
		obj.Name("PayloadOffset").Int(curr.PayloadOffset())
		obj.Name("Size").Int(curr.Size())
		obj.Name("RequestedSize").Int(curr.RequestedSize())
		obj.Name("Free").Bool(curr.IsFree())
		obj.Name("Cacheable").Bool(curr.Cacheable())
		obj.Name("CacheHits").Int(int(curr.CacheHits()))
		obj.End()
		index++
	}
}
