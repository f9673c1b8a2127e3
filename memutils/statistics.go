package memutils

// Statistics summarizes the live state of a managed heap: how many blocks are
// allocated versus free and how many bytes each side holds.
type Statistics struct {
	UsedBlockCount int
	FreeBlockCount int
	UsedBytes      int
	FreeBytes      int
}

func (s *Statistics) Clear() {
	s.UsedBlockCount = 0
	s.FreeBlockCount = 0
	s.UsedBytes = 0
	s.FreeBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.UsedBlockCount += other.UsedBlockCount
	s.FreeBlockCount += other.FreeBlockCount
	s.UsedBytes += other.UsedBytes
	s.FreeBytes += other.FreeBytes
}

// DetailedStatistics extends Statistics with the fragmentation measurements
// that a full stats report needs: slack bytes trapped inside allocations and
// the size of the largest free region.
type DetailedStatistics struct {
	Statistics
	InternalFragmentationBytes int
	LargestFreeRegion          int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.InternalFragmentationBytes = 0
	s.LargestFreeRegion = 0
}

// AddAllocation records one allocated block. The difference between the block's
// capacity and the size the user asked for counts toward internal fragmentation.
func (s *DetailedStatistics) AddAllocation(size, requestedSize int) {
	s.UsedBlockCount++
	s.UsedBytes += size

	if size > requestedSize {
		s.InternalFragmentationBytes += size - requestedSize
	}
}

// AddFreeRegion records one free block.
func (s *DetailedStatistics) AddFreeRegion(size int) {
	s.FreeBlockCount++
	s.FreeBytes += size

	if size > s.LargestFreeRegion {
		s.LargestFreeRegion = size
	}
}

// InternalFragmentationRatio returns internal fragmentation as a percentage of
// used bytes, or 0 when nothing is allocated.
func (s *DetailedStatistics) InternalFragmentationRatio() float64 {
	if s.UsedBytes == 0 {
		return 0
	}
	return 100.0 * float64(s.InternalFragmentationBytes) / float64(s.UsedBytes)
}

// ExternalFragmentationRatio returns how badly the free space is scattered, as
// a percentage: 100·(1 − largest_free/total_free). It is 0 when there are no
// free bytes.
func (s *DetailedStatistics) ExternalFragmentationRatio() float64 {
	if s.FreeBytes == 0 || s.LargestFreeRegion == 0 {
		return 0
	}
	return 100.0 * (1.0 - float64(s.LargestFreeRegion)/float64(s.FreeBytes))
}
