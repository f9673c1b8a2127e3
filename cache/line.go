package cache

// A Line is the information associated with one cached block: a validity flag,
// the tag of the block held, an LFU use counter, and the logical time of the
// last touch for LRU tie-breaking.
type Line struct {
	Valid    bool
	Tag      uint64
	Freq     uint64
	LastUsed uint64
}

// A Set is the group of ways a given block address can be stored in.
type Set struct {
	Lines []Line
}
