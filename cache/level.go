package cache

import (
	"github.com/pkg/errors"
)

// LevelStats accumulates per-level counters across the level's lifetime.
// MissPenaltyAccum is the total extra cycles that misses at this level cost by
// forcing the access down to lower levels or main memory.
type LevelStats struct {
	Accesses         uint64
	Hits             uint64
	Misses           uint64
	MissPenaltyAccum uint64
}

// A Level is one set-associative cache in the hierarchy. Geometry is
// normalized at construction so that every configuration, however degenerate,
// yields at least one set with at least one way.
type Level struct {
	sizeBytes int
	blockSize int
	assoc     int
	latency   int
	numSets   int
	index     int

	sets   []Set
	victim VictimFinder
	stats  LevelStats
}

// NewLevel builds a level from the requested geometry. Zero values are lifted
// to 1, associativity is clamped to the line count, and a configuration whose
// set count would round to zero falls back to a single fully-associative set.
func NewLevel(sizeBytes, blockSize, associativity, latencyCycles, levelIndex int) *Level {
	if blockSize <= 0 {
		blockSize = 1
	}
	if associativity <= 0 {
		associativity = 1
	}
	if latencyCycles <= 0 {
		latencyCycles = 1
	}

	numLines := sizeBytes / blockSize
	if numLines == 0 {
		numLines = 1
	}

	if associativity > numLines {
		associativity = numLines
	}

	numSets := numLines / associativity
	if numSets == 0 {
		numSets = 1
		associativity = numLines
	}

	l := &Level{
		sizeBytes: sizeBytes,
		blockSize: blockSize,
		assoc:     associativity,
		latency:   latencyCycles,
		numSets:   numSets,
		index:     levelIndex,
		victim:    NewLFUVictimFinder(),
	}

	l.sets = make([]Set, numSets)
	for i := range l.sets {
		l.sets[i] = Set{Lines: make([]Line, associativity)}
	}

	return l
}

// Latency returns the cycles one access at this level costs.
func (l *Level) Latency() int { return l.latency }

// Index returns the level's position in the hierarchy: 0 for L1, 1 for L2, ...
func (l *Level) Index() int { return l.index }

// SizeBytes returns the configured total size of the level.
func (l *Level) SizeBytes() int { return l.sizeBytes }

// BlockSize returns the normalized block size in bytes.
func (l *Level) BlockSize() int { return l.blockSize }

// Associativity returns the normalized number of ways per set.
func (l *Level) Associativity() int { return l.assoc }

// NumSets returns the normalized number of sets.
func (l *Level) NumSets() int { return l.numSets }

// Stats exposes the level's counters for the controller to update.
func (l *Level) Stats() *LevelStats { return &l.stats }

func (l *Level) indexAndTag(addr uint64) (int, uint64) {
	blockAddr := addr / uint64(l.blockSize)
	setIndex := int(blockAddr % uint64(l.numSets))
	tag := blockAddr / uint64(l.numSets)
	return setIndex, tag
}

// Lookup scans the set addr maps to. On a hit it bumps the line's use counter,
// refreshes its LRU timestamp with the given tick, and returns true.
func (l *Level) Lookup(addr uint64, tick uint64) bool {
	setIndex, tag := l.indexAndTag(addr)

	set := &l.sets[setIndex]
	for i := range set.Lines {
		line := &set.Lines[i]
		if line.Valid && line.Tag == tag {
			line.Freq++
			line.LastUsed = tick
			return true
		}
	}

	return false
}

// Insert places the block addr maps to into its set, filling an invalid way if
// one exists and otherwise replacing the victim chosen by the level's
// VictimFinder. The new line starts with a use count of 1.
func (l *Level) Insert(addr uint64, tick uint64) {
	setIndex, tag := l.indexAndTag(addr)

	set := &l.sets[setIndex]
	for i := range set.Lines {
		line := &set.Lines[i]
		if !line.Valid {
			line.Valid = true
			line.Tag = tag
			line.Freq = 1
			line.LastUsed = tick
			return
		}
	}

	victim := &set.Lines[l.victim.FindVictim(set)]
	victim.Valid = true
	victim.Tag = tag
	victim.Freq = 1
	victim.LastUsed = tick
}

// Validate performs internal consistency checks on the level's geometry and
// counters.
func (l *Level) Validate() error {
	if len(l.sets) != l.numSets {
		return errors.Errorf("level %d holds %d sets but reports %d", l.index, len(l.sets), l.numSets)
	}

	for i := range l.sets {
		if len(l.sets[i].Lines) != l.assoc {
			return errors.Errorf("set %d of level %d holds %d ways but the level reports %d", i, l.index, len(l.sets[i].Lines), l.assoc)
		}
	}

	if l.stats.Hits+l.stats.Misses != l.stats.Accesses {
		return errors.Errorf("level %d counted %d hits and %d misses for %d accesses", l.index, l.stats.Hits, l.stats.Misses, l.stats.Accesses)
	}

	return nil
}
