package engine

import (
	"math"

	"github.com/rs/zerolog/log"
)

// TTEntry is one slot of the transposition table.
type TTEntry struct {
	Key       uint64  // Full 64-bit position hash for verification
	Value     float64 // Score, mate scores relative to the stored node
	Depth     int     // Depth analyzed below the stored node
	Valid     bool    // false slots carry nothing trustworthy
	Staleness int     // Committed moves since the entry was last used
}

// TranspositionTable caches search results for the whole game. It is owned by
// a single engine and is not safe for concurrent use.
type TranspositionTable struct {
	entries  []TTEntry
	size     uint64
	mask     uint64
	decisive float64
	count    int

	// Statistics
	hits   uint64
	probes uint64
}

// ttEntrySize is the in-memory size of a TTEntry.
const ttEntrySize = 40

// NewTranspositionTable creates a table with the given size in MB. Entries
// whose magnitude reaches decisiveThreshold are treated as decisive by the
// replacement policy.
func NewTranspositionTable(sizeMB int, decisiveThreshold float64) *TranspositionTable {
	numEntries := (uint64(sizeMB) * 1024 * 1024) / ttEntrySize

	// Round down to power of 2 for fast modulo
	numEntries = roundDownToPowerOf2(numEntries)
	if numEntries == 0 {
		numEntries = 1
	}

	return &TranspositionTable{
		entries:  make([]TTEntry, numEntries),
		size:     numEntries,
		mask:     numEntries - 1,
		decisive: decisiveThreshold,
	}
}

// roundDownToPowerOf2 rounds n down to the nearest power of 2.
func roundDownToPowerOf2(n uint64) uint64 {
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

func (tt *TranspositionTable) slot(hash uint64) *TTEntry {
	return &tt.entries[hash&tt.mask]
}

// Probe looks up a position and counts the lookup in the hit statistics.
func (tt *TranspositionTable) Probe(hash uint64) (TTEntry, bool) {
	tt.probes++
	entry, ok := tt.Peek(hash)
	if ok {
		tt.hits++
	}
	return entry, ok
}

// Peek looks up a position without touching the statistics.
func (tt *TranspositionTable) Peek(hash uint64) (TTEntry, bool) {
	entry := tt.slot(hash)
	if entry.Valid && entry.Key == hash {
		return *entry, true
	}
	return TTEntry{}, false
}

// Touch resets the staleness of a position's entry after it was used.
func (tt *TranspositionTable) Touch(hash uint64) {
	if entry := tt.slot(hash); entry.Valid && entry.Key == hash {
		entry.Staleness = 0
	}
}

// Upsert records the value of a position analyzed to depth.
//
// A slot holding another position, or nothing, is overwritten. For the same
// position a non-decisive entry is replaced only by a deeper analysis and a
// decisive one only by a shallower analysis.
func (tt *TranspositionTable) Upsert(hash uint64, value float64, depth int) {
	entry := tt.slot(hash)
	if !entry.Valid || entry.Key != hash {
		if !entry.Valid {
			tt.count++
		}
		*entry = TTEntry{Key: hash, Value: value, Depth: depth, Valid: true}
		return
	}

	decisive := math.Abs(entry.Value) >= tt.decisive
	if (!decisive && depth > entry.Depth) || (decisive && depth < entry.Depth) {
		entry.Value = value
		entry.Depth = depth
		entry.Staleness = 0
	}
}

// Clear invalidates every entry.
func (tt *TranspositionTable) Clear() {
	for i := range tt.entries {
		tt.entries[i] = TTEntry{}
	}
	tt.count = 0
	tt.hits = 0
	tt.probes = 0
}

// AgeAndEvict increments every entry's staleness and invalidates entries
// whose staleness exceeds their analyzed depth plus two. It returns the number
// of evicted entries.
func (tt *TranspositionTable) AgeAndEvict() int {
	evicted := 0
	for i := range tt.entries {
		entry := &tt.entries[i]
		if !entry.Valid {
			continue
		}
		entry.Staleness++
		if entry.Staleness > entry.Depth+2 {
			*entry = TTEntry{}
			evicted++
		}
	}
	tt.count -= evicted
	return evicted
}

// AfterMove runs table maintenance for a move committed to the game. An
// irreversible move (capture or pawn move) empties the table.
func (tt *TranspositionTable) AfterMove(irreversible bool) {
	if irreversible {
		cleared := tt.count
		tt.Clear()
		log.Debug().Int("cleared", cleared).Msg("transposition table cleared after irreversible move")
		return
	}
	evicted := tt.AgeAndEvict()
	log.Debug().Int("evicted", evicted).Int("entries", tt.count).Msg("transposition table aged")
}

// Count returns the number of valid entries.
func (tt *TranspositionTable) Count() int {
	return tt.count
}

// HashFull returns the permille of slots in use.
func (tt *TranspositionTable) HashFull() int {
	return int(uint64(tt.count) * 1000 / tt.size)
}

// HitRate returns the cache hit rate as a percentage.
func (tt *TranspositionTable) HitRate() float64 {
	if tt.probes == 0 {
		return 0
	}
	return float64(tt.hits) / float64(tt.probes) * 100
}

// Size returns the number of slots in the table.
func (tt *TranspositionTable) Size() uint64 {
	return tt.size
}

// AdjustScoreToTT converts a root-relative mate score to one relative to the
// node at ply, for storage.
func AdjustScoreToTT(score float64, ply int) float64 {
	if score > MateCeiling-MaxPly {
		return score + float64(ply)
	}
	if score < -(MateCeiling - MaxPly) {
		return score - float64(ply)
	}
	return score
}

// AdjustScoreFromTT converts a stored node-relative mate score back to one
// relative to the root, for a node at ply.
func AdjustScoreFromTT(score float64, ply int) float64 {
	if score > MateCeiling-MaxPly {
		return score - float64(ply)
	}
	if score < -(MateCeiling - MaxPly) {
		return score + float64(ply)
	}
	return score
}
