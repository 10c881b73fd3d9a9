package engine

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// PawnEntry stores the pawn totals of one pawn placement.
type PawnEntry struct {
	Pawns [2]uint64 // white and black pawn bitboards, compared in full
	White float64
	Black float64
	Valid bool
}

// PawnTable caches pawn evaluations keyed by pawn placement.
type PawnTable struct {
	entries []PawnEntry
	mask    uint64
}

// NewPawnTable creates a pawn table with the given size in MB.
func NewPawnTable(sizeMB int) *PawnTable {
	entrySize := 40
	numEntries := (sizeMB * 1024 * 1024) / entrySize

	size := 1
	for size*2 <= numEntries {
		size *= 2
	}

	return &PawnTable{
		entries: make([]PawnEntry, size),
		mask:    uint64(size - 1),
	}
}

func pawnKey(pawns [2]uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], pawns[0])
	binary.LittleEndian.PutUint64(buf[8:], pawns[1])
	return xxhash.Sum64(buf[:])
}

// Probe returns the cached totals for a pawn placement.
func (pt *PawnTable) Probe(pawns [2]uint64) (white, black float64, found bool) {
	entry := &pt.entries[pawnKey(pawns)&pt.mask]
	if entry.Valid && entry.Pawns == pawns {
		return entry.White, entry.Black, true
	}
	return 0, 0, false
}

// Store saves the totals for a pawn placement.
func (pt *PawnTable) Store(pawns [2]uint64, white, black float64) {
	pt.entries[pawnKey(pawns)&pt.mask] = PawnEntry{Pawns: pawns, White: white, Black: black, Valid: true}
}

// Clear empties the table.
func (pt *PawnTable) Clear() {
	for i := range pt.entries {
		pt.entries[i] = PawnEntry{}
	}
}
