package engine

import (
	"math"
	"time"
)

// Timer reports the clock state for the side to move.
type Timer interface {
	ElapsedThisTurn() time.Duration   // time already spent on the current move
	Remaining() time.Duration         // time left on our clock
	OpponentRemaining() time.Duration // time left on the opponent's clock
	GameStart() time.Duration         // initial clock budget of the game
}

// Budget bounds a single search. MaxBreadth is the estimated node count at
// which a node at or beyond MaxDepth becomes a leaf.
type Budget struct {
	MaxDepth   int
	MaxBreadth int64
}

// DepthCosts are the measured average costs of a full search to each depth.
var DepthCosts = [...]time.Duration{
	385 * time.Millisecond,
	385 * time.Millisecond,
	385 * time.Millisecond,
	385 * time.Millisecond,
	697 * time.Millisecond,
	2965 * time.Millisecond,
	19294 * time.Millisecond,
	168007 * time.Millisecond,
}

// CrisisDepth caps the depth once we are behind on the clock.
const CrisisDepth = 4

// openingPlies is the number of half moves played at the default depth.
const openingPlies = 16

// ComputeBudget derives the search budget for the move at game ply.
//
// The default depth is the deepest whose cost stays under a twentieth of the
// game clock. After the opening the depth is raised while we can afford it and
// still keep more time than the opponent, or more than a sixth of the game
// clock. Behind on the clock with nothing affordable, the depth drops to
// CrisisDepth.
func ComputeBudget(t Timer, ply int) Budget {
	start := t.GameStart()
	depth := deepestWhere(func(cost time.Duration) bool { return cost < start/20 })

	if ply > openingPlies {
		remaining := t.Remaining()
		opponent := t.OpponentRemaining()

		raised := false
		if d := deepestWhere(func(cost time.Duration) bool { return remaining-cost > opponent }); d > depth {
			depth, raised = d, true
		}
		if d := deepestWhere(func(cost time.Duration) bool { return remaining-cost > start/6 }); d > depth {
			depth, raised = d, true
		}
		if !raised && remaining < opponent {
			depth = min(CrisisDepth, depth)
		}
	}

	depth = max(depth, 1)
	return FixedBudget(depth)
}

// FixedBudget returns the budget for a fixed depth.
func FixedBudget(depth int) Budget {
	depth = min(max(depth, 1), MaxPly)
	return Budget{MaxDepth: depth, MaxBreadth: breadthFor(depth)}
}

// breadthFor returns 10^depth, saturating at the largest int64.
func breadthFor(depth int) int64 {
	if depth >= 18 {
		return math.MaxInt64
	}
	b := int64(1)
	for j := 0; j < depth; j++ {
		b *= 10
	}
	return b
}

// deepestWhere returns the largest depth whose cost satisfies ok, or 0.
func deepestWhere(ok func(time.Duration) bool) int {
	depth := 0
	for d, cost := range DepthCosts {
		if ok(cost) {
			depth = d
		}
	}
	return depth
}

// Deadline returns how long a live search may run before it is stopped: half
// the remaining clock less the time already spent. Zero means no deadline.
func Deadline(t Timer) time.Duration {
	if t.Remaining() <= 0 {
		return 0
	}
	return max(t.Remaining()/2-t.ElapsedThisTurn(), time.Millisecond)
}

// MoveTimeBudget returns the deepest budget whose measured cost fits in d.
func MoveTimeBudget(d time.Duration) Budget {
	return FixedBudget(deepestWhere(func(cost time.Duration) bool { return cost < d }))
}
