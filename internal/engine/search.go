package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notnil/chess"
)

// Search constants
const (
	MateCeiling = 1000 // mate scores are ±(MateCeiling - plies from root)
	Infinity    = 2000 // beyond any reachable score
	MaxPly      = 64
)

// pollInterval is the node interval between live stop checks (power of 2).
const pollInterval = 1024

// ErrNoLegalMoves is returned when asked to move in a position without legal
// moves.
var ErrNoLegalMoves = errors.New("no legal moves")

// Position is the rules-engine view the search consumes. The search mutates
// it only through paired MakeMove/UndoMove calls and returns it unchanged.
type Position interface {
	LegalMoves() []*chess.Move
	MakeMove(m *chess.Move)
	UndoMove(m *chess.Move)
	IsCheckmate() bool
	IsStalemate() bool
	IsDraw() bool
	IsInsufficientMaterial() bool
	IsFiftyMoveDraw() bool
	IsRepeatedPosition() bool
	Hash() uint64
	PieceAt(sq chess.Square) chess.Piece
	WhiteToMove() bool
	PlyCount() int
	FEN() string
}

// Result is the outcome of one search.
type Result struct {
	Move    *chess.Move
	Value   float64 // White-positive
	Depth   int     // depth actually analyzed below the root
	Nodes   uint64
	Hits    uint64 // children served from the transposition table
	Stopped bool   // the context ended the search early
	Elapsed time.Duration
}

// Searcher runs budgeted alpha-beta searches.
type Searcher struct {
	eval          *Evaluator
	tt            *TranspositionTable // nil disables caching
	cacheOrdering bool
}

// NewSearcher creates a searcher. A nil table searches without caching.
func NewSearcher(eval *Evaluator, tt *TranspositionTable, cacheOrdering bool) *Searcher {
	return &Searcher{eval: eval, tt: tt, cacheOrdering: cacheOrdering}
}

// searchRun holds the state of one Search call. Depth and breadth travel as
// parameters of the recursion, not here.
type searchRun struct {
	*Searcher
	ctx     context.Context
	pos     Position
	budget  Budget
	nodes   uint64
	hits    uint64
	stopped bool
}

// Search returns the best move for the side to move in pos within budget. The
// search stops early when ctx is done; nodes not yet expanded are then scored
// statically and nothing more is written to the table.
func (s *Searcher) Search(ctx context.Context, pos Position, budget Budget) (Result, error) {
	start := time.Now()
	moves := pos.LegalMoves()
	if len(moves) == 0 {
		return Result{}, ErrNoLegalMoves
	}

	r := &searchRun{Searcher: s, ctx: ctx, pos: pos, budget: budget}
	player := 1
	if !pos.WhiteToMove() {
		player = -1
	}

	move, value, depth := r.search(-Infinity, Infinity, player, 0, 1)

	return Result{
		Move:    move,
		Value:   value,
		Depth:   depth,
		Nodes:   r.nodes,
		Hits:    r.hits,
		Stopped: r.stopped,
		Elapsed: time.Since(start),
	}, nil
}

// search returns the best move at the current node, its White-positive value
// and the depth analyzed below the node. Terminal positions count as analyzed
// to MaxPly.
func (r *searchRun) search(alpha, beta float64, player, ply int, breadth int64) (*chess.Move, float64, int) {
	r.nodes++
	if r.nodes%pollInterval == 0 && !r.stopped && r.ctx.Err() != nil {
		r.stopped = true
	}

	// The root is always expanded: a position that repeats game history or
	// sits on a claimable draw still needs a move.
	pos := r.pos
	if ply > 0 && (pos.IsCheckmate() || pos.IsDraw()) {
		return nil, r.eval.Classify(pos, ply), MaxPly
	}
	if (ply >= r.budget.MaxDepth && breadth >= r.budget.MaxBreadth) || ply >= MaxPly || r.stopped {
		return nil, r.eval.Classify(pos, ply), 0
	}

	var orderTable *TranspositionTable
	if r.cacheOrdering {
		orderTable = r.tt
	}
	moves := OrderMoves(pos, pos.LegalMoves(), orderTable)
	if len(moves) == 0 {
		panic(fmt.Sprintf("engine: no legal moves in non-terminal position %s", pos.FEN()))
	}

	childBreadth := r.budget.MaxBreadth
	if branching := int64(len(moves) + 1); breadth <= r.budget.MaxBreadth/branching {
		childBreadth = breadth * branching
	}

	var bestMove *chess.Move
	bestValue := -Infinity * float64(player)
	depth := MaxPly
	for _, m := range moves {
		pos.MakeMove(m)
		value, childDepth, ok := r.probe(ply + 1)
		if !ok {
			_, value, childDepth = r.search(alpha, beta, -player, ply+1, childBreadth)
		}
		pos.UndoMove(m)

		depth = min(depth, childDepth+1)
		if player > 0 {
			if value > bestValue {
				bestMove, bestValue = m, value
			}
			alpha = max(alpha, bestValue)
		} else {
			if value < bestValue {
				bestMove, bestValue = m, value
			}
			beta = min(beta, bestValue)
		}
		if alpha > beta {
			break
		}
	}

	if bestMove == nil {
		bestMove = moves[0]
	}
	depth = min(depth, MaxPly)
	// After a cutoff bestValue is only a bound; it is stored and later reused
	// as if exact.
	if r.tt != nil && !r.stopped {
		r.tt.Upsert(pos.Hash(), AdjustScoreToTT(bestValue, ply), depth)
	}
	return bestMove, bestValue, depth
}

// probe consults the table for the position just reached at ply. A hit is
// used only when the stored analysis is deeper than the remaining depth
// budget.
func (r *searchRun) probe(ply int) (float64, int, bool) {
	if r.tt == nil {
		return 0, 0, false
	}
	hash := r.pos.Hash()
	entry, ok := r.tt.Probe(hash)
	if !ok || entry.Depth <= r.budget.MaxDepth-ply {
		return 0, 0, false
	}
	r.tt.Touch(hash)
	r.hits++
	return AdjustScoreFromTT(entry.Value, ply), entry.Depth, true
}
