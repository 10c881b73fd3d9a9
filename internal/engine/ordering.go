package engine

import (
	"cmp"
	"slices"

	"github.com/notnil/chess"
)

// Ordering values in centipawns. The king sorts after every other attacker.
var orderValue = map[chess.PieceType]int{
	chess.Pawn:   100,
	chess.Knight: 325,
	chess.Bishop: 325,
	chess.Rook:   500,
	chess.Queen:  975,
	chess.King:   10000,
}

// scoredMove carries the sort keys of one candidate move.
type scoredMove struct {
	move     *chess.Move
	victim   int     // value of the captured piece, 0 for quiet moves
	attacker int     // value of the moving piece
	cached   float64 // table value of the child, for the side to move
	hasCache bool
	promo    int
}

// OrderMoves returns moves sorted for search: most valuable victim first,
// then least valuable attacker, then (when tt is non-nil) the best cached
// child value for the side to move. Remaining ties fall back to promotion
// piece and square order, so the result is fully deterministic. The input
// slice is not modified.
func OrderMoves(pos Position, moves []*chess.Move, tt *TranspositionTable) []*chess.Move {
	player := 1.0
	if !pos.WhiteToMove() {
		player = -1
	}

	scored := make([]scoredMove, len(moves))
	for i, m := range moves {
		s := scoredMove{
			move:     m,
			attacker: orderValue[pos.PieceAt(m.S1()).Type()],
			promo:    orderValue[m.Promo()],
		}
		switch {
		case m.HasTag(chess.EnPassant):
			s.victim = orderValue[chess.Pawn]
		case m.HasTag(chess.Capture):
			s.victim = orderValue[pos.PieceAt(m.S2()).Type()]
		}
		if tt != nil {
			pos.MakeMove(m)
			if e, ok := tt.Peek(pos.Hash()); ok {
				s.cached, s.hasCache = player*e.Value, true
			}
			pos.UndoMove(m)
		}
		scored[i] = s
	}

	slices.SortFunc(scored, compareMoves)

	ordered := make([]*chess.Move, len(scored))
	for i, s := range scored {
		ordered[i] = s.move
	}
	return ordered
}

func compareMoves(a, b scoredMove) int {
	if c := cmp.Compare(b.victim, a.victim); c != 0 {
		return c
	}
	if c := cmp.Compare(a.attacker, b.attacker); c != 0 {
		return c
	}
	if a.hasCache != b.hasCache {
		if a.hasCache {
			return -1
		}
		return 1
	}
	if a.hasCache {
		if c := cmp.Compare(b.cached, a.cached); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(b.promo, a.promo); c != 0 {
		return c
	}
	if c := cmp.Compare(a.move.S1(), b.move.S1()); c != 0 {
		return c
	}
	return cmp.Compare(a.move.S2(), b.move.S2())
}
