package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/notnil/chess"

	"github.com/hailam/chessthink/internal/board"
)

func newTestSearcher(tt *TranspositionTable) *Searcher {
	return NewSearcher(NewEvaluator(DefaultConfig()), tt, false)
}

// minimax is an unpruned reference search with the same leaf rule, breadth
// accounting and move order as Searcher.
func minimax(ev *Evaluator, pos Position, budget Budget, player, ply int, breadth int64) (*chess.Move, float64) {
	if ply > 0 && (pos.IsCheckmate() || pos.IsDraw()) {
		return nil, ev.Classify(pos, ply)
	}
	if (ply >= budget.MaxDepth && breadth >= budget.MaxBreadth) || ply >= MaxPly {
		return nil, ev.Classify(pos, ply)
	}
	moves := OrderMoves(pos, pos.LegalMoves(), nil)
	child := budget.MaxBreadth
	if branching := int64(len(moves) + 1); breadth <= budget.MaxBreadth/branching {
		child = breadth * branching
	}

	var best *chess.Move
	bestValue := -Infinity * float64(player)
	for _, m := range moves {
		pos.MakeMove(m)
		_, v := minimax(ev, pos, budget, -player, ply+1, child)
		pos.UndoMove(m)
		if (player > 0 && v > bestValue) || (player < 0 && v < bestValue) {
			best, bestValue = m, v
		}
	}
	return best, bestValue
}

func TestSearchMatchesMinimax(t *testing.T) {
	fens := []string{
		"r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3",
		"r1bqkb1r/pppp1ppp/2n2n2/4p2Q/2B1P3/8/PPPP1PPP/RNB1K1NR w KQkq - 4 4",
		"4k3/8/8/3q4/4P3/8/8/3RK3 b - - 0 1",
	}
	for _, fen := range fens {
		t.Run(fen, func(t *testing.T) {
			pos := mustBoard(t, fen)
			budget := FixedBudget(3)
			player := 1
			if !pos.WhiteToMove() {
				player = -1
			}

			ev := NewEvaluator(DefaultConfig())
			wantMove, wantValue := minimax(ev, pos, budget, player, 0, 1)

			res, err := NewSearcher(ev, nil, false).Search(context.Background(), pos, budget)
			if err != nil {
				t.Fatal(err)
			}
			if res.Move.String() != wantMove.String() || res.Value != wantValue {
				t.Errorf("alpha-beta %s (%v), minimax %s (%v)", res.Move, res.Value, wantMove, wantValue)
			}
			t.Logf("%s %v, %d nodes", res.Move, res.Value, res.Nodes)
		})
	}
}

func TestSearchImmediateMate(t *testing.T) {
	for _, depth := range []int{1, 2, 3} {
		pos := mustBoard(t, "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1")
		tt := NewTranspositionTable(1, DefaultConfig().DecisiveThreshold)
		res, err := newTestSearcher(tt).Search(context.Background(), pos, FixedBudget(depth))
		if err != nil {
			t.Fatal(err)
		}
		if res.Move.String() != "a1a8" {
			t.Errorf("depth %d: move = %s, want a1a8", depth, res.Move)
		}
		if res.Value != MateCeiling-1 {
			t.Errorf("depth %d: value = %v, want %v", depth, res.Value, MateCeiling-1)
		}
	}
}

func TestSearchBlackFindsMate(t *testing.T) {
	pos := mustBoard(t, "r5k1/8/8/8/8/8/5PPP/6K1 b - - 0 1")
	res, err := newTestSearcher(nil).Search(context.Background(), pos, FixedBudget(2))
	if err != nil {
		t.Fatal(err)
	}
	if res.Move.String() != "a8a1" || res.Value != -(MateCeiling - 1) {
		t.Errorf("got %s (%v), want a8a1 (%v)", res.Move, res.Value, -(MateCeiling - 1))
	}
}

func TestSearchBareKingsIsZero(t *testing.T) {
	for _, depth := range []int{1, 3, 5} {
		pos := mustBoard(t, "8/8/4k3/8/8/4K3/8/8 w - - 0 1")
		res, err := newTestSearcher(nil).Search(context.Background(), pos, FixedBudget(depth))
		if err != nil {
			t.Fatal(err)
		}
		if res.Value != 0 {
			t.Errorf("depth %d: value = %v, want 0", depth, res.Value)
		}
		if res.Move == nil {
			t.Errorf("depth %d: no move returned", depth)
		}
	}
}

func TestSearchDepthOneMaximizesEvaluation(t *testing.T) {
	pos := mustBoard(t, "r1bqkb1r/pppp1ppp/2n2n2/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 4")
	ev := NewEvaluator(DefaultConfig())

	var want *chess.Move
	wantValue := -float64(Infinity)
	for _, m := range OrderMoves(pos, pos.LegalMoves(), nil) {
		pos.MakeMove(m)
		v := ev.Classify(pos, 1)
		pos.UndoMove(m)
		if v > wantValue {
			want, wantValue = m, v
		}
	}

	res, err := NewSearcher(ev, nil, false).Search(context.Background(), pos, FixedBudget(1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Move.String() != want.String() || res.Value != wantValue {
		t.Errorf("got %s (%v), want %s (%v)", res.Move, res.Value, want, wantValue)
	}
	if res.Depth != 1 {
		t.Errorf("analyzed depth = %d, want 1", res.Depth)
	}
}

func TestSearchDepthGuardOnCacheHits(t *testing.T) {
	fen := "r1bqkb1r/pppp1ppp/2n2n2/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 4"
	budget := FixedBudget(1)

	baseline, err := newTestSearcher(nil).Search(context.Background(), mustBoard(t, fen), budget)
	if err != nil {
		t.Fatal(err)
	}

	// Pick a move other than the best and pretend its child was analyzed.
	pos := mustBoard(t, fen)
	var other *chess.Move
	for _, m := range pos.LegalMoves() {
		if m.String() != baseline.Move.String() {
			other = m
			break
		}
	}
	pos.MakeMove(other)
	childHash := pos.Hash()
	pos.UndoMove(other)

	run := func(depth int) Result {
		tt := NewTranspositionTable(1, DefaultConfig().DecisiveThreshold)
		tt.Upsert(childHash, 50, depth)
		res, err := newTestSearcher(tt).Search(context.Background(), mustBoard(t, fen), budget)
		if err != nil {
			t.Fatal(err)
		}
		return res
	}

	// Remaining budget at the child is MaxDepth-1 = 0: depth 0 is not enough.
	if res := run(0); res.Move.String() != baseline.Move.String() || res.Hits != 0 {
		t.Errorf("shallow entry used: move %s hits %d, want %s and no hits", res.Move, res.Hits, baseline.Move)
	}
	if res := run(5); res.Move.String() != other.String() || res.Value != 50 || res.Hits != 1 {
		t.Errorf("deep entry ignored: move %s (%v) hits %d, want %s (50)", res.Move, res.Value, res.Hits, other)
	}
}

func TestSearchQueenEndgame(t *testing.T) {
	pos := mustBoard(t, "8/8/8/4k3/8/8/8/3QK3 w - - 0 1")
	material := Material(pos)
	for _, depth := range []int{2, 3} {
		tt := NewTranspositionTable(4, DefaultConfig().DecisiveThreshold)
		res, err := newTestSearcher(tt).Search(context.Background(), pos, FixedBudget(depth))
		if err != nil {
			t.Fatal(err)
		}
		if res.Value < material {
			t.Errorf("depth %d: value %v below material %v after %s", depth, res.Value, material, res.Move)
		}
	}
}

func TestSearchRestoresPosition(t *testing.T) {
	pos := mustBoard(t, "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")
	fen, hash, ply := pos.FEN(), pos.Hash(), pos.PlyCount()
	tt := NewTranspositionTable(1, DefaultConfig().DecisiveThreshold)
	if _, err := NewSearcher(NewEvaluator(DefaultConfig()), tt, true).Search(context.Background(), pos, FixedBudget(2)); err != nil {
		t.Fatal(err)
	}
	if pos.FEN() != fen || pos.Hash() != hash || pos.PlyCount() != ply || len(pos.History()) != 0 {
		t.Errorf("position not restored: %s", pos.FEN())
	}
}

func TestSearchNoLegalMoves(t *testing.T) {
	pos := mustBoard(t, "R5k1/5ppp/8/8/8/8/8/6K1 b - - 1 1")
	_, err := newTestSearcher(nil).Search(context.Background(), pos, FixedBudget(2))
	if !errors.Is(err, ErrNoLegalMoves) {
		t.Errorf("err = %v, want ErrNoLegalMoves", err)
	}
}

// movelessBelowRoot reports no legal moves anywhere below the root while
// claiming the positions are not terminal.
type movelessBelowRoot struct {
	*board.Board
	root int
}

func (p movelessBelowRoot) LegalMoves() []*chess.Move {
	if p.PlyCount() > p.root {
		return nil
	}
	return p.Board.LegalMoves()
}

func TestSearchPanicsOnRulesContractViolation(t *testing.T) {
	b := mustBoard(t, "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3")
	pos := movelessBelowRoot{Board: b, root: b.PlyCount()}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "no legal moves") {
			t.Errorf("panic = %v", r)
		}
	}()
	_, _ = newTestSearcher(nil).Search(context.Background(), pos, FixedBudget(3))
}

func TestSearchStopsWhenContextDone(t *testing.T) {
	pos := board.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tt := NewTranspositionTable(1, DefaultConfig().DecisiveThreshold)
	res, err := newTestSearcher(tt).Search(ctx, pos, FixedBudget(7))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Stopped {
		t.Error("search did not report the stop")
	}
	if _, err := pos.ParseMove(res.Move.String()); err != nil {
		t.Errorf("returned move %s is not legal: %v", res.Move, err)
	}
	if res.Nodes > 100*pollInterval {
		t.Errorf("searched %d nodes after cancellation", res.Nodes)
	}
}
