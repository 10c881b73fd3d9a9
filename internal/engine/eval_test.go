package engine

import (
	"testing"

	"github.com/hailam/chessthink/internal/board"
)

func mustBoard(t *testing.T, fen string) *board.Board {
	t.Helper()
	b, err := board.FromFEN(fen)
	if err != nil {
		t.Fatalf("FromFEN(%q): %v", fen, err)
	}
	return b
}

var symmetryFENs = []string{
	"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
	"r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3",
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"8/8/8/4k3/8/8/8/3QK3 w - - 0 1",
	"6k1/5ppp/8/8/8/8/PP6/R5K1 w - - 0 1",
}

func TestEvaluateMirrorSymmetry(t *testing.T) {
	configs := map[string]Config{}
	configs["sine"] = DefaultConfig()
	quad := DefaultConfig()
	quad.Centrality = CentralityQuadrant
	configs["quadrant"] = quad
	structure := DefaultConfig()
	structure.PawnStructure = true
	configs["pawn-structure"] = structure

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			ev := NewEvaluator(cfg)
			for _, fen := range symmetryFENs {
				mirrored, err := board.MirrorFEN(fen)
				if err != nil {
					t.Fatalf("MirrorFEN(%q): %v", fen, err)
				}
				got := ev.Evaluate(mustBoard(t, fen))
				want := -ev.Evaluate(mustBoard(t, mirrored))
				if got != want {
					t.Errorf("%s: Evaluate = %v, mirrored negation = %v", fen, got, want)
				}
			}
		})
	}
}

func TestEvaluateStartingPositionIsBalanced(t *testing.T) {
	ev := NewEvaluator(DefaultConfig())
	if got := ev.Evaluate(board.New()); got != 0 {
		t.Errorf("Evaluate(start) = %v, want 0", got)
	}
}

func TestEvaluateQueenUp(t *testing.T) {
	ev := NewEvaluator(DefaultConfig())
	pos := mustBoard(t, "8/8/8/4k3/8/8/8/3QK3 w - - 0 1")
	got := ev.Evaluate(pos)
	if got < QueenValue || got > QueenValue+1 {
		t.Errorf("Evaluate(KQ v K) = %v, want within [%v, %v]", got, QueenValue, QueenValue+1)
	}
	if m := Material(pos); m != QueenValue {
		t.Errorf("Material = %v, want %v", m, QueenValue)
	}
}

func TestEvaluateCentralKnightBeatsRimKnight(t *testing.T) {
	for _, c := range []Centrality{CentralitySine, CentralityQuadrant} {
		cfg := DefaultConfig()
		cfg.Centrality = c
		ev := NewEvaluator(cfg)
		centre := ev.Evaluate(mustBoard(t, "4k3/8/8/8/3N4/8/8/4K3 w - - 0 1"))
		rim := ev.Evaluate(mustBoard(t, "4k3/8/8/8/N7/8/8/4K3 w - - 0 1"))
		if centre <= rim {
			t.Errorf("%s: centre knight %v <= rim knight %v", c, centre, rim)
		}
	}
}

func TestEvaluatePawnAdvance(t *testing.T) {
	ev := NewEvaluator(DefaultConfig())
	home := ev.Evaluate(mustBoard(t, "4k3/8/8/8/8/8/P7/4K3 w - - 0 1"))
	seventh := ev.Evaluate(mustBoard(t, "4k3/P7/8/8/8/8/8/4K3 w - - 0 1"))
	if diff := seventh - home; diff < 3.5-1e-9 || diff > 3.5+1e-9 {
		t.Errorf("seventh-rank pawn gains %v over home pawn, want 3.5", diff)
	}
}

func TestEvaluatePawnStructure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PawnStructure = true
	ev := NewEvaluator(cfg)

	tests := []struct {
		name string
		fen  string
		want float64 // white pawn total; black has no pawns
	}{
		{"isolated passed pawn on home rank", "4k3/8/8/8/8/8/P7/4K3 w - - 0 1", 1.1 - 0.15},
		{"passed pawn on sixth", "4k3/8/P7/8/8/8/8/4K3 w - - 0 1", 2.5 - 0.15},
		{"doubled connected", "4k3/8/8/8/8/P7/PP6/4K3 w - - 0 1", 1.1 + 1.1 + 1.1 - 0.1 - 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := mustBoard(t, tt.fen)
			kings := ev.Evaluate(mustBoard(t, "4k3/8/8/8/8/8/8/4K3 w - - 0 1"))
			got := ev.Evaluate(pos) - kings
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("pawn total = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPawnTable(t *testing.T) {
	pt := NewPawnTable(1)
	key := [2]uint64{0xFF00, 0xFF << 48}

	if _, _, found := pt.Probe(key); found {
		t.Fatal("expected cache miss on first probe")
	}
	pt.Store(key, 8, 7.5)
	white, black, found := pt.Probe(key)
	if !found {
		t.Fatal("expected cache hit after store")
	}
	if white != 8 || black != 7.5 {
		t.Errorf("got white=%v black=%v, want 8, 7.5", white, black)
	}
	if _, _, found := pt.Probe([2]uint64{0xFF00, 0}); found {
		t.Error("different pawn placement must miss")
	}
	pt.Clear()
	if _, _, found := pt.Probe(key); found {
		t.Error("expected miss after Clear")
	}
}
