package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hailam/chessthink/internal/board"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.HashMB = 4
	eng, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func TestDecideMoveBasic(t *testing.T) {
	eng := newTestEngine(t)
	pos := board.New()

	var info SearchInfo
	eng.OnInfo = func(si SearchInfo) { info = si }

	timer := stubTimer{remaining: time.Minute, opponent: time.Minute, start: time.Minute}
	move, err := eng.DecideMove(context.Background(), pos, timer)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pos.ParseMove(move.String()); err != nil {
		t.Fatalf("DecideMove returned illegal move %s: %v", move, err)
	}
	if info.Budget.MaxDepth != 4 || info.Move == nil || info.Nodes == 0 {
		t.Errorf("OnInfo = %+v", info)
	}
	t.Logf("Best move: %s (%s)", move, ScoreToString(info.Score))
}

func TestDecideMoveNoLegalMoves(t *testing.T) {
	eng := newTestEngine(t)
	pos := mustBoard(t, "R5k1/5ppp/8/8/8/8/8/6K1 b - - 1 1")
	_, err := eng.DecideMove(context.Background(), pos, stubTimer{remaining: time.Minute, start: time.Minute})
	if !errors.Is(err, ErrNoLegalMoves) {
		t.Errorf("err = %v, want ErrNoLegalMoves", err)
	}
}

func TestThinkClearsTableAfterCapture(t *testing.T) {
	eng := newTestEngine(t)
	pos := mustBoard(t, "4k3/8/8/3q4/4P3/8/8/4K3 w - - 0 1")

	res, err := eng.Think(context.Background(), pos, FixedBudget(2))
	if err != nil {
		t.Fatal(err)
	}
	if res.Move.String() != "e4d5" {
		t.Fatalf("move = %s, want e4d5", res.Move)
	}
	if n := eng.Table().Count(); n != 0 {
		t.Errorf("table has %d entries after a capture", n)
	}
}

func TestThinkAgesTableAfterQuietMove(t *testing.T) {
	eng := newTestEngine(t)
	pos := mustBoard(t, "4k3/8/8/8/8/8/8/R3K3 w - - 0 1")

	if _, err := eng.Think(context.Background(), pos, FixedBudget(2)); err != nil {
		t.Fatal(err)
	}
	tt := eng.Table()
	if tt.Count() == 0 {
		t.Fatal("table empty after a quiet move")
	}
	valid := 0
	for _, e := range tt.entries {
		if !e.Valid {
			continue
		}
		valid++
		if e.Staleness != 1 {
			t.Fatalf("entry %+v: staleness %d, want 1", e, e.Staleness)
		}
	}
	if valid != tt.Count() {
		t.Errorf("Count = %d, valid slots = %d", tt.Count(), valid)
	}
}

func TestEngineReusesTableAcrossMoves(t *testing.T) {
	eng := newTestEngine(t)
	pos := mustBoard(t, "4k3/8/8/8/8/8/8/R3K3 w - - 0 1")

	first, err := eng.Think(context.Background(), pos, FixedBudget(3))
	if err != nil {
		t.Fatal(err)
	}
	pos.MakeMove(first.Move)
	if eng.Table().Count() == 0 {
		t.Fatal("table emptied after a quiet move")
	}

	// The replies were analyzed below the first move.
	reply, err := eng.Think(context.Background(), pos, FixedBudget(1))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Hits == 0 {
		t.Errorf("no table hits after %s (%d nodes)", first.Move, reply.Nodes)
	}

	fresh, err := newTestEngine(t).Think(context.Background(), pos, FixedBudget(1))
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Hits != 0 {
		t.Errorf("fresh engine reported %d hits", fresh.Hits)
	}
}

func TestThinkSearchesRepeatedRoot(t *testing.T) {
	eng := newTestEngine(t)
	pos := mustBoard(t, "1n1r2k1/8/8/3p4/8/8/8/1N1Q3K w - - 0 1")
	for _, s := range []string{"b1a3", "b8a6", "a3b1", "a6b8"} {
		m, err := pos.ParseMove(s)
		if err != nil {
			t.Fatal(err)
		}
		pos.MakeMove(m)
	}
	if !pos.IsRepeatedPosition() {
		t.Fatal("knight shuffle did not repeat the position")
	}

	res, err := eng.Think(context.Background(), pos, FixedBudget(3))
	if err != nil {
		t.Fatal(err)
	}
	if res.Nodes <= 1 {
		t.Errorf("root not expanded: %d nodes", res.Nodes)
	}
	if res.Move.String() == "d1d5" {
		t.Errorf("played d1d5 (%v), losing the queen to Rxd5", res.Value)
	}
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Centrality = "spiral"
	if _, err := NewEngine(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestSetConfig(t *testing.T) {
	eng := newTestEngine(t)
	cfg := eng.Config()
	cfg.PawnStructure = true
	cfg.HashMB = 1
	if err := eng.SetConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if !eng.Config().PawnStructure || eng.Table().Size() != roundDownToPowerOf2(1024*1024/ttEntrySize) {
		t.Errorf("config not applied: %+v, table size %d", eng.Config(), eng.Table().Size())
	}
	cfg.DrawBonus = 2
	if err := eng.SetConfig(cfg); err == nil {
		t.Error("expected error for draw bonus 2")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.json")
	if err := os.WriteFile(path, []byte(`{"hash_mb": 64, "centrality": "quadrant"}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HashMB != 64 || cfg.Centrality != CentralityQuadrant {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DrawBonus != DefaultConfig().DrawBonus {
		t.Errorf("unset field lost its default: %+v", cfg)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"hash_mb": 0}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestScoreStrings(t *testing.T) {
	tests := []struct {
		score float64
		white bool
		human string
		uci   string
	}{
		{0.35, true, "+0.35", "cp 35"},
		{0.35, false, "+0.35", "cp -35"},
		{MateCeiling - 1, true, "White mates in 1", "mate 1"},
		{MateCeiling - 3, false, "White mates in 2", "mate -2"},
		{-(MateCeiling - 2), true, "Black mates in 1", "mate -1"},
	}
	for _, tt := range tests {
		if got := ScoreToString(tt.score); got != tt.human {
			t.Errorf("ScoreToString(%v) = %q, want %q", tt.score, got, tt.human)
		}
		if got := UCIScore(tt.score, tt.white); got != tt.uci {
			t.Errorf("UCIScore(%v, %v) = %q, want %q", tt.score, tt.white, got, tt.uci)
		}
	}
}
