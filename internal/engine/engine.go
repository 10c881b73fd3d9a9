package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog/log"
)

// SearchInfo describes a finished decision.
type SearchInfo struct {
	Budget   Budget
	Depth    int
	Score    float64
	Nodes    uint64
	Hits     uint64
	Time     time.Duration
	Move     *chess.Move
	Stopped  bool
	HashFull int // Permille of hash table used
}

// Engine decides moves for one game. The transposition table lives for the
// whole game, so each concurrently played game needs its own Engine.
type Engine struct {
	cfg      Config
	tt       *TranspositionTable
	eval     *Evaluator
	searcher *Searcher

	// Callbacks
	OnInfo func(SearchInfo)
}

// NewEngine creates an engine with the given settings.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg}
	e.build()
	return e, nil
}

func (e *Engine) build() {
	e.tt = NewTranspositionTable(e.cfg.HashMB, e.cfg.DecisiveThreshold)
	e.eval = NewEvaluator(e.cfg)
	e.searcher = NewSearcher(e.eval, e.tt, e.cfg.CacheOrdering)
}

// Config returns the engine settings.
func (e *Engine) Config() Config {
	return e.cfg
}

// SetConfig replaces the settings. The table is rebuilt, so cached analysis
// is lost.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	e.build()
	return nil
}

// DecideMove picks the move to play in pos given the clock state. The budget
// comes from ComputeBudget; with LiveTimeCheck the search is also stopped at
// half the remaining clock. Table maintenance for the chosen move runs before
// returning.
func (e *Engine) DecideMove(ctx context.Context, pos Position, timer Timer) (*chess.Move, error) {
	budget := ComputeBudget(timer, pos.PlyCount())
	if e.cfg.LiveTimeCheck {
		if d := Deadline(timer); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}
	res, err := e.Think(ctx, pos, budget)
	if err != nil {
		return nil, err
	}
	return res.Move, nil
}

// Think searches pos within a fixed budget and commits the result: the table
// is maintained as if the returned move were played.
func (e *Engine) Think(ctx context.Context, pos Position, budget Budget) (Result, error) {
	res, err := e.searcher.Search(ctx, pos, budget)
	if err != nil {
		return res, fmt.Errorf("search %s: %w", pos.FEN(), err)
	}

	log.Info().
		Int("ply", pos.PlyCount()).
		Int("max_depth", budget.MaxDepth).
		Int64("max_breadth", budget.MaxBreadth).
		Int("depth", res.Depth).
		Uint64("nodes", res.Nodes).
		Uint64("hits", res.Hits).
		Float64("hit_rate", e.tt.HitRate()).
		Float64("score", res.Value).
		Str("move", res.Move.String()).
		Bool("stopped", res.Stopped).
		Dur("elapsed", res.Elapsed).
		Msg("move decided")

	if e.OnInfo != nil {
		e.OnInfo(SearchInfo{
			Budget:   budget,
			Depth:    res.Depth,
			Score:    res.Value,
			Nodes:    res.Nodes,
			Hits:     res.Hits,
			Time:     res.Elapsed,
			Move:     res.Move,
			Stopped:  res.Stopped,
			HashFull: e.tt.HashFull(),
		})
	}

	e.tt.AfterMove(irreversible(pos, res.Move))
	return res, nil
}

// irreversible reports whether m is a capture or pawn move in pos.
func irreversible(pos Position, m *chess.Move) bool {
	if m.HasTag(chess.Capture) || m.HasTag(chess.EnPassant) {
		return true
	}
	return pos.PieceAt(m.S1()).Type() == chess.Pawn
}

// NewGame clears everything learned in the previous game.
func (e *Engine) NewGame() {
	e.tt.Clear()
	e.eval.pawns.Clear()
}

// Table returns the engine's transposition table.
func (e *Engine) Table() *TranspositionTable {
	return e.tt
}

// Evaluate returns the static evaluation of a position.
func (e *Engine) Evaluate(pos Position) float64 {
	return e.eval.Evaluate(pos)
}

// ScoreToString converts a score to a human-readable string.
func ScoreToString(score float64) string {
	if IsMateScore(score) {
		plies := MateCeiling - int(math.Round(math.Abs(score)))
		moves := (plies + 1) / 2
		if score > 0 {
			return fmt.Sprintf("White mates in %d", moves)
		}
		return fmt.Sprintf("Black mates in %d", moves)
	}
	return fmt.Sprintf("%+.2f", score)
}

// UCIScore converts a White-positive score into a UCI score field from the
// side to move's point of view ("cp 35" or "mate -2").
func UCIScore(score float64, whiteToMove bool) string {
	if !whiteToMove {
		score = -score
	}
	if IsMateScore(score) {
		plies := MateCeiling - int(math.Round(math.Abs(score)))
		moves := (plies + 1) / 2
		if score < 0 {
			moves = -moves
		}
		return fmt.Sprintf("mate %d", moves)
	}
	return fmt.Sprintf("cp %d", int(math.Round(score*100)))
}
