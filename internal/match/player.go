package match

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/notnil/chess"
	"github.com/notnil/chess/uci"

	"github.com/hailam/chessthink/internal/board"
	"github.com/hailam/chessthink/internal/engine"
)

// Player chooses moves for one side of a game.
type Player interface {
	Name() string
	// Move returns the move to play in the current position of g. t reports
	// the clock of the side to move.
	Move(ctx context.Context, g *chess.Game, t engine.Timer) (*chess.Move, error)
}

// Decision is the record of one engine move.
type Decision struct {
	Player    string
	Ply       int
	FEN       string
	Move      string
	Remaining time.Duration // clock before the move
	Info      engine.SearchInfo
}

// gameStarter is implemented by players that keep state between moves.
type gameStarter interface {
	NewGame() error
}

// decisionRecorder is implemented by players that report engine telemetry.
type decisionRecorder interface {
	Decisions() []Decision
}

// EnginePlayer plays with the built-in engine.
type EnginePlayer struct {
	name      string
	eng       *engine.Engine
	depth     int
	decisions []Decision
}

// NewEnginePlayer creates an engine player. A positive depth searches every
// move to that fixed depth; zero budgets each move from the clock.
func NewEnginePlayer(name string, cfg engine.Config, depth int) (*EnginePlayer, error) {
	eng, err := engine.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return &EnginePlayer{name: name, eng: eng, depth: depth}, nil
}

func (p *EnginePlayer) Name() string { return p.name }

// NewGame forgets the table and the decisions of the previous game.
func (p *EnginePlayer) NewGame() error {
	p.eng.NewGame()
	p.decisions = nil
	return nil
}

func (p *EnginePlayer) Move(ctx context.Context, g *chess.Game, t engine.Timer) (*chess.Move, error) {
	pos, err := board.FromGame(g)
	if err != nil {
		return nil, err
	}
	d := Decision{
		Player:    p.name,
		Ply:       pos.PlyCount(),
		FEN:       pos.FEN(),
		Remaining: t.Remaining(),
	}
	p.eng.OnInfo = func(info engine.SearchInfo) { d.Info = info }
	defer func() { p.eng.OnInfo = nil }()

	var m *chess.Move
	if p.depth > 0 {
		res, err := p.eng.Think(ctx, pos, engine.FixedBudget(p.depth))
		if err != nil {
			return nil, err
		}
		m = res.Move
	} else {
		if m, err = p.eng.DecideMove(ctx, pos, t); err != nil {
			return nil, err
		}
	}
	d.Move = m.String()
	p.decisions = append(p.decisions, d)
	return m, nil
}

// Decisions returns the decisions made since the last NewGame.
func (p *EnginePlayer) Decisions() []Decision {
	return p.decisions
}

// UCIPlayer drives an external engine over the UCI protocol.
type UCIPlayer struct {
	name      string
	eng       *uci.Engine
	depth     int
	increment time.Duration
}

// NewUCIPlayer starts the engine binary at path. A positive depth searches
// to that depth; otherwise the engine gets the clock state and increment.
func NewUCIPlayer(path string, depth int, increment time.Duration) (*UCIPlayer, error) {
	eng, err := uci.New(path)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", path, err)
	}
	if err := eng.Run(uci.CmdUCI, uci.CmdIsReady); err != nil {
		eng.Close()
		return nil, fmt.Errorf("initialize %s: %w", path, err)
	}
	name := eng.ID()["name"]
	if name == "" {
		name = filepath.Base(path)
	}
	return &UCIPlayer{name: name, eng: eng, depth: depth, increment: increment}, nil
}

func (p *UCIPlayer) Name() string { return p.name }

func (p *UCIPlayer) NewGame() error {
	return p.eng.Run(uci.CmdUCINewGame, uci.CmdIsReady)
}

// Move sends the game so far and waits for bestmove. The external search is
// not interrupted by ctx; an overrun is caught by the clock.
func (p *UCIPlayer) Move(ctx context.Context, g *chess.Game, t engine.Timer) (*chess.Move, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	positions := g.Positions()
	cmdPos := uci.CmdPosition{Position: positions[0], Moves: g.Moves()}

	cmdGo := uci.CmdGo{Depth: p.depth}
	if p.depth <= 0 {
		own, opp := t.Remaining(), t.OpponentRemaining()
		if g.Position().Turn() == chess.Black {
			own, opp = opp, own
		}
		cmdGo.WhiteTime, cmdGo.BlackTime = own, opp
		cmdGo.WhiteIncrement, cmdGo.BlackIncrement = p.increment, p.increment
	}

	if err := p.eng.Run(cmdPos, cmdGo); err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	best := p.eng.SearchResults().BestMove
	if best == nil {
		return nil, fmt.Errorf("%s: no bestmove", p.name)
	}
	return best, nil
}

// Close stops the engine process.
func (p *UCIPlayer) Close() error {
	return p.eng.Close()
}

// ErrScriptExhausted is returned by a ScriptedPlayer with no moves left.
var ErrScriptExhausted = errors.New("script exhausted")

// ScriptedPlayer replays a fixed list of UCI moves.
type ScriptedPlayer struct {
	name  string
	moves []string
	next  int
}

// NewScriptedPlayer returns a player that plays moves in order.
func NewScriptedPlayer(name string, moves ...string) *ScriptedPlayer {
	return &ScriptedPlayer{name: name, moves: moves}
}

func (p *ScriptedPlayer) Name() string { return p.name }

func (p *ScriptedPlayer) NewGame() error {
	p.next = 0
	return nil
}

func (p *ScriptedPlayer) Move(ctx context.Context, g *chess.Game, _ engine.Timer) (*chess.Move, error) {
	if p.next >= len(p.moves) {
		return nil, ErrScriptExhausted
	}
	s := p.moves[p.next]
	p.next++
	m, err := chess.UCINotation{}.Decode(g.Position(), s)
	if err != nil {
		return nil, fmt.Errorf("scripted move %q: %w", s, err)
	}
	return m, nil
}
