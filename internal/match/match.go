package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/notnil/chess"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/hailam/chessthink/internal/storage"
)

// Termination is the PGN Termination tag of a finished game.
type Termination string

const (
	TerminationNormal          Termination = "normal"
	TerminationTimeForfeit     Termination = "time forfeit"
	TerminationRulesInfraction Termination = "rules infraction"
	TerminationAdjudication    Termination = "adjudication"
)

// ErrSamePlayer is returned when both sides are the same Player value.
var ErrSamePlayer = errors.New("white and black are the same player")

// Options configures one game.
type Options struct {
	ID        string // generated when empty
	Event     string
	White     Player
	Black     Player
	StartFEN  string        // standard start when empty
	Time      time.Duration // per side; zero plays untimed
	Increment time.Duration
	MaxPlies  int // adjudicate a draw after this many plies; zero for no limit
}

// Result is a finished game.
type Result struct {
	ID          string
	White       string
	Black       string
	Outcome     chess.Outcome
	Method      chess.Method
	Termination Termination
	Plies       int
	PGN         string
	StartFEN    string
	TimeControl string
	StartedAt   time.Time
	Duration    time.Duration
	Decisions   []Decision
}

// NewMatchID returns a readable random identifier.
func NewMatchID() string {
	return petname.Generate(3, "-")
}

// timeControl formats the PGN TimeControl tag.
func timeControl(start, inc time.Duration) string {
	if start <= 0 {
		return "-"
	}
	if inc <= 0 {
		return fmt.Sprintf("%d", int(start.Seconds()))
	}
	return fmt.Sprintf("%d+%d", int(start.Seconds()), int(inc.Seconds()))
}

// Play runs one game to completion. Threefold repetition and the fifty-move
// rule are claimed as soon as they occur. A player that returns an illegal
// move or runs out of time loses. An error from a player abandons the game.
func Play(ctx context.Context, opts Options) (*Result, error) {
	if opts.White == nil || opts.Black == nil {
		return nil, errors.New("match: both players are required")
	}
	if opts.White == opts.Black {
		return nil, ErrSamePlayer
	}
	id := opts.ID
	if id == "" {
		id = NewMatchID()
	}

	gameOpts := []func(*chess.Game){chess.UseNotation(chess.UCINotation{})}
	if opts.StartFEN != "" {
		fenOpt, err := chess.FEN(opts.StartFEN)
		if err != nil {
			return nil, fmt.Errorf("match %s: start position: %w", id, err)
		}
		gameOpts = append(gameOpts, fenOpt)
	}
	g := chess.NewGame(gameOpts...)

	players := map[chess.Color]Player{chess.White: opts.White, chess.Black: opts.Black}
	for _, p := range players {
		if s, ok := p.(gameStarter); ok {
			if err := s.NewGame(); err != nil {
				return nil, fmt.Errorf("match %s: %s: new game: %w", id, p.Name(), err)
			}
		}
	}

	res := &Result{
		ID:          id,
		White:       opts.White.Name(),
		Black:       opts.Black.Name(),
		StartFEN:    g.Position().String(),
		TimeControl: timeControl(opts.Time, opts.Increment),
		StartedAt:   time.Now(),
		Termination: TerminationNormal,
	}
	event := opts.Event
	if event == "" {
		event = "chessthink match"
	}
	g.AddTagPair("Event", event)
	g.AddTagPair("Site", id)
	g.AddTagPair("Date", res.StartedAt.Format("2006.01.02"))
	g.AddTagPair("White", res.White)
	g.AddTagPair("Black", res.Black)
	g.AddTagPair("TimeControl", res.TimeControl)
	if opts.StartFEN != "" {
		g.AddTagPair("SetUp", "1")
		g.AddTagPair("FEN", res.StartFEN)
	}

	log.Info().Str("match", id).Str("white", res.White).Str("black", res.Black).
		Str("time_control", res.TimeControl).Msg("game started")

	clock := NewClock(opts.Time, opts.Increment)
	for g.Outcome() == chess.NoOutcome {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("match %s abandoned: %w", id, err)
		}
		if claimDraw(g) {
			break
		}
		if opts.MaxPlies > 0 && len(g.Moves()) >= opts.MaxPlies {
			if err := g.Draw(chess.DrawOffer); err != nil {
				return nil, err
			}
			res.Termination = TerminationAdjudication
			break
		}

		side := g.Position().Turn()
		player := players[side]
		m, flagged, err := playTurn(ctx, clock, player, g, side)
		if flagged {
			res.Termination = TerminationTimeForfeit
			forfeit(g, side)
			log.Info().Str("match", id).Str("player", player.Name()).Msg("flag fell")
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("match %s abandoned: %w", id, ctx.Err())
			}
			return nil, fmt.Errorf("match %s: %s: %w", id, player.Name(), err)
		}

		legal, ok := lo.Find(g.ValidMoves(), func(v *chess.Move) bool {
			return v.String() == m.String()
		})
		if !ok {
			log.Warn().Str("match", id).Str("player", player.Name()).
				Str("move", m.String()).Str("fen", g.Position().String()).Msg("illegal move")
			res.Termination = TerminationRulesInfraction
			g.Resign(side)
			break
		}
		if err := g.Move(legal); err != nil {
			return nil, fmt.Errorf("match %s: %w", id, err)
		}
	}

	g.AddTagPair("Result", string(g.Outcome()))
	g.AddTagPair("Termination", string(res.Termination))

	res.Outcome = g.Outcome()
	res.Method = g.Method()
	res.Plies = len(g.Moves())
	res.PGN = g.String()
	res.Duration = time.Since(res.StartedAt)
	for _, p := range players {
		if r, ok := p.(decisionRecorder); ok {
			res.Decisions = append(res.Decisions, r.Decisions()...)
		}
	}
	slices.SortFunc(res.Decisions, func(a, b Decision) int { return a.Ply - b.Ply })

	log.Info().Str("match", id).Str("result", string(res.Outcome)).
		Str("method", fmt.Sprint(res.Method)).Str("termination", string(res.Termination)).
		Int("plies", res.Plies).Dur("duration", res.Duration).Msg("game finished")
	return res, nil
}

// playTurn asks player for a move with side's clock running.
func playTurn(ctx context.Context, clock *Clock, player Player, g *chess.Game, side chess.Color) (*chess.Move, bool, error) {
	clock.Start(side)
	if clock.Timed() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, clock.Remaining(side))
		defer cancel()
	}
	m, err := player.Move(ctx, g, clock.TimerFor(side))
	if clock.Stop() {
		return nil, true, nil
	}
	if err == nil && m == nil {
		err = errors.New("no move returned")
	}
	return m, false, err
}

// claimDraw ends the game when a draw can be claimed.
func claimDraw(g *chess.Game) bool {
	for _, method := range []chess.Method{chess.ThreefoldRepetition, chess.FiftyMoveRule} {
		if lo.Contains(g.EligibleDraws(), method) {
			return g.Draw(method) == nil
		}
	}
	return false
}

// forfeit ends the game on time against side. The game is drawn when the
// opponent has no mating material left.
func forfeit(g *chess.Game, side chess.Color) {
	if !canMate(g.Position(), side.Other()) {
		_ = g.Draw(chess.DrawOffer)
		return
	}
	g.Resign(side)
}

// canMate reports whether color has a pawn, a major piece or two minor
// pieces.
func canMate(pos *chess.Position, color chess.Color) bool {
	minors := 0
	for _, p := range pos.Board().SquareMap() {
		if p.Color() != color {
			continue
		}
		switch p.Type() {
		case chess.Pawn, chess.Rook, chess.Queen:
			return true
		case chess.Knight, chess.Bishop:
			minors++
		}
	}
	return minors >= 2
}

// Record converts the result into a storage record.
func (r *Result) Record() storage.MatchRecord {
	return storage.MatchRecord{
		ID:          r.ID,
		White:       r.White,
		Black:       r.Black,
		Outcome:     string(r.Outcome),
		Method:      fmt.Sprint(r.Method),
		Plies:       r.Plies,
		PGN:         r.PGN,
		StartFEN:    r.StartFEN,
		TimeControl: r.TimeControl,
		StartedAt:   r.StartedAt,
		Duration:    r.Duration,
	}
}

// DecisionRows converts the engine decisions into telemetry rows.
func (r *Result) DecisionRows() []storage.DecisionRow {
	return lo.Map(r.Decisions, func(d Decision, _ int) storage.DecisionRow {
		return storage.DecisionRow{
			MatchID:    r.ID,
			Player:     d.Player,
			Ply:        int32(d.Ply),
			FEN:        d.FEN,
			Move:       d.Move,
			Score:      d.Info.Score,
			MaxDepth:   int32(d.Info.Budget.MaxDepth),
			MaxBreadth: d.Info.Budget.MaxBreadth,
			Depth:      int32(d.Info.Depth),
			Nodes:      int64(d.Info.Nodes),
			Hits:       int64(d.Info.Hits),
			ElapsedMS:  d.Info.Time.Milliseconds(),
			RemainMS:   d.Remaining.Milliseconds(),
			Stopped:    d.Info.Stopped,
		}
	})
}

// closePlayer releases players that hold external resources.
func closePlayer(p Player) {
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("player", p.Name()).Msg("close player")
		}
	}
}
