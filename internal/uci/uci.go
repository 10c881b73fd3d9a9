// Package uci implements the Universal Chess Interface front end of the
// engine.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/hailam/chessthink/internal/board"
	"github.com/hailam/chessthink/internal/engine"
)

// UCI implements the Universal Chess Interface protocol.
type UCI struct {
	engine   *engine.Engine
	position *board.Board
	out      io.Writer
	outMu    sync.Mutex

	// Initial clock of the current game, taken from the first go command
	// after ucinewgame.
	gameStart time.Duration

	// Search state
	searching  bool
	searchDone chan struct{}
	cancel     context.CancelFunc
}

// New creates a new UCI protocol handler writing to out.
func New(eng *engine.Engine, out io.Writer) *UCI {
	return &UCI{
		engine:   eng,
		position: board.New(),
		out:      out,
	}
}

func (u *UCI) send(format string, args ...any) {
	u.outMu.Lock()
	defer u.outMu.Unlock()
	fmt.Fprintf(u.out, format+"\n", args...)
}

// Run reads commands from in until quit or end of input.
func (u *UCI) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			u.send("readyok")
		case "ucinewgame":
			u.handleStop()
			u.handleNewGame()
		case "position":
			u.handleStop()
			u.handlePosition(args)
		case "go":
			u.handleStop()
			u.handleGo(args)
		case "stop":
			u.handleStop()
		case "quit":
			u.handleStop()
			return nil
		case "setoption":
			u.handleStop()
			u.handleSetOption(args)
		// Debug commands
		case "d":
			u.handleDisplay()
		default:
			log.Debug().Str("command", line).Msg("unknown uci command")
		}
	}

	u.handleStop()
	return scanner.Err()
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	cfg := u.engine.Config()
	u.send("id name ChessThink")
	u.send("id author ChessThink Team")
	u.send("")
	u.send("option name Hash type spin default %d min 1 max 4096", cfg.HashMB)
	u.send("option name DrawBonus type string default %g", cfg.DrawBonus)
	u.send("option name CacheOrdering type check default %t", cfg.CacheOrdering)
	u.send("option name PawnStructure type check default %t", cfg.PawnStructure)
	u.send("option name Centrality type combo default %s var %s var %s",
		cfg.Centrality, engine.CentralitySine, engine.CentralityQuadrant)
	u.send("uciok")
}

// handleNewGame resets the engine for a new game.
func (u *UCI) handleNewGame() {
	u.engine.NewGame()
	u.position = board.New()
	u.gameStart = 0
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	movesAt := lo.IndexOf(args, "moves")
	fenEnd := len(args)
	if movesAt >= 0 {
		fenEnd = movesAt
	}

	var pos *board.Board
	switch args[0] {
	case "startpos":
		pos = board.New()
	case "fen":
		var err error
		pos, err = board.FromFEN(strings.Join(args[1:fenEnd], " "))
		if err != nil {
			u.send("info string Invalid FEN: %v", err)
			return
		}
	default:
		return
	}

	if movesAt >= 0 {
		for _, moveStr := range args[movesAt+1:] {
			m, err := pos.ParseMove(moveStr)
			if err != nil {
				u.send("info string Invalid move: %s", moveStr)
				return
			}
			pos.MakeMove(m)
		}
	}
	u.position = pos
}

// GoOptions holds the parameters of a go command.
type GoOptions struct {
	Depth    int
	MoveTime time.Duration
	Infinite bool
	WTime    time.Duration
	BTime    time.Duration
	WInc     time.Duration
	BInc     time.Duration
}

// handleGo starts a search in the background. The best move is printed when
// the search ends or is stopped.
func (u *UCI) handleGo(args []string) {
	opts := parseGoOptions(args)

	whiteToMove := u.position.WhiteToMove()
	u.engine.OnInfo = func(info engine.SearchInfo) {
		u.sendInfo(info, whiteToMove)
	}

	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	u.searching = true
	u.searchDone = make(chan struct{})

	pos := u.position.Clone()
	search := u.searchFunc(pos, opts)

	go func() {
		defer close(u.searchDone)
		defer cancel()

		m, err := search(ctx)
		switch {
		case errors.Is(err, engine.ErrNoLegalMoves):
			u.send("bestmove 0000")
		case err != nil:
			log.Error().Err(err).Msg("search failed")
			u.send("bestmove 0000")
		default:
			u.send("bestmove %s", m)
		}
	}()
}

// searchFunc maps the go options onto an engine call. A depth or move time
// gives a fixed budget, a clock goes through the engine's time management and
// infinite searches until stopped.
func (u *UCI) searchFunc(pos *board.Board, opts GoOptions) func(context.Context) (*chess.Move, error) {
	think := func(budget engine.Budget) func(context.Context) (*chess.Move, error) {
		return func(ctx context.Context) (*chess.Move, error) {
			res, err := u.engine.Think(ctx, pos, budget)
			if err != nil {
				return nil, err
			}
			return res.Move, nil
		}
	}

	switch {
	case opts.Infinite:
		return think(engine.FixedBudget(engine.MaxPly))
	case opts.Depth > 0:
		return think(engine.FixedBudget(opts.Depth))
	case opts.MoveTime > 0:
		inner := think(engine.MoveTimeBudget(opts.MoveTime))
		return func(ctx context.Context) (*chess.Move, error) {
			ctx, cancel := context.WithTimeout(ctx, opts.MoveTime)
			defer cancel()
			return inner(ctx)
		}
	case opts.WTime > 0 || opts.BTime > 0:
		timer := u.timerFor(pos.WhiteToMove(), opts)
		return func(ctx context.Context) (*chess.Move, error) {
			return u.engine.DecideMove(ctx, pos, timer)
		}
	}
	return think(engine.FixedBudget(engine.CrisisDepth))
}

// timerFor builds the engine's clock view from the go command. Each side's
// increment is added to its clock.
func (u *UCI) timerFor(whiteToMove bool, opts GoOptions) engine.Timer {
	own, opp := opts.WTime, opts.BTime
	ownInc, oppInc := opts.WInc, opts.BInc
	if !whiteToMove {
		own, opp = opp, own
		ownInc, oppInc = oppInc, ownInc
	}
	if u.gameStart == 0 {
		u.gameStart = max(own, opp)
	}
	return &goTimer{began: time.Now(), remaining: own + ownInc, opponent: opp + oppInc, start: u.gameStart}
}

type goTimer struct {
	began     time.Time
	remaining time.Duration
	opponent  time.Duration
	start     time.Duration
}

func (t *goTimer) ElapsedThisTurn() time.Duration   { return time.Since(t.began) }
func (t *goTimer) Remaining() time.Duration         { return t.remaining - time.Since(t.began) }
func (t *goTimer) OpponentRemaining() time.Duration { return t.opponent }
func (t *goTimer) GameStart() time.Duration         { return t.start }

func parseGoOptions(args []string) GoOptions {
	opts := GoOptions{}

	millis := func(i int) time.Duration {
		ms, _ := strconv.Atoi(args[i])
		return time.Duration(ms) * time.Millisecond
	}

	for i := 0; i < len(args); i++ {
		if args[i] == "infinite" {
			opts.Infinite = true
			continue
		}
		if i+1 >= len(args) {
			break
		}
		switch args[i] {
		case "depth":
			opts.Depth, _ = strconv.Atoi(args[i+1])
		case "movetime":
			opts.MoveTime = millis(i + 1)
		case "wtime":
			opts.WTime = millis(i + 1)
		case "btime":
			opts.BTime = millis(i + 1)
		case "winc":
			opts.WInc = millis(i + 1)
		case "binc":
			opts.BInc = millis(i + 1)
		default:
			continue
		}
		i++
	}

	return opts
}

func (u *UCI) sendInfo(info engine.SearchInfo, whiteToMove bool) {
	var parts []string

	parts = append(parts, fmt.Sprintf("depth %d", info.Budget.MaxDepth))
	parts = append(parts, fmt.Sprintf("seldepth %d", info.Depth))
	parts = append(parts, "score "+engine.UCIScore(info.Score, whiteToMove))
	parts = append(parts, fmt.Sprintf("nodes %d", info.Nodes))
	parts = append(parts, fmt.Sprintf("time %d", info.Time.Milliseconds()))

	if info.Time > 0 {
		nps := uint64(float64(info.Nodes) / info.Time.Seconds())
		parts = append(parts, fmt.Sprintf("nps %d", nps))
	}

	if info.HashFull > 0 {
		parts = append(parts, fmt.Sprintf("hashfull %d", info.HashFull))
	}

	if info.Move != nil {
		parts = append(parts, "pv "+info.Move.String())
	}

	u.send("info %s", strings.Join(parts, " "))
}

func (u *UCI) handleStop() {
	if u.searching {
		u.cancel()
		<-u.searchDone // Wait for search to finish
		u.searching = false
	}
}

func (u *UCI) handleSetOption(args []string) {
	var name, value string
	readingName := false
	readingValue := false

	for _, arg := range args {
		switch arg {
		case "name":
			readingName = true
			readingValue = false
		case "value":
			readingName = false
			readingValue = true
		default:
			if readingName {
				if name != "" {
					name += " "
				}
				name += arg
			} else if readingValue {
				if value != "" {
					value += " "
				}
				value += arg
			}
		}
	}

	cfg := u.engine.Config()
	var err error
	switch strings.ToLower(name) {
	case "hash":
		cfg.HashMB, err = strconv.Atoi(value)
	case "drawbonus":
		cfg.DrawBonus, err = strconv.ParseFloat(value, 64)
	case "cacheordering":
		cfg.CacheOrdering, err = strconv.ParseBool(value)
	case "pawnstructure":
		cfg.PawnStructure, err = strconv.ParseBool(value)
	case "centrality":
		cfg.Centrality = engine.Centrality(strings.ToLower(value))
	default:
		u.send("info string Unknown option: %s", name)
		return
	}
	if err == nil {
		err = u.engine.SetConfig(cfg)
	}
	if err != nil {
		u.send("info string Invalid value %q for %s: %v", value, name, err)
		return
	}
	log.Debug().Str("option", name).Str("value", value).Msg("option set")
}

// handleDisplay prints the current position and its static evaluation.
func (u *UCI) handleDisplay() {
	u.send("%s", u.position.FEN())
	u.send("Eval: %s", engine.ScoreToString(u.engine.Evaluate(u.position)))
}
