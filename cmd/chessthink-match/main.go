package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/notnil/chess"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/hailam/chessthink/internal/engine"
	"github.com/hailam/chessthink/internal/match"
	"github.com/hailam/chessthink/internal/storage"
)

var (
	games          = flag.Int("games", 2, "number of games")
	parallel       = flag.Int("parallel", 1, "games played at once")
	clockTime      = flag.Duration("time", time.Minute, "clock time per side (0 for untimed)")
	increment      = flag.Duration("inc", 0, "increment per move")
	depth          = flag.Int("depth", 0, "fixed search depth (0 budgets from the clock)")
	maxPlies       = flag.Int("max-plies", 400, "adjudicate a draw after this many plies (0 for no limit)")
	startFEN       = flag.String("fen", "", "start position (default: standard)")
	configPath     = flag.String("config", "", "engine config file (JSON)")
	opponentConfig = flag.String("opponent-config", "", "config of the second engine when no -opponent is given")
	opponent       = flag.String("opponent", "", "path of an external UCI engine to play against")
	dbDir          = flag.String("db", "", "database directory (default: platform data dir)")
	noSave         = flag.Bool("no-save", false, "do not record results in the database")
	telemetry      = flag.String("telemetry", "", "write per-move telemetry to this parquet file")
	logLevel       = flag.String("log-level", "warn", "log level: debug, info, warn, error")
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("bad log level")
	}
	zerolog.SetGlobalLevel(level)

	cfgA, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	playerA := engineFactory("chessthink", cfgA)

	var playerB match.PlayerFactory
	if *opponent != "" {
		playerB = func() (match.Player, error) {
			p, err := match.NewUCIPlayer(*opponent, *depth, *increment)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	} else {
		cfgB, err := loadConfig(*opponentConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("load opponent config")
		}
		playerB = engineFactory("chessthink-b", cfgB)
	}

	var store *storage.Storage
	if !*noSave {
		if *dbDir != "" {
			store, err = storage.Open(*dbDir)
		} else {
			store, err = storage.NewStorage()
		}
		if err != nil {
			log.Fatal().Err(err).Msg("open database")
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	series := match.NewMatchID()
	var rows []storage.DecisionRow
	opts := match.SeriesOptions{
		Games:    *games,
		Parallel: *parallel,
		A:        playerA,
		B:        playerB,
		Game: match.Options{
			Event:     "chessthink series " + series,
			StartFEN:  *startFEN,
			Time:      *clockTime,
			Increment: *increment,
			MaxPlies:  *maxPlies,
		},
		OnResult: func(game int, res *match.Result) {
			fmt.Printf("game %d/%d %s: %s vs %s %s (%s, %d plies)\n",
				game, *games, res.ID, res.White, res.Black, outcome(res.Outcome),
				describe(res), res.Plies)
			rows = append(rows, res.DecisionRows()...)
			if store == nil {
				return
			}
			rec := res.Record()
			if err := store.RecordResult(&rec); err != nil {
				log.Error().Err(err).Str("match", res.ID).Msg("record result")
			}
		},
	}

	sum, results, err := match.RunSeries(ctx, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("series failed")
	}

	fmt.Printf("%s %d games: %s %s %s, score %.1f/%d\n", bold("chessthink"), sum.Games,
		green(fmt.Sprintf("+%d", sum.Wins)), yellow(fmt.Sprintf("=%d", sum.Draws)),
		red(fmt.Sprintf("-%d", sum.Losses)), sum.Score(), sum.Games)

	if *telemetry != "" {
		// A bare file name goes to the platform telemetry directory.
		path := *telemetry
		if filepath.Base(path) == path {
			if dir, err := storage.GetTelemetryDir(); err == nil {
				path = filepath.Join(dir, path)
			}
		}
		if err := storage.WriteDecisions(path, rows); err != nil {
			log.Fatal().Err(err).Msg("write telemetry")
		}
		fmt.Printf("telemetry: %d decisions written to %s\n", len(rows), path)
	}

	if store != nil {
		printStats(store, lo.Uniq(lo.FlatMap(results, func(r *match.Result, _ int) []string {
			return []string{r.White, r.Black}
		})))
	}
}

func loadConfig(path string) (engine.Config, error) {
	if path == "" {
		return engine.DefaultConfig(), nil
	}
	return engine.LoadConfig(path)
}

func engineFactory(name string, cfg engine.Config) match.PlayerFactory {
	return func() (match.Player, error) {
		p, err := match.NewEnginePlayer(name, cfg, *depth)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func outcome(o chess.Outcome) string {
	switch o {
	case chess.WhiteWon, chess.BlackWon:
		return green(string(o))
	case chess.Draw:
		return yellow(string(o))
	}
	return red(string(o))
}

func describe(res *match.Result) string {
	if res.Termination != match.TerminationNormal {
		return string(res.Termination)
	}
	return fmt.Sprint(res.Method)
}

func printStats(store *storage.Storage, players []string) {
	for _, name := range players {
		stats, err := store.LoadStats(name)
		if err != nil {
			log.Error().Err(err).Str("player", name).Msg("load stats")
			continue
		}
		if stats.GamesPlayed == 0 {
			continue
		}
		fmt.Printf("%s: %d games, +%d =%d -%d, %.1f%% wins, longest streak %d\n",
			bold(name), stats.GamesPlayed, stats.Wins, stats.Draws, stats.Losses,
			stats.GetWinRate(), stats.LongestWinStrk)
	}
}
