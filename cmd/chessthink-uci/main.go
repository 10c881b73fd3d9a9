package main

import (
	"flag"
	"os"
	"runtime/pprof"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hailam/chessthink/internal/engine"
	"github.com/hailam/chessthink/internal/uci"
)

var (
	configPath = flag.String("config", "", "engine config file (JSON)")
	hashMB     = flag.Int("hash", 0, "transposition table size in MB (overrides config)")
	logLevel   = flag.String("log-level", "warn", "log level: debug, info, warn, error")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
)

func main() {
	flag.Parse()

	// stdout carries the protocol, logs go to stderr.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("bad log level")
	}
	zerolog.SetGlobalLevel(level)

	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create CPU profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", profilePath).Msg("CPU profiling enabled")
	}

	cfg := engine.DefaultConfig()
	if *configPath != "" {
		if cfg, err = engine.LoadConfig(*configPath); err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
	}
	if *hashMB > 0 {
		cfg.HashMB = *hashMB
	}

	eng, err := engine.NewEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create engine")
	}

	protocol := uci.New(eng, os.Stdout)
	if err := protocol.Run(os.Stdin); err != nil {
		log.Error().Err(err).Msg("read commands")
	}
}
