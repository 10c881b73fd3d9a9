package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Centrality selects the positional table family used for knights and kings.
type Centrality string

const (
	CentralitySine     Centrality = "sine"     // continuous sin(row)+sin(col) centrality
	CentralityQuadrant Centrality = "quadrant" // 4x4 table mirrored across both axes
)

// Config holds the tunable engine settings. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	HashMB            int        `json:"hash_mb"`            // transposition table size
	CacheOrdering     bool       `json:"cache_ordering"`     // order moves by cached child values
	PawnStructure     bool       `json:"pawn_structure"`     // passed, isolated and doubled pawn terms
	Centrality        Centrality `json:"centrality"`         // knight/king positional tables
	DrawBonus         float64    `json:"draw_bonus"`         // signed nudge for claimable draws
	DecisiveThreshold float64    `json:"decisive_threshold"` // |value| at which cache entries count as decisive
	LiveTimeCheck     bool       `json:"live_time_check"`    // stop the search at half the remaining clock
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid engine config")

// DefaultConfig returns the settings the engine plays with out of the box.
func DefaultConfig() Config {
	return Config{
		HashMB:            16,
		CacheOrdering:     true,
		PawnStructure:     false,
		Centrality:        CentralitySine,
		DrawBonus:         0.5,
		DecisiveThreshold: 900,
		LiveTimeCheck:     true,
	}
}

// LoadConfig reads a JSON config file. Fields missing from the file keep
// their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that every field is in range.
func (c Config) Validate() error {
	if c.HashMB < 1 || c.HashMB > 4096 {
		return fmt.Errorf("%w: hash_mb %d out of range [1, 4096]", ErrInvalidConfig, c.HashMB)
	}
	switch c.Centrality {
	case CentralitySine, CentralityQuadrant:
	default:
		return fmt.Errorf("%w: unknown centrality %q", ErrInvalidConfig, c.Centrality)
	}
	if c.DrawBonus < 0 || c.DrawBonus >= 1 {
		return fmt.Errorf("%w: draw_bonus %g out of range [0, 1)", ErrInvalidConfig, c.DrawBonus)
	}
	if c.DecisiveThreshold <= 0 || c.DecisiveThreshold > MateCeiling {
		return fmt.Errorf("%w: decisive_threshold %g out of range (0, %d]", ErrInvalidConfig, c.DecisiveThreshold, MateCeiling)
	}
	return nil
}
