package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Storage key prefixes
const (
	prefixMatch = "match/"
	prefixStats = "stats/"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Outcome of a finished game from White's point of view, in PGN notation.
const (
	OutcomeWhiteWon = "1-0"
	OutcomeBlackWon = "0-1"
	OutcomeDraw     = "1/2-1/2"
)

// MatchRecord is one finished game.
type MatchRecord struct {
	ID          string        `json:"id"`
	White       string        `json:"white"`
	Black       string        `json:"black"`
	Outcome     string        `json:"outcome"`
	Method      string        `json:"method"`
	Plies       int           `json:"plies"`
	PGN         string        `json:"pgn"`
	StartFEN    string        `json:"start_fen,omitempty"`
	TimeControl string        `json:"time_control"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// PlayerStats accumulates results for one player name.
type PlayerStats struct {
	Player         string        `json:"player"`
	GamesPlayed    int           `json:"games_played"`
	Wins           int           `json:"wins"`
	Losses         int           `json:"losses"`
	Draws          int           `json:"draws"`
	WinsAsWhite    int           `json:"wins_as_white"`
	WinsAsBlack    int           `json:"wins_as_black"`
	TotalPlayTime  time.Duration `json:"total_play_time"`
	LongestWinStrk int           `json:"longest_win_streak"`
	CurrentStreak  int           `json:"current_streak"`
}

// NewPlayerStats returns empty statistics for player.
func NewPlayerStats(player string) *PlayerStats {
	return &PlayerStats{Player: player}
}

// Score returns wins plus half the draws.
func (s *PlayerStats) Score() float64 {
	return float64(s.Wins) + float64(s.Draws)/2
}

// GetWinRate returns the win rate as a percentage (0-100)
func (s *PlayerStats) GetWinRate() float64 {
	if s.GamesPlayed == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.GamesPlayed) * 100
}

func (s *PlayerStats) record(won, lost, asWhite bool, d time.Duration) {
	s.GamesPlayed++
	s.TotalPlayTime += d
	switch {
	case won:
		s.Wins++
		if asWhite {
			s.WinsAsWhite++
		} else {
			s.WinsAsBlack++
		}
		s.CurrentStreak++
		if s.CurrentStreak > s.LongestWinStrk {
			s.LongestWinStrk = s.CurrentStreak
		}
	case lost:
		s.Losses++
		s.CurrentStreak = 0
	default:
		s.Draws++
		s.CurrentStreak = 0
	}
}

// Storage wraps BadgerDB for persistent storage
type Storage struct {
	db *badger.DB
}

// NewStorage opens the database in the platform data directory.
func NewStorage() (*Storage, error) {
	dbDir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}
	return Open(dbDir)
}

// Open opens (creating if needed) the database in dir.
func Open(dir string) (*Storage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging
	return open(opts)
}

// OpenInMemory opens a database that lives only as long as the process.
func OpenInMemory() (*Storage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*Storage, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

// SaveMatch stores a match record without touching statistics.
func (s *Storage) SaveMatch(rec *MatchRecord) error {
	if rec.ID == "" {
		return errors.New("match record without id")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, prefixMatch+rec.ID, rec)
	})
}

// LoadMatch loads a match record by id.
func (s *Storage) LoadMatch(id string) (*MatchRecord, error) {
	rec := &MatchRecord{}
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixMatch+id, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("load match %s: %w", id, err)
	}
	return rec, nil
}

// ListMatches returns every stored match, oldest first.
func (s *Storage) ListMatches() ([]*MatchRecord, error) {
	var recs []*MatchRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixMatch)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rec := &MatchRecord{}
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, rec)
			}); err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].StartedAt.Before(recs[j].StartedAt)
	})
	return recs, nil
}

// LoadStats loads statistics for player, returns empty stats if not found
func (s *Storage) LoadStats(player string) (*PlayerStats, error) {
	stats := NewPlayerStats(player)
	err := s.db.View(func(txn *badger.Txn) error {
		err := getJSON(txn, prefixStats+player, stats)
		if errors.Is(err, ErrNotFound) {
			return nil // Use empty stats
		}
		return err
	})
	return stats, err
}

// RecordResult stores a finished match and updates both players'
// statistics in one transaction.
func (s *Storage) RecordResult(rec *MatchRecord) error {
	if rec.ID == "" {
		return errors.New("match record without id")
	}
	var whiteWon, blackWon bool
	switch rec.Outcome {
	case OutcomeWhiteWon:
		whiteWon = true
	case OutcomeBlackWon:
		blackWon = true
	case OutcomeDraw:
	default:
		return fmt.Errorf("record match %s: unfinished outcome %q", rec.ID, rec.Outcome)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixMatch+rec.ID, rec); err != nil {
			return err
		}
		update := func(player string, won, lost, asWhite bool) error {
			stats := NewPlayerStats(player)
			if err := getJSON(txn, prefixStats+player, stats); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			stats.record(won, lost, asWhite, rec.Duration)
			return setJSON(txn, prefixStats+player, stats)
		}
		if err := update(rec.White, whiteWon, blackWon, true); err != nil {
			return err
		}
		return update(rec.Black, blackWon, whiteWon, false)
	})
}
