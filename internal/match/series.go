package match

import (
	"context"
	"fmt"
	"sync"

	"github.com/notnil/chess"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// PlayerFactory creates a fresh player for one game. Games run concurrently,
// so players are never shared between games.
type PlayerFactory func() (Player, error)

// SeriesOptions configures a series of games between two players A and B.
type SeriesOptions struct {
	Games    int
	Parallel int // games played at once; values below 1 mean 1
	A, B     PlayerFactory
	Game     Options // template; players and ID are set per game

	// OnResult is called after each game, one call at a time.
	OnResult func(game int, res *Result)
}

// Summary is the series score from A's point of view.
type Summary struct {
	Games  int
	Wins   int
	Draws  int
	Losses int
}

// Score returns wins plus half the draws.
func (s Summary) Score() float64 {
	return float64(s.Wins) + float64(s.Draws)/2
}

func (s *Summary) add(res *Result, aIsWhite bool) {
	s.Games++
	switch res.Outcome {
	case chess.Draw:
		s.Draws++
	case chess.WhiteWon:
		if aIsWhite {
			s.Wins++
		} else {
			s.Losses++
		}
	case chess.BlackWon:
		if aIsWhite {
			s.Losses++
		} else {
			s.Wins++
		}
	}
}

// RunSeries plays opts.Games games, A taking White in the odd-numbered games
// and Black in the even ones. The first failing game cancels the rest.
// Results are returned in game order.
func RunSeries(ctx context.Context, opts SeriesOptions) (Summary, []*Result, error) {
	results := make([]*Result, opts.Games)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Parallel, 1))
	for i := 0; i < opts.Games; i++ {
		i := i
		g.Go(func() error {
			a, err := opts.A()
			if err != nil {
				return fmt.Errorf("game %d: create player A: %w", i+1, err)
			}
			defer closePlayer(a)
			b, err := opts.B()
			if err != nil {
				return fmt.Errorf("game %d: create player B: %w", i+1, err)
			}
			defer closePlayer(b)

			game := opts.Game
			game.ID = ""
			game.White, game.Black = a, b
			if i%2 == 1 {
				game.White, game.Black = b, a
			}
			res, err := Play(ctx, game)
			if err != nil {
				return fmt.Errorf("game %d: %w", i+1, err)
			}

			mu.Lock()
			defer mu.Unlock()
			results[i] = res
			if opts.OnResult != nil {
				opts.OnResult(i+1, res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, nil, err
	}

	var sum Summary
	for i, res := range results {
		sum.add(res, i%2 == 0)
	}
	log.Info().Int("games", sum.Games).Int("wins", sum.Wins).Int("draws", sum.Draws).
		Int("losses", sum.Losses).Float64("score", sum.Score()).Msg("series finished")
	return sum, results, nil
}
