// Package match plays complete games between players under a chess clock
// and collects the per-move engine telemetry.
package match

import (
	"sync"
	"time"

	"github.com/notnil/chess"

	"github.com/hailam/chessthink/internal/engine"
)

// Clock is a two-sided chess clock with a Fischer increment. A zero start
// time means the game is untimed and no flag ever falls.
type Clock struct {
	mu        sync.Mutex
	start     time.Duration
	increment time.Duration
	remaining [2]time.Duration
	running   chess.Color
	since     time.Time

	now func() time.Time
}

// NewClock returns a stopped clock with start on both sides.
func NewClock(start, increment time.Duration) *Clock {
	return &Clock{
		start:     start,
		increment: increment,
		remaining: [2]time.Duration{start, start},
		running:   chess.NoColor,
		now:       time.Now,
	}
}

func sideIndex(c chess.Color) int {
	if c == chess.Black {
		return 1
	}
	return 0
}

// Timed reports whether the clock has a time limit.
func (c *Clock) Timed() bool {
	return c.start > 0
}

// Start runs side's clock. A clock that is already running is stopped first.
func (c *Clock) Start(side chess.Color) {
	c.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = side
	c.since = c.now()
}

// Stop halts the running clock, charges the elapsed time and adds the
// increment. It reports whether the side ran out of time, in which case no
// increment is added.
func (c *Clock) Stop() (flagged bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running == chess.NoColor {
		return false
	}
	i := sideIndex(c.running)
	c.running = chess.NoColor
	if !c.Timed() {
		return false
	}
	c.remaining[i] -= c.now().Sub(c.since)
	if c.remaining[i] <= 0 {
		c.remaining[i] = 0
		return true
	}
	c.remaining[i] += c.increment
	return false
}

// Remaining returns the time left for side, counting the running turn.
func (c *Clock) Remaining(side chess.Color) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked(side)
}

func (c *Clock) remainingLocked(side chess.Color) time.Duration {
	r := c.remaining[sideIndex(side)]
	if c.running == side && c.Timed() {
		r -= c.now().Sub(c.since)
	}
	return max(r, 0)
}

// Elapsed returns the time side has spent on the running turn, or zero when
// side is not on move.
func (c *Clock) Elapsed(side chess.Color) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running != side {
		return 0
	}
	return c.now().Sub(c.since)
}

// TimerFor returns the engine's view of the clock for side.
func (c *Clock) TimerFor(side chess.Color) engine.Timer {
	return clockTimer{clock: c, side: side}
}

type clockTimer struct {
	clock *Clock
	side  chess.Color
}

func (t clockTimer) ElapsedThisTurn() time.Duration {
	return t.clock.Elapsed(t.side)
}

func (t clockTimer) Remaining() time.Duration {
	return t.clock.Remaining(t.side)
}

func (t clockTimer) OpponentRemaining() time.Duration {
	return t.clock.Remaining(t.side.Other())
}

func (t clockTimer) GameStart() time.Duration {
	return t.clock.start
}
