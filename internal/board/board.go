// Package board adapts github.com/notnil/chess to the make/undo position
// contract consumed by the search engine.
package board

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/notnil/chess"
	"github.com/samber/lo"
)

// ErrIllegalMove is returned when a move string does not name a legal move.
var ErrIllegalMove = errors.New("illegal move")

// state is one entry of the position stack.
type state struct {
	pos      *chess.Position
	move     *chess.Move // move that produced pos, nil at the root
	hash     uint64
	halfMove int // plies since the last capture or pawn move
}

// Board is a chess position plus the history needed for repetition and
// fifty-move detection. Moves are applied and taken back in strict stack
// order.
type Board struct {
	states  []state
	plyBase int // game ply of states[0]
}

// New returns the standard starting position.
func New() *Board {
	return fromPosition(chess.StartingPosition(), 0, 0)
}

// FromFEN parses a FEN string.
func FromFEN(fen string) (*Board, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	halfMove, ply := fenCounters(fen)
	g := chess.NewGame(opt)
	return fromPosition(g.Position(), halfMove, ply), nil
}

// FromGame rebuilds the full history of a game so that repetitions of
// earlier game positions are visible to the search.
func FromGame(g *chess.Game) (*Board, error) {
	positions := g.Positions()
	if len(positions) == 0 {
		return New(), nil
	}
	b, err := FromFEN(positions[0].String())
	if err != nil {
		return nil, err
	}
	for _, m := range g.Moves() {
		b.MakeMove(m)
	}
	return b, nil
}

func fromPosition(pos *chess.Position, halfMove, ply int) *Board {
	return &Board{
		states:  []state{{pos: pos, hash: positionKey(pos), halfMove: halfMove}},
		plyBase: ply,
	}
}

// fenCounters extracts the halfmove clock and the game ply from a FEN.
func fenCounters(fen string) (halfMove, ply int) {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 0, 0
	}
	halfMove, _ = strconv.Atoi(fields[4])
	fullMove, err := strconv.Atoi(fields[5])
	if err != nil || fullMove < 1 {
		fullMove = 1
	}
	ply = 2 * (fullMove - 1)
	if fields[1] == "b" {
		ply++
	}
	return halfMove, ply
}

// positionKey hashes the placement, side to move, castling rights and en
// passant square. The move counters are left out so transpositions and
// repetitions map to the same key.
func positionKey(pos *chess.Position) uint64 {
	fields := strings.Fields(pos.String())
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return xxhash.Sum64String(strings.Join(fields, " "))
}

func (b *Board) top() *state {
	return &b.states[len(b.states)-1]
}

// Position returns the current notnil/chess position.
func (b *Board) Position() *chess.Position {
	return b.top().pos
}

// LegalMoves returns every legal move in the current position.
func (b *Board) LegalMoves() []*chess.Move {
	return b.top().pos.ValidMoves()
}

// MakeMove applies m, which must be legal in the current position.
func (b *Board) MakeMove(m *chess.Move) {
	cur := b.top()
	halfMove := cur.halfMove + 1
	if isIrreversible(cur.pos, m) {
		halfMove = 0
	}
	next := cur.pos.Update(m)
	b.states = append(b.states, state{
		pos:      next,
		move:     m,
		hash:     positionKey(next),
		halfMove: halfMove,
	})
}

// UndoMove takes back m, which must be the last move made.
func (b *Board) UndoMove(m *chess.Move) {
	if len(b.states) == 1 {
		panic("board: undo with empty move stack")
	}
	if last := b.top().move; last != m && last.String() != m.String() {
		panic(fmt.Sprintf("board: undo %s but last move was %s", m, last))
	}
	b.states = b.states[:len(b.states)-1]
}

// IsIrreversible reports whether m is a capture or a pawn move in the
// current position.
func (b *Board) IsIrreversible(m *chess.Move) bool {
	return isIrreversible(b.top().pos, m)
}

func isIrreversible(pos *chess.Position, m *chess.Move) bool {
	if m.HasTag(chess.Capture) || m.HasTag(chess.EnPassant) {
		return true
	}
	return pos.Board().Piece(m.S1()).Type() == chess.Pawn
}

// IsCheckmate reports whether the side to move is mated.
func (b *Board) IsCheckmate() bool {
	return b.top().pos.Status() == chess.Checkmate
}

// IsStalemate reports whether the side to move has no legal move and is not
// in check.
func (b *Board) IsStalemate() bool {
	return b.top().pos.Status() == chess.Stalemate
}

// IsDraw reports any draw by rule.
func (b *Board) IsDraw() bool {
	return b.IsStalemate() || b.IsInsufficientMaterial() || b.IsFiftyMoveDraw() || b.IsRepeatedPosition()
}

// IsFiftyMoveDraw reports whether fifty full moves passed without a capture
// or pawn move.
func (b *Board) IsFiftyMoveDraw() bool {
	return b.top().halfMove >= 100
}

// IsRepeatedPosition reports whether the current position already occurred
// since the last irreversible move.
func (b *Board) IsRepeatedPosition() bool {
	cur := len(b.states) - 1
	window := b.states[cur].halfMove
	for i := cur - 2; i >= 0 && cur-i <= window; i -= 2 {
		if b.states[i].hash == b.states[cur].hash {
			return true
		}
	}
	return false
}

// IsInsufficientMaterial reports K v K, K+minor v K and positions where the
// only minor pieces are bishops on squares of one colour.
func (b *Board) IsInsufficientMaterial() bool {
	squares := b.top().pos.Board().SquareMap()
	var minors, bishops int
	bishopColours := map[int]bool{}
	for sq, p := range squares {
		switch p.Type() {
		case chess.Pawn, chess.Rook, chess.Queen:
			return false
		case chess.Knight:
			minors++
		case chess.Bishop:
			minors++
			bishops++
			bishopColours[(int(sq.File())+int(sq.Rank()))%2] = true
		}
	}
	if minors <= 1 {
		return true
	}
	return bishops == minors && len(bishopColours) == 1
}

// Hash returns a 64-bit key of the current position.
func (b *Board) Hash() uint64 {
	return b.top().hash
}

// PieceAt returns the piece on sq, or chess.NoPiece.
func (b *Board) PieceAt(sq chess.Square) chess.Piece {
	return b.top().pos.Board().Piece(sq)
}

// WhiteToMove reports whether White is on move.
func (b *Board) WhiteToMove() bool {
	return b.top().pos.Turn() == chess.White
}

// PlyCount returns the number of half moves played in the game so far.
func (b *Board) PlyCount() int {
	return b.plyBase + len(b.states) - 1
}

// FEN returns the current position in Forsyth-Edwards notation.
func (b *Board) FEN() string {
	return b.top().pos.String()
}

// ParseMove resolves a UCI move string such as "e2e4" or "e7e8q".
func (b *Board) ParseMove(s string) (*chess.Move, error) {
	m, ok := lo.Find(b.LegalMoves(), func(m *chess.Move) bool {
		return m.String() == s
	})
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrIllegalMove, s, b.FEN())
	}
	return m, nil
}

// History returns the moves made since the board was created, oldest first.
func (b *Board) History() []*chess.Move {
	return lo.FilterMap(b.states, func(s state, _ int) (*chess.Move, bool) {
		return s.move, s.move != nil
	})
}

// MirrorFEN returns the colour-flipped position: ranks reversed, piece
// colours and side to move swapped. Evaluations of the two positions are
// negatives of each other.
func MirrorFEN(fen string) (string, error) {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return "", fmt.Errorf("mirror fen %q: want at least 4 fields", fen)
	}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return "", fmt.Errorf("mirror fen %q: want 8 ranks, got %d", fen, len(ranks))
	}
	for i, j := 0, len(ranks)-1; i < j; i, j = i+1, j-1 {
		ranks[i], ranks[j] = ranks[j], ranks[i]
	}
	fields[0] = swapCase(strings.Join(ranks, "/"))

	switch fields[1] {
	case "w":
		fields[1] = "b"
	case "b":
		fields[1] = "w"
	default:
		return "", fmt.Errorf("mirror fen %q: bad side to move %q", fen, fields[1])
	}

	if fields[2] != "-" {
		swapped := swapCase(fields[2])
		var castling strings.Builder
		for _, c := range "KQkq" {
			if strings.ContainsRune(swapped, c) {
				castling.WriteRune(c)
			}
		}
		fields[2] = castling.String()
	}

	if ep := fields[3]; ep != "-" {
		if len(ep) != 2 {
			return "", fmt.Errorf("mirror fen %q: bad en passant square %q", fen, ep)
		}
		switch ep[1] {
		case '3':
			fields[3] = ep[:1] + "6"
		case '6':
			fields[3] = ep[:1] + "3"
		default:
			return "", fmt.Errorf("mirror fen %q: bad en passant square %q", fen, ep)
		}
	}
	return strings.Join(fields, " "), nil
}

func swapCase(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z':
			return r - 'A' + 'a'
		}
		return r
	}, s)
}

// Clone returns an independent copy that shares no mutable state with b.
func (b *Board) Clone() *Board {
	return &Board{states: slices.Clone(b.states), plyBase: b.plyBase}
}
