// Package engine implements the budgeted chess search engine.
package engine

import (
	"math"
	"math/bits"

	"github.com/notnil/chess"
)

// Material values in pawns.
const (
	PawnValue   = 1.0
	KnightValue = 3.25
	BishopValue = 3.25
	RookValue   = 5.0
	QueenValue  = 9.75
)

var materialValue = map[chess.PieceType]float64{
	chess.Pawn:   PawnValue,
	chess.Knight: KnightValue,
	chess.Bishop: BishopValue,
	chess.Rook:   RookValue,
	chess.Queen:  QueenValue,
}

// Pawn structure terms.
const (
	isolatedPawnPenalty = -0.15
	doubledPawnPenalty  = -0.1
)

// Pawn values by rank counted from the pawn's own side (index 1 = home rank).
var (
	pawnRankValue   = [8]float64{0, 1, 1, 1, 1.1, 1.5, 4.5, 0}
	passedRankValue = [8]float64{0, 1.1, 1.1, 1.3, 1.5, 2.5, 4.5, 0}
)

// Quadrant tables, indexed by distance from the edge (0..3) of rank and file.
var (
	diagonalQuad = [4][4]float64{
		{73, 67, 63, 61},
		{67, 85, 81, 79},
		{63, 81, 101, 99},
		{61, 79, 99, 121},
	}
	knightQuad = [4][4]float64{
		{12, 18, 23, 26},
		{18, 24, 32, 37},
		{23, 32, 42, 48},
		{26, 37, 48, 56},
	}
	kingQuad = [4][4]float64{
		{105, 183, 220, 233},
		{183, 318, 382, 404},
		{220, 382, 459, 485},
		{233, 404, 485, 512},
	}
)

var (
	sineCentre  [8][8]float64 // (sin(pi*r/7) + sin(pi*c/7)) / 2
	forwardMask [2][64]uint64 // squares ahead of a pawn on its own and adjacent files
	fileMask    [8]uint64     // all squares of a file
	adjacent    [8]uint64     // files either side of a file
)

func init() {
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			sineCentre[r][c] = (math.Sin(math.Pi*float64(r)/7) + math.Sin(math.Pi*float64(c)/7)) / 2
		}
	}
	for f := 0; f < 8; f++ {
		for r := 0; r < 8; r++ {
			fileMask[f] |= 1 << (r*8 + f)
		}
	}
	for f := 0; f < 8; f++ {
		if f > 0 {
			adjacent[f] |= fileMask[f-1]
		}
		if f < 7 {
			adjacent[f] |= fileMask[f+1]
		}
	}
	for sq := 0; sq < 64; sq++ {
		r, f := sq/8, sq%8
		files := fileMask[f] | adjacent[f]
		for ahead := 0; ahead < 8; ahead++ {
			rank := uint64(0xFF) << (ahead * 8)
			if ahead > r {
				forwardMask[0][sq] |= files & rank
			}
			if ahead < r {
				forwardMask[1][sq] |= files & rank
			}
		}
	}
}

// edge folds a rank or file index onto its distance from the nearest edge.
func edge(x int) int {
	if x < 4 {
		return x
	}
	return 7 - x
}

func side(c chess.Color) int {
	if c == chess.Black {
		return 1
	}
	return 0
}

// Evaluator scores non-terminal positions from White's point of view and
// classifies terminal ones.
type Evaluator struct {
	centrality    Centrality
	pawnStructure bool
	drawBonus     float64
	pawns         *PawnTable
}

// NewEvaluator creates an evaluator for the given settings.
func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{
		centrality:    cfg.Centrality,
		pawnStructure: cfg.PawnStructure,
		drawBonus:     cfg.DrawBonus,
		pawns:         NewPawnTable(1),
	}
}

// Evaluate returns White's total minus Black's total. Each side is summed in
// its own rank order, so a colour-mirrored position scores the exact negation.
func (e *Evaluator) Evaluate(pos Position) float64 {
	var squares [64]chess.Piece
	var pawns [2]uint64
	for sq := chess.A1; sq <= chess.H8; sq++ {
		p := pos.PieceAt(sq)
		squares[sq] = p
		if p.Type() == chess.Pawn {
			pawns[side(p.Color())] |= 1 << sq
		}
	}

	white, black := e.pawnScores(pawns)
	white += e.pieces(&squares, chess.White)
	black += e.pieces(&squares, chess.Black)
	return white - black
}

// pieces sums every non-pawn piece of colour c.
func (e *Evaluator) pieces(squares *[64]chess.Piece, c chess.Color) float64 {
	total := 0.0
	for rel := 0; rel < 8; rel++ {
		rank := rel
		if c == chess.Black {
			rank = 7 - rel
		}
		for file := 0; file < 8; file++ {
			p := squares[rank*8+file]
			if p == chess.NoPiece || p.Color() != c {
				continue
			}
			total += e.pieceValue(p.Type(), rel, file)
		}
	}
	return total
}

func (e *Evaluator) pieceValue(pt chess.PieceType, rel, file int) float64 {
	r, f := edge(rel), edge(file)
	switch pt {
	case chess.Knight:
		if e.centrality == CentralityQuadrant {
			return KnightValue + knightQuad[r][f]/56/2
		}
		return KnightValue + sineCentre[rel][file]/2
	case chess.Bishop:
		return BishopValue + diagonalQuad[r][f]/121/2
	case chess.Rook:
		return RookValue
	case chess.Queen:
		return QueenValue + (diagonalQuad[r][f]+196)/317/2
	case chess.King:
		if e.centrality == CentralityQuadrant {
			return kingQuad[r][f] / 512 / 2
		}
		return sineCentre[rel][file] / 5
	}
	return 0
}

// pawnScores returns the pawn totals of both sides, cached by pawn placement.
func (e *Evaluator) pawnScores(pawns [2]uint64) (white, black float64) {
	if white, black, ok := e.pawns.Probe(pawns); ok {
		return white, black
	}
	white = e.pawnSide(pawns, 0)
	black = e.pawnSide(pawns, 1)
	e.pawns.Store(pawns, white, black)
	return white, black
}

func (e *Evaluator) pawnSide(pawns [2]uint64, us int) float64 {
	own, enemy := pawns[us], pawns[1-us]
	total := 0.0
	for rel := 0; rel < 8; rel++ {
		rank := rel
		if us == 1 {
			rank = 7 - rel
		}
		for file := 0; file < 8; file++ {
			sq := rank*8 + file
			if own&(1<<sq) == 0 {
				continue
			}
			if !e.pawnStructure {
				total += pawnRankValue[rel]
				continue
			}
			if forwardMask[us][sq]&enemy == 0 {
				total += passedRankValue[rel]
			} else {
				total += pawnRankValue[rel]
			}
			if adjacent[file]&own == 0 {
				total += isolatedPawnPenalty
			}
			if bits.OnesCount64(fileMask[file]&own) > 1 {
				total += doubledPawnPenalty
			}
		}
	}
	return total
}

// Material returns the plain material balance, White minus Black.
func Material(pos Position) float64 {
	total := 0.0
	for sq := chess.A1; sq <= chess.H8; sq++ {
		p := pos.PieceAt(sq)
		if p == chess.NoPiece {
			continue
		}
		if p.Color() == chess.White {
			total += materialValue[p.Type()]
		} else {
			total -= materialValue[p.Type()]
		}
	}
	return total
}
