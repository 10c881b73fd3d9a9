package engine

// Classify scores a position reached ply half moves below the search root.
// Checkmate is tested first so it dominates any draw condition that also
// holds. Claimable draws get a small nudge toward the side that is ahead.
func (e *Evaluator) Classify(pos Position, ply int) float64 {
	color := 1.0
	if !pos.WhiteToMove() {
		color = -1
	}

	switch {
	case pos.IsCheckmate():
		return -color * (MateCeiling - float64(ply))
	case pos.IsInsufficientMaterial():
		return 0
	case pos.IsFiftyMoveDraw(), pos.IsStalemate(), pos.IsRepeatedPosition():
		return color * e.drawBonus * sign(e.Evaluate(pos))
	}
	return e.Evaluate(pos)
}

// IsMateScore reports whether v encodes a forced mate.
func IsMateScore(v float64) bool {
	return v > MateCeiling-MaxPly || v < -(MateCeiling-MaxPly)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
