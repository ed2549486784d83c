package board

var (
	knightOffsets = [8][2]int{{-2, -1}, {-2, 1}, {-1, -2}, {-1, 2}, {1, -2}, {1, 2}, {2, -1}, {2, 1}}
	kingOffsets   = [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	rookRays      = [4][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}
	bishopRays    = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// PseudoMoves returns the geometrically valid destinations for the piece on
// from, ignoring whether the move would expose its own king. An empty square
// yields no moves.
func PseudoMoves(b Board, from Square) []Square {
	p := b.At(from)
	if p.Empty() {
		return nil
	}
	switch p.Type {
	case Pawn:
		return pawnMoves(b, from, p.Color)
	case Rook:
		return rayMoves(b, from, p.Color, rookRays[:])
	case Bishop:
		return rayMoves(b, from, p.Color, bishopRays[:])
	case Queen:
		moves := rayMoves(b, from, p.Color, rookRays[:])
		return append(moves, rayMoves(b, from, p.Color, bishopRays[:])...)
	case Knight:
		return offsetMoves(b, from, p.Color, knightOffsets[:])
	case King:
		return offsetMoves(b, from, p.Color, kingOffsets[:])
	}
	return nil
}

func pawnMoves(b Board, from Square, color Color) []Square {
	var moves []Square
	dir := pawnDirection(color)

	one := Square{Row: from.Row + dir, Col: from.Col}
	if one.InBounds() && b.At(one).Empty() {
		moves = append(moves, one)
		two := Square{Row: from.Row + 2*dir, Col: from.Col}
		if from.Row == pawnStartRow(color) && b.At(two).Empty() {
			moves = append(moves, two)
		}
	}

	// Diagonal capture only onto an enemy-occupied square.
	for _, dc := range [2]int{-1, 1} {
		to := Square{Row: from.Row + dir, Col: from.Col + dc}
		if !to.InBounds() {
			continue
		}
		if target := b.At(to); !target.Empty() && target.Color != color {
			moves = append(moves, to)
		}
	}
	return moves
}

func rayMoves(b Board, from Square, color Color, rays [][2]int) []Square {
	var moves []Square
	for _, ray := range rays {
		for i := 1; i < 8; i++ {
			to := Square{Row: from.Row + i*ray[0], Col: from.Col + i*ray[1]}
			if !to.InBounds() {
				break
			}
			target := b.At(to)
			if target.Empty() {
				moves = append(moves, to)
				continue
			}
			if target.Color != color {
				moves = append(moves, to)
			}
			break
		}
	}
	return moves
}

func offsetMoves(b Board, from Square, color Color, offsets [][2]int) []Square {
	var moves []Square
	for _, off := range offsets {
		to := Square{Row: from.Row + off[0], Col: from.Col + off[1]}
		if !to.InBounds() {
			continue
		}
		if target := b.At(to); target.Empty() || target.Color != color {
			moves = append(moves, to)
		}
	}
	return moves
}

// LegalMoves filters PseudoMoves down to destinations that do not leave the
// mover's own king attacked. Legality is decided by simulating each move on
// a board copy; at 8x8 scale there is no need for pin tracking.
func LegalMoves(b Board, from Square) []Square {
	p := b.At(from)
	if p.Empty() {
		return nil
	}
	var moves []Square
	for _, to := range PseudoMoves(b, from) {
		if !InCheck(simulate(b, from, to), p.Color) {
			moves = append(moves, to)
		}
	}
	return moves
}

// simulate applies from→to without promotion or validation. The piece kind
// does not matter for the resulting check test, so a promoting pawn is
// moved as-is.
func simulate(b Board, from, to Square) Board {
	b[to.Row][to.Col] = b[from.Row][from.Col]
	b[from.Row][from.Col] = Piece{}
	return b
}

// IsAttacked reports whether any piece of byColor has sq among its pseudo
// moves.
func IsAttacked(b Board, sq Square, byColor Color) bool {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			p := b[row][col]
			if p.Empty() || p.Color != byColor {
				continue
			}
			for _, to := range PseudoMoves(b, Square{Row: row, Col: col}) {
				if to == sq {
					return true
				}
			}
		}
	}
	return false
}

// InCheck reports whether color's king is attacked.
func InCheck(b Board, color Color) bool {
	king, ok := b.KingSquare(color)
	if !ok {
		return false
	}
	return IsAttacked(b, king, color.Opponent())
}

// IsCheckmate reports whether color is in check with no legal move on any of
// its pieces.
func IsCheckmate(b Board, color Color) bool {
	if !InCheck(b, color) {
		return false
	}
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			p := b[row][col]
			if p.Empty() || p.Color != color {
				continue
			}
			if len(LegalMoves(b, Square{Row: row, Col: col})) > 0 {
				return false
			}
		}
	}
	return true
}
