// Package board implements the chess rules used by game sessions: move
// generation, legality, check and checkmate detection, and promotion.
//
// The ruleset is deliberately the reduced one the rest of the server is
// built around: no en passant, no castling, no stalemate or repetition
// draws. Everything here is pure and operates on Board values.
package board

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Valid reports whether c is one of the two playable colors.
func (c Color) Valid() bool { return c == White || c == Black }

// PieceType identifies a kind of chess piece.
type PieceType string

const (
	Pawn   PieceType = "pawn"
	Rook   PieceType = "rook"
	Knight PieceType = "knight"
	Bishop PieceType = "bishop"
	Queen  PieceType = "queen"
	King   PieceType = "king"
)

// ValidPromotion reports whether t is a legal promotion target.
func ValidPromotion(t PieceType) bool {
	switch t {
	case Queen, Rook, Bishop, Knight:
		return true
	}
	return false
}

// Piece is one cell's content. The zero value is an empty cell.
type Piece struct {
	Type  PieceType `json:"type,omitempty"`
	Color Color     `json:"color,omitempty"`
}

// Empty reports whether the cell holds no piece.
func (p Piece) Empty() bool { return p.Type == "" }

// Square addresses a board cell. Row 0 is rank 8 (black's back rank),
// row 7 is rank 1, matching the stored orientation of the move log.
type Square struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// InBounds reports whether the square is on the board.
func (s Square) InBounds() bool {
	return s.Row >= 0 && s.Row < 8 && s.Col >= 0 && s.Col < 8
}

// File returns the algebraic file letter (a-h).
func (s Square) File() byte { return byte('a' + s.Col) }

// Rank returns the algebraic rank digit (1-8).
func (s Square) Rank() byte { return byte('0' + (8 - s.Row)) }

// String returns the algebraic name, e.g. "e4".
func (s Square) String() string { return string([]byte{s.File(), s.Rank()}) }

// Board is an 8x8 grid of cells. It is a value type: assignment copies,
// which keeps ApplyMove and the hypothetical-move checks allocation-free
// and side-effect-free.
type Board [8][8]Piece

// At returns the piece on sq. sq must be in bounds.
func (b Board) At(sq Square) Piece { return b[sq.Row][sq.Col] }

// Initial returns the standard starting position.
func Initial() Board {
	var b Board
	back := [8]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}
	for col := 0; col < 8; col++ {
		b[0][col] = Piece{Type: back[col], Color: Black}
		b[1][col] = Piece{Type: Pawn, Color: Black}
		b[6][col] = Piece{Type: Pawn, Color: White}
		b[7][col] = Piece{Type: back[col], Color: White}
	}
	return b
}

// KingSquare returns the square holding color's king. The second result is
// false on malformed boards with no such king.
func (b Board) KingSquare(color Color) (Square, bool) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			p := b[row][col]
			if p.Type == King && p.Color == color {
				return Square{Row: row, Col: col}, true
			}
		}
	}
	return Square{}, false
}

// promotionRow is the far rank for the given color.
func promotionRow(color Color) int {
	if color == White {
		return 0
	}
	return 7
}

// pawnDirection is the row delta a pawn of color moves in.
func pawnDirection(color Color) int {
	if color == White {
		return -1
	}
	return 1
}

// pawnStartRow is the row a pawn of color starts on.
func pawnStartRow(color Color) int {
	if color == White {
		return 6
	}
	return 1
}
