package board

import "strings"

// Notation builds the algebraic-style move string used in the move log:
// piece letter (none for pawns), departure file for pawn captures, "x" on
// capture, destination square, "=X" on promotion, and a trailing "+" or "#"
// reflecting the opponent's resulting check state. The piece letter is the
// uppercased first character of the piece name, the scheme every recorded
// game in this system already uses.
func Notation(piece Piece, from, to Square, captured bool, promotion PieceType, check, mate bool) string {
	var b strings.Builder
	if piece.Type != Pawn {
		b.WriteString(strings.ToUpper(string(piece.Type[0])))
	}
	if captured {
		if piece.Type == Pawn {
			b.WriteByte(from.File())
		}
		b.WriteByte('x')
	}
	b.WriteString(to.String())
	if promotion != "" {
		b.WriteByte('=')
		b.WriteString(strings.ToUpper(string(promotion[0])))
	}
	if mate {
		b.WriteByte('#')
	} else if check {
		b.WriteByte('+')
	}
	return b.String()
}
