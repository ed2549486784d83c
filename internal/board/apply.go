package board

import "errors"

var (
	// ErrNoPiece is returned when the origin square is empty.
	ErrNoPiece = errors.New("no piece on origin square")
	// ErrPromotionRequired is returned when a pawn reaches the far rank and
	// no promotion piece was supplied.
	ErrPromotionRequired = errors.New("promotion piece required")
	// ErrBadPromotion is returned for promotion targets outside
	// queen/rook/bishop/knight.
	ErrBadPromotion = errors.New("invalid promotion piece")
)

// RequiresPromotion reports whether moving the piece on from to to would be
// a pawn reaching the far rank for its color.
func RequiresPromotion(b Board, from, to Square) bool {
	p := b.At(from)
	if p.Type != Pawn {
		return false
	}
	return to.Row == promotionRow(p.Color)
}

// ApplyMove returns a copy of b with from→to applied. When the move
// requires promotion the promotion piece must be supplied and valid; it is
// ignored otherwise. ApplyMove does not validate move geometry — callers
// check LegalMoves first.
func ApplyMove(b Board, from, to Square, promotion PieceType) (Board, error) {
	p := b.At(from)
	if p.Empty() {
		return b, ErrNoPiece
	}
	if RequiresPromotion(b, from, to) {
		if promotion == "" {
			return b, ErrPromotionRequired
		}
		if !ValidPromotion(promotion) {
			return b, ErrBadPromotion
		}
		p = Piece{Type: promotion, Color: p.Color}
	}
	b[to.Row][to.Col] = p
	b[from.Row][from.Col] = Piece{}
	return b, nil
}
