package board

import "testing"

func sq(name string) Square {
	return Square{Row: 8 - int(name[1]-'0'), Col: int(name[0] - 'a')}
}

func contains(moves []Square, to Square) bool {
	for _, m := range moves {
		if m == to {
			return true
		}
	}
	return false
}

func TestInitialPosition(t *testing.T) {
	b := Initial()
	if p := b.At(sq("e1")); p.Type != King || p.Color != White {
		t.Fatalf("e1 = %+v, want white king", p)
	}
	if p := b.At(sq("d8")); p.Type != Queen || p.Color != Black {
		t.Fatalf("d8 = %+v, want black queen", p)
	}
	for col := 0; col < 8; col++ {
		if p := b[6][col]; p.Type != Pawn || p.Color != White {
			t.Fatalf("row 6 col %d = %+v, want white pawn", col, p)
		}
	}
}

func TestPawnPseudoMoves(t *testing.T) {
	b := Initial()
	moves := PseudoMoves(b, sq("e2"))
	if len(moves) != 2 || !contains(moves, sq("e3")) || !contains(moves, sq("e4")) {
		t.Fatalf("e2 pawn moves = %v, want e3 and e4", moves)
	}

	// Blocked pawn has no forward moves.
	var blocked Board
	blocked[6][4] = Piece{Type: Pawn, Color: White}
	blocked[5][4] = Piece{Type: Rook, Color: Black}
	if moves := PseudoMoves(blocked, sq("e2")); len(moves) != 0 {
		t.Fatalf("blocked pawn moves = %v, want none", moves)
	}

	// Diagonal capture only onto enemy pieces.
	var capb Board
	capb[6][4] = Piece{Type: Pawn, Color: White}
	capb[5][3] = Piece{Type: Knight, Color: Black}
	capb[5][5] = Piece{Type: Knight, Color: White}
	moves = PseudoMoves(capb, sq("e2"))
	if !contains(moves, sq("d3")) {
		t.Fatalf("pawn should capture d3: %v", moves)
	}
	if contains(moves, sq("f3")) {
		t.Fatalf("pawn must not capture own piece on f3: %v", moves)
	}
}

func TestKnightPseudoMoves(t *testing.T) {
	b := Initial()
	moves := PseudoMoves(b, sq("b1"))
	if len(moves) != 2 || !contains(moves, sq("a3")) || !contains(moves, sq("c3")) {
		t.Fatalf("b1 knight moves = %v, want a3 and c3", moves)
	}
	// b3 is not a knight destination from b1 (scenario from the legality tests).
	if contains(moves, sq("b3")) {
		t.Fatalf("b1 knight must not reach b3")
	}
}

func TestRayMovesStopAtBlockers(t *testing.T) {
	var b Board
	b[4][4] = Piece{Type: Rook, Color: White} // e4
	b[4][6] = Piece{Type: Pawn, Color: Black} // g4
	b[4][2] = Piece{Type: Pawn, Color: White} // c4
	moves := PseudoMoves(b, sq("e4"))
	if !contains(moves, sq("g4")) {
		t.Fatalf("rook should include enemy blocker g4: %v", moves)
	}
	if contains(moves, sq("h4")) {
		t.Fatalf("rook must stop at g4, got h4: %v", moves)
	}
	if contains(moves, sq("c4")) {
		t.Fatalf("rook must exclude own blocker c4: %v", moves)
	}
	if !contains(moves, sq("d4")) {
		t.Fatalf("rook should reach d4: %v", moves)
	}
}

func TestLegalMovesFilterSelfCheck(t *testing.T) {
	// White king e1, white rook e2 pinned by black rook e8.
	var b Board
	b[7][4] = Piece{Type: King, Color: White}
	b[6][4] = Piece{Type: Rook, Color: White}
	b[0][4] = Piece{Type: Rook, Color: Black}
	b[0][0] = Piece{Type: King, Color: Black}

	moves := LegalMoves(b, sq("e2"))
	for _, m := range moves {
		if m.Col != 4 {
			t.Fatalf("pinned rook left the e-file: %v", moves)
		}
	}
	if !contains(moves, sq("e8")) {
		t.Fatalf("pinned rook should still capture the pinning rook: %v", moves)
	}
}

func TestLegalMovesNeverLeaveOwnKingInCheck(t *testing.T) {
	b := Initial()
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			from := Square{Row: row, Col: col}
			p := b.At(from)
			if p.Empty() {
				continue
			}
			for _, to := range LegalMoves(b, from) {
				next, err := ApplyMove(b, from, to, Queen)
				if err != nil {
					t.Fatalf("ApplyMove %s→%s: %v", from, to, err)
				}
				if InCheck(next, p.Color) {
					t.Fatalf("legal move %s→%s leaves %s in check", from, to, p.Color)
				}
			}
		}
	}
}

func TestInCheckAndCheckmateAgree(t *testing.T) {
	// Back-rank mate: black king h8 boxed in by its own pawns, white rook a8.
	var b Board
	b[0][7] = Piece{Type: King, Color: Black}
	b[1][6] = Piece{Type: Pawn, Color: Black}
	b[1][7] = Piece{Type: Pawn, Color: Black}
	b[0][0] = Piece{Type: Rook, Color: White}
	b[7][4] = Piece{Type: King, Color: White}

	if !InCheck(b, Black) {
		t.Fatalf("black should be in check")
	}
	if !IsCheckmate(b, Black) {
		t.Fatalf("black should be checkmated")
	}
	if IsCheckmate(b, White) {
		t.Fatalf("white is not in check, cannot be mate")
	}

	// Checkmate must agree with exhaustive legal-move enumeration.
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			from := Square{Row: row, Col: col}
			p := b.At(from)
			if p.Empty() || p.Color != Black {
				continue
			}
			if n := len(LegalMoves(b, from)); n != 0 {
				t.Fatalf("checkmated side has %d legal moves from %s", n, from)
			}
		}
	}
}

func TestIsAttacked(t *testing.T) {
	var b Board
	b[4][4] = Piece{Type: Bishop, Color: White} // e4
	if !IsAttacked(b, sq("h7"), White) {
		t.Fatalf("bishop on e4 attacks h7")
	}
	if IsAttacked(b, sq("e5"), White) {
		t.Fatalf("bishop does not attack e5")
	}
}
