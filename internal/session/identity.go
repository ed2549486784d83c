package session

import (
	"strings"

	"github.com/kapu/chess-arena-go/internal/board"
)

// seatMatches decides whether id is the occupant of seat, using the
// documented precedence:
//
//  1. account id exact match — never by display name for account seats
//  2. guest id exact match
//  3. display name match, only when the seat is held by a guest and the
//     caller supplied no guest id or a different one (guest ids rotate
//     when a guest re-logs in; the display name is the stable handle)
func seatMatches(seat Seat, id Identity) bool {
	if !seat.Occupied() {
		return false
	}
	if acct := strings.TrimSpace(id.AccountID); acct != "" {
		return seat.AccountID == acct
	}
	if guest := strings.TrimSpace(id.GuestID); guest != "" {
		if seat.GuestID == guest {
			return true
		}
	}
	if !seat.IsGuest {
		return false
	}
	name := strings.TrimSpace(id.DisplayName)
	return id.IsGuest() && name != "" && seat.DisplayName == name
}

// PlayerColor resolves id to the seat it occupies, white checked first.
func (s *Session) PlayerColor(id Identity) (board.Color, bool) {
	if seatMatches(s.White, id) {
		return board.White, true
	}
	if seatMatches(s.Black, id) {
		return board.Black, true
	}
	return "", false
}

// ResolveSeat determines where id would sit: an existing seat
// (reconnection), a free seat (fresh join, white preferred), or nowhere
// (room full, so the caller is at best a spectator candidate).
func (s *Session) ResolveSeat(id Identity) (color board.Color, existing, ok bool) {
	if c, found := s.PlayerColor(id); found {
		return c, true, true
	}
	if !s.White.Occupied() {
		return board.White, false, true
	}
	if !s.Black.Occupied() {
		return board.Black, false, true
	}
	return "", false, false
}

// WouldBeSelfPlay reports whether seating id in a free seat would put the
// same person on both sides. For guests without a matching guest id this
// only triggers when the same display name already holds both seats.
func (s *Session) WouldBeSelfPlay(id Identity) bool {
	if acct := strings.TrimSpace(id.AccountID); acct != "" {
		return s.White.AccountID == acct || s.Black.AccountID == acct
	}
	if guest := strings.TrimSpace(id.GuestID); guest != "" {
		if s.White.GuestID == guest || s.Black.GuestID == guest {
			return true
		}
	}
	name := strings.TrimSpace(id.DisplayName)
	if name == "" {
		return false
	}
	whiteByName := s.White.IsGuest && s.White.DisplayName == name
	blackByName := s.Black.IsGuest && s.Black.DisplayName == name
	return whiteByName && blackByName
}

// spectatorIndex finds id among the spectators, -1 when absent.
func (s *Session) spectatorIndex(id Identity) int {
	for i, sp := range s.Spectators {
		if seatMatches(Seat{
			AccountID:   sp.AccountID,
			GuestID:     sp.GuestID,
			DisplayName: sp.DisplayName,
			IsGuest:     sp.IsGuest,
		}, id) {
			return i
		}
	}
	return -1
}

// IsParticipant reports whether id is seated or spectating.
func (s *Session) IsParticipant(id Identity) bool {
	if _, ok := s.PlayerColor(id); ok {
		return true
	}
	return s.spectatorIndex(id) >= 0
}
