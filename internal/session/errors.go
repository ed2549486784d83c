package session

import "github.com/kapu/chess-arena-go/pkg/gamedto"

// Error is a typed command rejection. All command errors are local to the
// failing caller; the session state machine itself never aborts.
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Code + ": " + e.Reason
	}
	return e.Code
}

// DTO converts the error into its wire form.
func (e *Error) DTO() gamedto.DomainError {
	return gamedto.DomainError{Code: e.Code, Reason: e.Reason}
}

func errSeat(reason string) *Error    { return &Error{Code: gamedto.CodeSeatConflict, Reason: reason} }
func errMove(reason string) *Error    { return &Error{Code: gamedto.CodeIllegalMove, Reason: reason} }
func errValid(reason string) *Error   { return &Error{Code: gamedto.CodeValidation, Reason: reason} }
func errLifecyc(reason string) *Error { return &Error{Code: gamedto.CodeLifecycle, Reason: reason} }

var (
	ErrRoomFull       = errSeat("room-full")
	ErrSelfPlay       = errSeat("self-play")
	ErrNotAPlayer     = &Error{Code: gamedto.CodeNotAParticipant, Reason: "not-a-player"}
	ErrNotInRoom      = &Error{Code: gamedto.CodeNotAParticipant, Reason: "not-in-room"}
	ErrNotActive      = errLifecyc("game-not-active")
	ErrNotWaiting     = errLifecyc("game-already-started")
	ErrNotYourTurn    = errMove("not-your-turn")
	ErrNoPiece        = errMove("no-piece")
	ErrNotYourPiece   = errMove("not-your-piece")
	ErrIllegalDest    = errMove("illegal-destination")
	ErrSelfCheck      = errMove("self-check")
	ErrNeedsPromotion = errMove("needs-promotion")
	ErrBadPromotion   = errMove("wrong-promotion-piece")
	ErrClockExpired   = errMove("clock-expired")
	ErrBadIdentity    = errValid("missing-identity")
	ErrRoomNotFound   = errValid("room-not-found")
	ErrBadSquare      = errValid("square-out-of-bounds")
	ErrEmptyMessage   = errValid("empty-message")
	ErrWrongPassword  = errSeat("wrong-password")
	ErrNoSpectators   = errSeat("spectating-disabled")
)
