package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/kapu/chess-arena-go/internal/board"
)

// JoinOutcome reports how a join command landed.
type JoinOutcome struct {
	Color     board.Color // empty when the caller joined as a spectator
	Existing  bool        // reconnection to a seat already held
	Spectator bool
	// EvictConnRef is the stale live connection previously attached to the
	// same identity in this room; the registry must terminate it before the
	// new connection is considered attached.
	EvictConnRef string
}

// Join seats id or attaches it as a spectator. connRef is the caller's
// live connection; spectate forces the spectator path. Fresh seat
// occupancy is only allowed while the room is waiting; a full room falls
// back to spectating when the room allows it.
func (s *Session) Join(id Identity, connRef, password string, spectate bool) (*JoinOutcome, error) {
	if id.Zero() {
		return nil, ErrBadIdentity
	}
	if s.Settings.IsPrivate && s.Settings.Password != "" && password != s.Settings.Password {
		return nil, ErrWrongPassword
	}
	if spectate {
		return s.joinSpectator(id, connRef)
	}

	if color, existing, ok := s.ResolveSeat(id); ok {
		if existing {
			seat := s.Seat(color)
			out := &JoinOutcome{Color: color, Existing: true}
			if seat.ConnRef != "" && seat.ConnRef != connRef {
				out.EvictConnRef = seat.ConnRef
			}
			seat.ConnRef = connRef
			// Guest ids rotate across re-logins; adopt the fresh one so
			// exact-id matching works for the rest of this connection.
			if seat.IsGuest && strings.TrimSpace(id.GuestID) != "" && seat.GuestID != id.GuestID {
				seat.GuestID = strings.TrimSpace(id.GuestID)
			}
			return out, nil
		}
		if s.Status == StatusWaiting {
			if s.WouldBeSelfPlay(id) {
				return nil, ErrSelfPlay
			}
			seat := seatFor(id)
			seat.ConnRef = connRef
			*s.Seat(color) = seat
			return &JoinOutcome{Color: color}, nil
		}
		// Seats never free up mid-game; a vacancy outside waiting means
		// the game already ended, so late arrivals can only watch.
	}

	// Room is full (or already started): spectate when allowed.
	if !s.Settings.AllowSpectators {
		return nil, ErrRoomFull
	}
	return s.joinSpectator(id, connRef)
}

func (s *Session) joinSpectator(id Identity, connRef string) (*JoinOutcome, error) {
	out := &JoinOutcome{Spectator: true}
	if i := s.spectatorIndex(id); i >= 0 {
		sp := &s.Spectators[i]
		if sp.ConnRef != "" && sp.ConnRef != connRef {
			out.EvictConnRef = sp.ConnRef
		}
		sp.ConnRef = connRef
		out.Existing = true
		return out, nil
	}
	if !s.Settings.AllowSpectators {
		return nil, ErrNoSpectators
	}
	s.Spectators = append(s.Spectators, Spectator{
		AccountID:   strings.TrimSpace(id.AccountID),
		GuestID:     strings.TrimSpace(id.GuestID),
		DisplayName: strings.TrimSpace(id.DisplayName),
		IsGuest:     id.IsGuest(),
		ConnRef:     connRef,
	})
	return out, nil
}

// ReadyOutcome reports whether marking ready started the game.
type ReadyOutcome struct {
	Color   board.Color
	Started bool
}

// Ready marks id's seat ready. When both seats are occupied and ready, the
// game starts: fresh board, white to move, clocks armed. Only waiting rooms
// accept the command.
func (s *Session) Ready(id Identity, now time.Time) (*ReadyOutcome, error) {
	color, ok := s.PlayerColor(id)
	if !ok {
		return nil, ErrNotAPlayer
	}
	if s.Status != StatusWaiting {
		return nil, ErrNotWaiting
	}
	s.Seat(color).Ready = true

	out := &ReadyOutcome{Color: color}
	if s.White.Occupied() && s.White.Ready &&
		s.Black.Occupied() && s.Black.Ready {
		s.Status = StatusActive
		s.Board = board.Initial()
		s.CurrentPlayer = board.White
		s.StartedAt = now
		s.Clocks.WhiteMs = s.Clocks.InitialMs
		s.Clocks.BlackMs = s.Clocks.InitialMs
		s.Clocks.TurnStartedAt = now
		s.appendSystemChat("Game started! White to move.", now)
		out.Started = true
	}
	return out, nil
}

// MoveOutcome describes a committed move.
type MoveOutcome struct {
	Move      Move
	Check     bool // opponent in check after the move
	Checkmate bool
	Finished  bool
}

// Move validates and applies a move for id. clientElapsedMs is the
// caller-reported think time, stored verbatim on the move record; the
// authoritative clock is the server-side stopwatch armed at turn start. A
// move arriving after the mover's clock is exhausted is rejected with
// ErrClockExpired and the session finishes by timeout in the same step —
// callers observing that error must treat the session as finished.
func (s *Session) Move(id Identity, from, to board.Square, promotion board.PieceType, clientElapsedMs int64, now time.Time) (*MoveOutcome, error) {
	if s.Status != StatusActive {
		return nil, ErrNotActive
	}
	if !from.InBounds() || !to.InBounds() {
		return nil, ErrBadSquare
	}
	color, ok := s.PlayerColor(id)
	if !ok {
		return nil, ErrNotAPlayer
	}
	if color != s.CurrentPlayer {
		return nil, ErrNotYourTurn
	}

	remaining := s.Clocks.remaining(color) - now.Sub(s.Clocks.TurnStartedAt).Milliseconds()
	if remaining <= 0 {
		s.Clocks.setRemaining(color, 0)
		s.finish(Result{Winner: string(color.Opponent()), Reason: ReasonTimeout}, now)
		s.appendSystemChat(fmt.Sprintf("%s ran out of time. %s wins!",
			s.Seat(color).DisplayName, s.Seat(color.Opponent()).DisplayName), now)
		return nil, ErrClockExpired
	}

	piece := s.Board.At(from)
	if piece.Empty() {
		return nil, ErrNoPiece
	}
	if piece.Color != color {
		return nil, ErrNotYourPiece
	}

	if board.RequiresPromotion(s.Board, from, to) {
		if promotion == "" {
			return nil, ErrNeedsPromotion
		}
		if !board.ValidPromotion(promotion) {
			return nil, ErrBadPromotion
		}
	} else {
		promotion = ""
	}

	if !squareIn(board.PseudoMoves(s.Board, from), to) {
		return nil, ErrIllegalDest
	}
	if !squareIn(board.LegalMoves(s.Board, from), to) {
		return nil, ErrSelfCheck
	}

	// Capture is read off the destination before mutation and attributed to
	// the moving color.
	var captured *board.Piece
	if target := s.Board.At(to); !target.Empty() {
		c := target
		captured = &c
	}
	next, err := board.ApplyMove(s.Board, from, to, promotion)
	if err != nil {
		return nil, errValid(err.Error())
	}

	opponent := color.Opponent()
	check := board.InCheck(next, opponent)
	mate := board.IsCheckmate(next, opponent)

	move := Move{
		From:        from,
		To:          to,
		Piece:       piece,
		Captured:    captured,
		Promotion:   promotion,
		Notation:    board.Notation(piece, from, to, captured != nil, promotion, check, mate),
		CommittedAt: now,
		ElapsedMs:   clientElapsedMs,
	}

	s.Board = next
	s.Moves = append(s.Moves, move)
	s.CurrentPlayer = opponent
	s.Clocks.setRemaining(color, remaining+s.Clocks.IncrementMs)
	s.Clocks.TurnStartedAt = now

	out := &MoveOutcome{Move: move, Check: check, Checkmate: mate}
	if promotion != "" {
		s.appendSystemChat(fmt.Sprintf("%s promoted pawn to %s", s.Seat(color).DisplayName, promotion), now)
	}
	if mate {
		s.finish(Result{Winner: string(color), Reason: ReasonCheckmate}, now)
		s.appendSystemChat(fmt.Sprintf("%s wins by checkmate!", s.Seat(color).DisplayName), now)
		out.Finished = true
	}
	return out, nil
}

func squareIn(moves []board.Square, to board.Square) bool {
	for _, m := range moves {
		if m == to {
			return true
		}
	}
	return false
}

// Resign finishes an active game in the opponent's favor.
func (s *Session) Resign(id Identity, now time.Time) (*Result, error) {
	color, ok := s.PlayerColor(id)
	if !ok {
		return nil, ErrNotAPlayer
	}
	if s.Status != StatusActive {
		return nil, ErrNotActive
	}
	winner := color.Opponent()
	s.finish(Result{Winner: string(winner), Reason: ReasonResignation}, now)
	s.appendSystemChat(fmt.Sprintf("%s resigned. %s wins!",
		s.Seat(color).DisplayName, s.Seat(winner).DisplayName), now)
	return s.Result, nil
}

// SendChat appends a participant message to the chat log.
func (s *Session) SendChat(id Identity, text string, now time.Time) (*ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !s.IsParticipant(id) {
		return nil, ErrNotInRoom
	}
	msg := ChatMessage{
		AccountID:   strings.TrimSpace(id.AccountID),
		DisplayName: strings.TrimSpace(id.DisplayName),
		Message:     text,
		SentAt:      now,
	}
	s.Chat = append(s.Chat, msg)
	return &msg, nil
}

// LeaveOutcome reports the effect of an explicit leave.
type LeaveOutcome struct {
	WasPlayer   bool
	Color       board.Color
	DisplayName string
	Finished    bool // leaving an active game forfeits it
}

// Leave removes id from its seat or the spectator list. Unlike a bare
// disconnect, an explicit leave during an active game forfeits: the
// opponent wins by resignation.
func (s *Session) Leave(id Identity, now time.Time) *LeaveOutcome {
	out := &LeaveOutcome{DisplayName: strings.TrimSpace(id.DisplayName)}

	if i := s.spectatorIndex(id); i >= 0 {
		out.DisplayName = s.Spectators[i].DisplayName
		s.Spectators = append(s.Spectators[:i], s.Spectators[i+1:]...)
	}

	color, ok := s.PlayerColor(id)
	if !ok {
		return out
	}
	out.WasPlayer = true
	out.Color = color
	if name := s.Seat(color).DisplayName; name != "" {
		out.DisplayName = name
	}

	if s.Status == StatusActive {
		// The seat keeps its occupant so the finished game still records
		// who played; only the live connection is dropped.
		s.Seat(color).ConnRef = ""
		winner := color.Opponent()
		s.finish(Result{Winner: string(winner), Reason: ReasonResignation}, now)
		s.appendSystemChat(fmt.Sprintf("%s left the game. %s wins!", out.DisplayName, winner), now)
		out.Finished = true
		return out
	}
	*s.Seat(color) = Seat{}
	return out
}

// DisconnectOutcome reports the effect of a dropped connection.
type DisconnectOutcome struct {
	WasPlayer    bool
	Color        board.Color
	DisplayName  string
	WasSpectator bool
	// DeleteRoom is set when a waiting room lost its last live connection
	// with nobody left watching; active games are left to the sweep/clock.
	DeleteRoom bool
}

// Disconnect clears connRef wherever it is attached. Seats keep their
// occupants so the player can reconnect; only the transient connection
// reference is dropped.
func (s *Session) Disconnect(connRef string) *DisconnectOutcome {
	out := &DisconnectOutcome{}
	if connRef == "" {
		return out
	}
	if s.White.ConnRef == connRef {
		s.White.ConnRef = ""
		out.WasPlayer = true
		out.Color = board.White
		out.DisplayName = s.White.DisplayName
	}
	if s.Black.ConnRef == connRef {
		s.Black.ConnRef = ""
		out.WasPlayer = true
		out.Color = board.Black
		out.DisplayName = s.Black.DisplayName
	}
	for i := 0; i < len(s.Spectators); i++ {
		if s.Spectators[i].ConnRef == connRef {
			out.WasSpectator = true
			if out.DisplayName == "" {
				out.DisplayName = s.Spectators[i].DisplayName
			}
			s.Spectators = append(s.Spectators[:i], s.Spectators[i+1:]...)
			i--
		}
	}
	if s.Status == StatusWaiting && s.Connectionless() && len(s.Spectators) == 0 {
		out.DeleteRoom = true
	}
	return out
}

// FinishAbandoned ends an idle active game as an abandonment: a draw by
// timeout, not a chess draw. Used by the lifecycle sweep.
func (s *Session) FinishAbandoned(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	s.finish(Result{Winner: WinnerDraw, Reason: ReasonTimeout}, now)
	s.appendSystemChat("Game ended due to inactivity.", now)
	return true
}

func (s *Session) finish(result Result, now time.Time) {
	s.Status = StatusFinished
	r := result
	s.Result = &r
	s.EndedAt = now
}
