package session

import (
	"github.com/kapu/chess-arena-go/internal/board"
	"github.com/kapu/chess-arena-go/pkg/gamedto"
)

// Snapshot renders the client-visible view of the session. Connection
// references and the room password never leave the server; seats expose a
// Connected flag instead.
func (s *Session) Snapshot() *gamedto.SessionState {
	state := &gamedto.SessionState{
		RoomID:        s.RoomID,
		White:         seatDTO(s.White),
		Black:         seatDTO(s.Black),
		Spectators:    make([]gamedto.Spectator, 0, len(s.Spectators)),
		CurrentPlayer: string(s.CurrentPlayer),
		Status:        string(s.Status),
		Clocks: gamedto.Clocks{
			WhiteMs:     s.Clocks.WhiteMs,
			BlackMs:     s.Clocks.BlackMs,
			IncrementMs: s.Clocks.IncrementMs,
		},
		Moves:     make([]gamedto.Move, 0, len(s.Moves)),
		MoveCount: len(s.Moves),
		Settings: gamedto.Settings{
			IsPrivate:       s.Settings.IsPrivate,
			AllowSpectators: s.Settings.AllowSpectators,
		},
	}
	for _, sp := range s.Spectators {
		state.Spectators = append(state.Spectators, gamedto.Spectator{
			DisplayName: sp.DisplayName,
			IsGuest:     sp.IsGuest,
		})
	}
	if s.Status != StatusWaiting {
		state.Board = boardDTO(s.Board)
	}
	if s.Result != nil {
		state.Result = &gamedto.Result{Winner: s.Result.Winner, Reason: s.Result.Reason}
	}
	for _, m := range s.Moves {
		state.Moves = append(state.Moves, moveDTO(m))
	}
	for _, c := range s.Chat {
		state.Chat = append(state.Chat, gamedto.ChatMessage{
			DisplayName: c.DisplayName,
			Message:     c.Message,
			IsSystem:    c.IsSystem,
			SentAt:      c.SentAt,
		})
	}
	return state
}

func seatDTO(seat Seat) gamedto.Seat {
	return gamedto.Seat{
		AccountID:   seat.AccountID,
		GuestID:     seat.GuestID,
		DisplayName: seat.DisplayName,
		IsGuest:     seat.IsGuest,
		Ready:       seat.Ready,
		Connected:   seat.ConnRef != "",
		Occupied:    seat.Occupied(),
	}
}

func boardDTO(b board.Board) [][]*gamedto.Piece {
	rows := make([][]*gamedto.Piece, len(b))
	for r := range b {
		rows[r] = make([]*gamedto.Piece, len(b[r]))
		for c := range b[r] {
			if p := b[r][c]; !p.Empty() {
				rows[r][c] = &gamedto.Piece{Type: string(p.Type), Color: string(p.Color)}
			}
		}
	}
	return rows
}

func moveDTO(m Move) gamedto.Move {
	dto := gamedto.Move{
		From:        gamedto.Square{Row: m.From.Row, Col: m.From.Col},
		To:          gamedto.Square{Row: m.To.Row, Col: m.To.Col},
		Piece:       gamedto.Piece{Type: string(m.Piece.Type), Color: string(m.Piece.Color)},
		Promotion:   string(m.Promotion),
		Notation:    m.Notation,
		CommittedAt: m.CommittedAt,
		ElapsedMs:   m.ElapsedMs,
	}
	if m.Captured != nil {
		dto.Captured = &gamedto.Piece{Type: string(m.Captured.Type), Color: string(m.Captured.Color)}
	}
	return dto
}
