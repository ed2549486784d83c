// Package session owns one room's authoritative game state and the
// commands that mutate it. The package is pure: callers (the room
// registry) provide the clock, serialize access, and handle persistence
// and broadcast of the returned outcomes.
package session

import (
	"strings"
	"time"

	"github.com/kapu/chess-arena-go/internal/board"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Result reasons.
const (
	ReasonCheckmate   = "checkmate"
	ReasonResignation = "resignation"
	ReasonTimeout     = "timeout"
)

// WinnerDraw marks an abandonment result with no winning side.
const WinnerDraw = "draw"

// Identity is the canonical caller identity, resolved once at the
// transport boundary: either a durable account or an ephemeral guest whose
// id may be re-minted across reconnects while the display name stays put.
type Identity struct {
	AccountID   string `json:"accountId,omitempty"`
	GuestID     string `json:"guestId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// IsGuest reports whether the identity has no durable account.
func (id Identity) IsGuest() bool { return strings.TrimSpace(id.AccountID) == "" }

// Zero reports whether the identity carries no identifier at all.
func (id Identity) Zero() bool {
	return strings.TrimSpace(id.AccountID) == "" &&
		strings.TrimSpace(id.GuestID) == "" &&
		strings.TrimSpace(id.DisplayName) == ""
}

// Seat is one of the two player slots. ConnRef is transient transport
// state and is excluded from persisted snapshots.
type Seat struct {
	AccountID   string `json:"accountId,omitempty"`
	GuestID     string `json:"guestId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	IsGuest     bool   `json:"isGuest,omitempty"`
	Ready       bool   `json:"ready,omitempty"`
	ConnRef     string `json:"-"`
}

// Occupied reports whether the seat is taken. A seat with only a display
// name counts as occupied: rooms created over HTTP pre-fill the creator's
// seat before any live connection attaches.
func (s Seat) Occupied() bool {
	return s.AccountID != "" || s.GuestID != "" || s.DisplayName != ""
}

// Identity returns the seat occupant's identity.
func (s Seat) Identity() Identity {
	return Identity{AccountID: s.AccountID, GuestID: s.GuestID, DisplayName: s.DisplayName}
}

// Spectator is a non-playing room member.
type Spectator struct {
	AccountID   string `json:"accountId,omitempty"`
	GuestID     string `json:"guestId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	IsGuest     bool   `json:"isGuest,omitempty"`
	ConnRef     string `json:"-"`
}

// Move is one committed ply. Append-only; ElapsedMs is the caller-reported
// think time stored verbatim, the server clock is tracked separately.
type Move struct {
	From        board.Square    `json:"from"`
	To          board.Square    `json:"to"`
	Piece       board.Piece     `json:"piece"`
	Captured    *board.Piece    `json:"captured,omitempty"`
	Promotion   board.PieceType `json:"promotion,omitempty"`
	Notation    string          `json:"notation"`
	CommittedAt time.Time       `json:"committedAt"`
	ElapsedMs   int64           `json:"elapsedMs"`
}

// Result is set exactly when Status is finished.
type Result struct {
	Winner string `json:"winner"`
	Reason string `json:"reason"`
}

// Clocks is the server-held time control state. Remaining time is debited
// from a per-turn stopwatch (TurnStartedAt) at move time; the increment is
// credited after each committed move.
type Clocks struct {
	WhiteMs       int64     `json:"whiteMs"`
	BlackMs       int64     `json:"blackMs"`
	IncrementMs   int64     `json:"incrementMs"`
	InitialMs     int64     `json:"initialMs"`
	TurnStartedAt time.Time `json:"turnStartedAt,omitempty"`
}

func (c Clocks) remaining(color board.Color) int64 {
	if color == board.White {
		return c.WhiteMs
	}
	return c.BlackMs
}

func (c *Clocks) setRemaining(color board.Color, ms int64) {
	if color == board.White {
		c.WhiteMs = ms
	} else {
		c.BlackMs = ms
	}
}

// Settings are room options fixed at creation.
type Settings struct {
	IsPrivate       bool   `json:"isPrivate,omitempty"`
	Password        string `json:"password,omitempty"`
	AllowSpectators bool   `json:"allowSpectators"`
}

// ChatMessage is one chat log entry.
type ChatMessage struct {
	AccountID   string    `json:"accountId,omitempty"`
	DisplayName string    `json:"displayName"`
	Message     string    `json:"message"`
	IsSystem    bool      `json:"isSystem,omitempty"`
	SentAt      time.Time `json:"sentAt"`
}

// Session is one room's complete authoritative state. It is owned by a
// single writer; none of its methods are safe for concurrent use.
type Session struct {
	RoomID     string      `json:"roomId"`
	GameID     string      `json:"gameId,omitempty"` // minted when the game starts
	White      Seat        `json:"white"`
	Black      Seat        `json:"black"`
	Spectators []Spectator `json:"spectators,omitempty"`

	Board         board.Board   `json:"board"`
	CurrentPlayer board.Color   `json:"currentPlayer"`
	Status        Status        `json:"status"`
	Result        *Result       `json:"result,omitempty"`
	Clocks        Clocks        `json:"clocks"`
	Moves         []Move        `json:"moves"`
	Chat          []ChatMessage `json:"chat,omitempty"`
	Settings      Settings      `json:"settings"`

	CreatedAt time.Time `json:"createdAt"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
}

// New creates a waiting session. creator may be zero for an unseated room;
// otherwise the white seat is pre-filled, mirroring room creation where the
// creator connects afterwards.
func New(roomID string, creator Identity, initialMs, incrementMs int64, settings Settings, now time.Time) *Session {
	s := &Session{
		RoomID:        roomID,
		CurrentPlayer: board.White,
		Status:        StatusWaiting,
		Clocks: Clocks{
			WhiteMs:     initialMs,
			BlackMs:     initialMs,
			IncrementMs: incrementMs,
			InitialMs:   initialMs,
		},
		Settings:  settings,
		CreatedAt: now,
	}
	if !creator.Zero() {
		s.White = seatFor(creator)
	}
	return s
}

func seatFor(id Identity) Seat {
	return Seat{
		AccountID:   strings.TrimSpace(id.AccountID),
		GuestID:     strings.TrimSpace(id.GuestID),
		DisplayName: strings.TrimSpace(id.DisplayName),
		IsGuest:     id.IsGuest(),
	}
}

// Seat returns the seat for color.
func (s *Session) Seat(color board.Color) *Seat {
	if color == board.White {
		return &s.White
	}
	return &s.Black
}

// Empty reports whether nobody occupies or watches the room.
func (s *Session) Empty() bool {
	return !s.White.Occupied() && !s.Black.Occupied() && len(s.Spectators) == 0
}

// Connectionless reports whether no seat or spectator has a live
// connection attached.
func (s *Session) Connectionless() bool {
	if s.White.ConnRef != "" || s.Black.ConnRef != "" {
		return false
	}
	for _, sp := range s.Spectators {
		if sp.ConnRef != "" {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, detached from the live session so it can be
// read (archived, serialized) outside the owner's lock.
func (s *Session) Clone() *Session {
	c := *s
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	c.Spectators = append([]Spectator(nil), s.Spectators...)
	c.Moves = append([]Move(nil), s.Moves...)
	for i := range c.Moves {
		if p := c.Moves[i].Captured; p != nil {
			cp := *p
			c.Moves[i].Captured = &cp
		}
	}
	c.Chat = append([]ChatMessage(nil), s.Chat...)
	return &c
}

// ReplayBoard rebuilds the board by replaying the move log from the
// initial position. The stored board is an incremental optimization of
// exactly this computation.
func (s *Session) ReplayBoard() (board.Board, error) {
	b := board.Initial()
	for _, m := range s.Moves {
		next, err := board.ApplyMove(b, m.From, m.To, m.Promotion)
		if err != nil {
			return b, err
		}
		b = next
	}
	return b, nil
}

func (s *Session) appendSystemChat(text string, now time.Time) {
	s.Chat = append(s.Chat, ChatMessage{
		DisplayName: "System",
		Message:     text,
		IsSystem:    true,
		SentAt:      now,
	})
}
