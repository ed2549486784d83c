// Package gamedto holds the wire representations exchanged with clients:
// session snapshots, broadcast events, and rejected-command errors. It has
// no behavior beyond JSON shapes.
package gamedto

import "time"

// Piece is one board cell; nil cells are empty squares.
type Piece struct {
	Type  string `json:"type"`
	Color string `json:"color"`
}

// Square addresses a board cell; row 0 is rank 8.
type Square struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Seat describes one of the two player slots.
type Seat struct {
	AccountID   string `json:"accountId,omitempty"`
	GuestID     string `json:"guestId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	IsGuest     bool   `json:"isGuest"`
	Ready       bool   `json:"ready"`
	Connected   bool   `json:"connected"`
	Occupied    bool   `json:"occupied"`
}

// Spectator is the public view of a spectator entry.
type Spectator struct {
	DisplayName string `json:"displayName"`
	IsGuest     bool   `json:"isGuest"`
}

// Move is one committed ply.
type Move struct {
	From        Square    `json:"from"`
	To          Square    `json:"to"`
	Piece       Piece     `json:"piece"`
	Captured    *Piece    `json:"captured,omitempty"`
	Promotion   string    `json:"promotion,omitempty"`
	Notation    string    `json:"notation"`
	CommittedAt time.Time `json:"committedAt"`
	ElapsedMs   int64     `json:"elapsedMs"`
}

// Result is set exactly when the session is finished.
type Result struct {
	Winner string `json:"winner"` // white | black | draw
	Reason string `json:"reason"` // checkmate | resignation | timeout
}

// Clocks is the server-held time state.
type Clocks struct {
	WhiteMs     int64 `json:"whiteMs"`
	BlackMs     int64 `json:"blackMs"`
	IncrementMs int64 `json:"incrementMs"`
}

// Settings are the room options fixed at creation.
type Settings struct {
	IsPrivate       bool `json:"isPrivate"`
	AllowSpectators bool `json:"allowSpectators"`
}

// ChatMessage is one chat log entry.
type ChatMessage struct {
	DisplayName string    `json:"displayName"`
	Message     string    `json:"message"`
	IsSystem    bool      `json:"isSystem"`
	SentAt      time.Time `json:"sentAt"`
}

// SessionState is the full client-visible snapshot of a room.
type SessionState struct {
	RoomID        string        `json:"roomId"`
	White         Seat          `json:"white"`
	Black         Seat          `json:"black"`
	Spectators    []Spectator   `json:"spectators"`
	Board         [][]*Piece    `json:"board,omitempty"`
	CurrentPlayer string        `json:"currentPlayer"`
	Status        string        `json:"status"`
	Result        *Result       `json:"result,omitempty"`
	Clocks        Clocks        `json:"clocks"`
	Moves         []Move        `json:"moves"`
	MoveCount     int           `json:"moveCount"`
	Chat          []ChatMessage `json:"chat,omitempty"`
	Settings      Settings      `json:"settings"`
}
