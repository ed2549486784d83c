package gamedto

// Event types pushed over the room transport.
const (
	EvSessionState    = "session_state"
	EvMoveCommitted   = "move_committed"
	EvPromotionNeeded = "promotion_required"
	EvJoined          = "participant_joined"
	EvLeft            = "participant_left"
	EvDisconnected    = "participant_disconnected"
	EvReconnected     = "participant_reconnected"
	EvSessionFinished = "session_finished"
	EvChatMessage     = "chat_message"
	EvError           = "error"
)

// Event is the broadcast/unicast envelope.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// MoveCommitted is the payload of EvMoveCommitted.
type MoveCommitted struct {
	Move          Move       `json:"move"`
	Board         [][]*Piece `json:"board"`
	CurrentPlayer string     `json:"currentPlayer"`
	Check         bool       `json:"check"`
	Checkmate     bool       `json:"checkmate"`
	Status        string     `json:"status"`
	Result        *Result    `json:"result,omitempty"`
	Clocks        Clocks     `json:"clocks"`
}

// PromotionRequired is the payload of EvPromotionNeeded, unicast to the
// mover when a pawn push to the far rank arrives without a promotion piece.
type PromotionRequired struct {
	From Square `json:"from"`
	To   Square `json:"to"`
}

// Participant is the payload of join/leave/disconnect/reconnect events.
type Participant struct {
	DisplayName string `json:"displayName"`
	IsGuest     bool   `json:"isGuest"`
	Color       string `json:"color,omitempty"`
	IsSpectator bool   `json:"isSpectator,omitempty"`
}

// SessionFinished is the payload of EvSessionFinished.
type SessionFinished struct {
	Result Result `json:"result"`
	Status string `json:"status"`
}
