package gamedto

// Error codes grouped by command failure class. Per-command errors are
// local to the caller and never affect other participants.
const (
	CodeValidation      = "validation"
	CodeIllegalMove     = "illegal_move"
	CodeSeatConflict    = "seat_conflict"
	CodeNotAParticipant = "not_a_participant"
	CodeLifecycle       = "lifecycle"
)

// DomainError is the wire form of a rejected command.
type DomainError struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Reason != "" {
		return e.Code + ": " + e.Reason
	}
	if e.Code != "" {
		return e.Code
	}
	return "game session error"
}
