package session

import (
	"errors"
	"testing"
	"time"

	"github.com/kapu/chess-arena-go/internal/board"
)

var (
	whiteID = Identity{AccountID: "acct-white", DisplayName: "Alice"}
	blackID = Identity{AccountID: "acct-black", DisplayName: "Bob"}
	t0      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func sq(t *testing.T, name string) board.Square {
	t.Helper()
	if len(name) != 2 {
		t.Fatalf("bad square %q", name)
	}
	return board.Square{Row: 8 - int(name[1]-'0'), Col: int(name[0] - 'a')}
}

// newActive builds a session with both players seated, ready, and the game
// started at t0.
func newActive(t *testing.T) *Session {
	t.Helper()
	s := New("ROOM1", whiteID, 5*60*1000, 0, Settings{AllowSpectators: true}, t0)
	if _, err := s.Join(whiteID, "conn-w", "", false); err != nil {
		t.Fatalf("white join: %v", err)
	}
	if _, err := s.Join(blackID, "conn-b", "", false); err != nil {
		t.Fatalf("black join: %v", err)
	}
	if _, err := s.Ready(whiteID, t0); err != nil {
		t.Fatalf("white ready: %v", err)
	}
	out, err := s.Ready(blackID, t0)
	if err != nil {
		t.Fatalf("black ready: %v", err)
	}
	if !out.Started || s.Status != StatusActive {
		t.Fatalf("game did not start: started=%v status=%s", out.Started, s.Status)
	}
	return s
}

func mustMove(t *testing.T, s *Session, id Identity, from, to string, at time.Time) *MoveOutcome {
	t.Helper()
	out, err := s.Move(id, sq(t, from), sq(t, to), "", 1000, at)
	if err != nil {
		t.Fatalf("move %s-%s: %v", from, to, err)
	}
	return out
}

func TestStartRequiresBothReady(t *testing.T) {
	s := New("ROOM1", whiteID, 60000, 0, Settings{}, t0)
	if _, err := s.Join(whiteID, "conn-w", "", false); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := s.Ready(whiteID, t0); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if s.Status != StatusWaiting {
		t.Fatalf("status = %s, want waiting with one ready seat", s.Status)
	}
	if _, err := s.Join(blackID, "conn-b", "", false); err != nil {
		t.Fatalf("join: %v", err)
	}
	out, err := s.Ready(blackID, t0)
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if !out.Started {
		t.Fatal("second ready should start the game")
	}
	if s.CurrentPlayer != board.White {
		t.Fatalf("current player = %s, want white", s.CurrentPlayer)
	}
	if s.Board.At(sq(t, "e2")).Type != board.Pawn {
		t.Fatal("board not set to the initial position")
	}
	if s.Clocks.WhiteMs != 60000 || s.Clocks.BlackMs != 60000 {
		t.Fatalf("clocks = %d/%d, want 60000/60000", s.Clocks.WhiteMs, s.Clocks.BlackMs)
	}
}

func TestScholarsMate(t *testing.T) {
	s := newActive(t)
	at := t0
	step := func(id Identity, from, to string) *MoveOutcome {
		at = at.Add(2 * time.Second)
		return mustMove(t, s, id, from, to, at)
	}

	step(whiteID, "e2", "e4")
	step(blackID, "e7", "e5")
	step(whiteID, "f1", "c4")
	step(blackID, "b8", "c6")
	step(whiteID, "d1", "h5")
	step(blackID, "g8", "f6")
	out := step(whiteID, "h5", "f7")

	if !out.Checkmate || !out.Finished {
		t.Fatalf("expected checkmate finish, got %+v", out)
	}
	if out.Move.Notation != "Qxf7#" {
		t.Fatalf("notation = %q, want Qxf7#", out.Move.Notation)
	}
	if s.Status != StatusFinished {
		t.Fatalf("status = %s, want finished", s.Status)
	}
	if s.Result == nil || s.Result.Winner != "white" || s.Result.Reason != ReasonCheckmate {
		t.Fatalf("result = %+v, want white/checkmate", s.Result)
	}
	if _, err := s.Move(blackID, sq(t, "f6"), sq(t, "e4"), "", 0, at); !errors.Is(err, ErrNotActive) {
		t.Fatalf("move after finish: err = %v, want ErrNotActive", err)
	}
}

func TestIllegalMoveLeavesStateUntouched(t *testing.T) {
	s := newActive(t)
	before := s.Board

	_, err := s.Move(whiteID, sq(t, "b1"), sq(t, "b3"), "", 0, t0.Add(time.Second))
	if !errors.Is(err, ErrIllegalDest) {
		t.Fatalf("err = %v, want ErrIllegalDest", err)
	}
	if s.Board != before {
		t.Fatal("board changed by rejected move")
	}
	if len(s.Moves) != 0 || s.CurrentPlayer != board.White {
		t.Fatalf("move log/turn changed: moves=%d current=%s", len(s.Moves), s.CurrentPlayer)
	}
}

func TestMoveExposingKingRejected(t *testing.T) {
	s := newActive(t)
	at := t0
	step := func(id Identity, from, to string) {
		at = at.Add(time.Second)
		mustMove(t, s, id, from, to, at)
	}
	step(whiteID, "e2", "e4")
	step(blackID, "e7", "e5")
	step(whiteID, "d1", "h5")

	// f6 is a fine pawn push geometrically, but it opens the h5-e8
	// diagonal to the queen.
	_, err := s.Move(blackID, sq(t, "f7"), sq(t, "f6"), "", 0, at.Add(time.Second))
	if !errors.Is(err, ErrSelfCheck) {
		t.Fatalf("err = %v, want ErrSelfCheck", err)
	}
}

func TestTurnOrderEnforced(t *testing.T) {
	s := newActive(t)
	if _, err := s.Move(blackID, sq(t, "e7"), sq(t, "e5"), "", 0, t0.Add(time.Second)); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("err = %v, want ErrNotYourTurn", err)
	}
	watcher := Identity{GuestID: "guest-1", DisplayName: "Carol"}
	if _, err := s.Move(watcher, sq(t, "e2"), sq(t, "e4"), "", 0, t0.Add(time.Second)); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("err = %v, want ErrNotAPlayer", err)
	}
}

func TestPromotionFlow(t *testing.T) {
	s := newActive(t)
	var b board.Board
	b[sq(t, "a7").Row][sq(t, "a7").Col] = board.Piece{Type: board.Pawn, Color: board.White}
	b[sq(t, "e1").Row][sq(t, "e1").Col] = board.Piece{Type: board.King, Color: board.White}
	b[sq(t, "h8").Row][sq(t, "h8").Col] = board.Piece{Type: board.King, Color: board.Black}
	s.Board = b

	at := t0.Add(time.Second)
	if _, err := s.Move(whiteID, sq(t, "a7"), sq(t, "a8"), "", 0, at); !errors.Is(err, ErrNeedsPromotion) {
		t.Fatalf("err = %v, want ErrNeedsPromotion", err)
	}
	if _, err := s.Move(whiteID, sq(t, "a7"), sq(t, "a8"), board.King, 0, at); !errors.Is(err, ErrBadPromotion) {
		t.Fatalf("err = %v, want ErrBadPromotion", err)
	}
	out, err := s.Move(whiteID, sq(t, "a7"), sq(t, "a8"), board.Knight, 0, at)
	if err != nil {
		t.Fatalf("promotion move: %v", err)
	}
	if out.Move.Notation != "a8=K" {
		t.Fatalf("notation = %q, want a8=K", out.Move.Notation)
	}
	if got := s.Board.At(sq(t, "a8")); got.Type != board.Knight || got.Color != board.White {
		t.Fatalf("promoted square holds %+v", got)
	}
}

func TestClockExpiryFinishesGame(t *testing.T) {
	s := New("ROOM1", whiteID, 10_000, 0, Settings{}, t0)
	if _, err := s.Join(whiteID, "conn-w", "", false); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := s.Join(blackID, "conn-b", "", false); err != nil {
		t.Fatalf("join: %v", err)
	}
	s.Ready(whiteID, t0)
	s.Ready(blackID, t0)

	_, err := s.Move(whiteID, sq(t, "e2"), sq(t, "e4"), "", 0, t0.Add(11*time.Second))
	if !errors.Is(err, ErrClockExpired) {
		t.Fatalf("err = %v, want ErrClockExpired", err)
	}
	if s.Status != StatusFinished {
		t.Fatalf("status = %s, want finished", s.Status)
	}
	if s.Result == nil || s.Result.Winner != "black" || s.Result.Reason != ReasonTimeout {
		t.Fatalf("result = %+v, want black/timeout", s.Result)
	}
	if s.Clocks.WhiteMs != 0 {
		t.Fatalf("white clock = %d, want 0", s.Clocks.WhiteMs)
	}
}

func TestClockDebitAndIncrement(t *testing.T) {
	s := New("ROOM1", whiteID, 60_000, 2_000, Settings{}, t0)
	s.Join(whiteID, "conn-w", "", false)
	s.Join(blackID, "conn-b", "", false)
	s.Ready(whiteID, t0)
	s.Ready(blackID, t0)

	mustMove(t, s, whiteID, "e2", "e4", t0.Add(5*time.Second))
	if s.Clocks.WhiteMs != 57_000 {
		t.Fatalf("white clock = %d, want 57000 (60s - 5s + 2s increment)", s.Clocks.WhiteMs)
	}
	if s.Clocks.BlackMs != 60_000 {
		t.Fatalf("black clock = %d, want untouched 60000", s.Clocks.BlackMs)
	}
	if !s.Clocks.TurnStartedAt.Equal(t0.Add(5 * time.Second)) {
		t.Fatal("turn stopwatch not re-armed at commit time")
	}
}

func TestResign(t *testing.T) {
	s := newActive(t)
	mustMove(t, s, whiteID, "e2", "e4", t0.Add(time.Second))

	res, err := s.Resign(blackID, t0.Add(2*time.Second))
	if err != nil {
		t.Fatalf("resign: %v", err)
	}
	if res.Winner != "white" || res.Reason != ReasonResignation {
		t.Fatalf("result = %+v, want white/resignation", res)
	}
	if _, err := s.Resign(whiteID, t0.Add(3*time.Second)); !errors.Is(err, ErrNotActive) {
		t.Fatalf("second resign: err = %v, want ErrNotActive", err)
	}
}

func TestSelfPlayRejected(t *testing.T) {
	s := New("ROOM1", whiteID, 60_000, 0, Settings{}, t0)
	s.Join(whiteID, "conn-w", "", false)
	if _, err := s.Join(whiteID, "conn-w2", "", false); err != nil {
		t.Fatalf("rejoin own seat should reconnect, got %v", err)
	}

	guest := Identity{GuestID: "g-1", DisplayName: "Dana"}
	s2 := New("ROOM2", guest, 60_000, 0, Settings{}, t0)
	s2.Join(guest, "conn-1", "", false)
	sameName := Identity{GuestID: "g-2", DisplayName: "Dana"}
	if _, err := s2.Join(sameName, "conn-2", "", false); err != nil {
		t.Fatalf("same display name rejoin must resolve to the existing seat: %v", err)
	}
	if s2.Black.Occupied() {
		t.Fatal("rotated guest id took the second seat instead of reconnecting")
	}
}

func TestIdentityPrecedence(t *testing.T) {
	s := newActive(t)

	// Account id wins over a colliding display name.
	impostor := Identity{GuestID: "g-9", DisplayName: "Alice"}
	if _, ok := s.PlayerColor(impostor); ok {
		t.Fatal("guest with a player's display name matched an account seat")
	}

	guest := Identity{GuestID: "g-1", DisplayName: "Eve"}
	s2 := New("R", guest, 60_000, 0, Settings{}, t0)
	s2.Join(guest, "c1", "", false)

	rotated := Identity{GuestID: "g-2", DisplayName: "Eve"}
	color, ok := s2.PlayerColor(rotated)
	if !ok || color != board.White {
		t.Fatalf("rotated guest id did not fall back to display name: ok=%v color=%s", ok, color)
	}
	out, err := s2.Join(rotated, "c2", "", false)
	if err != nil || !out.Existing {
		t.Fatalf("rotated rejoin: out=%+v err=%v", out, err)
	}
	if s2.White.GuestID != "g-2" {
		t.Fatalf("seat guest id = %q, want rotated g-2", s2.White.GuestID)
	}
	if out.EvictConnRef != "c1" {
		t.Fatalf("evict ref = %q, want stale c1", out.EvictConnRef)
	}
}

func TestReadyPersistsAcrossReconnect(t *testing.T) {
	s := New("ROOM1", whiteID, 60_000, 0, Settings{}, t0)
	s.Join(whiteID, "conn-w", "", false)
	s.Ready(whiteID, t0)

	s.Disconnect("conn-w")
	if s.White.ConnRef != "" {
		t.Fatal("disconnect did not clear the connection ref")
	}
	if !s.White.Ready || !s.White.Occupied() {
		t.Fatal("disconnect must keep the seat and its ready flag")
	}

	out, err := s.Join(whiteID, "conn-w2", "", false)
	if err != nil || !out.Existing {
		t.Fatalf("reconnect: out=%+v err=%v", out, err)
	}
	if !s.White.Ready {
		t.Fatal("ready flag lost on reconnect")
	}
}

func TestLeaveActiveGameForfeits(t *testing.T) {
	s := newActive(t)
	out := s.Leave(blackID, t0.Add(time.Minute))
	if !out.WasPlayer || !out.Finished {
		t.Fatalf("leave outcome = %+v, want player forfeit", out)
	}
	if s.Result == nil || s.Result.Winner != "white" || s.Result.Reason != ReasonResignation {
		t.Fatalf("result = %+v, want white/resignation", s.Result)
	}
	// The seat keeps its occupant so the finished game records both
	// players; only the connection is gone.
	if s.Black.AccountID != "acct-black" || s.Black.DisplayName != "Bob" {
		t.Fatalf("forfeited seat = %+v, want occupant preserved", s.Black)
	}
	if s.Black.ConnRef != "" {
		t.Fatal("leaver's connection ref not cleared")
	}
}

func TestLeaveWaitingRoomClearsSeat(t *testing.T) {
	s := New("ROOM1", whiteID, 60_000, 0, Settings{}, t0)
	s.Join(whiteID, "conn-w", "", false)

	out := s.Leave(whiteID, t0.Add(time.Minute))
	if !out.WasPlayer || out.Finished {
		t.Fatalf("leave outcome = %+v, want plain seat vacation", out)
	}
	if s.White.Occupied() {
		t.Fatal("leaver still seated in waiting room")
	}
}

func TestReadyAfterStartRejected(t *testing.T) {
	s := newActive(t)
	if _, err := s.Ready(whiteID, t0.Add(time.Second)); !errors.Is(err, ErrNotWaiting) {
		t.Fatalf("err = %v, want ErrNotWaiting", err)
	}
}

func TestDisconnectWaitingRoomDeletion(t *testing.T) {
	s := New("ROOM1", whiteID, 60_000, 0, Settings{}, t0)
	s.Join(whiteID, "conn-w", "", false)

	out := s.Disconnect("conn-w")
	if !out.DeleteRoom {
		t.Fatal("last connection leaving a waiting room should mark it for deletion")
	}

	active := newActive(t)
	if out := active.Disconnect("conn-w"); out.DeleteRoom {
		t.Fatal("active games must survive disconnects")
	}
	if active.Status != StatusActive {
		t.Fatalf("status = %s, want still active", active.Status)
	}
}

func TestSpectators(t *testing.T) {
	s := newActive(t)
	watcher := Identity{GuestID: "g-watch", DisplayName: "Watcher"}

	out, err := s.Join(watcher, "conn-s", "", true)
	if err != nil || !out.Spectator {
		t.Fatalf("spectate: out=%+v err=%v", out, err)
	}
	// Same identity again: refreshed, not duplicated.
	out, err = s.Join(watcher, "conn-s2", "", true)
	if err != nil || !out.Existing || out.EvictConnRef != "conn-s" {
		t.Fatalf("re-spectate: out=%+v err=%v", out, err)
	}
	if len(s.Spectators) != 1 {
		t.Fatalf("spectators = %d, want 1", len(s.Spectators))
	}

	closed := newActive(t)
	closed.Settings.AllowSpectators = false
	if _, err := closed.Join(watcher, "conn-s", "", true); !errors.Is(err, ErrNoSpectators) {
		t.Fatalf("err = %v, want ErrNoSpectators", err)
	}
}

func TestFullRoomFallsBackToSpectating(t *testing.T) {
	s := newActive(t)
	late := Identity{AccountID: "acct-late", DisplayName: "Late"}
	out, err := s.Join(late, "conn-l", "", false)
	if err != nil || !out.Spectator {
		t.Fatalf("full-room join: out=%+v err=%v", out, err)
	}

	strict := newActive(t)
	strict.Settings.AllowSpectators = false
	if _, err := strict.Join(late, "conn-l", "", false); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}
}

func TestPrivateRoomPassword(t *testing.T) {
	s := New("ROOM1", whiteID, 60_000, 0, Settings{IsPrivate: true, Password: "hunter2"}, t0)
	if _, err := s.Join(blackID, "conn-b", "wrong", false); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("err = %v, want ErrWrongPassword", err)
	}
	if _, err := s.Join(blackID, "conn-b", "hunter2", false); err != nil {
		t.Fatalf("correct password rejected: %v", err)
	}
}

func TestChat(t *testing.T) {
	s := newActive(t)
	if _, err := s.SendChat(whiteID, "   ", t0); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
	outsider := Identity{GuestID: "g-x", DisplayName: "Nobody"}
	if _, err := s.SendChat(outsider, "hi", t0); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("err = %v, want ErrNotInRoom", err)
	}
	msg, err := s.SendChat(whiteID, "  good luck  ", t0)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if msg.Message != "good luck" || msg.IsSystem {
		t.Fatalf("message = %+v", msg)
	}
}

func TestReplayMatchesIncrementalBoard(t *testing.T) {
	s := newActive(t)
	at := t0
	moves := [][2]string{
		{"e2", "e4"}, {"e7", "e5"},
		{"g1", "f3"}, {"b8", "c6"},
		{"f1", "c4"}, {"g8", "f6"},
		{"d2", "d3"}, {"f8", "c5"},
	}
	for i, mv := range moves {
		at = at.Add(time.Second)
		id := whiteID
		if i%2 == 1 {
			id = blackID
		}
		mustMove(t, s, id, mv[0], mv[1], at)
	}
	replayed, err := s.ReplayBoard()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed != s.Board {
		t.Fatal("replayed board diverges from the incremental board")
	}
}

func TestSnapshotHidesServerState(t *testing.T) {
	s := newActive(t)
	s.Settings.Password = "secret"
	s.SendChat(whiteID, "hello", t0)

	state := s.Snapshot()
	if !state.White.Connected || !state.White.Occupied {
		t.Fatalf("white seat dto = %+v", state.White)
	}
	if state.MoveCount != 0 || state.Status != "active" {
		t.Fatalf("snapshot = status %s moves %d", state.Status, state.MoveCount)
	}
	if len(state.Board) != 8 {
		t.Fatalf("board rows = %d, want 8", len(state.Board))
	}
	if state.Board[0][0] == nil || state.Board[0][0].Type != "rook" {
		t.Fatalf("a8 = %+v, want black rook", state.Board[0][0])
	}

	waiting := New("W", whiteID, 60_000, 0, Settings{}, t0)
	if ws := waiting.Snapshot(); ws.Board != nil {
		t.Fatal("waiting rooms must not expose a board")
	}
}
