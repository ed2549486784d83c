// Package roomreg owns the live room set: it routes commands into session
// state machines under per-room locks, writes snapshots through to the
// store, fans events out over the transport, and sweeps idle rooms.
package roomreg

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/chess-arena-go/internal/board"
	"github.com/kapu/chess-arena-go/internal/obslog"
	"github.com/kapu/chess-arena-go/internal/session"
	"github.com/kapu/chess-arena-go/internal/store"
	"github.com/kapu/chess-arena-go/pkg/gamedto"
)

// Transport pushes events to connected clients. The websocket gateway
// implements it; a nil-safe noop is used in tests.
type Transport interface {
	Broadcast(roomID string, ev gamedto.Event)
	Unicast(connRef string, ev gamedto.Event)
	Evict(connRef, reason string)
}

// Archiver records finished games. *archive.Repository satisfies it.
type Archiver interface {
	SaveGame(ctx context.Context, s *session.Session) error
}

// Options tune room lifecycle. Zero values get defaults from New.
type Options struct {
	SweepInterval      time.Duration
	WaitingTimeout     time.Duration
	ActiveTimeout      time.Duration
	DefaultInitialMs   int64
	DefaultIncrementMs int64
}

const (
	defaultSweepInterval  = 5 * time.Minute
	defaultWaitingTimeout = 10 * time.Minute
	defaultActiveTimeout  = 30 * time.Minute
	defaultInitialMs      = 10 * 60 * 1000
)

type room struct {
	mu   sync.Mutex
	sess *session.Session

	// outbound events, appended under mu in serialization order and
	// drained in that order under sendMu
	sendMu  sync.Mutex
	pending []gamedto.Event
}

// queue buffers ev for fan-out. Callers must hold rm.mu, which pins the
// buffer order to the command serialization order.
func (rm *room) queue(ev gamedto.Event) {
	rm.pending = append(rm.pending, ev)
}

// queueFinish emits the end-of-game event pair. Callers must hold rm.mu.
func (rm *room) queueFinish(snap *gamedto.SessionState) {
	rm.queue(gamedto.Event{Type: gamedto.EvSessionFinished, Payload: gamedto.SessionFinished{
		Result: *snap.Result,
		Status: snap.Status,
	}})
	rm.queue(gamedto.Event{Type: gamedto.EvSessionState, Payload: snap})
}

type Registry struct {
	opts      Options
	store     store.Store
	archiver  Archiver
	transport Transport
	log       *zap.Logger

	mu    sync.RWMutex
	rooms map[string]*room

	// last command per room, under its own lock so touches never contend
	// with command processing
	actMu    sync.Mutex
	activity map[string]time.Time

	stop chan struct{}
	done chan struct{}
	now  func() time.Time
}

func New(st store.Store, archiver Archiver, opts Options) *Registry {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.WaitingTimeout <= 0 {
		opts.WaitingTimeout = defaultWaitingTimeout
	}
	if opts.ActiveTimeout <= 0 {
		opts.ActiveTimeout = defaultActiveTimeout
	}
	if opts.DefaultInitialMs <= 0 {
		opts.DefaultInitialMs = defaultInitialMs
	}
	return &Registry{
		opts:     opts,
		store:    st,
		archiver: archiver,
		log:      obslog.L().Named("roomreg"),
		rooms:    make(map[string]*room),
		activity: make(map[string]time.Time),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// SetTransport wires the event fan-out. Must be called before serving
// traffic; commands tolerate a nil transport for tests.
func (r *Registry) SetTransport(t Transport) { r.transport = t }

// Recover reloads persisted rooms after a restart. Connection refs do not
// survive serialization, so every recovered room comes back connectionless.
func (r *Registry) Recover(ctx context.Context) error {
	ids, err := r.store.RoomIDs(ctx)
	if err != nil {
		return err
	}
	now := r.now()
	for _, id := range ids {
		sess, err := r.store.Load(ctx, id)
		if err != nil {
			r.log.Warn("recover: load failed", zap.String("room", id), zap.Error(err))
			continue
		}
		if sess == nil {
			continue
		}
		r.mu.Lock()
		r.rooms[id] = &room{sess: sess}
		r.mu.Unlock()
		r.touch(id, now)
	}
	r.log.Info("rooms recovered", zap.Int("count", len(ids)))
	return nil
}

// CreateRoom mints a new waiting room. A non-zero creator is pre-seated as
// white and attaches over the gateway afterwards.
func (r *Registry) CreateRoom(ctx context.Context, creator session.Identity, initialMs, incrementMs int64, settings session.Settings) (*gamedto.SessionState, error) {
	if initialMs <= 0 {
		initialMs = r.opts.DefaultInitialMs
	}
	if incrementMs < 0 {
		incrementMs = r.opts.DefaultIncrementMs
	}
	now := r.now()

	r.mu.Lock()
	var roomID string
	for {
		roomID = newRoomID()
		if _, taken := r.rooms[roomID]; !taken {
			break
		}
	}
	sess := session.New(roomID, creator, initialMs, incrementMs, settings, now)
	r.rooms[roomID] = &room{sess: sess}
	r.mu.Unlock()
	r.touch(roomID, now)

	if err := r.store.Save(ctx, sess); err != nil {
		r.log.Warn("persist failed", zap.String("room", roomID), zap.Error(err))
	}
	r.log.Info("room created", zap.String("room", roomID), zap.Bool("private", settings.IsPrivate))
	return sess.Snapshot(), nil
}

// newRoomID returns 8 upper hex chars, the shareable room code.
func newRoomID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return strings.ToUpper(hex.EncodeToString([]byte(uuid.NewString()[:4])))
	}
	return strings.ToUpper(hex.EncodeToString(b))
}

// getRoom returns a live room, materializing it from the store when this
// process has not seen it yet.
func (r *Registry) getRoom(ctx context.Context, roomID string) (*room, error) {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return rm, nil
	}
	sess, err := r.store.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, session.ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		return rm, nil
	}
	rm = &room{sess: sess}
	r.rooms[roomID] = rm
	return rm, nil
}

func (r *Registry) touch(roomID string, at time.Time) {
	r.actMu.Lock()
	r.activity[roomID] = at
	r.actMu.Unlock()
}

func (r *Registry) dropRoom(ctx context.Context, roomID string) {
	r.mu.Lock()
	delete(r.rooms, roomID)
	r.mu.Unlock()
	r.actMu.Lock()
	delete(r.activity, roomID)
	r.actMu.Unlock()
	if err := r.store.Delete(ctx, roomID); err != nil {
		r.log.Warn("store delete failed", zap.String("room", roomID), zap.Error(err))
	}
}

func (r *Registry) persist(ctx context.Context, sess *session.Session) {
	if err := r.store.Save(ctx, sess); err != nil {
		r.log.Warn("persist failed", zap.String("room", sess.RoomID), zap.Error(err))
	}
}

// flush drains the room's outbound buffer to the transport. sendMu admits a
// single drainer at a time, so participants observe events in the exact
// order commands were serialized even when several commands race here: the
// drainer that wins also carries any events the losers queued meanwhile.
func (r *Registry) flush(roomID string, rm *room) {
	rm.sendMu.Lock()
	defer rm.sendMu.Unlock()
	for {
		rm.mu.Lock()
		evs := rm.pending
		rm.pending = nil
		rm.mu.Unlock()
		if len(evs) == 0 {
			return
		}
		if r.transport == nil {
			continue
		}
		for _, ev := range evs {
			r.transport.Broadcast(roomID, ev)
		}
	}
}

func (r *Registry) archive(ctx context.Context, sess *session.Session) {
	if r.archiver == nil {
		return
	}
	if err := r.archiver.SaveGame(ctx, sess); err != nil {
		r.log.Error("archive failed", zap.String("room", sess.RoomID), zap.String("game", sess.GameID), zap.Error(err))
	}
}

// archiveFinished logs and records a finished game. sess is a detached
// clone taken under the room lock; the archiver never sees live state.
func (r *Registry) archiveFinished(ctx context.Context, roomID string, sess *session.Session) {
	if sess == nil {
		return
	}
	r.log.Info("game finished",
		zap.String("room", roomID),
		zap.String("winner", sess.Result.Winner),
		zap.String("reason", sess.Result.Reason))
	r.archive(ctx, sess)
}

// Join routes a join/spectate command. A duplicate connection for the same
// identity is evicted before the new one is attached.
func (r *Registry) Join(ctx context.Context, roomID string, id session.Identity, connRef, password string, spectate bool) (*gamedto.SessionState, error) {
	rm, err := r.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	rm.mu.Lock()
	out, err := rm.sess.Join(id, connRef, password, spectate)
	var snap *gamedto.SessionState
	if err == nil {
		snap = rm.sess.Snapshot()
		evType := gamedto.EvJoined
		if out.Existing {
			evType = gamedto.EvReconnected
		}
		rm.queue(gamedto.Event{Type: evType, Payload: gamedto.Participant{
			DisplayName: strings.TrimSpace(id.DisplayName),
			IsGuest:     id.IsGuest(),
			Color:       string(out.Color),
			IsSpectator: out.Spectator,
		}})
		rm.queue(gamedto.Event{Type: gamedto.EvSessionState, Payload: snap})
		r.persist(ctx, rm.sess)
	}
	rm.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if out.EvictConnRef != "" && r.transport != nil {
		r.transport.Evict(out.EvictConnRef, "duplicate-connection")
	}
	r.flush(roomID, rm)
	r.touch(roomID, r.now())
	return snap, nil
}

// Ready marks a seat ready and, when that starts the game, mints the game
// id and announces the fresh board.
func (r *Registry) Ready(ctx context.Context, roomID string, id session.Identity) (*gamedto.SessionState, error) {
	rm, err := r.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	rm.mu.Lock()
	out, err := rm.sess.Ready(id, now)
	var snap *gamedto.SessionState
	if err == nil {
		if out.Started {
			rm.sess.GameID = uuid.NewString()
		}
		snap = rm.sess.Snapshot()
		rm.queue(gamedto.Event{Type: gamedto.EvSessionState, Payload: snap})
		r.persist(ctx, rm.sess)
	}
	rm.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if out.Started {
		r.log.Info("game started", zap.String("room", roomID))
	}
	r.flush(roomID, rm)
	r.touch(roomID, now)
	return snap, nil
}

// Move routes a move. ErrClockExpired is special: the command is rejected
// but the session finished by timeout in the same step, so the finish is
// broadcast and archived before the error is returned.
func (r *Registry) Move(ctx context.Context, roomID string, id session.Identity, from, to board.Square, promotion board.PieceType, elapsedMs int64) (*gamedto.SessionState, *session.MoveOutcome, error) {
	rm, err := r.getRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	now := r.now()
	rm.mu.Lock()
	out, err := rm.sess.Move(id, from, to, promotion, elapsedMs, now)
	var snap *gamedto.SessionState
	var finished *session.Session
	if err == nil || errors.Is(err, session.ErrClockExpired) {
		snap = rm.sess.Snapshot()
		r.persist(ctx, rm.sess)
		if err == nil {
			rm.queue(gamedto.Event{Type: gamedto.EvMoveCommitted, Payload: gamedto.MoveCommitted{
				Move:          snapMove(snap, out),
				Board:         snap.Board,
				CurrentPlayer: snap.CurrentPlayer,
				Check:         out.Check,
				Checkmate:     out.Checkmate,
				Status:        snap.Status,
				Result:        snap.Result,
				Clocks:        snap.Clocks,
			}})
		}
		if rm.sess.Status == session.StatusFinished {
			rm.queueFinish(snap)
			finished = rm.sess.Clone()
		}
	}
	rm.mu.Unlock()

	if errors.Is(err, session.ErrClockExpired) {
		r.flush(roomID, rm)
		r.archiveFinished(ctx, roomID, finished)
		return snap, nil, err
	}
	if err != nil {
		return nil, nil, err
	}

	r.flush(roomID, rm)
	r.archiveFinished(ctx, roomID, finished)
	r.touch(roomID, now)
	return snap, out, nil
}

// snapMove picks the just-committed move off the snapshot so the event
// carries the exact wire form.
func snapMove(snap *gamedto.SessionState, out *session.MoveOutcome) gamedto.Move {
	if n := len(snap.Moves); n > 0 {
		return snap.Moves[n-1]
	}
	// unreachable fallback; Move always appends before returning
	return gamedto.Move{Notation: out.Move.Notation}
}

func (r *Registry) Resign(ctx context.Context, roomID string, id session.Identity) (*gamedto.SessionState, error) {
	rm, err := r.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	rm.mu.Lock()
	_, err = rm.sess.Resign(id, now)
	var snap *gamedto.SessionState
	var finished *session.Session
	if err == nil {
		snap = rm.sess.Snapshot()
		r.persist(ctx, rm.sess)
		rm.queueFinish(snap)
		finished = rm.sess.Clone()
	}
	rm.mu.Unlock()
	if err != nil {
		return nil, err
	}
	r.flush(roomID, rm)
	r.archiveFinished(ctx, roomID, finished)
	r.touch(roomID, now)
	return snap, nil
}

func (r *Registry) Chat(ctx context.Context, roomID string, id session.Identity, text string) error {
	rm, err := r.getRoom(ctx, roomID)
	if err != nil {
		return err
	}
	now := r.now()
	rm.mu.Lock()
	msg, err := rm.sess.SendChat(id, text, now)
	if err == nil {
		rm.queue(gamedto.Event{Type: gamedto.EvChatMessage, Payload: gamedto.ChatMessage{
			DisplayName: msg.DisplayName,
			Message:     msg.Message,
			SentAt:      msg.SentAt,
		}})
		r.persist(ctx, rm.sess)
	}
	rm.mu.Unlock()
	if err != nil {
		return err
	}
	r.flush(roomID, rm)
	r.touch(roomID, now)
	return nil
}

// Leave removes id from the room. Leaving an active game forfeits it; a
// room left empty is deleted.
func (r *Registry) Leave(ctx context.Context, roomID string, id session.Identity) error {
	rm, err := r.getRoom(ctx, roomID)
	if err != nil {
		return err
	}
	now := r.now()
	rm.mu.Lock()
	out := rm.sess.Leave(id, now)
	snap := rm.sess.Snapshot()
	empty := rm.sess.Empty()
	var finished *session.Session
	rm.queue(gamedto.Event{Type: gamedto.EvLeft, Payload: gamedto.Participant{
		DisplayName: out.DisplayName,
		Color:       string(out.Color),
		IsSpectator: !out.WasPlayer,
	}})
	if out.Finished {
		rm.queueFinish(snap)
		finished = rm.sess.Clone()
	} else if !empty {
		rm.queue(gamedto.Event{Type: gamedto.EvSessionState, Payload: snap})
	}
	if !empty {
		r.persist(ctx, rm.sess)
	}
	rm.mu.Unlock()

	r.flush(roomID, rm)
	r.archiveFinished(ctx, roomID, finished)
	if empty {
		r.log.Info("room emptied", zap.String("room", roomID))
		r.dropRoom(ctx, roomID)
		return nil
	}
	r.touch(roomID, now)
	return nil
}

// Disconnect handles a dropped connection: the seat survives for
// reconnection, but a waiting room with no live connections left is
// deleted outright.
func (r *Registry) Disconnect(ctx context.Context, roomID, connRef string) {
	rm, err := r.getRoom(ctx, roomID)
	if err != nil {
		return
	}
	rm.mu.Lock()
	out := rm.sess.Disconnect(connRef)
	if !out.DeleteRoom {
		if out.WasPlayer || out.WasSpectator {
			snap := rm.sess.Snapshot()
			rm.queue(gamedto.Event{Type: gamedto.EvDisconnected, Payload: gamedto.Participant{
				DisplayName: out.DisplayName,
				Color:       string(out.Color),
				IsSpectator: out.WasSpectator,
			}})
			rm.queue(gamedto.Event{Type: gamedto.EvSessionState, Payload: snap})
		}
		r.persist(ctx, rm.sess)
	}
	rm.mu.Unlock()

	if out.DeleteRoom {
		r.log.Info("waiting room abandoned", zap.String("room", roomID))
		r.dropRoom(ctx, roomID)
		return
	}
	r.flush(roomID, rm)
}

// Snapshot returns the room's wire state without mutating anything.
func (r *Registry) Snapshot(ctx context.Context, roomID string) (*gamedto.SessionState, error) {
	rm, err := r.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.sess.Snapshot(), nil
}

// RoomSummary is the lobby listing entry.
type RoomSummary struct {
	RoomID     string `json:"roomId"`
	Players    int    `json:"players"`
	Spectators int    `json:"spectators"`
	IsPrivate  bool   `json:"isPrivate"`
	Status     string `json:"status"`
	InitialMs  int64  `json:"initialMs"`
}

// ListWaiting lists joinable public rooms.
func (r *Registry) ListWaiting() []RoomSummary {
	r.mu.RLock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()

	out := make([]RoomSummary, 0, len(rooms))
	for _, rm := range rooms {
		rm.mu.Lock()
		s := rm.sess
		if s.Status == session.StatusWaiting && !s.Settings.IsPrivate {
			players := 0
			if s.White.Occupied() {
				players++
			}
			if s.Black.Occupied() {
				players++
			}
			out = append(out, RoomSummary{
				RoomID:     s.RoomID,
				Players:    players,
				Spectators: len(s.Spectators),
				IsPrivate:  s.Settings.IsPrivate,
				Status:     string(s.Status),
				InitialMs:  s.Clocks.InitialMs,
			})
		}
		rm.mu.Unlock()
	}
	return out
}

// Stats counts rooms by status.
type Stats struct {
	Rooms    int `json:"rooms"`
	Waiting  int `json:"waiting"`
	Active   int `json:"active"`
	Finished int `json:"finished"`
}

func (r *Registry) CollectStats() Stats {
	r.mu.RLock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()

	st := Stats{Rooms: len(rooms)}
	for _, rm := range rooms {
		rm.mu.Lock()
		switch rm.sess.Status {
		case session.StatusWaiting:
			st.Waiting++
		case session.StatusActive:
			st.Active++
		case session.StatusFinished:
			st.Finished++
		}
		rm.mu.Unlock()
	}
	return st
}

// Start launches the lifecycle sweep.
func (r *Registry) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop.
func (r *Registry) Stop() {
	close(r.stop)
	<-r.done
}

// Sweep deletes idle waiting and finished rooms and abandons idle active
// games as a timeout draw.
func (r *Registry) Sweep(ctx context.Context) {
	now := r.now()
	r.mu.RLock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.actMu.Lock()
		last, ok := r.activity[id]
		r.actMu.Unlock()
		if !ok {
			last = now
			r.touch(id, now)
		}
		idle := now.Sub(last)

		rm, err := r.getRoom(ctx, id)
		if err != nil {
			continue
		}
		rm.mu.Lock()
		status := rm.sess.Status
		var finished *session.Session
		if status == session.StatusActive && idle >= r.opts.ActiveTimeout {
			if rm.sess.FinishAbandoned(now) {
				snap := rm.sess.Snapshot()
				r.persist(ctx, rm.sess)
				rm.queueFinish(snap)
				finished = rm.sess.Clone()
			}
		}
		rm.mu.Unlock()

		if finished != nil {
			r.log.Info("active room abandoned", zap.String("room", id), zap.Duration("idle", idle))
			r.flush(id, rm)
			r.archiveFinished(ctx, id, finished)
			r.touch(id, now)
			continue
		}
		if status != session.StatusActive && idle >= r.opts.WaitingTimeout {
			r.log.Info("idle room swept", zap.String("room", id), zap.String("status", string(status)), zap.Duration("idle", idle))
			r.dropRoom(ctx, id)
		}
	}
}
