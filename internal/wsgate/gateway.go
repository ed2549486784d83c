// Package wsgate is the websocket gateway: it upgrades client
// connections, resolves their identity, feeds commands into the room
// registry, and fans registry events back out. It is the concrete
// roomreg.Transport.
package wsgate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kapu/chess-arena-go/internal/board"
	"github.com/kapu/chess-arena-go/internal/obslog"
	"github.com/kapu/chess-arena-go/internal/roomreg"
	"github.com/kapu/chess-arena-go/internal/session"
	"github.com/kapu/chess-arena-go/pkg/gamedto"
)

const writeTimeout = 10 * time.Second

type client struct {
	ref    string
	roomID string
	id     session.Identity
	conn   *websocket.Conn

	// one writer at a time per connection
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func (c *client) send(ev gamedto.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, ev)
}

type Gateway struct {
	reg *roomreg.Registry
	log *zap.Logger

	mu    sync.RWMutex
	conns map[string]*client
	rooms map[string]map[string]*client
}

func New(reg *roomreg.Registry) *Gateway {
	return &Gateway{
		reg:   reg,
		log:   obslog.L().Named("wsgate"),
		conns: make(map[string]*client),
		rooms: make(map[string]map[string]*client),
	}
}

// Broadcast sends ev to every connection attached to roomID.
func (g *Gateway) Broadcast(roomID string, ev gamedto.Event) {
	g.mu.RLock()
	targets := make([]*client, 0, len(g.rooms[roomID]))
	for _, c := range g.rooms[roomID] {
		targets = append(targets, c)
	}
	g.mu.RUnlock()
	for _, c := range targets {
		if err := c.send(ev); err != nil {
			g.log.Debug("broadcast write failed", zap.String("conn", c.ref), zap.Error(err))
		}
	}
}

// Unicast sends ev to one connection.
func (g *Gateway) Unicast(connRef string, ev gamedto.Event) {
	g.mu.RLock()
	c := g.conns[connRef]
	g.mu.RUnlock()
	if c == nil {
		return
	}
	if err := c.send(ev); err != nil {
		g.log.Debug("unicast write failed", zap.String("conn", connRef), zap.Error(err))
	}
}

// Evict closes a stale connection after the same identity attached again
// elsewhere. The registry already detached it from the session.
func (g *Gateway) Evict(connRef, reason string) {
	g.mu.Lock()
	c := g.conns[connRef]
	if c != nil {
		delete(g.conns, connRef)
		if peers, ok := g.rooms[c.roomID]; ok {
			delete(peers, connRef)
			if len(peers) == 0 {
				delete(g.rooms, c.roomID)
			}
		}
	}
	g.mu.Unlock()
	if c == nil {
		return
	}
	g.log.Info("connection evicted", zap.String("conn", connRef), zap.String("reason", reason))
	_ = c.conn.Close(websocket.StatusPolicyViolation, reason)
	c.cancel()
}

func (g *Gateway) register(c *client) {
	g.mu.Lock()
	g.conns[c.ref] = c
	peers, ok := g.rooms[c.roomID]
	if !ok {
		peers = make(map[string]*client)
		g.rooms[c.roomID] = peers
	}
	peers[c.ref] = c
	g.mu.Unlock()
}

// unregister returns false if the connection was already removed (evicted).
func (g *Gateway) unregister(c *client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.conns[c.ref]; !ok {
		return false
	}
	delete(g.conns, c.ref)
	if peers, ok := g.rooms[c.roomID]; ok {
		delete(peers, c.ref)
		if len(peers) == 0 {
			delete(g.rooms, c.roomID)
		}
	}
	return true
}

// identityFromRequest builds the caller identity from query parameters.
// Callers without an account or a guest id are minted a fresh guest id,
// which they are expected to carry for the rest of their browser session.
func identityFromRequest(r *http.Request) session.Identity {
	q := r.URL.Query()
	id := session.Identity{
		AccountID:   strings.TrimSpace(q.Get("accountId")),
		GuestID:     strings.TrimSpace(q.Get("guestId")),
		DisplayName: strings.TrimSpace(q.Get("displayName")),
	}
	if id.AccountID == "" && id.GuestID == "" && id.DisplayName != "" {
		id.GuestID = "guest-" + uuid.NewString()
	}
	return id
}

// ServeHTTP upgrades the connection and runs its command loop until the
// peer goes away. Expected query parameters: room, displayName, and one of
// accountId or guestId; optional password and spectate.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Room codes are minted as upper hex; accept them case-insensitively,
	// matching the HTTP API's lookup.
	roomID := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("room")))
	if roomID == "" {
		http.Error(w, "room required", http.StatusBadRequest)
		return
	}
	id := identityFromRequest(r)
	password := r.URL.Query().Get("password")
	spectate := strings.EqualFold(r.URL.Query().Get("spectate"), "true")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  []string{"*"},
	})
	if err != nil {
		g.log.Debug("accept failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		ref:    uuid.NewString(),
		roomID: roomID,
		id:     id,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}
	// Register before Join so events emitted during the join (including
	// our own participant_joined) reach this connection.
	g.register(c)

	snap, err := g.reg.Join(ctx, roomID, id, c.ref, password, spectate)
	if err != nil {
		g.unregister(c)
		g.sendError(c, err)
		_ = conn.Close(websocket.StatusPolicyViolation, "join rejected")
		cancel()
		return
	}
	if err := c.send(gamedto.Event{Type: gamedto.EvSessionState, Payload: snap}); err != nil {
		g.drop(c)
		return
	}
	g.log.Info("connection attached",
		zap.String("room", roomID),
		zap.String("conn", c.ref),
		zap.String("name", id.DisplayName),
		zap.Bool("spectate", spectate))

	g.readLoop(c)
}

// command is the client-to-server frame.
type command struct {
	Type      string          `json:"type"`
	From      *gamedto.Square `json:"from,omitempty"`
	To        *gamedto.Square `json:"to,omitempty"`
	Promotion string          `json:"promotion,omitempty"`
	ElapsedMs int64           `json:"elapsedMs,omitempty"`
	Message   string          `json:"message,omitempty"`
}

func (g *Gateway) readLoop(c *client) {
	for {
		var cmd command
		if err := wsjson.Read(c.ctx, c.conn, &cmd); err != nil {
			g.drop(c)
			return
		}
		if leave := g.dispatch(c, cmd); leave {
			g.unregister(c)
			_ = c.conn.Close(websocket.StatusNormalClosure, "left")
			c.cancel()
			return
		}
	}
}

// drop handles an unclean exit: the seat survives for reconnection.
func (g *Gateway) drop(c *client) {
	if g.unregister(c) {
		g.reg.Disconnect(context.Background(), c.roomID, c.ref)
		g.log.Info("connection dropped", zap.String("room", c.roomID), zap.String("conn", c.ref))
	}
	_ = c.conn.Close(websocket.StatusGoingAway, "drop")
	c.cancel()
}

// dispatch runs one command; it returns true when the client asked to
// leave and the loop should end.
func (g *Gateway) dispatch(c *client, cmd command) bool {
	ctx := c.ctx
	switch cmd.Type {
	case "ready":
		if _, err := g.reg.Ready(ctx, c.roomID, c.id); err != nil {
			g.sendError(c, err)
		}
	case "move":
		if cmd.From == nil || cmd.To == nil {
			g.sendError(c, session.ErrBadSquare)
			return false
		}
		from := board.Square{Row: cmd.From.Row, Col: cmd.From.Col}
		to := board.Square{Row: cmd.To.Row, Col: cmd.To.Col}
		_, _, err := g.reg.Move(ctx, c.roomID, c.id, from, to, board.PieceType(cmd.Promotion), cmd.ElapsedMs)
		if errors.Is(err, session.ErrNeedsPromotion) {
			_ = c.send(gamedto.Event{Type: gamedto.EvPromotionNeeded, Payload: gamedto.PromotionRequired{
				From: *cmd.From,
				To:   *cmd.To,
			}})
			return false
		}
		// The clock-expired finish is already broadcast by the registry.
		if err != nil && !errors.Is(err, session.ErrClockExpired) {
			g.sendError(c, err)
		}
	case "resign":
		if _, err := g.reg.Resign(ctx, c.roomID, c.id); err != nil {
			g.sendError(c, err)
		}
	case "chat":
		if err := g.reg.Chat(ctx, c.roomID, c.id, cmd.Message); err != nil {
			g.sendError(c, err)
		}
	case "leave":
		_ = g.reg.Leave(ctx, c.roomID, c.id)
		return true
	default:
		_ = c.send(gamedto.Event{Type: gamedto.EvError, Payload: gamedto.DomainError{
			Code: gamedto.CodeValidation, Reason: "unknown-command",
		}})
	}
	return false
}

func (g *Gateway) sendError(c *client, err error) {
	var payload gamedto.DomainError
	var serr *session.Error
	if errors.As(err, &serr) {
		payload = serr.DTO()
	} else {
		payload = gamedto.DomainError{Code: gamedto.CodeValidation, Reason: "internal"}
	}
	if werr := c.send(gamedto.Event{Type: gamedto.EvError, Payload: payload}); werr != nil {
		g.log.Debug("error write failed", zap.String("conn", c.ref), zap.Error(werr))
	}
}
