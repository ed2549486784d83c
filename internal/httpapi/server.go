// Package httpapi is the REST surface: room creation and discovery,
// archived profiles, health, and stats. Gameplay itself happens over the
// websocket gateway.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/kapu/chess-arena-go/internal/archive"
	"github.com/kapu/chess-arena-go/internal/obslog"
	"github.com/kapu/chess-arena-go/internal/roomreg"
	"github.com/kapu/chess-arena-go/internal/session"
	"github.com/kapu/chess-arena-go/pkg/gamedto"
)

type Server struct {
	reg  *roomreg.Registry
	repo *archive.Repository // nil when no database is configured
	log  *zap.Logger
	srv  *fasthttp.Server
}

func New(reg *roomreg.Registry, repo *archive.Repository) *Server {
	s := &Server{
		reg:  reg,
		repo: repo,
		log:  obslog.L().Named("httpapi"),
	}
	s.srv = &fasthttp.Server{
		Handler:      s.handle,
		Name:         "chess-arena",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("http api listening", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error { return s.srv.Shutdown() }

// Handler exposes the request handler for tests.
func (s *Server) Handler() fasthttp.RequestHandler { return s.handle }

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	switch {
	case path == "/healthz" && method == fasthttp.MethodGet:
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
	case path == "/stats" && method == fasthttp.MethodGet:
		writeJSON(ctx, fasthttp.StatusOK, s.reg.CollectStats())
	case path == "/rooms" && method == fasthttp.MethodPost:
		s.createRoom(ctx)
	case path == "/rooms" && method == fasthttp.MethodGet:
		writeJSON(ctx, fasthttp.StatusOK, s.reg.ListWaiting())
	case strings.HasPrefix(path, "/rooms/") && method == fasthttp.MethodGet:
		s.getRoom(ctx, strings.TrimPrefix(path, "/rooms/"))
	case strings.HasPrefix(path, "/profiles/") && method == fasthttp.MethodGet:
		s.profileRoutes(ctx, strings.TrimPrefix(path, "/profiles/"))
	default:
		writeError(ctx, fasthttp.StatusNotFound, gamedto.DomainError{
			Code: gamedto.CodeValidation, Reason: "not-found",
		})
	}
}

// identityFromHeaders resolves the caller the same way the gateway does,
// from X-Account-Id / X-Guest-Id / X-Display-Name.
func identityFromHeaders(ctx *fasthttp.RequestCtx) session.Identity {
	return session.Identity{
		AccountID:   strings.TrimSpace(string(ctx.Request.Header.Peek("X-Account-Id"))),
		GuestID:     strings.TrimSpace(string(ctx.Request.Header.Peek("X-Guest-Id"))),
		DisplayName: strings.TrimSpace(string(ctx.Request.Header.Peek("X-Display-Name"))),
	}
}

type createRoomRequest struct {
	InitialMs       int64  `json:"initialMs"`
	IncrementMs     int64  `json:"incrementMs"`
	IsPrivate       bool   `json:"isPrivate"`
	Password        string `json:"password"`
	AllowSpectators *bool  `json:"allowSpectators"`
}

func (s *Server) createRoom(ctx *fasthttp.RequestCtx) {
	var req createRoomRequest
	if body := ctx.PostBody(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, gamedto.DomainError{
				Code: gamedto.CodeValidation, Reason: "bad-json",
			})
			return
		}
	}
	id := identityFromHeaders(ctx)
	if id.Zero() {
		writeError(ctx, fasthttp.StatusBadRequest, session.ErrBadIdentity.DTO())
		return
	}
	settings := session.Settings{
		IsPrivate:       req.IsPrivate,
		Password:        strings.TrimSpace(req.Password),
		AllowSpectators: true,
	}
	if req.AllowSpectators != nil {
		settings.AllowSpectators = *req.AllowSpectators
	}
	snap, err := s.reg.CreateRoom(toCtx(ctx), id, req.InitialMs, req.IncrementMs, settings)
	if err != nil {
		s.writeCommandError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, snap)
}

func (s *Server) getRoom(ctx *fasthttp.RequestCtx, roomID string) {
	snap, err := s.reg.Snapshot(toCtx(ctx), strings.ToUpper(strings.TrimSpace(roomID)))
	if err != nil {
		s.writeCommandError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, snap)
}

// profileRoutes handles /profiles/{accountId} and
// /profiles/{accountId}/games.
func (s *Server) profileRoutes(ctx *fasthttp.RequestCtx, rest string) {
	if s.repo == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, gamedto.DomainError{
			Code: gamedto.CodeValidation, Reason: "archive-disabled",
		})
		return
	}
	accountID, tail, _ := strings.Cut(rest, "/")
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		writeError(ctx, fasthttp.StatusBadRequest, session.ErrBadIdentity.DTO())
		return
	}
	switch tail {
	case "":
		profile, err := s.repo.Profile(toCtx(ctx), accountID)
		if err != nil {
			s.log.Error("profile lookup failed", zap.String("account", accountID), zap.Error(err))
			writeError(ctx, fasthttp.StatusInternalServerError, gamedto.DomainError{
				Code: gamedto.CodeValidation, Reason: "internal",
			})
			return
		}
		if profile == nil {
			writeError(ctx, fasthttp.StatusNotFound, gamedto.DomainError{
				Code: gamedto.CodeValidation, Reason: "profile-not-found",
			})
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, profile)
	case "games":
		games, err := s.repo.RecentGames(toCtx(ctx), accountID, ctx.QueryArgs().GetUintOrZero("limit"))
		if err != nil {
			s.log.Error("games lookup failed", zap.String("account", accountID), zap.Error(err))
			writeError(ctx, fasthttp.StatusInternalServerError, gamedto.DomainError{
				Code: gamedto.CodeValidation, Reason: "internal",
			})
			return
		}
		if games == nil {
			games = []archive.GameSummary{}
		}
		writeJSON(ctx, fasthttp.StatusOK, games)
	default:
		writeError(ctx, fasthttp.StatusNotFound, gamedto.DomainError{
			Code: gamedto.CodeValidation, Reason: "not-found",
		})
	}
}

func (s *Server) writeCommandError(ctx *fasthttp.RequestCtx, err error) {
	var serr *session.Error
	if errors.As(err, &serr) {
		status := fasthttp.StatusBadRequest
		if errors.Is(err, session.ErrRoomNotFound) {
			status = fasthttp.StatusNotFound
		}
		writeError(ctx, status, serr.DTO())
		return
	}
	s.log.Error("command failed", zap.Error(err))
	writeError(ctx, fasthttp.StatusInternalServerError, gamedto.DomainError{
		Code: gamedto.CodeValidation, Reason: "internal",
	})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	raw, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(raw)
}

func writeError(ctx *fasthttp.RequestCtx, status int, derr gamedto.DomainError) {
	writeJSON(ctx, status, map[string]any{"error": derr})
}

func toCtx(ctx *fasthttp.RequestCtx) context.Context { return ctx }
