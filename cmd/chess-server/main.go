package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/chess-arena-go/internal/archive"
	appcfg "github.com/kapu/chess-arena-go/internal/config"
	"github.com/kapu/chess-arena-go/internal/httpapi"
	"github.com/kapu/chess-arena-go/internal/obslog"
	"github.com/kapu/chess-arena-go/internal/roomreg"
	"github.com/kapu/chess-arena-go/internal/store"
	"github.com/kapu/chess-arena-go/internal/wsgate"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	// Session store: Redis when configured, in-process otherwise.
	var st store.Store
	if cfg.RedisURL != "" {
		rs, err := store.NewRedisStore(cfg.RedisURL, cfg.SessionTTL())
		if err != nil {
			logger.Fatal("redis store init failed", zap.Error(err))
		}
		st = rs
		logger.Info("using redis session store")
	} else {
		st = store.NewMemStore()
		logger.Warn("REDIS_URL not set, sessions will not survive restarts")
	}
	defer st.Close()

	// Game archive is optional; without a database finished games are
	// only broadcast, not recorded.
	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive init failed", zap.Error(err))
		}
		defer repo.Close()
		logger.Info("game archive enabled")
	} else {
		logger.Warn("DATABASE_URL not set, finished games will not be archived")
	}

	var archiver roomreg.Archiver
	if repo != nil {
		archiver = repo
	}
	reg := roomreg.New(st, archiver, roomreg.Options{
		SweepInterval:      cfg.SweepInterval(),
		WaitingTimeout:     cfg.WaitingTimeout(),
		ActiveTimeout:      cfg.ActiveTimeout(),
		DefaultInitialMs:   cfg.DefaultInitialMs,
		DefaultIncrementMs: cfg.DefaultIncrementMs,
	})
	if err := reg.Recover(context.Background()); err != nil {
		logger.Warn("room recovery failed", zap.Error(err))
	}

	gw := wsgate.New(reg)
	reg.SetTransport(gw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.Start(ctx)

	wsSrv := &http.Server{
		Addr:              cfg.WSListenAddr,
		Handler:           gw,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("websocket gateway listening", zap.String("addr", cfg.WSListenAddr))
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("ws listen failed", zap.Error(err))
		}
	}()

	api := httpapi.New(reg, repo)
	go func() {
		if err := api.ListenAndServe(cfg.HTTPListenAddr); err != nil {
			logger.Fatal("http listen failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = wsSrv.Shutdown(shutdownCtx)
	_ = api.Shutdown()
	reg.Stop()
	cancel()
}
