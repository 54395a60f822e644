package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"puntoventa/backend/internal/config"
	"puntoventa/backend/internal/connectivity"
	"puntoventa/backend/internal/deltacache"
	"puntoventa/backend/internal/httpapi"
	"puntoventa/backend/internal/localstate"
	"puntoventa/backend/internal/notify"
	"puntoventa/backend/internal/queue"
	"puntoventa/backend/internal/statestore"
	"puntoventa/backend/internal/store"
	"puntoventa/backend/internal/store/memory"
	pgstore "puntoventa/backend/internal/store/postgres"
	"puntoventa/backend/internal/syncengine"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var remote store.Remote
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		remote = pg
		closers = append(closers, pg.Close)
		log.Println("remote store: postgres")
	} else {
		remote = memory.NewSeeded()
		log.Println("remote store: in-memory")
	}

	var local localstate.Store = localstate.NewMemory()
	switch {
	case cfg.LocalStatePath != "":
		sqliteState, err := localstate.NewSQLite(ctx, cfg.LocalStatePath)
		if err != nil {
			log.Fatalf("local state file unusable (%v) and LOCAL_STATE_PATH is set; refusing to start without durable local state", err)
		}
		local = sqliteState
		closers = append(closers, sqliteState.Close)
		log.Println("local state: sqlite")
	case cfg.RedisAddr != "":
		redisState := localstate.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisState.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), pending sales will not survive restarts", err)
		} else {
			local = redisState
			closers = append(closers, redisState.Close)
			log.Println("local state: redis")
		}
	default:
		log.Println("local state: in-memory, pending sales will not survive restarts")
	}

	state := statestore.New()
	pending := queue.New(local)
	deltas := deltacache.New(local, state)
	notices := notify.NewLog()

	engine := syncengine.New(remote, pending, deltas, state, notices, time.Duration(cfg.SyncPassTimeoutSeconds)*time.Second)
	monitor := connectivity.New(engine, notices,
		time.Duration(cfg.SyncSettleSeconds)*time.Second,
		time.Duration(cfg.InitialSyncDelaySeconds)*time.Second)
	engine.SetConnectivity(monitor)

	if err := engine.Reload(ctx); err != nil {
		log.Printf("initial reload failed (%v), starting with empty snapshots", err)
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	monitor.Start(runCtx)
	monitor.StartProbe(runCtx, remote, time.Duration(cfg.ProbeIntervalSeconds)*time.Second)

	api := httpapi.New(engine, monitor, state, deltas, notices, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS sync backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopRun()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}
