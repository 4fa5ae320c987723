package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/notetaken-sync/internal/adapter/localcache"
	"github.com/heartmarshall/notetaken-sync/internal/adapter/postgres"
	"github.com/heartmarshall/notetaken-sync/internal/adapter/postgres/remote"
	"github.com/heartmarshall/notetaken-sync/internal/config"
	"github.com/heartmarshall/notetaken-sync/internal/service/command"
	"github.com/heartmarshall/notetaken-sync/internal/service/notes"
	"github.com/heartmarshall/notetaken-sync/internal/service/syncer"
	"github.com/heartmarshall/notetaken-sync/internal/transport/rest"
	"github.com/heartmarshall/notetaken-sync/internal/transport/ws"
)

// Run starts the sync daemon and blocks until ctx is canceled. The daemon
// serves from the local cache when the remote database is unreachable.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
	)

	// 1. Remote store. The pool connects lazily.
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Warn("remote database unreachable, starting offline", slog.String("error", err.Error()))
	}

	// 2. Local cache.
	cache, err := localcache.Open(ctx, cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Error("close cache", slog.String("error", err.Error()))
		}
	}()

	// 3. Services.
	source := remote.New(pool, logger)
	engine := syncer.NewEngine(logger, source, cache, syncer.WithPageSize(cfg.Sync.PageSize))
	defer engine.Dispose()
	store := notes.NewStore(logger, engine, cache, source)
	commands := command.NewService(logger, store)

	// 4. Change fan-out.
	hub := ws.NewHub(logger)
	defer hub.Close()
	unsubscribe := store.Subscribe(hub.PublishState)
	defer unsubscribe()

	// 5. Initial state.
	if err := store.Hydrate(ctx); err != nil {
		logger.Warn("cache hydrate failed", slog.String("error", err.Error()))
	}
	if cfg.Sync.UserID != uuid.Nil {
		// Init logs its own failure and leaves the session running offline.
		_ = store.Init(ctx, cfg.Sync.UserID)
	}

	// 6. HTTP server.
	handler := rest.NewRouter(rest.Routes{
		Health: rest.NewHealthHandler(pool, cache, Version),
		Notes:  rest.NewNotesHandler(store, commands, logger),
		Events: hub,
		Owner:  store.Owner,
	}, logger)

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	// Shutdown does not touch hijacked websocket connections.
	srv.RegisterOnShutdown(hub.Close)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
