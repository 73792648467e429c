package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/la2go/internal/config"
	"github.com/udisondev/la2go/internal/db"
	"github.com/udisondev/la2go/internal/gameserver"
	"github.com/udisondev/la2go/internal/gsclient"
)

const ConfigPath = "config/gameserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	slog.Info("la2go game server starting")

	cfgPath := ConfigPath
	if p := os.Getenv("LA2GO_GAME_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadGameServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Runtime.WorkerThreads > 0 {
		runtime.GOMAXPROCS(cfg.Runtime.WorkerThreads)
	}
	slog.Info("config loaded", "name", cfg.Name,
		"clients", cfg.Listeners.Clients.Connection.Addr(),
		"login_server", cfg.Listeners.LoginServer.Connection.Addr(),
		"server_id", cfg.ServerID)

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	charRepo := db.NewCharacterRepository(database.Pool())

	lsClient := gsclient.New(cfg, charRepo)
	gameServer := gameserver.NewServer(cfg, charRepo, lsClient)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting login server link")
		if err := lsClient.Run(gctx); err != nil {
			return fmt.Errorf("login server link: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("starting game client listener", "address", cfg.Listeners.Clients.Connection.Addr())
		if err := gameServer.Run(gctx); err != nil {
			return fmt.Errorf("game client listener: %w", err)
		}
		return nil
	})

	return g.Wait()
}
