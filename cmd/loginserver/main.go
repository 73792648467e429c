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
	"github.com/udisondev/la2go/internal/gslistener"
	"github.com/udisondev/la2go/internal/login"
)

const ConfigPath = "config/loginserver.yaml"

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
	// Configure slog
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	slog.Info("la2go login server starting")

	// Load config
	cfgPath := ConfigPath
	if p := os.Getenv("LA2GO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadLoginServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Runtime.WorkerThreads > 0 {
		runtime.GOMAXPROCS(cfg.Runtime.WorkerThreads)
	}
	slog.Info("config loaded", "name", cfg.Name,
		"clients", cfg.Listeners.Clients.Connection.Addr(),
		"game_servers", cfg.Listeners.GameServers.Connection.Addr(),
		"auto_registration", cfg.AutoRegistration)

	// Connect to database
	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	// Run migrations
	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// GameServer registry, shared by the GS listener and the login server's
	// server-list/char-count lookups.
	gsTable := gameserver.NewGameServerTable(database)
	if err := gsTable.LoadFromDB(ctx); err != nil {
		return fmt.Errorf("loading game servers: %w", err)
	}

	sessionManager := login.NewSessionManager()

	gsServer, err := gslistener.NewServer(cfg, database, gsTable, sessionManager)
	if err != nil {
		return fmt.Errorf("creating GS listener: %w", err)
	}
	registry := gslistener.NewRegistry(gsTable, gsServer.Handler())

	loginServer, err := login.NewServer(cfg, database,
		login.WithSessionManager(sessionManager),
		login.WithRegistry(registry),
	)
	if err != nil {
		return fmt.Errorf("creating login server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gsServer.Run(gctx); err != nil {
			return fmt.Errorf("GS listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := loginServer.Run(gctx); err != nil {
			return fmt.Errorf("login server: %w", err)
		}
		return nil
	})
	return g.Wait()
}
