package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/ocx/donationbox/internal/config"
	"github.com/ocx/donationbox/internal/kiosk"
	"github.com/ocx/donationbox/internal/pollstore"
)

func main() {
	cfg := config.Get()

	level := slog.LevelInfo
	if cfg.App.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("donationbox: starting", "app", cfg.App.Name, "port", cfg.GetPort())

	store, err := pollstore.NewPostgresStore(cfg.Database.URL)
	if err != nil {
		slog.Error("donationbox: failed to connect to database", "error", err)
		os.Exit(1)
	}

	app, err := kiosk.New(cfg, store)
	if err != nil {
		slog.Error("donationbox: failed to build app", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		slog.Error("donationbox: exited with error", "error", err)
		os.Exit(1)
	}

	slog.Info("donationbox: stopped")
}
