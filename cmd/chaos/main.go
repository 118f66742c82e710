// cmd/chaos/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"librarydesk/internal/chaos"
	"librarydesk/internal/config"
	"librarydesk/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	engine := chaos.NewEngine(chaos.WithLogger(log))
	engine.RegisterExperiments(chaos.NewTarget(db, cfg.ChaosAPIURL), chaos.DefaultSettings())

	gameDay := chaos.GameDay{
		Name:      "Weekly Chaos Game Day",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
	}

	held, err := engine.ExecuteGameDay(ctx, gameDay)
	if err != nil {
		log.Error("chaos game day failed", "err", err)
		os.Exit(1)
	}
	if !held {
		log.Error("chaos game day finished with violated hypotheses")
		os.Exit(2)
	}
	log.Info("chaos game day passed")
}
