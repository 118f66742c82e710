// cmd/seed/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"librarydesk/internal/catalog"
	"librarydesk/internal/config"
	"librarydesk/internal/database"
	"librarydesk/internal/membership"
	"librarydesk/internal/seed"
	"librarydesk/pkg/eventstore"
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

	es := eventstore.NewEventStore(db)
	sum, err := seed.Run(ctx, catalog.NewService(es, db), membership.NewService(es, db, 0), log)
	if err != nil {
		log.Error("seeding failed", "err", err)
		os.Exit(1)
	}
	log.Info("seeded sample data",
		"books_inserted", sum.BooksInserted,
		"books_skipped", sum.BooksSkipped,
		"students_inserted", sum.StudentsInserted,
		"students_skipped", sum.StudentsSkipped,
	)
}
