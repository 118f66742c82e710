// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"librarydesk/internal/catalog"
	"librarydesk/internal/circulation"
	"librarydesk/internal/config"
	"librarydesk/internal/database"
	"librarydesk/internal/membership"
	"librarydesk/internal/server"
	"librarydesk/internal/telemetry"
	"librarydesk/pkg/eventstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api server stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Error("tracing shutdown failed", "err", err)
		}
	}()

	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	es := eventstore.NewEventStore(db)
	circ, err := circulation.NewService(es, db,
		circulation.Policy{LoanPeriodDays: cfg.LoanPeriodDays, DailyFine: cfg.FinePerDay},
		circulation.WithLogger(log),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: server.NewRouter(server.Deps{
			DB:          db,
			Events:      es,
			Catalog:     catalog.NewService(es, db),
			Students:    membership.NewService(es, db, cfg.RegistrationsPerMin),
			Circulation: circ,
			Log:         log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("librarydesk API listening",
			"port", cfg.Port,
			"driver", cfg.DatabaseDriver,
			"loan_period_days", cfg.LoanPeriodDays,
			"fine_per_day", cfg.FinePerDay.String(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
