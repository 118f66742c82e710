// Package server assembles the HTTP API from the domain handlers.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"librarydesk/internal/catalog"
	"librarydesk/internal/circulation"
	"librarydesk/internal/httpx"
	"librarydesk/internal/membership"
	"librarydesk/pkg/eventstore"
)

const (
	defaultFeedLimit = 100
	maxFeedLimit     = 500
)

// Deps are the services the router dispatches to.
type Deps struct {
	DB          *sqlx.DB
	Events      *eventstore.EventStore
	Catalog     catalog.Service
	Students    membership.Service
	Circulation circulation.Service
	Log         *slog.Logger
}

// NewRouter returns the root handler of the API.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestLogger(d.Log))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})

	r.Get("/health", health(d.DB))

	r.Route("/api", func(r chi.Router) {
		r.Route("/books", catalog.NewHandler(d.Catalog, d.Log).Routes)
		r.Route("/students", membership.NewHandler(d.Students, d.Log).Routes)
		r.Route("/transactions", circulation.NewHandler(d.Circulation, d.Log).Routes)
		r.Get("/events", eventFeed(d.Events, d.Log))
	})

	return r
}

func health(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unavailable",
				"database": err.Error(),
			})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
	}
}

// eventFeed pages through the audit ledger in append order. Callers pass the
// id of the last event they saw as after.
func eventFeed(es *eventstore.EventStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var after int64
		if v := q.Get("after"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "after must be a non-negative integer")
				return
			}
			after = n
		}

		limit := defaultFeedLimit
		if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
			limit = min(n, maxFeedLimit)
		}

		events, err := es.StreamEvents(r.Context(), after, limit)
		if err != nil {
			httpx.WriteInternal(w, r, log, err)
			return
		}

		next := after
		if len(events) > 0 {
			next = events[len(events)-1].ID
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"events": events,
			"next":   next,
		})
	}
}
