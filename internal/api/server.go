package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eargollo/hash256/internal/api/handlers"
	"github.com/eargollo/hash256/internal/config"
	"github.com/eargollo/hash256/internal/scheduler"
	"github.com/eargollo/hash256/internal/session"
)

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr string
	srv  *http.Server
}

// New wires all routes and returns a Server ready to Run.
// historyDB and sched may be nil when run history is disabled.
func New(
	addr string,
	cfg *config.Config,
	loop *session.Loop,
	historyDB *sql.DB,
	sched *scheduler.Scheduler,
	version string,
) *Server {
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           Router(cfg, loop, historyDB, sched, version),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Router builds the chi router. It is exported for tests.
func Router(
	cfg *config.Config,
	loop *session.Loop,
	historyDB *sql.DB,
	sched *scheduler.Scheduler,
	version string,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	statusH := &handlers.StatusHandler{Session: loop, Sched: sched, Version: version}
	hashH := &handlers.HashHandler{Session: loop}
	historyH := &handlers.HistoryHandler{DB: historyDB}
	configH := &handlers.ConfigHandler{Cfg: cfg}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusH.ServeHTTP)

		r.Post("/hash", hashH.Create)
		r.Delete("/hash/current", hashH.Cancel)
		r.Put("/path", hashH.SetPath)
		r.Post("/clear", hashH.Clear)
		r.Patch("/preferences", hashH.Preferences)

		r.Get("/config", configH.Get)
		r.Get("/history", historyH.List)
	})
	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
