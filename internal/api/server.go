// Package api serves the control plane over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/coordinator"
	"github.com/dokzlo13/climated/internal/resolver"
	"github.com/dokzlo13/climated/internal/store"
)

// Server is the control API.
type Server struct {
	router   chi.Router
	store    *store.Store
	coord    *coordinator.Coordinator
	calendar resolver.Calendar
	clock    clock.Clock

	addr       string
	httpServer *http.Server
}

// New creates a server with all routes registered. A nil clock means the wall clock.
func New(host string, port int, st *store.Store, coord *coordinator.Coordinator, cal resolver.Calendar, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.New()
	}
	s := &Server{
		router:   chi.NewRouter(),
		store:    st,
		coord:    coord,
		calendar: cal,
		clock:    clk,
		addr:     fmt.Sprintf("%s:%d", host, port),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/schedules/{target}", func(r chi.Router) {
			r.Get("/", s.handleGetSchedule)
			r.Put("/", s.handleSetSchedule)
			r.Delete("/", s.handleClearSchedule)
			r.Post("/enable", s.handleEnable)
			r.Post("/disable", s.handleDisable)
			r.Post("/ignore", s.handleIgnore)
			r.Get("/upcoming", s.handleUpcoming)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Post("/", s.handleCreateGroup)
			r.Route("/{group}", func(r chi.Router) {
				r.Delete("/", s.handleDeleteGroup)
				r.Post("/rename", s.handleRenameGroup)
				r.Post("/entities", s.handleAddEntity)
				r.Delete("/entities/{entity}", s.handleRemoveEntity)
				r.Get("/profiles", s.handleGroupProfiles)
				r.Post("/profiles", s.handleCreateProfile)
				r.Put("/active-profile", s.handleSetActiveProfile)
			})
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.handleListProfiles)
			r.Delete("/{name}", s.handleDeleteProfile)
			r.Post("/{name}/rename", s.handleRenameProfile)
		})

		r.Route("/advance/{target}", func(r chi.Router) {
			r.Post("/", s.handleAdvance)
			r.Get("/", s.handleAdvanceStatus)
			r.Delete("/", s.handleCancelAdvance)
			r.Delete("/history", s.handleClearAdvanceHistory)
		})

		r.Post("/events/test/{target}", s.handleTestFire)
		r.Post("/sync", s.handleSync)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleSaveSettings)
	})
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting control API")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Control API shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
