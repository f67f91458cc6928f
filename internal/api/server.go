// Package api exposes the causal store over a local HTTP API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/CanopyHQ/xylem/internal/causal"
)

// Server is the xylem HTTP API server.
type Server struct {
	store   *causal.Store
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server around an open store.
func New(store *causal.Store, version string) *Server {
	s := &Server{
		store:   store,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/relationships", s.handleRecord)
		r.Get("/relationships", s.handleQuery)
		r.Get("/relationships/{id}", s.handleGet)
		r.Delete("/relationships/{id}", s.handleDelete)
		r.Post("/relationships/{id}/revise", s.handleRevise)

		r.Get("/chains", s.handleChains)
		r.Get("/patterns", s.handlePatterns)
		r.Get("/nodes/related", s.handleRelatedNodes)
		r.Get("/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.store.GetDB().Ping(); err != nil {
		dbOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
	})
}
