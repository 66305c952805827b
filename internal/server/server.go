// Package server exposes the memory layer over HTTP. It is a thin
// boundary: validation and semantics live in the engine, retention, and
// store packages.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/memlayer/memlayer/internal/engine"
	"github.com/memlayer/memlayer/internal/memory"
	"github.com/memlayer/memlayer/internal/retention"
	"github.com/memlayer/memlayer/internal/store"
)

// Server is the memlayer HTTP API server.
type Server struct {
	store    store.Store
	engine   *engine.Engine
	executor *retention.Executor
	router   chi.Router
	version  string
	started  time.Time
	log      *slog.Logger
}

// New creates a Server over the given store and engine.
func New(st store.Store, eng *engine.Engine, version string) *Server {
	s := &Server{
		store:    st,
		engine:   eng,
		executor: retention.NewExecutor(st),
		version:  version,
		started:  time.Now(),
		log:      slog.Default().With("component", "server"),
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

		r.Post("/memories", s.handleIngest)
		r.Post("/memories/batch", s.handleIngestBatch)
		r.Get("/memories/{memoryID}", s.handleGetMemory)

		r.Post("/search", s.handleSearch)
		r.Post("/retention/run", s.handleRetentionRun)
		r.Post("/scoring/run", s.handleScoringRun)

		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Get("/policy", s.handleGetPolicy)
			r.Put("/policy", s.handlePutPolicy)
			r.Delete("/policy", s.handleDeletePolicy)
			r.Get("/audit", s.handleAuditTrail)
			r.Get("/stats", s.handleStats)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	dbOK := true
	if err := s.store.Ping(ctx); err != nil {
		status = "degraded"
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeDomainError maps core error taxonomy onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case memory.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, memory.ErrRetentionBusy):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
