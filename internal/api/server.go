// Package api exposes the HTTP surface: workflow CRUD and graph editing,
// validation, execution control, connector discovery, schema introspection,
// and export file downloads.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/calder-io/flume/internal/engine"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/repository"
	"github.com/calder-io/flume/internal/scheduler"
	"github.com/calder-io/flume/internal/storage"
)

type Server struct {
	engine    *engine.Engine
	workflows repository.WorkflowRepository
	scheduler *scheduler.Scheduler
	storage   storage.Storage
}

func NewServer(eng *engine.Engine, workflows repository.WorkflowRepository) *Server {
	return &Server{engine: eng, workflows: workflows}
}

// SetScheduler wires the cron scheduler so workflow edits re-sync schedules.
func (s *Server) SetScheduler(sched *scheduler.Scheduler) {
	s.scheduler = sched
}

// SetStorage configures the export file storage backend.
func (s *Server) SetStorage(store storage.Storage) {
	s.storage = store
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}))
	r.Route("/api", func(r chi.Router) {
		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", s.createWorkflow)
			r.Get("/", s.listWorkflows)
			r.Get("/{id}", s.getWorkflow)
			r.Put("/{id}", s.updateWorkflow)
			r.Delete("/{id}", s.deleteWorkflow)
			r.Get("/{id}/graph", s.getGraph)
			r.Put("/{id}/graph", s.saveGraph)
			r.Post("/{id}/validate", s.validateWorkflow)
			r.Post("/{id}/execute", s.executeWorkflow)
			r.Get("/{id}/executions", s.listExecutions)
			r.Get("/{id}/schema", s.getWorkflowSchema)
			r.Get("/{id}/nodes/{nodeID}/schema", s.getNodeSchema)
		})
		r.Route("/executions", func(r chi.Router) {
			r.Get("/{id}", s.getExecution)
			r.Post("/{id}/cancel", s.cancelExecution)
		})
		r.Get("/connectors", s.listConnectors)
		r.Get("/files", s.listFiles)
		r.Get("/files/{id}", s.downloadFile)
		r.Get("/stats", s.getStats)
	})

	return r
}

// getStats returns current run concurrency counters.
// GET /api/stats
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"concurrency": s.engine.Limiter().Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var vErr *flume.ValidationError
	var stateErr *flume.InvalidStateError
	switch {
	case errors.Is(err, flume.ErrNotFound) || errors.Is(err, repository.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &vErr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &stateErr):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// parsePagination extracts limit and offset query parameters with defaults.
func parsePagination(r *http.Request) (int, int) {
	limit := 20
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
