package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calder-io/flume/internal/flume"
)

// executeWorkflow starts a run and returns the execution record immediately;
// the run proceeds in the background. An invalid graph answers 422 with the
// failed execution record in the body.
// POST /api/workflows/{id}/execute
func (s *Server) executeWorkflow(w http.ResponseWriter, r *http.Request) {
	ex, err := s.engine.StartExecution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		var vErr *flume.ValidationError
		if errors.As(err, &vErr) && ex != nil {
			writeJSON(w, http.StatusUnprocessableEntity, ex)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ex)
}

// getExecution returns the execution record, with live logs while running.
// GET /api/executions/{id}
func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	ex, err := s.engine.GetExecution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// cancelExecution requests cancellation of a running execution.
// POST /api/executions/{id}/cancel
func (s *Server) cancelExecution(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CancelExecution(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

// listExecutions returns the run history for a workflow, newest first.
// GET /api/workflows/{id}/executions?limit=20&offset=0
func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	executions, total, err := s.engine.ListExecutions(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if executions == nil {
		executions = []*flume.WorkflowExecution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": executions,
		"total":      total,
	})
}
