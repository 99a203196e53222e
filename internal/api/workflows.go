package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/calder-io/flume/internal/flume"
)

// createWorkflow stores a new workflow definition (without a graph).
// POST /api/workflows
func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf flume.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if wf.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	now := time.Now()
	wf.ID = flume.GenerateID("wf")
	wf.CreatedAt = now
	wf.UpdatedAt = now
	if wf.Timeout <= 0 {
		wf.Timeout = 3600
	}
	if wf.RetryDelay <= 0 {
		wf.RetryDelay = 1
	}

	if err := s.workflows.Create(r.Context(), &wf); err != nil {
		writeError(w, err)
		return
	}
	s.refreshScheduler(r)
	writeJSON(w, http.StatusCreated, &wf)
}

// listWorkflows returns all stored workflows.
// GET /api/workflows
func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.workflows.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if workflows == nil {
		workflows = []*flume.Workflow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows})
}

// getWorkflow returns one workflow definition.
// GET /api/workflows/{id}
func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflows.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// updateWorkflow updates the workflow definition. The graph is managed
// separately through the graph endpoints.
// PUT /api/workflows/{id}
func (s *Server) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.workflows.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var wf flume.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	wf.ID = id
	wf.CreatedAt = existing.CreatedAt
	wf.UpdatedAt = time.Now()
	if wf.Timeout <= 0 {
		wf.Timeout = existing.Timeout
	}
	if wf.RetryDelay <= 0 {
		wf.RetryDelay = existing.RetryDelay
	}

	if err := s.workflows.Update(r.Context(), &wf); err != nil {
		writeError(w, err)
		return
	}
	s.refreshScheduler(r)
	writeJSON(w, http.StatusOK, &wf)
}

// deleteWorkflow removes the workflow and its graph.
// DELETE /api/workflows/{id}
func (s *Server) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.workflows.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	s.refreshScheduler(r)
	w.WriteHeader(http.StatusNoContent)
}

// getGraph returns the workflow's current nodes and connections.
// GET /api/workflows/{id}/graph
func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	snap, err := s.workflows.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes":       snap.Nodes,
		"connections": snap.Connections,
	})
}

// saveGraph replaces the workflow's node and connection sets. The graph is
// validated and the findings are returned, but an invalid draft still saves;
// validation blocks execution, not editing.
// PUT /api/workflows/{id}/graph
func (s *Server) saveGraph(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Nodes       []*flume.WorkflowNode       `json:"nodes"`
		Connections []*flume.WorkflowConnection `json:"connections"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	for _, n := range body.Nodes {
		n.WorkflowID = id
		if n.ID == "" {
			n.ID = flume.GenerateID("node")
		}
	}
	for _, c := range body.Connections {
		c.WorkflowID = id
		if c.ID == "" {
			c.ID = flume.GenerateID("conn")
		}
	}

	if err := s.workflows.ReplaceGraph(r.Context(), id, body.Nodes, body.Connections); err != nil {
		writeError(w, err)
		return
	}
	s.engine.InvalidateSchemas(id)

	result, err := s.engine.ValidateWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"saved":      true,
		"validation": result,
	})
}

// validateWorkflow runs the static check against the current graph.
// POST /api/workflows/{id}/validate
func (s *Server) validateWorkflow(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.ValidateWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) refreshScheduler(r *http.Request) {
	if s.scheduler != nil {
		s.scheduler.Refresh(r.Context())
	}
}
