package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// getWorkflowSchema returns the statically derived output schema of every
// node in the workflow. Dynamic nodes map to null.
// GET /api/workflows/{id}/schema
func (s *Server) getWorkflowSchema(w http.ResponseWriter, r *http.Request) {
	schemas, err := s.engine.WorkflowSchema(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schemas": schemas})
}

// getNodeSchema returns one node's statically derived output schema.
// GET /api/workflows/{id}/nodes/{nodeID}/schema
func (s *Server) getNodeSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.engine.NodeOutputSchema(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "nodeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id": chi.URLParam(r, "nodeID"),
		"schema":  schema,
		"dynamic": schema == nil,
	})
}
