package api

import (
	"net/http"
)

// listConnectors returns every registered connector with its role and config
// schema, for the workflow editor's node palette.
// GET /api/connectors
func (s *Server) listConnectors(w http.ResponseWriter, r *http.Request) {
	type connectorInfo struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Kind         string `json:"kind"`
		ConfigSchema any    `json:"config_schema,omitempty"`
	}

	registry := s.engine.Registry()
	result := []connectorInfo{}
	for _, id := range registry.IDs() {
		c := registry.Get(id)
		if c == nil {
			continue
		}
		result = append(result, connectorInfo{
			ID:           c.ID(),
			Name:         c.Name(),
			Kind:         string(c.Kind()),
			ConfigSchema: c.ConfigSchema(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"connectors": result})
}
