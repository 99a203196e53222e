package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calder-io/flume/internal/storage"
)

// listFiles returns metadata for every stored export file.
// GET /api/files
func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		writeJSON(w, http.StatusOK, map[string]any{"files": []any{}})
		return
	}
	files, err := s.storage.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if files == nil {
		files = []storage.FileInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// downloadFile streams a stored export file.
// GET /api/files/{id}
func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		http.Error(w, "file storage not available", http.StatusNotFound)
		return
	}
	info, reader, err := s.storage.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer reader.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Filename))
	io.Copy(w, reader)
}
