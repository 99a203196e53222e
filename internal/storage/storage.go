// Package storage persists files produced by destination connectors (CSV and
// spreadsheet exports) and serves them back for download.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound reports a missing file id.
var ErrNotFound = errors.New("file not found")

// FileInfo describes a stored export file.
type FileInfo struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Path        string    `json:"path"` // relative to the backend's base dir
	CreatedAt   time.Time `json:"created_at"`
}

// Storage is the interface for file persistence backends.
type Storage interface {
	// Save stores a file and returns its metadata.
	Save(ctx context.Context, filename string, contentType string, reader io.Reader) (*FileInfo, error)
	// Get retrieves a file by ID.
	Get(ctx context.Context, id string) (*FileInfo, io.ReadCloser, error)
	// Delete removes a file by ID.
	Delete(ctx context.Context, id string) error
	// List returns all stored files, newest first.
	List(ctx context.Context) ([]FileInfo, error)
}
