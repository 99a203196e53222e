package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/calder-io/flume/internal/flume"
)

// LocalStorage stores files on the local filesystem, one file per id, with an
// in-memory index rebuilt from the directory on startup.
type LocalStorage struct {
	baseDir string
	mu      sync.RWMutex
	files   map[string]*FileInfo
}

func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	s := &LocalStorage{
		baseDir: baseDir,
		files:   make(map[string]*FileInfo),
	}
	if err := s.rescan(); err != nil {
		return nil, err
	}
	return s, nil
}

// rescan rebuilds the index from the files on disk. Stored names are
// "<id><ext>", so the id survives a process restart.
func (s *LocalStorage) rescan() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("scan storage dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		id := strings.TrimSuffix(name, ext)
		s.files[id] = &FileInfo{
			ID:          id,
			Filename:    name,
			ContentType: mime.TypeByExtension(ext),
			Size:        fi.Size(),
			Path:        name,
			CreatedAt:   fi.ModTime(),
		}
	}
	return nil
}

func (s *LocalStorage) Save(_ context.Context, filename string, contentType string, reader io.Reader) (*FileInfo, error) {
	id := flume.GenerateID("file")
	ext := filepath.Ext(filename)
	storedName := id + ext
	fullPath := filepath.Join(s.baseDir, storedName)

	f, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, reader)
	if err != nil {
		os.Remove(fullPath)
		return nil, fmt.Errorf("write file: %w", err)
	}

	info := &FileInfo{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		Size:        n,
		Path:        storedName,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.files[id] = info
	s.mu.Unlock()

	return info, nil
}

func (s *LocalStorage) Get(_ context.Context, id string) (*FileInfo, io.ReadCloser, error) {
	s.mu.RLock()
	info, ok := s.files[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	f, err := os.Open(filepath.Join(s.baseDir, info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	return info, f, nil
}

func (s *LocalStorage) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	info, ok := s.files[id]
	if ok {
		delete(s.files, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return os.Remove(filepath.Join(s.baseDir, info.Path))
}

func (s *LocalStorage) List(_ context.Context) ([]FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]FileInfo, 0, len(s.files))
	for _, info := range s.files {
		result = append(result, *info)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
