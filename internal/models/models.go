// Package models serves the static model catalog for GET /v1/models. The
// catalog is read from a JSON file once and cached; when the file is absent
// or unreadable a built-in fallback list is used, so the endpoint always
// answers.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/chatrelay/chatrelay/pkg/api"
)

var (
	ErrCatalogTooLarge = errors.New("model catalog file too large")
	ErrNotRegularFile  = errors.New("model catalog is not a regular file")
)

const maxCatalogSize = 1 << 20 // 1MB

// Store caches the model catalog loaded from disk.
type Store struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	loaded bool
	list   api.ModelList
}

func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// List returns the catalog, loading it on first call.
func (s *Store) List() api.ModelList {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.list
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.list
	}

	list, err := loadCatalog(s.path)
	if err != nil {
		s.logger.Warn("falling back to built-in model catalog", "path", s.path, "error", err)
		list = defaultCatalog()
	}
	s.list = list
	s.loaded = true
	return s.list
}

func loadCatalog(path string) (api.ModelList, error) {
	info, err := os.Stat(path)
	if err != nil {
		return api.ModelList{}, err
	}
	if !info.Mode().IsRegular() {
		return api.ModelList{}, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}
	if info.Size() > maxCatalogSize {
		return api.ModelList{}, fmt.Errorf("%w: %d bytes", ErrCatalogTooLarge, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return api.ModelList{}, err
	}

	var list api.ModelList
	if err := json.Unmarshal(data, &list); err != nil {
		return api.ModelList{}, fmt.Errorf("parse model catalog: %w", err)
	}
	if list.Object == "" {
		list.Object = "list"
	}
	if len(list.Data) == 0 {
		return api.ModelList{}, errors.New("model catalog has no entries")
	}
	return list, nil
}

// defaultCatalog mirrors the bundled fallback file so a bare checkout still
// serves something sensible.
func defaultCatalog() api.ModelList {
	created := int64(1715367049)
	ids := []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "o3", "o4-mini", "gpt-5.2"}
	list := api.ModelList{Object: "list"}
	for _, id := range ids {
		list.Data = append(list.Data, api.Model{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "openai",
		})
	}
	return list
}
