package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/asheshgoplani/projdeck/internal/logging"
)

var stateLog = logging.ForComponent(logging.CompState)

// StateFileName is the JSON document written inside the projdeck home.
const StateFileName = "state.json"

// Store is the persistence capability the core consumes.
type Store interface {
	// Load returns ErrNotFound when nothing has been saved yet.
	Load() (*Document, error)
	Save(doc *Document) error
}

// JSONStore persists the document as a single JSON file.
type JSONStore struct {
	Path string
}

// NewJSONStore returns a store backed by path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{Path: path}
}

// Load reads and decodes the document. Sessions pointing at unknown
// projects are dropped with a warning.
func (s *JSONStore) Load() (*Document, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, &StoreError{Op: "load", Path: s.Path, Err: err}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &StoreError{Op: "load", Path: s.Path, Err: fmt.Errorf("decode: %w", err)}
	}
	doc.EnsureMaps()
	if dropped := doc.PruneOrphans(); len(dropped) > 0 {
		stateLog.Warn("orphan_sessions_dropped", "path", s.Path, "sessions", dropped)
	}
	return &doc, nil
}

// Save writes the document atomically: temp file, fsync, rename.
func (s *JSONStore) Save(doc *Document) error {
	doc.EnsureMaps()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &StoreError{Op: "save", Path: s.Path, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := writeFileAtomic(s.Path, data); err != nil {
		return &StoreError{Op: "save", Path: s.Path, Err: err}
	}
	stateLog.Debug("state_saved", "path", s.Path, "projects", len(doc.Projects), "sessions", len(doc.Sessions))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// LoadOrNew loads the document, starting from an empty one when the store
// has nothing yet.
func LoadOrNew(s Store) (*Document, error) {
	doc, err := s.Load()
	if errors.Is(err, ErrNotFound) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}
