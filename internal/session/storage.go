package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/asheshgoplani/projdeck/internal/logging"
	"github.com/asheshgoplani/projdeck/internal/state"
	"github.com/asheshgoplani/projdeck/internal/statedb"
)

var storageLog = logging.ForComponent(logging.CompStorage)

// Storage is the configured persistence backend for the state document.
type Storage struct {
	store   state.Store
	db      *statedb.StateDB // nil for the JSON backend
	path    string
	backend string
}

// NewStorageWithConfig opens the backend named in [storage].
func NewStorageWithConfig(cfg *UserConfig) (*Storage, error) {
	dir, err := GetProjdeckDir()
	if err != nil {
		return nil, err
	}
	backend := cfg.Storage.Backend
	if backend == "" {
		backend = BackendJSON
	}
	path := expandTilde(cfg.Storage.Path)
	if path == "" {
		switch backend {
		case BackendSQLite:
			path = filepath.Join(dir, StateDBFileName)
		default:
			path = filepath.Join(dir, state.StateFileName)
		}
	}
	return NewStorageAt(backend, path)
}

// NewStorageAt opens backend at path. For sqlite, a state.json next to an
// empty database is imported once.
func NewStorageAt(backend, path string) (*Storage, error) {
	switch backend {
	case BackendJSON, "":
		return &Storage{store: state.NewJSONStore(path), path: path, backend: BackendJSON}, nil
	case BackendSQLite:
		db, err := statedb.Open(path)
		if err != nil {
			return nil, &state.StoreError{Op: "open", Path: path, Err: err}
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, &state.StoreError{Op: "migrate", Path: path, Err: err}
		}
		s := &Storage{store: &sqliteStore{db: db, path: path}, db: db, path: path, backend: BackendSQLite}
		s.importJSON(filepath.Join(filepath.Dir(path), state.StateFileName))
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}

// importJSON migrates a legacy JSON document into an empty database.
func (s *Storage) importJSON(jsonPath string) {
	if _, err := os.Stat(jsonPath); err != nil {
		return
	}
	if done, _ := s.db.GetMeta(statedb.MigratedMetaKey); done != "" {
		return
	}
	empty, err := s.db.IsEmpty()
	if err != nil || !empty {
		return
	}
	projects, sessions, err := statedb.MigrateFromJSON(jsonPath, s.db)
	if err != nil {
		storageLog.Warn("json_migration_failed", slog.String("path", jsonPath), slog.String("error", err.Error()))
		return
	}
	storageLog.Info("json_migrated", slog.String("path", jsonPath), slog.Int("projects", projects), slog.Int("sessions", sessions))
}

// Load implements state.Store.
func (s *Storage) Load() (*state.Document, error) { return s.store.Load() }

// Save implements state.Store.
func (s *Storage) Save(doc *state.Document) error { return s.store.Save(doc) }

// LoadDocument loads the document, or an empty one on first run.
func (s *Storage) LoadDocument() (*state.Document, error) { return state.LoadOrNew(s.store) }

// Path returns the state file or database path.
func (s *Storage) Path() string { return s.path }

// Backend returns "json" or "sqlite".
func (s *Storage) Backend() string { return s.backend }

// Close releases the database, if any.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// sqliteStore adapts statedb rows to the state document.
type sqliteStore struct {
	db   *statedb.StateDB
	path string
}

func (s *sqliteStore) Load() (*state.Document, error) {
	empty, err := s.db.IsEmpty()
	if err != nil {
		return nil, &state.StoreError{Op: "load", Path: s.path, Err: err}
	}
	if empty {
		if ts, _ := s.db.LastModified(); ts == 0 {
			return nil, state.ErrNotFound
		}
	}
	projects, err := s.db.LoadProjects()
	if err != nil {
		return nil, &state.StoreError{Op: "load", Path: s.path, Err: err}
	}
	sessions, err := s.db.LoadSessions()
	if err != nil {
		return nil, &state.StoreError{Op: "load", Path: s.path, Err: err}
	}
	return documentFromRows(projects, sessions), nil
}

func (s *sqliteStore) Save(doc *state.Document) error {
	projects, sessions := rowsFromDocument(doc)
	if err := s.db.SaveAll(projects, sessions); err != nil {
		return &state.StoreError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

func documentFromRows(projects []*statedb.ProjectRow, sessions []*statedb.SessionRow) *state.Document {
	doc := state.NewDocument()
	for _, p := range projects {
		doc.Projects[p.ID] = &state.Project{
			ID:         p.ID,
			Name:       p.Name,
			Path:       p.Path,
			CreatedAt:  p.CreatedAt,
			LastUsedAt: p.LastUsedAt,
		}
	}
	for _, r := range sessions {
		doc.Sessions[r.Name] = &state.SessionRecord{
			Name:           r.Name,
			ProjectID:      r.ProjectID,
			ProjectPath:    r.ProjectPath,
			CreatedAt:      r.CreatedAt,
			Command:        r.Command,
			LastAttachedAt: r.LastAttachedAt,
			Kind:           state.SessionKind(r.Kind),
		}
	}
	return doc
}

func rowsFromDocument(doc *state.Document) ([]*statedb.ProjectRow, []*statedb.SessionRow) {
	projects := make([]*statedb.ProjectRow, 0, len(doc.Projects))
	for _, p := range doc.SortedProjects() {
		projects = append(projects, &statedb.ProjectRow{
			ID:         p.ID,
			Name:       p.Name,
			Path:       p.Path,
			CreatedAt:  p.CreatedAt,
			LastUsedAt: p.LastUsedAt,
		})
	}
	sessions := make([]*statedb.SessionRow, 0, len(doc.Sessions))
	for _, p := range doc.SortedProjects() {
		for _, r := range doc.SessionsForProject(p.ID) {
			sessions = append(sessions, &statedb.SessionRow{
				Name:           r.Name,
				ProjectID:      r.ProjectID,
				ProjectPath:    r.ProjectPath,
				CreatedAt:      r.CreatedAt,
				Command:        r.Command,
				LastAttachedAt: r.LastAttachedAt,
				Kind:           string(r.Kind),
			})
		}
	}
	return projects, sessions
}

// IsNotFound reports whether err means nothing has been saved yet.
func IsNotFound(err error) bool {
	return errors.Is(err, state.ErrNotFound)
}
