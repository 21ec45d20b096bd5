package statedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// StateDB wraps a SQLite database holding projects and their sessions.
// Multiple OS processes can safely read/write via WAL mode + busy timeout.
type StateDB struct {
	db  *sql.DB
}

// ProjectRow represents a project row in the database.
type ProjectRow struct {
	ID         string
	Name       string
	Path       string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// SessionRow represents a tracked tmux session.
type SessionRow struct {
	Name           string
	ProjectID      string
	ProjectPath    string
	CreatedAt      time.Time
	Command        string
	LastAttachedAt time.Time
	Kind           string
}

// Open creates or opens a SQLite database at dbPath with WAL mode and busy timeout.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: busy timeout: %w", err)
	}

	// sessions.project_id cascades on project delete
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: foreign keys: %w", err)
	}

	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	return &StateDB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced use cases (e.g., testing).
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// Migrate creates tables if they don't exist and runs any pending migrations.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			path         TEXT NOT NULL UNIQUE,
			created_at   INTEGER NOT NULL,
			last_used_at INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("statedb: create projects: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			name             TEXT PRIMARY KEY,
			project_id       TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			project_path     TEXT NOT NULL,
			created_at       INTEGER NOT NULL,
			command          TEXT NOT NULL DEFAULT '',
			last_attached_at INTEGER NOT NULL DEFAULT 0,
			kind             TEXT NOT NULL DEFAULT 'linked'
		)
	`); err != nil {
		return fmt.Errorf("statedb: create sessions: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id)
	`); err != nil {
		return fmt.Errorf("statedb: create sessions index: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// IsEmpty returns true if there are no projects.
func (s *StateDB) IsEmpty() (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM projects").Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// --- Snapshot save/load ---

// SaveAll replaces the stored projects and sessions with the given rows in a
// single transaction. Rows absent from the lists are deleted.
func (s *StateDB) SaveAll(projects []*ProjectRow, sessions []*SessionRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sessionNames := make([]string, len(sessions))
	for i, r := range sessions {
		sessionNames[i] = r.Name
	}
	if err := deleteMissing(tx, "sessions", "name", sessionNames); err != nil {
		return err
	}
	projectIDs := make([]string, len(projects))
	for i, p := range projects {
		projectIDs[i] = p.ID
	}
	if err := deleteMissing(tx, "projects", "id", projectIDs); err != nil {
		return err
	}

	// Upsert rather than REPLACE: a REPLACE deletes the row first and would
	// cascade into sessions.
	projStmt, err := tx.Prepare(`
		INSERT INTO projects (id, name, path, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			created_at = excluded.created_at,
			last_used_at = excluded.last_used_at
	`)
	if err != nil {
		return fmt.Errorf("statedb: prepare projects: %w", err)
	}
	defer projStmt.Close()
	for _, p := range projects {
		if _, err := projStmt.Exec(p.ID, p.Name, p.Path, toUnix(p.CreatedAt), toUnix(p.LastUsedAt)); err != nil {
			return fmt.Errorf("statedb: save project %s: %w", p.ID, err)
		}
	}

	sessStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO sessions (
			name, project_id, project_path, created_at,
			command, last_attached_at, kind
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("statedb: prepare sessions: %w", err)
	}
	defer sessStmt.Close()
	for _, r := range sessions {
		if _, err := sessStmt.Exec(
			r.Name, r.ProjectID, r.ProjectPath, toUnix(r.CreatedAt),
			r.Command, toUnix(r.LastAttachedAt), r.Kind,
		); err != nil {
			return fmt.Errorf("statedb: save session %s: %w", r.Name, err)
		}
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('last_modified', ?)",
		fmt.Sprintf("%d", time.Now().UnixNano()),
	); err != nil {
		return fmt.Errorf("statedb: touch: %w", err)
	}

	return tx.Commit()
}

func deleteMissing(tx *sql.Tx, table, column string, keep []string) error {
	if len(keep) == 0 {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("statedb: clear %s: %w", table, err)
		}
		return nil
	}
	placeholders := make([]string, len(keep))
	args := make([]any, len(keep))
	for i, k := range keep {
		placeholders[i] = "?"
		args[i] = k
	}
	query := "DELETE FROM " + table + " WHERE " + column + " NOT IN (" + strings.Join(placeholders, ",") + ")"
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("statedb: prune %s: %w", table, err)
	}
	return nil
}

// LoadProjects returns all projects ordered by name.
func (s *StateDB) LoadProjects() ([]*ProjectRow, error) {
	rows, err := s.db.Query(`
		SELECT id, name, path, created_at, last_used_at
		FROM projects ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*ProjectRow
	for rows.Next() {
		p := &ProjectRow{}
		var created, lastUsed int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &created, &lastUsed); err != nil {
			return nil, err
		}
		p.CreatedAt = fromUnix(created)
		p.LastUsedAt = fromUnix(lastUsed)
		result = append(result, p)
	}
	return result, rows.Err()
}

// LoadSessions returns all sessions ordered by creation time.
func (s *StateDB) LoadSessions() ([]*SessionRow, error) {
	rows, err := s.db.Query(`
		SELECT name, project_id, project_path, created_at,
			command, last_attached_at, kind
		FROM sessions ORDER BY created_at, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*SessionRow
	for rows.Next() {
		r := &SessionRow{}
		var created, attached int64
		if err := rows.Scan(
			&r.Name, &r.ProjectID, &r.ProjectPath, &created,
			&r.Command, &attached, &r.Kind,
		); err != nil {
			return nil, err
		}
		r.CreatedAt = fromUnix(created)
		r.LastAttachedAt = fromUnix(attached)
		result = append(result, r)
	}
	return result, rows.Err()
}

// DeleteProject removes a project; its sessions go with it.
func (s *StateDB) DeleteProject(id string) error {
	_, err := s.db.Exec("DELETE FROM projects WHERE id = ?", id)
	return err
}

// DeleteSession removes a single session row.
func (s *StateDB) DeleteSession(name string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE name = ?", name)
	return err
}

// TouchSessionAttached records an attach without rewriting the snapshot.
func (s *StateDB) TouchSessionAttached(name string, at time.Time) error {
	_, err := s.db.Exec("UPDATE sessions SET last_attached_at = ? WHERE name = ?", toUnix(at), name)
	return err
}

// toUnix maps the zero time to 0 so unset columns stay unset.
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (s *StateDB) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Touch updates a metadata timestamp that other processes can poll to detect changes.
func (s *StateDB) Touch() error {
	return s.SetMeta("last_modified", fmt.Sprintf("%d", time.Now().UnixNano()))
}

// LastModified returns the last_modified timestamp from metadata.
func (s *StateDB) LastModified() (int64, error) {
	val, err := s.GetMeta("last_modified")
	if err != nil || val == "" {
		return 0, err
	}
	var ts int64
	_, err = fmt.Sscanf(val, "%d", &ts)
	return ts, err
}
