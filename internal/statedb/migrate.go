package statedb

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// MigratedMetaKey records that a JSON document has been imported.
const MigratedMetaKey = "migrated_from_json"

// jsonDocument mirrors state.Document for migration (avoids an import cycle).
type jsonDocument struct {
	Version  int                     `json:"version"`
	Projects map[string]*jsonProject `json:"projects"`
	Sessions map[string]*jsonSession `json:"sessions"`
}

type jsonProject struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

type jsonSession struct {
	Name           string    `json:"name"`
	ProjectID      string    `json:"project_id"`
	ProjectPath    string    `json:"project_path"`
	CreatedAt      time.Time `json:"created_at"`
	Command        string    `json:"command"`
	LastAttachedAt time.Time `json:"last_attached_at"`
	Kind           string    `json:"kind"`
}

// MigrateFromJSON reads a state.json document and writes it into db.
// Sessions whose project is missing are skipped. Returns the number of
// projects and sessions migrated.
func MigrateFromJSON(jsonPath string, db *StateDB) (int, int, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, 0, fmt.Errorf("read json: %w", err)
	}

	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, 0, fmt.Errorf("parse json: %w", err)
	}

	projects := make([]*ProjectRow, 0, len(doc.Projects))
	known := make(map[string]bool, len(doc.Projects))
	for key, p := range doc.Projects {
		id := p.ID
		if id == "" {
			id = key
		}
		known[id] = true
		projects = append(projects, &ProjectRow{
			ID:         id,
			Name:       p.Name,
			Path:       p.Path,
			CreatedAt:  p.CreatedAt,
			LastUsedAt: p.LastUsedAt,
		})
	}

	sessions := make([]*SessionRow, 0, len(doc.Sessions))
	for key, r := range doc.Sessions {
		if !known[r.ProjectID] {
			continue
		}
		name := r.Name
		if name == "" {
			name = key
		}
		kind := r.Kind
		if kind == "" {
			kind = "linked"
		}
		sessions = append(sessions, &SessionRow{
			Name:           name,
			ProjectID:      r.ProjectID,
			ProjectPath:    r.ProjectPath,
			CreatedAt:      r.CreatedAt,
			Command:        r.Command,
			LastAttachedAt: r.LastAttachedAt,
			Kind:           kind,
		})
	}

	if err := db.SaveAll(projects, sessions); err != nil {
		return 0, 0, fmt.Errorf("save rows: %w", err)
	}
	if err := db.SetMeta(MigratedMetaKey, jsonPath); err != nil {
		return 0, 0, fmt.Errorf("mark migrated: %w", err)
	}

	return len(projects), len(sessions), nil
}
