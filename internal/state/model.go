// Package state holds the persisted model: projects, the tmux sessions that
// belong to them, and the document that ties both together.
package state

import (
	"sort"
	"time"
)

// DocumentVersion is the current on-disk document version.
const DocumentVersion = 1

// Project is a tracked working directory.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"` // canonical: absolute, symlinks resolved
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at,omitzero"`
}

// SessionKind tells whether projdeck started the tmux session or adopted it.
type SessionKind string

const (
	// KindManaged sessions were created by projdeck with a known command.
	KindManaged SessionKind = "managed"
	// KindLinked sessions existed already and were associated with a project.
	KindLinked SessionKind = "linked"
)

// SessionRecord associates a tmux session (by name) with a project.
type SessionRecord struct {
	Name           string      `json:"name"`
	ProjectID      string      `json:"project_id"`
	ProjectPath    string      `json:"project_path"`
	CreatedAt      time.Time   `json:"created_at"`
	Command        string      `json:"command,omitempty"`
	LastAttachedAt time.Time   `json:"last_attached_at,omitzero"`
	Kind           SessionKind `json:"kind"`
}

// Document is the single persisted record of user intent. It says nothing
// about whether a named tmux session is still alive.
type Document struct {
	Version  int                       `json:"version"`
	Projects map[string]*Project       `json:"projects"`
	Sessions map[string]*SessionRecord `json:"sessions"`
}

// NewDocument returns an empty document at the current version.
func NewDocument() *Document {
	return &Document{
		Version:  DocumentVersion,
		Projects: make(map[string]*Project),
		Sessions: make(map[string]*SessionRecord),
	}
}

// EnsureMaps fills the nil maps of a sparse or zero document.
func (d *Document) EnsureMaps() {
	if d.Projects == nil {
		d.Projects = make(map[string]*Project)
	}
	if d.Sessions == nil {
		d.Sessions = make(map[string]*SessionRecord)
	}
	if d.Version == 0 {
		d.Version = DocumentVersion
	}
}

// PruneOrphans drops sessions whose project no longer exists and returns
// their names, sorted.
func (d *Document) PruneOrphans() []string {
	d.EnsureMaps()
	var dropped []string
	for name, rec := range d.Sessions {
		if _, ok := d.Projects[rec.ProjectID]; !ok {
			delete(d.Sessions, name)
			dropped = append(dropped, name)
		}
	}
	sort.Strings(dropped)
	return dropped
}

// SessionsForProject returns the project's sessions ordered by creation time.
func (d *Document) SessionsForProject(projectID string) []*SessionRecord {
	var out []*SessionRecord
	for _, rec := range d.Sessions {
		if rec.ProjectID == projectID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SortedProjects returns projects most recently used first, then by name.
func (d *Document) SortedProjects() []*Project {
	out := make([]*Project, 0, len(d.Projects))
	for _, p := range d.Projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := out[i].lastTouched(), out[j].lastTouched()
		if !li.Equal(lj) {
			return li.After(lj)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (p *Project) lastTouched() time.Time {
	if !p.LastUsedAt.IsZero() {
		return p.LastUsedAt
	}
	return p.CreatedAt
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		Version:  d.Version,
		Projects: make(map[string]*Project, len(d.Projects)),
		Sessions: make(map[string]*SessionRecord, len(d.Sessions)),
	}
	for id, p := range d.Projects {
		cp := *p
		out.Projects[id] = &cp
	}
	for name, s := range d.Sessions {
		cs := *s
		out.Sessions[name] = &cs
	}
	return out
}
