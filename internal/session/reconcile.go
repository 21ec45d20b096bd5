package session

import (
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/asheshgoplani/projdeck/internal/logging"
	"github.com/asheshgoplani/projdeck/internal/state"
	"github.com/asheshgoplani/projdeck/internal/tmux"
)

var reconcileLog = logging.ForComponent(logging.CompReconcile)

// Provenance keys stored in each tmux session's environment.
const (
	EnvProjectPath = "PROJDECK_PROJECT_PATH"
	EnvProjectID   = "PROJDECK_PROJECT_ID"
	EnvCommand     = "PROJDECK_COMMAND"
	EnvCreatedAt   = "PROJDECK_CREATED_AT"
	EnvManaged     = "PROJDECK_MANAGED"
)

// ProvenanceKeys lists every key written by CreateManagedSession and LinkSession.
var ProvenanceKeys = []string{EnvProjectPath, EnvProjectID, EnvCommand, EnvCreatedAt, EnvManaged}

// EnvReader reads one environment variable of a live session.
type EnvReader interface {
	GetSessionEnv(name, key string) (string, bool)
}

// Lister enumerates live multiplexer sessions.
type Lister interface {
	ListLiveSessions() ([]tmux.LiveSession, error)
}

// Provenance is what a session's environment says about its origin.
type Provenance struct {
	ProjectPath string
	ProjectID   string
	Command     string
	CreatedAt   time.Time
	Managed     bool
}

// ReadProvenance reads the provenance keys of a session. ok is false
// when no project path was recorded.
func ReadProvenance(env EnvReader, name string) (Provenance, bool) {
	var p Provenance
	path, ok := env.GetSessionEnv(name, EnvProjectPath)
	path = strings.TrimSpace(path)
	if !ok || path == "" {
		return p, false
	}
	p.ProjectPath = path
	if v, ok := env.GetSessionEnv(name, EnvProjectID); ok {
		p.ProjectID = strings.TrimSpace(v)
	}
	if v, ok := env.GetSessionEnv(name, EnvCommand); ok {
		p.Command = v
	}
	if v, ok := env.GetSessionEnv(name, EnvCreatedAt); ok {
		if ts, ok := parseCreatedAt(v); ok {
			p.CreatedAt = ts
		}
	}
	if v, ok := env.GetSessionEnv(name, EnvManaged); ok {
		p.Managed = isTruthy(v)
	}
	return p, true
}

// parseCreatedAt accepts RFC3339 or unix seconds.
func parseCreatedAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, true
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0), true
	}
	return time.Time{}, false
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// ReconcileResult describes what one reconciliation pass changed.
type ReconcileResult struct {
	Removed         []string
	Added           []string
	CreatedProjects []string
}

// Changed reports whether the document needs saving.
func (r ReconcileResult) Changed() bool {
	return len(r.Removed) > 0 || len(r.Added) > 0 || len(r.CreatedProjects) > 0
}

// Reconcile makes doc agree with the live session list. Records whose
// session is gone are dropped; untracked live sessions carrying provenance
// are adopted. Running it twice against the same input changes nothing.
func Reconcile(doc *state.Document, live []tmux.LiveSession, env EnvReader, now time.Time) ReconcileResult {
	var res ReconcileResult
	doc.EnsureMaps()

	liveNames := make(map[string]bool, len(live))
	for _, s := range live {
		liveNames[s.Name] = true
	}

	for name := range doc.Sessions {
		if !liveNames[name] {
			delete(doc.Sessions, name)
			res.Removed = append(res.Removed, name)
		}
	}
	slices.Sort(res.Removed)

	for _, s := range live {
		if _, tracked := doc.Sessions[s.Name]; tracked {
			continue
		}
		prov, ok := ReadProvenance(env, s.Name)
		if !ok {
			continue
		}
		project, created := adoptProject(doc, prov, now)
		if created {
			res.CreatedProjects = append(res.CreatedProjects, project.ID)
		}
		checkNameConsistency(s.Name, project.ID)

		createdAt := prov.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		kind := state.KindLinked
		if prov.Managed {
			kind = state.KindManaged
		}
		doc.Sessions[s.Name] = &state.SessionRecord{
			Name:        s.Name,
			ProjectID:   project.ID,
			ProjectPath: project.Path,
			CreatedAt:   createdAt,
			Command:     prov.Command,
			Kind:        kind,
		}
		res.Added = append(res.Added, s.Name)
	}
	slices.Sort(res.Added)

	if res.Changed() {
		reconcileLog.Info("reconcile_applied",
			slog.Any("removed", res.Removed),
			slog.Any("added", res.Added),
			slog.Any("created_projects", res.CreatedProjects))
	}
	return res
}

// adoptProject finds the project named by provenance or registers it.
// A path that no longer resolves is kept as recorded.
func adoptProject(doc *state.Document, prov Provenance, now time.Time) (*state.Project, bool) {
	path, err := state.CanonicalizePath(prov.ProjectPath, "")
	if err != nil {
		path = filepath.Clean(state.ExpandPath(prov.ProjectPath))
	}
	id := prov.ProjectID
	if id == "" {
		id = state.ComputeProjectID(path)
	}
	if p, ok := doc.Projects[id]; ok {
		return p, false
	}
	if p := state.FindProjectByPath(doc, path); p != nil {
		return p, false
	}
	p := &state.Project{
		ID:        id,
		Name:      state.ProjectNameFromPath(path),
		Path:      path,
		CreatedAt: now,
	}
	doc.Projects[id] = p
	return p, true
}

func checkNameConsistency(name, projectID string) {
	_, prefix, ok := state.ParseSessionName(name)
	if !ok || strings.HasPrefix(projectID, prefix) {
		return
	}
	reconcileLog.Warn("session_name_id_mismatch",
		slog.String("session", name),
		slog.String("name_prefix", prefix),
		slog.String("project_id", projectID))
}

// Reconciler runs Reconcile against a live multiplexer.
type Reconciler struct {
	Lister Lister
	Env    EnvReader
	Now    func() time.Time
}

// NewReconciler returns a Reconciler backed by client.
func NewReconciler(client *tmux.Client) *Reconciler {
	return &Reconciler{Lister: client, Env: client, Now: time.Now}
}

// Refresh enumerates live sessions and reconciles doc. An enumeration
// failure leaves doc untouched and is returned as *tmux.EnumerationError.
func (r *Reconciler) Refresh(doc *state.Document) (ReconcileResult, error) {
	res, _, err := r.RefreshLive(doc)
	return res, err
}

// RefreshLive is Refresh that also returns the enumerated sessions.
func (r *Reconciler) RefreshLive(doc *state.Document) (ReconcileResult, []tmux.LiveSession, error) {
	live, err := r.Lister.ListLiveSessions()
	if err != nil {
		var enumErr *tmux.EnumerationError
		if !errors.As(err, &enumErr) {
			enumErr = &tmux.EnumerationError{Op: "list-sessions", Err: err}
		}
		reconcileLog.Error("enumeration_failed", slog.String("error", err.Error()))
		return ReconcileResult{}, nil, enumErr
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return Reconcile(doc, live, r.Env, now()), live, nil
}

// UntrackedSession is a live session with no record, as shown in flat views.
type UntrackedSession struct {
	tmux.LiveSession
	// NameHint is the slug parsed from a projdeck-style name, if any.
	NameHint string
}

// UntrackedSessions returns live sessions that doc does not track, by name.
func UntrackedSessions(doc *state.Document, live []tmux.LiveSession) []UntrackedSession {
	var out []UntrackedSession
	for _, s := range live {
		if _, ok := doc.Sessions[s.Name]; ok {
			continue
		}
		u := UntrackedSession{LiveSession: s}
		if slug, _, ok := state.ParseSessionName(s.Name); ok {
			u.NameHint = slug
		}
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b UntrackedSession) int { return strings.Compare(a.Name, b.Name) })
	return out
}
