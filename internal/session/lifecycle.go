package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asheshgoplani/projdeck/internal/state"
	"github.com/asheshgoplani/projdeck/internal/tmux"
)

var (
	// ErrSessionTracked is returned when linking a session that already has a record.
	ErrSessionTracked = errors.New("session already tracked")
	// ErrSessionNotTracked is returned for actions on a session with no record.
	ErrSessionNotTracked = errors.New("session not tracked")
	// ErrSessionNotLive is returned when linking a session tmux does not know.
	ErrSessionNotLive = errors.New("session not running")
)

// Mux is the subset of the multiplexer client the lifecycle actions need.
type Mux interface {
	HasSession(name string) bool
	NewSession(name, workDir, command string) error
	KillSession(name string) error
	SetEnvironmentMap(name string, env map[string]string) error
	UnsetEnvironment(name, key string) error
}

// provenanceEnv builds the environment that lets Reconcile re-adopt a
// session after the state file is lost.
func provenanceEnv(project *state.Project, command string, createdAt time.Time, managed bool) map[string]string {
	flag := "0"
	if managed {
		flag = "1"
	}
	return map[string]string{
		EnvProjectPath: project.Path,
		EnvProjectID:   project.ID,
		EnvCommand:     command,
		EnvCreatedAt:   createdAt.UTC().Format(time.RFC3339),
		EnvManaged:     flag,
	}
}

// CreateManagedSession starts a new session in project's directory and records it.
func CreateManagedSession(doc *state.Document, mux Mux, project *state.Project, command string, now time.Time) (*state.SessionRecord, error) {
	base := state.FormatNewSessionName(project.Name, project.ID)
	name := state.UniqueSessionName(base, func(n string) bool {
		_, tracked := doc.Sessions[n]
		return tracked || mux.HasSession(n)
	})

	if err := mux.NewSession(name, project.Path, command); err != nil {
		return nil, fmt.Errorf("create session %s: %w", name, err)
	}
	if err := mux.SetEnvironmentMap(name, provenanceEnv(project, command, now, true)); err != nil {
		if kerr := mux.KillSession(name); kerr != nil {
			reconcileLog.Warn("session_cleanup_failed", slog.String("session", name), slog.String("error", kerr.Error()))
		}
		return nil, fmt.Errorf("tag session %s: %w", name, err)
	}

	rec := &state.SessionRecord{
		Name:        name,
		ProjectID:   project.ID,
		ProjectPath: project.Path,
		CreatedAt:   now,
		Command:     command,
		Kind:        state.KindManaged,
	}
	doc.Sessions[name] = rec
	project.LastUsedAt = now
	reconcileLog.Info("session_created",
		slog.String("session", name),
		slog.String("project_id", project.ID),
		slog.String("command", command))
	return rec, nil
}

// LinkSession associates an existing, user-started session with project.
func LinkSession(doc *state.Document, mux Mux, name string, project *state.Project, now time.Time) (*state.SessionRecord, error) {
	if _, ok := doc.Sessions[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionTracked, name)
	}
	if !mux.HasSession(name) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotLive, name)
	}
	if err := mux.SetEnvironmentMap(name, provenanceEnv(project, "", now, false)); err != nil {
		return nil, fmt.Errorf("tag session %s: %w", name, err)
	}
	rec := &state.SessionRecord{
		Name:        name,
		ProjectID:   project.ID,
		ProjectPath: project.Path,
		CreatedAt:   now,
		Kind:        state.KindLinked,
	}
	doc.Sessions[name] = rec
	project.LastUsedAt = now
	reconcileLog.Info("session_linked", slog.String("session", name), slog.String("project_id", project.ID))
	return rec, nil
}

// UnlinkSession clears provenance so the session is not adopted again, then
// drops the record. The session keeps running. If clearing fails the record
// is kept.
func UnlinkSession(doc *state.Document, mux Mux, name string) error {
	if _, ok := doc.Sessions[name]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotTracked, name)
	}
	if mux.HasSession(name) {
		var errs []error
		for _, key := range ProvenanceKeys {
			if err := mux.UnsetEnvironment(name, key); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			// The record stays so a later reconcile keeps tracking it.
			return fmt.Errorf("clear provenance of %s: %w", name, err)
		}
	}
	delete(doc.Sessions, name)
	reconcileLog.Info("session_unlinked", slog.String("session", name))
	return nil
}

// DeleteSession kills the session and drops its record. A session that is
// already gone is not an error.
func DeleteSession(doc *state.Document, mux Mux, name string) error {
	if err := mux.KillSession(name); err != nil && !errors.Is(err, tmux.ErrSessionNotFound) {
		return fmt.Errorf("kill session %s: %w", name, err)
	}
	delete(doc.Sessions, name)
	reconcileLog.Info("session_deleted", slog.String("session", name))
	return nil
}

// TouchAttached stamps the session and its project as just used.
func TouchAttached(doc *state.Document, name string, now time.Time) error {
	rec, ok := doc.Sessions[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotTracked, name)
	}
	rec.LastAttachedAt = now
	if p, ok := doc.Projects[rec.ProjectID]; ok {
		p.LastUsedAt = now
	}
	return nil
}
