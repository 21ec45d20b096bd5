package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/asheshgoplani/projdeck/internal/agentlog"
	"github.com/asheshgoplani/projdeck/internal/session"
	"github.com/asheshgoplani/projdeck/internal/state"
	"github.com/asheshgoplani/projdeck/internal/tmux"
)

type sessionView struct {
	Name           string            `json:"name"`
	Label          string            `json:"label"`
	Kind           state.SessionKind `json:"kind"`
	Command        string            `json:"command,omitempty"`
	Live           bool              `json:"live"`
	Attached       bool              `json:"attached"`
	Windows        int               `json:"windows,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAttachedAt time.Time         `json:"last_attached_at,omitzero"`
}

type projectView struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	LastUsedAt time.Time     `json:"last_used_at,omitzero"`
	Sessions   []sessionView `json:"sessions"`
}

type untrackedView struct {
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	Command  string `json:"command,omitempty"`
	Attached bool   `json:"attached"`
	NameHint string `json:"name_hint,omitempty"`
}

type listView struct {
	Projects  []projectView   `json:"projects"`
	Untracked []untrackedView `json:"untracked,omitempty"`
	// Stale is set when tmux could not be queried and records were not checked.
	Stale bool `json:"stale,omitempty"`
}

// buildListView groups tracked sessions under their projects. live may be
// nil when enumeration failed.
func buildListView(doc *state.Document, live []tmux.LiveSession, stale, includeUntracked bool) listView {
	byName := make(map[string]tmux.LiveSession, len(live))
	for _, s := range live {
		byName[s.Name] = s
	}

	view := listView{Projects: []projectView{}, Stale: stale}
	for _, p := range doc.SortedProjects() {
		labels := session.ProjectLabels(doc, p.ID)
		pv := projectView{ID: p.ID, Name: p.Name, Path: p.Path, LastUsedAt: p.LastUsedAt, Sessions: []sessionView{}}
		for _, r := range doc.SessionsForProject(p.ID) {
			ls, ok := byName[r.Name]
			pv.Sessions = append(pv.Sessions, sessionView{
				Name:           r.Name,
				Label:          labels[r.Name],
				Kind:           r.Kind,
				Command:        r.Command,
				Live:           ok,
				Attached:       ls.Attached > 0,
				Windows:        ls.Windows,
				CreatedAt:      r.CreatedAt,
				LastAttachedAt: r.LastAttachedAt,
			})
		}
		view.Projects = append(view.Projects, pv)
	}
	if includeUntracked {
		for _, u := range session.UntrackedSessions(doc, live) {
			view.Untracked = append(view.Untracked, untrackedView{
				Name:     u.Name,
				Path:     u.CurrentPath,
				Command:  u.CurrentCommand,
				Attached: u.Attached > 0,
				NameHint: u.NameHint,
			})
		}
	}
	return view
}

func renderList(w io.Writer, view listView) {
	if view.Stale {
		fmt.Fprintln(w, dimStyle.Render("tmux unavailable: showing saved state"))
	}
	if len(view.Projects) == 0 {
		fmt.Fprintln(w, "No projects. Add one with: projdeck projects add <path>")
	}
	for _, p := range view.Projects {
		fmt.Fprintf(w, "%s  %s  %s\n", projectStyle.Render(p.Name), dimStyle.Render(p.Path), dimStyle.Render(relativeTime(p.LastUsedAt)))
		if len(p.Sessions) == 0 {
			fmt.Fprintln(w, dimStyle.Render("  (no sessions)"))
		}
		for _, s := range p.Sessions {
			marker := " "
			if s.Attached {
				marker = "*"
			}
			fmt.Fprintf(w, "  %s %s %s %s %s\n", marker, cell(s.Label, colLabel), cell(s.Name, colName), cell(string(s.Kind), colKind), relativeTime(s.CreatedAt))
		}
		fmt.Fprintln(w)
	}
	if len(view.Untracked) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Untracked"))
		for _, u := range view.Untracked {
			fmt.Fprintf(w, "  %s %s %s\n", cell(u.Name, colName), cell(u.Command, colLabel), u.Path)
		}
	}
}

func renderProjects(w io.Writer, projects []*state.Project, doc *state.Document) {
	fmt.Fprintf(w, "%s %s %s %s\n",
		headerStyle.Render(cell("NAME", colLabel)),
		headerStyle.Render(cell("ID", state.ProjectIDLength)),
		headerStyle.Render(cell("SESSIONS", colKind)),
		headerStyle.Render("PATH"))
	for _, p := range projects {
		fmt.Fprintf(w, "%s %s %s %s\n",
			cell(p.Name, colLabel),
			cell(p.ID, state.ProjectIDLength),
			cell(fmt.Sprint(len(doc.SessionsForProject(p.ID))), colKind),
			p.Path)
	}
}

func renderExternal(w io.Writer, summaries []agentlog.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}
	fmt.Fprintf(w, "%s %s %s %s %s\n",
		headerStyle.Render(cell("TOOL", 6)),
		headerStyle.Render(cell("STATE", colState)),
		headerStyle.Render(cell("ACTIVE", colWhen)),
		headerStyle.Render(cell("PROMPT", colPrompt)),
		headerStyle.Render("PROJECT"))
	for _, s := range summaries {
		prompt := s.LastPrompt
		if !s.HasPrompt() {
			prompt = dimStyle.Render(cell(prompt, colPrompt))
		} else {
			prompt = cell(prompt, colPrompt)
		}
		fmt.Fprintf(w, "%s %s %s %s %s\n",
			cell(string(s.Tool), 6),
			activityCell(s.LastMessageType),
			cell(relativeTime(s.LastActivityAt), colWhen),
			prompt,
			truncate(firstNonEmpty(s.ProjectPath, s.CWD), colPath))
	}
}

// firstNonEmpty returns the first non-empty string after trimming whitespace.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
