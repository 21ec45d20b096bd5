package agentlog

import (
	"strings"
	"time"
)

// historyEntry is one decoded line of a tool's history index.
type historyEntry struct {
	SessionID string
	Timestamp time.Time
	Prompt    string
	Project   string
}

// sessionIndex aggregates the history lines of one session.
type sessionIndex struct {
	ID        string
	Project   string
	FirstSeen time.Time
	LastSeen  time.Time

	Prompt   string
	PromptAt time.Time
	hasReal  bool
}

// isRealPrompt rejects blank lines, shell escapes (!cmd) and a lone slash
// command such as /exit.
func isRealPrompt(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" || strings.HasPrefix(t, "!") {
		return false
	}
	if strings.HasPrefix(t, "/") && len(strings.Fields(t)) == 1 {
		return false
	}
	return true
}

// historyIndex groups history entries by session id.
type historyIndex struct {
	sessions map[string]*sessionIndex
	skipped  int
}

func newHistoryIndex() *historyIndex {
	return &historyIndex{sessions: make(map[string]*sessionIndex)}
}

func (h *historyIndex) add(e historyEntry) {
	s, ok := h.sessions[e.SessionID]
	if !ok {
		s = &sessionIndex{ID: e.SessionID, FirstSeen: e.Timestamp, LastSeen: e.Timestamp}
		h.sessions[e.SessionID] = s
	}
	if e.Timestamp.Before(s.FirstSeen) {
		s.FirstSeen = e.Timestamp
	}
	if !e.Timestamp.Before(s.LastSeen) {
		s.LastSeen = e.Timestamp
		if e.Project != "" {
			s.Project = e.Project
		}
	} else if s.Project == "" {
		s.Project = e.Project
	}
	// Later lines win ties; the file is append-only.
	if isRealPrompt(e.Prompt) && (!s.hasReal || !e.Timestamp.Before(s.PromptAt)) {
		s.Prompt = strings.TrimSpace(e.Prompt)
		s.PromptAt = e.Timestamp
		s.hasReal = true
	}
}

// lastPrompt returns the latest real prompt or the placeholder.
func (s *sessionIndex) lastPrompt() string {
	if !s.hasReal {
		return NoPromptPlaceholder
	}
	return s.Prompt
}
