package agentlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

type codexFormat struct{}

func (codexFormat) tool() Tool      { return ToolCodex }
func (codexFormat) homeEnv() string { return "CODEX_HOME" }

func (codexFormat) defaultHomes(userHome string) []string {
	return []string{filepath.Join(userHome, ".codex")}
}

type codexHistoryLine struct {
	SessionID string `json:"session_id"`
	TS        int64  `json:"ts"` // unix seconds
	Text      string `json:"text"`
}

func (codexFormat) decodeHistory(line []byte) (historyEntry, bool) {
	var h codexHistoryLine
	if err := json.Unmarshal(line, &h); err != nil || h.SessionID == "" {
		return historyEntry{}, false
	}
	return historyEntry{
		SessionID: h.SessionID,
		Timestamp: time.Unix(h.TS, 0),
		Prompt:    h.Text,
	}, true
}

// locateTranscript looks in sessions/YYYY/MM/DD for the day the session was
// first seen, then the other days of that month, then the whole tree.
func (codexFormat) locateTranscript(home string, idx *sessionIndex) string {
	if !isSafeSessionID(idx.ID) {
		return ""
	}
	sessionsDir := filepath.Join(home, "sessions")
	pattern := "rollout-*-" + idx.ID + ".jsonl"

	if !idx.FirstSeen.IsZero() {
		day := idx.FirstSeen.Local()
		monthDir := filepath.Join(sessionsDir, day.Format("2006"), day.Format("01"))
		if p := newestGlob(filepath.Join(monthDir, day.Format("02"), pattern)); p != "" {
			return p
		}
		if p := newestGlob(filepath.Join(monthDir, "*", pattern)); p != "" {
			agentLog.Debug("codex_transcript_sibling_day", "session", idx.ID, "path", p)
			return p
		}
	}

	matches, err := doublestar.Glob(os.DirFS(sessionsDir), "**/"+pattern)
	if err != nil || len(matches) == 0 {
		return ""
	}
	for i, m := range matches {
		matches[i] = filepath.Join(sessionsDir, filepath.FromSlash(m))
	}
	return newestFile(matches)
}

func newestGlob(pattern string) string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return ""
	}
	return newestFile(matches)
}

type codexLine struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type codexPayload struct {
	Type       string `json:"type"`
	Role       string `json:"role"`
	CWD        string `json:"cwd"`
	CLIVersion string `json:"cli_version"`
	Model      string `json:"model"`
	Git        *struct {
		Branch string `json:"branch"`
	} `json:"git"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func decodeCodexLine(line []byte) (string, *codexPayload, bool) {
	var l codexLine
	if err := json.Unmarshal(line, &l); err != nil || len(l.Payload) == 0 {
		return "", nil, false
	}
	var p codexPayload
	if err := json.Unmarshal(l.Payload, &p); err != nil {
		return "", nil, false
	}
	return l.Type, &p, true
}

// codexInjectedPrefixes mark user messages Codex writes on the user's behalf.
var codexInjectedPrefixes = []string{"<environment_context>", "<user_instructions>"}

func (codexFormat) decodeTurn(line []byte) Turn {
	typ, p, ok := decodeCodexLine(line)
	if !ok || typ != "response_item" {
		return Turn{Kind: TurnUnparsed}
	}
	switch p.Type {
	case "message":
		var parts []string
		for _, c := range p.Content {
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
		text := strings.Join(parts, "\n")
		switch p.Role {
		case "user":
			trimmed := strings.TrimSpace(text)
			for _, prefix := range codexInjectedPrefixes {
				if strings.HasPrefix(trimmed, prefix) {
					return Turn{Kind: TurnUnparsed}
				}
			}
			if containsAny(text, CodexShellMarkers) {
				return Turn{Kind: TurnUserShellEcho, Text: text}
			}
			return Turn{Kind: TurnUserPrompt, Text: text}
		case "assistant":
			return Turn{Kind: TurnAssistantReply, Text: text}
		}
	case "function_call", "custom_tool_call", "local_shell_call":
		return Turn{Kind: TurnAssistantToolUse}
	case "function_call_output", "custom_tool_call_output":
		return Turn{Kind: TurnUserToolResult}
	case "reasoning":
		return Turn{Kind: TurnAssistantThinking}
	}
	return Turn{Kind: TurnUnparsed}
}

func (codexFormat) applyMeta(line []byte, s *Summary) {
	typ, p, ok := decodeCodexLine(line)
	if !ok {
		return
	}
	switch typ {
	case "session_meta":
		setIfEmpty(&s.CWD, p.CWD)
		setIfEmpty(&s.Version, p.CLIVersion)
		if p.Git != nil {
			setIfEmpty(&s.GitBranch, p.Git.Branch)
		}
	case "turn_context":
		setIfEmpty(&s.Model, p.Model)
		setIfEmpty(&s.CWD, p.CWD)
	}
}

// Codex history carries no project; the rollout's cwd is the project.
func (codexFormat) projectPath(_ *sessionIndex, s *Summary) string {
	return s.CWD
}
