package agentlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// claudeDirNameRegex matches every character Claude Code replaces with '-'
// when naming a project directory.
var claudeDirNameRegex = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// ConvertToClaudeDirName encodes a project path the way Claude Code names
// its directories under projects/.
func ConvertToClaudeDirName(path string) string {
	return claudeDirNameRegex.ReplaceAllString(path, "-")
}

type claudeFormat struct{}

func (claudeFormat) tool() Tool      { return ToolClaude }
func (claudeFormat) homeEnv() string { return "CLAUDE_CONFIG_DIR" }

func (claudeFormat) defaultHomes(userHome string) []string {
	return []string{
		filepath.Join(userHome, ".claude"),
		filepath.Join(userHome, ".config", "claude"),
	}
}

type claudeHistoryLine struct {
	Display   string `json:"display"`
	Timestamp int64  `json:"timestamp"` // unix millis
	Project   string `json:"project"`
	SessionID string `json:"sessionId"`
}

func (claudeFormat) decodeHistory(line []byte) (historyEntry, bool) {
	var h claudeHistoryLine
	if err := json.Unmarshal(line, &h); err != nil || h.SessionID == "" {
		return historyEntry{}, false
	}
	return historyEntry{
		SessionID: h.SessionID,
		Timestamp: time.UnixMilli(h.Timestamp),
		Prompt:    h.Display,
		Project:   h.Project,
	}, true
}

// locateTranscript tries projects/<encoded>/<id>.jsonl, then sibling
// directories whose names prefix-match the encoded name, then any project.
func (claudeFormat) locateTranscript(home string, idx *sessionIndex) string {
	if !isSafeSessionID(idx.ID) {
		return ""
	}
	projectsDir := filepath.Join(home, "projects")
	file := idx.ID + ".jsonl"

	var encoded string
	if idx.Project != "" {
		encoded = ConvertToClaudeDirName(idx.Project)
		direct := filepath.Join(projectsDir, encoded, file)
		if fileExists(direct) {
			return direct
		}
	}

	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		return ""
	}
	var siblings, others []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(projectsDir, e.Name(), file)
		if !fileExists(candidate) {
			continue
		}
		name := e.Name()
		if encoded != "" && (strings.HasPrefix(name, encoded) || strings.HasPrefix(encoded, name)) {
			siblings = append(siblings, candidate)
		} else {
			others = append(others, candidate)
		}
	}
	if p := newestFile(siblings); p != "" {
		agentLog.Debug("claude_transcript_sibling_match", "session", idx.ID, "path", p)
		return p
	}
	return newestFile(others)
}

// claudeContentBlock is one element of a structured message.content.
type claudeContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Thinking string `json:"thinking"`
}

type claudeLine struct {
	Type      string `json:"type"`
	IsMeta    bool   `json:"isMeta"`
	CWD       string `json:"cwd"`
	Version   string `json:"version"`
	GitBranch string `json:"gitBranch"`
	Message   *struct {
		Role    string          `json:"role"`
		Model   string          `json:"model"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// decodeClaudeContent accepts a plain string or an array of typed blocks.
func decodeClaudeContent(raw json.RawMessage) (text string, blocks []claudeContentBlock) {
	if len(raw) == 0 {
		return "", nil
	}
	if raw[0] == '"' {
		_ = json.Unmarshal(raw, &text)
		return text, nil
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", nil
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n"), blocks
}

func hasBlock(blocks []claudeContentBlock, typ string) bool {
	for _, b := range blocks {
		if b.Type == typ {
			return true
		}
	}
	return false
}

func (claudeFormat) decodeTurn(line []byte) Turn {
	var l claudeLine
	if err := json.Unmarshal(line, &l); err != nil || l.Message == nil {
		return Turn{Kind: TurnUnparsed}
	}
	text, blocks := decodeClaudeContent(l.Message.Content)

	switch l.Type {
	case "user":
		if l.IsMeta {
			return Turn{Kind: TurnUnparsed}
		}
		switch {
		case hasBlock(blocks, "tool_result"):
			return Turn{Kind: TurnUserToolResult, Text: text}
		case containsAny(text, ClaudeShellMarkers):
			return Turn{Kind: TurnUserShellEcho, Text: text}
		default:
			return Turn{Kind: TurnUserPrompt, Text: text}
		}
	case "assistant":
		switch {
		case hasBlock(blocks, "tool_use"):
			return Turn{Kind: TurnAssistantToolUse, Text: text}
		case hasBlock(blocks, "thinking") || hasBlock(blocks, "redacted_thinking"):
			return Turn{Kind: TurnAssistantThinking, Text: text}
		default:
			return Turn{Kind: TurnAssistantReply, Text: text}
		}
	}
	return Turn{Kind: TurnUnparsed}
}

func (claudeFormat) applyMeta(line []byte, s *Summary) {
	var l claudeLine
	if err := json.Unmarshal(line, &l); err != nil {
		return
	}
	setIfEmpty(&s.CWD, l.CWD)
	setIfEmpty(&s.Version, l.Version)
	setIfEmpty(&s.GitBranch, l.GitBranch)
	// Synthetic messages carry "<synthetic>" instead of a model id.
	if l.Message != nil && !strings.HasPrefix(l.Message.Model, "<") {
		setIfEmpty(&s.Model, l.Message.Model)
	}
}

// projectPath prefers the history's project; the transcript cwd is the
// fallback.
func (claudeFormat) projectPath(idx *sessionIndex, s *Summary) string {
	if idx.Project != "" {
		return idx.Project
	}
	return s.CWD
}
