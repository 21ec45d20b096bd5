// Package agentlog reads the history index and per-session transcripts
// written by Claude Code and Codex CLI, and infers whose turn it is in each
// session from the transcript tail.
package agentlog

import (
	"time"

	"github.com/asheshgoplani/projdeck/internal/logging"
)

var agentLog = logging.ForComponent(logging.CompAgentLog)

// Tool names an external assistant CLI.
type Tool string

const (
	ToolClaude Tool = "claude"
	ToolCodex  Tool = "codex"
)

// Tools lists every supported tool in display order.
var Tools = []Tool{ToolClaude, ToolCodex}

// ParseTool maps a user-supplied name to a Tool.
func ParseTool(s string) (Tool, bool) {
	switch Tool(s) {
	case ToolClaude, ToolCodex:
		return Tool(s), true
	}
	return "", false
}

// ActivityState tells who owes the next turn.
type ActivityState string

const (
	// ActivityUnknown means no turn could be classified.
	ActivityUnknown ActivityState = ""
	// ActivityUser means the user spoke last; the model is working.
	ActivityUser ActivityState = "user"
	// ActivityAssistant means the model finished; a human is expected next.
	ActivityAssistant ActivityState = "assistant"
	// ActivityExited means the session was ended from inside the tool.
	ActivityExited ActivityState = "exited"
)

// NoPromptPlaceholder is LastPrompt for sessions without a real prompt.
const NoPromptPlaceholder = "(no prompt)"

const (
	DefaultHeadBytes       int64 = 64 * 1024
	DefaultTailBytes       int64 = 256 * 1024
	DefaultFreshnessWindow       = 30 * time.Second
)

// Summary describes one external session. It is derived from disk on every
// call and never persisted.
type Summary struct {
	Tool            Tool          `json:"tool"`
	ID              string        `json:"id"`
	CWD             string        `json:"cwd,omitempty"`
	ProjectPath     string        `json:"project_path,omitempty"`
	LastActivityAt  time.Time     `json:"last_activity_at,omitzero"`
	LastPrompt      string        `json:"last_prompt"`
	LastMessageType ActivityState `json:"last_message_type,omitempty"`
	Model           string        `json:"model,omitempty"`
	Version         string        `json:"version,omitempty"`
	GitBranch       string        `json:"git_branch,omitempty"`
	SessionFile     string        `json:"session_file,omitempty"`
}

// HasPrompt reports whether the user has said anything real yet.
func (s Summary) HasPrompt() bool {
	return s.LastPrompt != NoPromptPlaceholder
}

// metaComplete reports whether every head-read field is filled.
func (s *Summary) metaComplete() bool {
	return s.CWD != "" && s.Model != "" && s.Version != "" && s.GitBranch != ""
}

// Options tunes a Reader. Zero values mean defaults.
type Options struct {
	// Home overrides the conventional home directories. The tool's
	// environment variable still wins.
	Home string

	HeadBytes       int64
	TailBytes       int64
	FreshnessWindow time.Duration

	// Now is the clock used for freshness correction.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.HeadBytes <= 0 {
		o.HeadBytes = DefaultHeadBytes
	}
	if o.TailBytes <= 0 {
		o.TailBytes = DefaultTailBytes
	}
	if o.FreshnessWindow <= 0 {
		o.FreshnessWindow = DefaultFreshnessWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
