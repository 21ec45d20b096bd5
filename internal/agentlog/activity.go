package agentlog

import (
	"strings"
	"time"
)

// TurnKind is the structural shape of one transcript line.
type TurnKind int

const (
	// TurnUnparsed lines are noise, metadata or unknown shapes; skipped.
	TurnUnparsed TurnKind = iota
	TurnUserPrompt
	TurnUserToolResult
	TurnUserShellEcho
	TurnAssistantReply
	TurnAssistantToolUse
	TurnAssistantThinking
)

func (k TurnKind) String() string {
	switch k {
	case TurnUserPrompt:
		return "user_prompt"
	case TurnUserToolResult:
		return "user_tool_result"
	case TurnUserShellEcho:
		return "user_shell_echo"
	case TurnAssistantReply:
		return "assistant_reply"
	case TurnAssistantToolUse:
		return "assistant_tool_use"
	case TurnAssistantThinking:
		return "assistant_thinking"
	default:
		return "unparsed"
	}
}

// Turn is a decoded transcript line. Text holds the user-visible text, used
// for exit detection.
type Turn struct {
	Kind TurnKind
	Text string
}

func (t Turn) isUser() bool {
	return t.Kind == TurnUserPrompt || t.Kind == TurnUserToolResult || t.Kind == TurnUserShellEcho
}

func (t Turn) isAssistant() bool {
	return t.Kind == TurnAssistantReply || t.Kind == TurnAssistantToolUse || t.Kind == TurnAssistantThinking
}

// These lists track the external tools' output formats and may need updating
// when those tools change.
var (
	// ExitCommands end a session when they are the whole user turn.
	ExitCommands = []string{"/exit", "/quit"}

	// ExitMarkers end a session when found anywhere in a user turn.
	ExitMarkers = []string{
		"<command-name>/exit</command-name>",
		"<command-name>/quit</command-name>",
		"Goodbye!",
		"Bye!",
		"See ya!",
		"Catch you later!",
	}

	// ClaudeShellMarkers wrap Claude Code's local "!" command echo.
	ClaudeShellMarkers = []string{"<bash-input>", "<bash-stdout>", "<bash-stderr>"}

	// CodexShellMarkers wrap Codex CLI's local shell command echo.
	CodexShellMarkers = []string{"<user_shell_command>"}
)

// exitScanDepth is how many user turns the exit scan inspects.
const exitScanDepth = 5

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func isExitText(text string) bool {
	t := strings.TrimSpace(text)
	for _, c := range ExitCommands {
		if t == c {
			return true
		}
	}
	return containsAny(t, ExitMarkers)
}

// activityRule maps the newest classified turn to a state.
type activityRule struct {
	name  string
	match func(Turn) bool
	state ActivityState
}

// lastTurnRules are evaluated top to bottom; the first match wins.
var lastTurnRules = []activityRule{
	{"user_tool_result", func(t Turn) bool { return t.Kind == TurnUserToolResult }, ActivityUser},
	{"user_shell_echo", func(t Turn) bool { return t.Kind == TurnUserShellEcho }, ActivityAssistant},
	{"user_other", Turn.isUser, ActivityUser},
	{"assistant_working", func(t Turn) bool {
		return t.Kind == TurnAssistantToolUse || t.Kind == TurnAssistantThinking
	}, ActivityUser},
	{"assistant_other", Turn.isAssistant, ActivityAssistant},
}

// exitedRecently scans the newest user turns for an exit command or
// farewell. Shell echoes never count.
func exitedRecently(turns []Turn) bool {
	seen := 0
	for i := len(turns) - 1; i >= 0 && seen < exitScanDepth; i-- {
		t := turns[i]
		if !t.isUser() {
			continue
		}
		seen++
		if t.Kind != TurnUserShellEcho && isExitText(t.Text) {
			return true
		}
	}
	return false
}

// classifyLastTurn applies lastTurnRules to the newest parsed turn.
func classifyLastTurn(turns []Turn) ActivityState {
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t.Kind == TurnUnparsed {
			continue
		}
		for _, r := range lastTurnRules {
			if r.match(t) {
				return r.state
			}
		}
	}
	return ActivityUnknown
}

// InferActivity runs the exit scan, then the last-turn rules. Turns are
// oldest first.
func InferActivity(turns []Turn) ActivityState {
	if exitedRecently(turns) {
		return ActivityExited
	}
	return classifyLastTurn(turns)
}

// ApplyFreshness upgrades assistant to user when the transcript was written
// within window of now; the model may still be mid-turn.
func ApplyFreshness(state ActivityState, mtime, now time.Time, window time.Duration) ActivityState {
	if state != ActivityAssistant || mtime.IsZero() {
		return state
	}
	if age := now.Sub(mtime); age >= 0 && age < window {
		return ActivityUser
	}
	return state
}
