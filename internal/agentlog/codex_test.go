package agentlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codexRolloutPath(home string, day time.Time, id string) string {
	day = day.Local()
	return filepath.Join(home, "sessions", day.Format("2006"), day.Format("01"), day.Format("02"),
		"rollout-"+day.Format("2006-01-02T15-04-05")+"-"+id+".jsonl")
}

func TestCodexDecodeTurn(t *testing.T) {
	f := codexFormat{}
	tests := []struct {
		name string
		line string
		want TurnKind
	}{
		{"prompt", codexMessage(t, "user", "add a test"), TurnUserPrompt},
		{"environment context", codexMessage(t, "user", "<environment_context>\n<cwd>/x</cwd>\n</environment_context>"), TurnUnparsed},
		{"user instructions", codexMessage(t, "user", "<user_instructions>be terse</user_instructions>"), TurnUnparsed},
		{"shell command", codexMessage(t, "user", "<user_shell_command>ls</user_shell_command>"), TurnUserShellEcho},
		{"reply", codexMessage(t, "assistant", "Added."), TurnAssistantReply},
		{"function call", codexItem(t, map[string]any{"type": "function_call", "name": "shell", "arguments": "{}"}), TurnAssistantToolUse},
		{"custom tool call", codexItem(t, map[string]any{"type": "custom_tool_call", "name": "apply_patch"}), TurnAssistantToolUse},
		{"function output", codexItem(t, map[string]any{"type": "function_call_output", "output": "ok"}), TurnUserToolResult},
		{"reasoning", codexItem(t, map[string]any{"type": "reasoning", "summary": []any{}}), TurnAssistantThinking},
		{"event msg", `{"type":"event_msg","payload":{"type":"token_count"}}`, TurnUnparsed},
		{"session meta", `{"type":"session_meta","payload":{"cwd":"/x"}}`, TurnUnparsed},
		{"garbage", `nope`, TurnUnparsed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.decodeTurn([]byte(tt.line)).Kind)
		})
	}
}

func TestCodexApplyMeta(t *testing.T) {
	f := codexFormat{}
	var s Summary
	f.applyMeta([]byte(`{"type":"session_meta","payload":{"id":"x","cwd":"/work/beta","cli_version":"0.46.0","git":{"branch":"feature"}}}`), &s)
	f.applyMeta([]byte(`{"type":"turn_context","payload":{"cwd":"/ignored","model":"gpt-5-codex"}}`), &s)
	f.applyMeta([]byte(`{"type":"turn_context","payload":{"model":"later"}}`), &s)

	assert.Equal(t, "/work/beta", s.CWD)
	assert.Equal(t, "0.46.0", s.Version)
	assert.Equal(t, "feature", s.GitBranch)
	assert.Equal(t, "gpt-5-codex", s.Model)
}

func TestCodexLocateTranscript(t *testing.T) {
	home := t.TempDir()
	f := codexFormat{}
	day := time.Date(2026, 5, 14, 9, 30, 0, 0, time.Local)

	t.Run("same day", func(t *testing.T) {
		path := codexRolloutPath(home, day, codexSessionA)
		appendLines(t, path, codexMessage(t, "user", "x"))
		got := f.locateTranscript(home, &sessionIndex{ID: codexSessionA, FirstSeen: day})
		assert.Equal(t, path, got)
	})

	t.Run("sibling day", func(t *testing.T) {
		id := "019a1b2c-3d4e-7f50-8a61-b2c3d4e5f608"
		path := codexRolloutPath(home, day.AddDate(0, 0, -1), id)
		appendLines(t, path, codexMessage(t, "user", "x"))
		got := f.locateTranscript(home, &sessionIndex{ID: id, FirstSeen: day})
		assert.Equal(t, path, got)
	})

	t.Run("other month", func(t *testing.T) {
		id := "019a1b2c-3d4e-7f50-8a61-b2c3d4e5f609"
		path := codexRolloutPath(home, day.AddDate(0, -2, 0), id)
		appendLines(t, path, codexMessage(t, "user", "x"))
		got := f.locateTranscript(home, &sessionIndex{ID: id, FirstSeen: day})
		assert.Equal(t, path, got)
	})

	t.Run("no history date", func(t *testing.T) {
		got := f.locateTranscript(home, &sessionIndex{ID: codexSessionA})
		assert.Equal(t, codexRolloutPath(home, day, codexSessionA), got)
	})

	t.Run("missing", func(t *testing.T) {
		got := f.locateTranscript(home, &sessionIndex{ID: "019a1b2c-0000-7f50-8a61-b2c3d4e5f600", FirstSeen: day})
		assert.Empty(t, got)
	})

	t.Run("glob characters rejected", func(t *testing.T) {
		got := f.locateTranscript(home, &sessionIndex{ID: "*", FirstSeen: day})
		assert.Empty(t, got)
	})
}

func TestCodexReaderEndToEnd(t *testing.T) {
	isolateHome(t)
	codexHome := t.TempDir()
	t.Setenv("CODEX_HOME", codexHome)

	start := time.Date(2026, 5, 14, 9, 30, 0, 0, time.Local)
	appendLines(t, filepath.Join(codexHome, HistoryFileName),
		codexHistory(t, codexSessionA, "write the migration", start),
		codexHistory(t, codexSessionA, "/status", start.Add(time.Minute)),
	)
	path := codexRolloutPath(codexHome, start, codexSessionA)
	appendLines(t, path,
		`{"type":"session_meta","payload":{"cwd":"/work/beta","cli_version":"0.46.0","git":{"branch":"main"}}}`,
		codexMessage(t, "user", "<environment_context>\n</environment_context>"),
		`{"type":"turn_context","payload":{"model":"gpt-5-codex"}}`,
		codexMessage(t, "user", "write the migration"),
		codexItem(t, map[string]any{"type": "reasoning"}),
		codexItem(t, map[string]any{"type": "function_call", "name": "shell"}),
		`{"type":"event_msg","payload":{"type":"token_count"}}`,
	)
	setMtime(t, path, start)

	got, err := ListExternalSessions(ToolCodex, Options{Now: func() time.Time { return start.Add(time.Hour) }})
	require.NoError(t, err)
	require.Len(t, got, 1)
	s := got[0]
	assert.Equal(t, ToolCodex, s.Tool)
	assert.Equal(t, "write the migration", s.LastPrompt)
	assert.Equal(t, ActivityUser, s.LastMessageType)
	assert.Equal(t, "/work/beta", s.CWD)
	assert.Equal(t, "/work/beta", s.ProjectPath)
	assert.Equal(t, "gpt-5-codex", s.Model)
	assert.Equal(t, "0.46.0", s.Version)
	assert.Equal(t, "main", s.GitBranch)
	assert.True(t, s.LastActivityAt.Equal(start.Add(time.Minute)))
}
