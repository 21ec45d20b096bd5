package agentlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	claudeSessionA = "0b6a3c2e-1f4d-4e55-9a0b-7c1d2e3f4a5b"
	claudeSessionB = "1c7b4d3f-2a5e-4f66-8b1c-8d2e3f4a5b6c"
	codexSessionA  = "019a1b2c-3d4e-7f50-8a61-b2c3d4e5f607"
)

// isolateHome points HOME and both tool env vars at empty temp dirs so the
// developer's real installs never leak into a test.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CLAUDE_CONFIG_DIR", "")
	t.Setenv("CODEX_HOME", "")
	return home
}

func jsonLine(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func appendLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(strings.Join(lines, "\n") + "\n")
	require.NoError(t, err)
}

func setMtime(t *testing.T, path string, at time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, at, at))
}

func claudeHistory(t *testing.T, id, project, display string, at time.Time) string {
	return jsonLine(t, map[string]any{"display": display, "timestamp": at.UnixMilli(), "project": project, "sessionId": id})
}

func claudeUser(t *testing.T, content any) string {
	return jsonLine(t, map[string]any{
		"type": "user", "cwd": "/work/alpha", "version": "2.0.14", "gitBranch": "main",
		"message": map[string]any{"role": "user", "content": content},
	})
}

func claudeAssistant(t *testing.T, blocks ...map[string]any) string {
	return jsonLine(t, map[string]any{
		"type":    "assistant",
		"message": map[string]any{"role": "assistant", "model": "claude-sonnet-4-5", "content": blocks},
	})
}

func codexHistory(t *testing.T, id, text string, at time.Time) string {
	return jsonLine(t, map[string]any{"session_id": id, "ts": at.Unix(), "text": text})
}

func codexItem(t *testing.T, payload map[string]any) string {
	return jsonLine(t, map[string]any{"timestamp": "2026-05-01T10:00:00Z", "type": "response_item", "payload": payload})
}

func codexMessage(t *testing.T, role, text string) string {
	kind := "input_text"
	if role == "assistant" {
		kind = "output_text"
	}
	return codexItem(t, map[string]any{
		"type": "message", "role": role,
		"content": []map[string]any{{"type": kind, "text": text}},
	})
}
