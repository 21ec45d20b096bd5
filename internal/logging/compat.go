package logging

import (
	"bytes"
	"log/slog"
	"strings"
)

// BridgeWriter lets stdlib log.Printf output land in the structured log.
// A leading "[name] " prefix becomes the component attribute.
type BridgeWriter struct {
	component string
}

// NewBridgeWriter returns a writer that logs each write as one info record.
// defaultComponent is used when the line has no "[name] " prefix.
func NewBridgeWriter(defaultComponent string) *BridgeWriter {
	return &BridgeWriter{component: defaultComponent}
}

// Write implements io.Writer.
func (bw *BridgeWriter) Write(p []byte) (int, error) {
	n := len(p)
	msg := string(bytes.TrimSpace(p))
	if msg == "" {
		return n, nil
	}
	msg = stripLogTimestamp(msg)

	component := bw.component
	if strings.HasPrefix(msg, "[") {
		if idx := strings.Index(msg, "] "); idx > 0 {
			component = strings.ToLower(msg[1:idx])
			msg = msg[idx+2:]
		}
	}

	Logger().Info(msg, slog.String("component", canonicalComponent(component)))
	return n, nil
}

// stripLogTimestamp drops the "15:04:05 " or "15:04:05.000000 " prefix the
// stdlib logger adds; slog stamps its own time.
func stripLogTimestamp(s string) string {
	if len(s) > 16 && s[2] == ':' && s[5] == ':' && s[8] == '.' && s[15] == ' ' {
		return s[16:]
	}
	if len(s) > 9 && s[2] == ':' && s[5] == ':' && s[8] == ' ' {
		return s[9:]
	}
	return s
}

func canonicalComponent(cat string) string {
	switch cat {
	case "tmux", "mux":
		return CompTmux
	case "claude", "codex", "history", "transcript":
		return CompAgentLog
	case "reconcile", "sync":
		return CompReconcile
	case "state", "project":
		return CompState
	case "storage", "sqlite", "statedb":
		return CompStorage
	case "watch", "fsnotify":
		return CompWatch
	default:
		return cat
	}
}
