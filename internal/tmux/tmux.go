// Package tmux wraps the tmux CLI: enumerating live sessions, reading and
// writing session-scoped environment, and creating or killing sessions.
package tmux

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/asheshgoplani/projdeck/internal/logging"
)

var tmuxLog = logging.ForComponent(logging.CompTmux)

// LiveSession is one session reported by tmux list-sessions.
type LiveSession struct {
	Name           string
	Attached       int
	Windows        int
	CurrentCommand string
	CurrentPath    string
}

// EnumerationError means tmux could not be queried at all. It is distinct
// from a running server with zero sessions.
type EnumerationError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *EnumerationError) Error() string {
	msg := fmt.Sprintf("tmux %s failed: %v", e.Op, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// ErrNoServer means no tmux server answered on a configured socket.
var ErrNoServer = errors.New("no tmux server on socket")

// ErrSessionNotFound is returned when a named session does not exist.
var ErrSessionNotFound = errors.New("tmux session not found")

// listFormat uses tabs since session names and paths may contain ':'.
const listFormat = "#{session_name}\t#{session_attached}\t#{session_windows}\t#{pane_current_command}\t#{pane_current_path}"

// runFunc executes tmux with args and returns stdout, stderr and the exit error.
type runFunc func(args ...string) (stdout, stderr []byte, err error)

// Client talks to one tmux server.
type Client struct {
	// Socket selects a named server (tmux -L). Empty means the default server.
	Socket string

	run    runFunc
	listSf singleflight.Group
}

// NewClient returns a client for the server at socket ("" for default).
func NewClient(socket string) *Client {
	c := &Client{Socket: socket}
	c.run = c.execTmux
	return c
}

func (c *Client) execTmux(args ...string) ([]byte, []byte, error) {
	full := args
	if c.Socket != "" {
		full = append([]string{"-L", c.Socket}, args...)
	}
	cmd := exec.Command("tmux", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// IsTmuxAvailable checks if tmux is installed and accessible.
func IsTmuxAvailable() error {
	cmd := exec.Command("tmux", "-V")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tmux not found or not working: %w (output: %s)", err, string(output))
	}
	return nil
}

func isNoSessions(stderr string) bool {
	return strings.Contains(stderr, "no sessions")
}

// isNoServer reports tmux output meaning nothing listens on the socket.
func isNoServer(stderr string) bool {
	return strings.Contains(stderr, "no server running") ||
		(strings.Contains(stderr, "error connecting to") && strings.Contains(stderr, "No such file or directory"))
}

// ListLiveSessions enumerates every session on the server. On the default
// socket a missing server yields an empty list, since tmux exits with its
// last session. On a configured socket it is an *EnumerationError wrapping
// ErrNoServer, so a mistyped socket never reads as "no sessions". Any other
// failure is an *EnumerationError too. Concurrent callers share one
// subprocess.
func (c *Client) ListLiveSessions() ([]LiveSession, error) {
	v, err, _ := c.listSf.Do("list", func() (any, error) {
		stdout, stderr, err := c.run("list-sessions", "-F", listFormat)
		if err != nil {
			msg := strings.TrimSpace(string(stderr))
			if isNoSessions(msg) {
				return []LiveSession{}, nil
			}
			if isNoServer(msg) {
				if c.Socket == "" {
					return []LiveSession{}, nil
				}
				return nil, &EnumerationError{Op: "list-sessions", Stderr: msg, Err: ErrNoServer}
			}
			return nil, &EnumerationError{Op: "list-sessions", Stderr: msg, Err: err}
		}
		return parseListSessions(string(stdout)), nil
	})
	if err != nil {
		tmuxLog.Warn("list_sessions_failed", slog.String("error", err.Error()))
		return nil, err
	}
	sessions := v.([]LiveSession)
	out := make([]LiveSession, len(sessions))
	copy(out, sessions)
	return out, nil
}

func parseListSessions(output string) []LiveSession {
	var sessions []LiveSession
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 5)
		ls := LiveSession{Name: parts[0]}
		if ls.Name == "" {
			continue
		}
		if len(parts) > 1 {
			ls.Attached, _ = strconv.Atoi(parts[1])
		}
		if len(parts) > 2 {
			ls.Windows, _ = strconv.Atoi(parts[2])
		}
		if len(parts) > 3 {
			ls.CurrentCommand = parts[3]
		}
		if len(parts) > 4 {
			ls.CurrentPath = parts[4]
		}
		sessions = append(sessions, ls)
	}
	return sessions
}

// HasSession reports whether name exists on the server.
func (c *Client) HasSession(name string) bool {
	_, _, err := c.run("has-session", "-t", exactTarget(name))
	return err == nil
}

// NewSession starts a detached session in workDir. An empty command runs the
// default shell.
func (c *Client) NewSession(name, workDir, command string) error {
	args := []string{"new-session", "-d", "-s", name}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	if command != "" {
		args = append(args, command)
	}
	if _, stderr, err := c.run(args...); err != nil {
		return fmt.Errorf("tmux new-session %s: %w: %s", name, err, strings.TrimSpace(string(stderr)))
	}
	tmuxLog.Info("session_created", slog.String("session", name), slog.String("dir", workDir))
	return nil
}

// KillSession terminates the named session.
func (c *Client) KillSession(name string) error {
	if _, stderr, err := c.run("kill-session", "-t", exactTarget(name)); err != nil {
		msg := strings.TrimSpace(string(stderr))
		if strings.Contains(msg, "can't find session") || isNoServer(msg) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, name)
		}
		return fmt.Errorf("tmux kill-session %s: %w: %s", name, err, msg)
	}
	tmuxLog.Info("session_killed", slog.String("session", name))
	return nil
}

// exactTarget prevents tmux from prefix-matching another session.
func exactTarget(name string) string {
	return "=" + name
}
