package agentlog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asheshgoplani/projdeck/internal/logging"
)

// HistoryFileName is the history index every supported tool writes at the
// top of its home directory.
const HistoryFileName = "history.jsonl"

// toolFormat holds everything that differs between tools.
type toolFormat interface {
	tool() Tool
	homeEnv() string
	defaultHomes(userHome string) []string
	decodeHistory(line []byte) (historyEntry, bool)
	locateTranscript(home string, idx *sessionIndex) string
	applyMeta(line []byte, s *Summary)
	decodeTurn(line []byte) Turn
	projectPath(idx *sessionIndex, s *Summary) string
}

// Reader lists the sessions of one tool.
type Reader struct {
	format toolFormat
	opts   Options
}

// NewClaudeReader returns a Reader for Claude Code.
func NewClaudeReader(opts Options) *Reader {
	return &Reader{format: claudeFormat{}, opts: opts.withDefaults()}
}

// NewCodexReader returns a Reader for Codex CLI.
func NewCodexReader(opts Options) *Reader {
	return &Reader{format: codexFormat{}, opts: opts.withDefaults()}
}

// NewReader returns the Reader for tool.
func NewReader(tool Tool, opts Options) (*Reader, error) {
	switch tool {
	case ToolClaude:
		return NewClaudeReader(opts), nil
	case ToolCodex:
		return NewCodexReader(opts), nil
	}
	return nil, fmt.Errorf("unknown tool %q", tool)
}

// ListExternalSessions is shorthand for NewReader(tool, opts).List().
func ListExternalSessions(tool Tool, opts Options) ([]Summary, error) {
	r, err := NewReader(tool, opts)
	if err != nil {
		return nil, err
	}
	return r.List()
}

// Tool returns the tool this reader serves.
func (r *Reader) Tool() Tool { return r.format.tool() }

// HomeCandidates lists the directories probed for the tool's home, in order.
func (r *Reader) HomeCandidates() []string {
	var out []string
	if env := os.Getenv(r.format.homeEnv()); env != "" {
		out = append(out, expandTilde(env))
	}
	if r.opts.Home != "" {
		out = append(out, expandTilde(r.opts.Home))
	}
	if userHome, err := os.UserHomeDir(); err == nil {
		out = append(out, r.format.defaultHomes(userHome)...)
	}
	return out
}

// Home returns the first candidate that contains a history file.
func (r *Reader) Home() (string, bool) {
	for _, dir := range r.HomeCandidates() {
		if fileExists(filepath.Join(dir, HistoryFileName)) {
			return dir, true
		}
	}
	return "", false
}

// List returns one Summary per session id, most recent activity first.
// A tool that is not installed yields an empty list.
func (r *Reader) List() ([]Summary, error) {
	home, ok := r.Home()
	if !ok {
		return []Summary{}, nil
	}
	idx, err := r.readHistory(filepath.Join(home, HistoryFileName))
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(idx.sessions))
	for _, s := range idx.sessions {
		out = append(out, r.summarize(home, s))
	}
	SortSummaries(out)
	return out, nil
}

func (r *Reader) readHistory(path string) (*historyIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newHistoryIndex(), nil
		}
		return nil, fmt.Errorf("open %s history: %w", r.Tool(), err)
	}
	defer f.Close()

	idx := newHistoryIndex()
	scanErr := scanLines(f, func(line []byte) {
		e, ok := r.format.decodeHistory(line)
		if !ok {
			idx.skipped++
			logging.Aggregate(logging.CompAgentLog, "history_line_skipped", slog.String("tool", string(r.Tool())))
			return
		}
		idx.add(e)
	})
	if scanErr != nil {
		// Keep what was read; a truncated index is still useful.
		agentLog.Warn("history_scan_stopped", slog.String("tool", string(r.Tool())), slog.String("error", scanErr.Error()))
	}
	return idx, nil
}

// summarize fills a Summary from the history index and, when found, the
// transcript head and tail. Transcript problems only blank those fields.
func (r *Reader) summarize(home string, idx *sessionIndex) Summary {
	s := Summary{
		Tool:           r.Tool(),
		ID:             idx.ID,
		LastActivityAt: idx.LastSeen,
		LastPrompt:     idx.lastPrompt(),
	}

	path := r.format.locateTranscript(home, idx)
	if path != "" {
		s.SessionFile = path
		r.readMeta(path, &s)
		s.LastMessageType = r.readActivity(path)
	}
	s.ProjectPath = r.format.projectPath(idx, &s)
	return s
}

func (r *Reader) readMeta(path string, s *Summary) {
	lines, err := readHead(path, r.opts.HeadBytes)
	if err != nil {
		agentLog.Debug("transcript_head_failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	for _, line := range lines {
		r.format.applyMeta(line, s)
		if s.metaComplete() {
			return
		}
	}
}

func (r *Reader) readActivity(path string) ActivityState {
	info, err := os.Stat(path)
	if err != nil {
		return ActivityUnknown
	}
	lines, err := readTail(path, r.opts.TailBytes)
	if err != nil {
		agentLog.Debug("transcript_tail_failed", slog.String("path", path), slog.String("error", err.Error()))
		return ActivityUnknown
	}
	turns := make([]Turn, 0, len(lines))
	for _, line := range lines {
		turns = append(turns, r.format.decodeTurn(line))
	}
	state := InferActivity(turns)
	return ApplyFreshness(state, info.ModTime(), r.opts.Now(), r.opts.FreshnessWindow)
}

// SortSummaries orders by LastActivityAt desc, ties by id.
func SortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].LastActivityAt.Equal(s[j].LastActivityAt) {
			return s[i].LastActivityAt.After(s[j].LastActivityAt)
		}
		return s[i].ID < s[j].ID
	})
}

// MatchSessionsToProject keeps summaries whose project path or cwd is
// projectPath or lies beneath it.
func MatchSessionsToProject(summaries []Summary, projectPath string) []Summary {
	if projectPath == "" {
		return nil
	}
	root := filepath.Clean(projectPath)
	var out []Summary
	for _, s := range summaries {
		if isWithin(s.ProjectPath, root) || isWithin(s.CWD, root) {
			out = append(out, s)
		}
	}
	return out
}

func isWithin(path, root string) bool {
	if path == "" {
		return false
	}
	path = filepath.Clean(path)
	if path == root {
		return true
	}
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// --- file helpers ---

// sessionIDToken admits ids that are safe inside a path and a glob.
var sessionIDToken = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// isSafeSessionID accepts UUIDs, which both tools use, and plain tokens.
func isSafeSessionID(id string) bool {
	if _, err := uuid.Parse(id); err == nil {
		return !strings.ContainsAny(id, "{}:")
	}
	return sessionIDToken.MatchString(id)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// newestFile returns the most recently modified path.
func newestFile(paths []string) string {
	var best string
	var bestTime time.Time
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best, bestTime = p, info.ModTime()
		}
	}
	return best
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
