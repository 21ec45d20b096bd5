package agentlog

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/projdeck/internal/logging"
)

var watchLog = logging.ForComponent(logging.CompWatch)

// DefaultWatchInterval is the minimum gap between change notifications.
const DefaultWatchInterval = time.Second

// watchRoot is a tool home and the subtree holding its transcripts.
type watchRoot struct {
	tool        Tool
	home        string
	transcripts string
}

// Watcher reports when a tool's history or transcripts change. Bursts of
// writes are coalesced into at most one notification per interval.
type Watcher struct {
	fs       *fsnotify.Watcher
	roots    []watchRoot
	limiter  *rate.Limiter
	onChange func(tools []Tool)
}

// NewWatcher watches every reader whose home exists. onChange receives the
// tools that changed since the previous call, in Tools order.
func NewWatcher(readers []*Reader, interval time.Duration, onChange func(tools []Tool)) (*Watcher, error) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:       fw,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		onChange: onChange,
	}
	for _, r := range readers {
		home, ok := r.Home()
		if !ok {
			continue
		}
		root := watchRoot{tool: r.Tool(), home: home, transcripts: filepath.Join(home, transcriptSubdir(r.Tool()))}
		w.roots = append(w.roots, root)
		if err := fw.Add(home); err != nil {
			watchLog.Warn("watch_add_failed", slog.String("dir", home), slog.String("error", err.Error()))
		}
		w.addTree(root.transcripts)
	}
	return w, nil
}

func transcriptSubdir(t Tool) string {
	if t == ToolCodex {
		return "sessions"
	}
	return "projects"
}

// Roots returns the tools being watched.
func (w *Watcher) Roots() []Tool {
	out := make([]Tool, 0, len(w.roots))
	for _, r := range w.roots {
		out = append(out, r.tool)
	}
	return out
}

// addTree watches dir and every directory below it. fsnotify is not recursive.
func (w *Watcher) addTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.fs.Add(path); err != nil {
				watchLog.Debug("watch_add_failed", slog.String("dir", path), slog.String("error", err.Error()))
			}
		}
		return nil
	})
}

// rootFor maps an event path to its tool.
func (w *Watcher) rootFor(path string) (watchRoot, bool) {
	for _, r := range w.roots {
		if path == r.home || strings.HasPrefix(path, r.home+string(filepath.Separator)) {
			return r, true
		}
	}
	return watchRoot{}, false
}

// Run blocks until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	pending := make(map[Tool]bool)
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			root, ok := w.rootFor(event.Name)
			if !ok {
				continue
			}
			if event.Op&fsnotify.Create != 0 && strings.HasPrefix(event.Name, root.transcripts) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addTree(event.Name)
					continue
				}
			}
			if filepath.Ext(event.Name) != ".jsonl" {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			logging.Aggregate(logging.CompWatch, "fs_event", slog.String("tool", string(root.tool)))
			pending[root.tool] = true
			if flush == nil {
				flush = time.After(w.limiter.Reserve().Delay())
			}

		case <-flush:
			flush = nil
			var changed []Tool
			for _, t := range Tools {
				if pending[t] {
					changed = append(changed, t)
				}
			}
			clear(pending)
			if len(changed) > 0 && w.onChange != nil {
				w.onChange(changed)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			watchLog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
