package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asheshgoplani/projdeck/internal/agentlog"
	"github.com/asheshgoplani/projdeck/internal/platform"
	"github.com/asheshgoplani/projdeck/internal/session"
)

func handleWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Emit one JSON object per change")
	interval := fs.Duration("interval", agentlog.DefaultWatchInterval, "Minimum time between refreshes")
	limit := fs.Int("limit", 20, "Show at most this many sessions (0 = all)")

	fs.Usage = func() {
		fmt.Println("Usage: projdeck watch [claude|codex] [options]")
		fmt.Println()
		fmt.Println("Print the external session list, then again whenever a history")
		fmt.Println("or transcript file changes. Stop with Ctrl+C.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	tools, err := parseToolArgs(fs.Args())
	if err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	cfg, cfgErr := session.LoadUserConfig()
	if cfgErr != nil {
		out.Warn(fmt.Sprintf("using defaults: %v", cfgErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runWatch(ctx, os.Stdout, cfg, externalFilter{tools: tools, limit: *limit}, *interval, out.JSON()); err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
}

// watchUpdate is one JSON line of watch output.
type watchUpdate struct {
	At       time.Time          `json:"at"`
	Changed  []agentlog.Tool    `json:"changed"`
	Sessions []agentlog.Summary `json:"sessions"`
}

// runWatch prints the list once, then after every coalesced change, until
// ctx is done.
func runWatch(ctx context.Context, w io.Writer, cfg *session.UserConfig, filter externalFilter, interval time.Duration, jsonMode bool) error {
	readers := make([]*agentlog.Reader, 0, len(filter.tools))
	for _, tool := range filter.tools {
		r, err := agentlog.NewReader(tool, cfg.ReaderOptions(tool))
		if err != nil {
			return err
		}
		readers = append(readers, r)
	}

	emit := func(changed []agentlog.Tool) {
		summaries, err := collectExternal(cfg, filter)
		if err != nil {
			cliLog.Warn("watch_list_failed", slog.String("error", err.Error()))
			return
		}
		if jsonMode {
			_ = json.NewEncoder(w).Encode(watchUpdate{At: nowFunc(), Changed: changed, Sessions: summaries})
			return
		}
		var b bytes.Buffer
		fmt.Fprintln(&b, dimStyle.Render(fmt.Sprintf("── %s", nowFunc().Format(time.TimeOnly))))
		renderExternal(&b, summaries)
		_, _ = w.Write(b.Bytes())
	}

	watcher, err := agentlog.NewWatcher(readers, interval, emit)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	if len(watcher.Roots()) == 0 {
		return errors.New("no Claude or Codex home with a history file was found")
	}
	for _, r := range readers {
		if home, ok := r.Home(); ok {
			if warning := platform.CheckWatchSupport(home); warning != "" {
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", warnSymbol, r.Tool(), warning)
			}
		}
	}
	cliLog.Debug("watch_started", slog.String("platform", platform.Detect().String()), slog.Int("roots", len(watcher.Roots())))

	emit(filter.tools)
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
