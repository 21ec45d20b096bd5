package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/asheshgoplani/projdeck/internal/agentlog"
	"github.com/asheshgoplani/projdeck/internal/session"
)

// externalFilter narrows the external session list.
type externalFilter struct {
	tools   []agentlog.Tool
	project string
	limit   int
}

func handleExternal(args []string) {
	fs := flag.NewFlagSet("external", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	project := fs.String("project", "", "Only sessions under this project (id or path)")
	limit := fs.Int("limit", 0, "Show at most this many sessions (0 = all)")

	fs.Usage = func() {
		fmt.Println("Usage: projdeck external [claude|codex] [options]")
		fmt.Println()
		fmt.Println("List Claude Code and Codex sessions found in their history logs,")
		fmt.Println("newest first, with the last prompt and whose turn it is.")
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

	filter := externalFilter{tools: tools, limit: *limit}
	if *project != "" {
		a, err := openApp(out)
		if err != nil {
			out.fail(err.Error(), ErrCodeInvalidOperation)
		}
		p, msg, code := ResolveProject(*project, a.doc)
		a.close()
		if p == nil {
			out.fail(msg, code)
		}
		filter.project = p.Path
	}

	summaries, err := collectExternal(cfg, filter)
	if err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	if out.JSON() {
		out.printJSON(summaries)
		return
	}
	var b bytes.Buffer
	renderExternal(&b, summaries)
	fmt.Print(b.String())
}

// parseToolArgs maps positional tool names; none means every tool.
func parseToolArgs(args []string) ([]agentlog.Tool, error) {
	if len(args) == 0 {
		return agentlog.Tools, nil
	}
	var tools []agentlog.Tool
	for _, a := range args {
		t, ok := agentlog.ParseTool(a)
		if !ok {
			return nil, fmt.Errorf("unknown tool %q (want claude or codex)", a)
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// collectExternal lists every requested tool, merged newest first.
func collectExternal(cfg *session.UserConfig, filter externalFilter) ([]agentlog.Summary, error) {
	all := []agentlog.Summary{}
	for _, tool := range filter.tools {
		summaries, err := agentlog.ListExternalSessions(tool, cfg.ReaderOptions(tool))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tool, err)
		}
		all = append(all, summaries...)
	}
	if filter.project != "" {
		all = agentlog.MatchSessionsToProject(all, filter.project)
		if all == nil {
			all = []agentlog.Summary{}
		}
	}
	agentlog.SortSummaries(all)
	if filter.limit > 0 && len(all) > filter.limit {
		all = all[:filter.limit]
	}
	return all, nil
}
