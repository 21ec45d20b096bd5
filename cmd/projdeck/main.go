package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/asheshgoplani/projdeck/internal/logging"
	"github.com/asheshgoplani/projdeck/internal/session"
)

// Version is set at build time with -ldflags.
var Version = "0.1.0"

// nowFunc is the clock for every command.
var nowFunc = time.Now

func main() {
	dir := initLogging()
	initColorProfile()
	if dir != "" {
		handleDumpSignal(dir)
	}

	code := run(os.Args[1:])
	logging.Shutdown()
	os.Exit(code)
}

func run(args []string) int {
	if len(args) == 0 {
		handleList(nil)
		return 0
	}
	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("projdeck v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "list", "ls":
		handleList(args[1:])
	case "refresh":
		handleRefresh(args[1:])
	case "projects", "project", "p":
		handleProjects(args[1:])
	case "sessions", "session", "s":
		handleSessions(args[1:])
	case "external", "ext":
		handleExternal(args[1:])
	case "watch":
		handleWatch(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		printHelp()
		return 1
	}
	return 0
}

// initLogging wires [logs] into the logging package and routes stdlib log
// output through it. It returns the projdeck dir, or "" if unknown.
func initLogging() string {
	settings := session.GetLogSettings()
	dir, err := session.GetProjdeckDir()
	if err != nil {
		dir = ""
	}
	logging.Init(settings.LoggingConfig(dir))
	log.SetFlags(0)
	log.SetOutput(logging.NewBridgeWriter(logging.CompCLI))
	return dir
}

// handleDumpSignal dumps the log ring buffer into dir on SIGUSR1, which is
// mostly useful against a long-running watch.
func handleDumpSignal(dir string) {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			path, err := writeCrashDump(dir, nowFunc())
			if err != nil {
				cliLog.Error("crash_dump_failed", slog.String("error", err.Error()))
				continue
			}
			cliLog.Info("crash_dump_written", slog.String("path", path))
		}
	}()
}

func writeCrashDump(dir string, now time.Time) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.jsonl", now.Unix()))
	if err := logging.DumpRingBuffer(path); err != nil {
		return "", err
	}
	return path, nil
}

func printHelp() {
	var b bytes.Buffer
	fmt.Fprintf(&b, "projdeck v%s\n\n", Version)
	fmt.Fprintln(&b, "Track projects and their tmux sessions, and see what your AI assistants are doing.")
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Usage: projdeck <command> [options]")
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Commands:")
	fmt.Fprintln(&b, "  list, ls                    Reconcile with tmux and list projects and sessions")
	fmt.Fprintln(&b, "  refresh                     Reconcile with tmux and report what changed")
	fmt.Fprintln(&b, "  projects <command>          Add, find or remove projects")
	fmt.Fprintln(&b, "  sessions <command>          Create, link, unlink or remove sessions")
	fmt.Fprintln(&b, "  external [claude|codex]     List Claude / Codex sessions from their logs")
	fmt.Fprintln(&b, "  watch                       Re-list external sessions as their logs change")
	fmt.Fprintln(&b, "  version                     Show version")
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Output is JSON when stdout is not a terminal or --json is given.")
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "State lives in ~/.projdeck (override with %s).\n", session.HomeEnv)
	fmt.Print(b.String())
}

func handleList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	all := fs.Bool("all", false, "Include live tmux sessions that are not tracked")
	allShort := fs.Bool("a", false, "Include untracked sessions (short)")

	fs.Usage = func() {
		fmt.Println("Usage: projdeck list [options]")
		fmt.Println()
		fmt.Println("Reconcile with tmux, then list projects and their sessions.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	a, err := openApp(out)
	if err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	defer a.close()

	stale := false
	_, live, err := a.refresh()
	if err != nil {
		stale = true
		out.Warn(err.Error())
	}

	view := buildListView(a.doc, live, stale, *all || *allShort)
	if out.JSON() {
		out.printJSON(view)
		return
	}
	renderList(os.Stdout, view)
}

func handleRefresh(args []string) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	quiet := fs.Bool("quiet", false, "Minimal output")
	quietShort := fs.Bool("q", false, "Minimal output (short)")

	fs.Usage = func() {
		fmt.Println("Usage: projdeck refresh [options]")
		fmt.Println()
		fmt.Println("Drop records of sessions that are gone and adopt live sessions")
		fmt.Println("that carry projdeck provenance.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, *quiet || *quietShort)
	a, err := openApp(out)
	if err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	defer a.close()

	res, _, err := a.refresh()
	if err != nil {
		out.fail(err.Error(), ErrCodeTmux)
	}

	var b bytes.Buffer
	if !res.Changed() {
		fmt.Fprintf(&b, "%s Up to date\n", successSymbol)
	}
	for _, name := range res.Removed {
		fmt.Fprintf(&b, "  - %s\n", name)
	}
	for _, name := range res.Added {
		fmt.Fprintf(&b, "  + %s\n", name)
	}
	for _, id := range res.CreatedProjects {
		if p, ok := a.doc.Projects[id]; ok {
			fmt.Fprintf(&b, "  + project %s (%s)\n", p.Name, p.Path)
		}
	}
	out.Print(b.String(), map[string]any{
		"success":          true,
		"removed":          emptyIfNil(res.Removed),
		"added":            emptyIfNil(res.Added),
		"created_projects": emptyIfNil(res.CreatedProjects),
	})
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
