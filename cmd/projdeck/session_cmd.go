package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/asheshgoplani/projdeck/internal/session"
	"github.com/asheshgoplani/projdeck/internal/state"
	"github.com/asheshgoplani/projdeck/internal/tmux"
)

// handleSessions dispatches session subcommands
func handleSessions(args []string) {
	if len(args) == 0 {
		printSessionsHelp()
		os.Exit(1)
	}
	switch args[0] {
	case "create", "new":
		handleSessionCreate(args[1:])
	case "link":
		handleSessionLink(args[1:])
	case "unlink":
		handleSessionUnlink(args[1:])
	case "remove", "rm", "kill":
		handleSessionRemove(args[1:])
	case "touch", "attach-touch":
		handleSessionTouch(args[1:])
	case "help", "--help", "-h":
		printSessionsHelp()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown sessions command: %s\n", args[0])
		printSessionsHelp()
		os.Exit(1)
	}
}

func printSessionsHelp() {
	fmt.Println("Usage: projdeck sessions <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  create <project> [--cmd c]  Start a managed tmux session in the project")
	fmt.Println("  link <name> <project>       Associate a running tmux session with a project")
	fmt.Println("  unlink <name>               Stop tracking a session (it keeps running)")
	fmt.Println("  rm <name>                   Kill a session and drop its record")
	fmt.Println("  touch <name>                Record that the session was just attached")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --json                 Output as JSON")
	fmt.Println("  -q, --quiet            Minimal output (exit codes only)")
}

// sessionFlags holds the output flags every session subcommand accepts.
type sessionFlags struct {
	fs         *flag.FlagSet
	jsonOutput *bool
	quiet      *bool
	quietShort *bool
}

func newSessionFlags(name string) *sessionFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &sessionFlags{
		fs:         fs,
		jsonOutput: fs.Bool("json", false, "Output as JSON"),
		quiet:      fs.Bool("quiet", false, "Minimal output"),
		quietShort: fs.Bool("q", false, "Minimal output (short)"),
	}
}

func (f *sessionFlags) parse(args []string) *CLIOutput {
	if err := f.fs.Parse(normalizeArgs(f.fs, args)); err != nil {
		os.Exit(1)
	}
	return NewCLIOutput(*f.jsonOutput, *f.quiet || *f.quietShort)
}

// openAppWithTmux opens the app and fails early when tmux is missing.
func openAppWithTmux(out *CLIOutput) *app {
	if err := tmux.IsTmuxAvailable(); err != nil {
		out.fail(err.Error(), ErrCodeTmux)
	}
	a, err := openApp(out)
	if err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	return a
}

func handleSessionCreate(args []string) {
	f := newSessionFlags("sessions create")
	command := f.fs.String("cmd", "", "Command to run (default: login shell)")
	commandShort := f.fs.String("c", "", "Command to run (short)")
	out := f.parse(args)

	a := openAppWithTmux(out)
	defer a.close()

	token := f.fs.Arg(0)
	if token == "" {
		token = "."
	}
	p, msg, code := ResolveProject(token, a.doc)
	if p == nil {
		// An unknown path is registered on the spot.
		cwd, _ := os.Getwd()
		var err error
		p, err = state.NormalizeAndEnsureProject(a.doc, token, cwd, nowFunc())
		if err != nil {
			if errors.Is(err, state.ErrInvalidPath) {
				out.fail(fmt.Sprintf("%s: %v", msg, err), ErrCodeInvalidPath)
			}
			out.fail(msg, code)
		}
	}

	rec, err := session.CreateManagedSession(a.doc, a.mux, p, firstNonEmpty(*command, *commandShort), nowFunc())
	if err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	if err := a.save(); err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}

	out.Success(fmt.Sprintf("Created session %s\n  attach: tmux attach -t =%s", rec.Name, rec.Name), map[string]any{
		"success": true,
		"session": rec,
	})
}

func handleSessionLink(args []string) {
	f := newSessionFlags("sessions link")
	out := f.parse(args)
	if f.fs.NArg() < 2 {
		out.fail("usage: projdeck sessions link <name> <project>", ErrCodeInvalidOperation)
	}

	a := openAppWithTmux(out)
	defer a.close()

	p, msg, code := ResolveProject(f.fs.Arg(1), a.doc)
	if p == nil {
		out.fail(msg, code)
	}
	rec, err := session.LinkSession(a.doc, a.mux, f.fs.Arg(0), p, nowFunc())
	switch {
	case errors.Is(err, session.ErrSessionTracked):
		out.fail(err.Error(), ErrCodeAlreadyExists)
	case errors.Is(err, session.ErrSessionNotLive):
		out.fail(err.Error(), ErrCodeNotFound)
	case err != nil:
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	if err := a.save(); err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}

	out.Success(fmt.Sprintf("Linked %s to %s", rec.Name, p.Name), map[string]any{
		"success": true,
		"session": rec,
	})
}

func handleSessionUnlink(args []string) {
	f := newSessionFlags("sessions unlink")
	out := f.parse(args)

	a := openAppWithTmux(out)
	defer a.close()

	rec, msg, code := ResolveSession(f.fs.Arg(0), a.doc)
	if rec == nil {
		out.fail(msg, code)
	}
	if err := session.UnlinkSession(a.doc, a.mux, rec.Name); err != nil {
		out.fail(err.Error(), ErrCodeTmux)
	}
	if err := a.save(); err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}

	out.Success(fmt.Sprintf("Unlinked %s", rec.Name), map[string]any{
		"success": true,
		"name":    rec.Name,
	})
}

func handleSessionRemove(args []string) {
	f := newSessionFlags("sessions rm")
	out := f.parse(args)

	a := openAppWithTmux(out)
	defer a.close()

	rec, msg, code := ResolveSession(f.fs.Arg(0), a.doc)
	if rec == nil {
		out.fail(msg, code)
	}
	if err := session.DeleteSession(a.doc, a.mux, rec.Name); err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	if err := a.save(); err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}

	out.Success(fmt.Sprintf("Removed session %s", rec.Name), map[string]any{
		"success": true,
		"name":    rec.Name,
	})
}

func handleSessionTouch(args []string) {
	f := newSessionFlags("sessions touch")
	out := f.parse(args)

	a, err := openApp(out)
	if err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	defer a.close()

	rec, msg, code := ResolveSession(f.fs.Arg(0), a.doc)
	if rec == nil {
		out.fail(msg, code)
	}
	if err := session.TouchAttached(a.doc, rec.Name, nowFunc()); err != nil {
		out.fail(err.Error(), ErrCodeNotFound)
	}
	if err := a.save(); err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}

	out.Success(fmt.Sprintf("Touched %s", rec.Name), map[string]any{
		"success":          true,
		"name":             rec.Name,
		"last_attached_at": rec.LastAttachedAt,
	})
}
