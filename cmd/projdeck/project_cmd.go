package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/asheshgoplani/projdeck/internal/session"
	"github.com/asheshgoplani/projdeck/internal/state"
)

// handleProjects dispatches project subcommands
func handleProjects(args []string) {
	if len(args) == 0 {
		handleProjectList(nil)
		return
	}
	switch args[0] {
	case "add":
		handleProjectAdd(args[1:])
	case "list", "ls", "find", "search":
		handleProjectList(args[1:])
	case "remove", "rm":
		handleProjectRemove(args[1:])
	case "help", "--help", "-h":
		printProjectsHelp()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown projects command: %s\n", args[0])
		printProjectsHelp()
		os.Exit(1)
	}
}

func printProjectsHelp() {
	fmt.Println("Usage: projdeck projects <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  add <path>              Track a directory (symlinks resolved)")
	fmt.Println("  list [query]            List projects, fuzzy-filtered by name or path")
	fmt.Println("  rm <id|path>            Forget a project and its session records")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --json                 Output as JSON")
	fmt.Println("  -q, --quiet            Minimal output (exit codes only)")
}

func handleProjectAdd(args []string) {
	fs := flag.NewFlagSet("projects add", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	quiet := fs.Bool("quiet", false, "Minimal output")
	quietShort := fs.Bool("q", false, "Minimal output (short)")
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, *quiet || *quietShort)
	path := fs.Arg(0)
	if path == "" {
		path = "."
	}

	a, err := openApp(out)
	if err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	defer a.close()

	cwd, _ := os.Getwd()
	now := nowFunc()
	p, err := state.NormalizeAndEnsureProject(a.doc, path, cwd, now)
	if err != nil {
		if errors.Is(err, state.ErrInvalidPath) {
			out.fail(err.Error(), ErrCodeInvalidPath)
		}
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	if err := a.save(); err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}

	created := p.CreatedAt.Equal(now)
	msg := fmt.Sprintf("Added project %s (%s)", p.Name, p.Path)
	if !created {
		msg = fmt.Sprintf("Project %s already tracked (%s)", p.Name, p.ID)
	}
	out.Success(msg, map[string]any{
		"success": true,
		"created": created,
		"project": p,
	})
}

func handleProjectList(args []string) {
	fs := flag.NewFlagSet("projects list", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	a, err := openApp(out)
	if err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	defer a.close()

	projects := state.SearchProjects(a.doc, fs.Arg(0))
	if out.JSON() {
		if projects == nil {
			projects = []*state.Project{}
		}
		out.printJSON(projects)
		return
	}
	if len(projects) == 0 {
		fmt.Println("No matching projects.")
		return
	}
	var b bytes.Buffer
	renderProjects(&b, projects, a.doc)
	fmt.Print(b.String())
}

func handleProjectRemove(args []string) {
	fs := flag.NewFlagSet("projects rm", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	quiet := fs.Bool("quiet", false, "Minimal output")
	quietShort := fs.Bool("q", false, "Minimal output (short)")
	kill := fs.Bool("kill", false, "Also kill the project's tmux sessions")
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, *quiet || *quietShort)
	a, err := openApp(out)
	if err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}
	defer a.close()

	p, msg, code := ResolveProject(fs.Arg(0), a.doc)
	if p == nil {
		out.fail(msg, code)
	}

	var killed []string
	if *kill {
		for _, rec := range a.doc.SessionsForProject(p.ID) {
			if err := session.DeleteSession(a.doc, a.mux, rec.Name); err != nil {
				out.Warn(err.Error())
				continue
			}
			killed = append(killed, rec.Name)
		}
	}
	removed := append(killed, state.DeleteProject(a.doc, p.ID)...)
	if err := a.save(); err != nil {
		out.fail(err.Error(), ErrCodeInvalidOperation)
	}

	out.Success(fmt.Sprintf("Removed project %s (%d session records)", p.Name, len(removed)), map[string]any{
		"success":          true,
		"id":               p.ID,
		"removed_sessions": emptyIfNil(removed),
	})
}
