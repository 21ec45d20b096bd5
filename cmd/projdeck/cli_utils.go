package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/asheshgoplani/projdeck/internal/state"
)

// normalizeArgs reorders args so flags come before positional arguments.
// The flag package stops at the first non-flag argument, which would make
// "sessions create api --cmd claude" silently ignore --cmd.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--" terminates flag processing
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)
			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") {
				continue
			}
			if !boolFlags[name] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

// stdoutIsTerminal reports whether stdout is an interactive terminal.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// CLIOutput handles consistent output formatting across all CLI commands
type CLIOutput struct {
	jsonMode  bool
	quietMode bool
}

// NewCLIOutput creates an output handler. Piped output is JSON.
func NewCLIOutput(jsonMode, quietMode bool) *CLIOutput {
	return &CLIOutput{
		jsonMode:  jsonMode || !stdoutIsTerminal(),
		quietMode: quietMode,
	}
}

// JSON reports whether output is machine-readable.
func (c *CLIOutput) JSON() bool { return c.jsonMode }

// Success prints a success message or JSON response
func (c *CLIOutput) Success(message string, data any) {
	if c.quietMode {
		return
	}
	if c.jsonMode {
		c.printJSON(data)
		return
	}
	fmt.Printf("%s %s\n", successSymbol, message)
}

// Error prints an error message or JSON error response
func (c *CLIOutput) Error(message string, code string) {
	if c.jsonMode {
		c.printJSON(map[string]any{
			"success": false,
			"error":   message,
			"code":    code,
		})
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

// Warn prints a non-fatal problem to stderr.
func (c *CLIOutput) Warn(message string) {
	if c.quietMode {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", warnSymbol, message)
}

// Print prints data (human-readable or JSON)
func (c *CLIOutput) Print(humanOutput string, jsonData any) {
	if c.quietMode {
		return
	}
	if c.jsonMode {
		c.printJSON(jsonData)
		return
	}
	fmt.Print(humanOutput)
}

func (c *CLIOutput) printJSON(data any) {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to format JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
}

// Symbols for human-readable output
const (
	successSymbol = "✓"
	warnSymbol    = "!"
	bulletSymbol  = "•"
)

// Error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeAmbiguous        = "AMBIGUOUS"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeInvalidPath      = "INVALID_PATH"
	ErrCodeTmux             = "TMUX_UNAVAILABLE"
)

// exitCode maps an error code to the process exit status.
func exitCode(code string) int {
	if code == ErrCodeNotFound {
		return 2
	}
	return 1
}

// fail prints the error and exits.
func (c *CLIOutput) fail(message, code string) {
	c.Error(message, code)
	os.Exit(exitCode(code))
}

// minSessionPrefix is the shortest accepted session name prefix.
const minSessionPrefix = 4

// ResolveSession finds a tracked session by exact name, then by unique
// name prefix. It returns the record or an error message and code.
func ResolveSession(identifier string, doc *state.Document) (*state.SessionRecord, string, string) {
	if identifier == "" {
		return nil, "session name is required", ErrCodeNotFound
	}
	if rec, ok := doc.Sessions[identifier]; ok {
		return rec, "", ""
	}
	if len(identifier) < minSessionPrefix {
		return nil, fmt.Sprintf("session '%s' not found", identifier), ErrCodeNotFound
	}

	var matches []string
	for name := range doc.Sessions {
		if strings.HasPrefix(name, identifier) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Sprintf("session '%s' not found", identifier), ErrCodeNotFound
	case 1:
		return doc.Sessions[matches[0]], "", ""
	}
	sort.Strings(matches)
	return nil, fmt.Sprintf("'%s' matches multiple sessions:\n  - %s\nUse the full name.",
		identifier, strings.Join(matches, "\n  - ")), ErrCodeAmbiguous
}

// ResolveProject finds a project by id or path.
func ResolveProject(identifier string, doc *state.Document) (*state.Project, string, string) {
	if strings.TrimSpace(identifier) == "" {
		return nil, "project id or path is required", ErrCodeNotFound
	}
	cwd, _ := os.Getwd()
	if p := state.FindProject(doc, identifier, cwd); p != nil {
		return p, "", ""
	}
	return nil, fmt.Sprintf("project '%s' not found", identifier), ErrCodeNotFound
}
