package main

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"github.com/asheshgoplani/projdeck/internal/agentlog"
)

// Table column widths
const (
	colName   = 30
	colLabel  = 20
	colKind   = 8
	colState  = 10
	colPath   = 40
	colPrompt = 48
	colWhen   = 16
)

var (
	colorUser      = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#9ece6a"}
	colorAssistant = lipgloss.AdaptiveColor{Light: "#b26a00", Dark: "#e0af68"}
	colorExited    = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#565f89"}
	colorAccent    = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#7aa2f7"}

	headerStyle  = lipgloss.NewStyle().Bold(true)
	projectStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(colorExited)
)

// initColorProfile picks the lipgloss color profile.
// PROJDECK_COLOR (truecolor, 256, 16, none) overrides detection.
func initColorProfile() {
	switch strings.ToLower(os.Getenv("PROJDECK_COLOR")) {
	case "truecolor", "true", "24bit":
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	case "256", "ansi256":
		lipgloss.SetColorProfile(termenv.ANSI256)
		return
	case "16", "ansi", "basic":
		lipgloss.SetColorProfile(termenv.ANSI)
		return
	case "none", "off", "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	if os.Getenv("NO_COLOR") != "" || !stdoutIsTerminal() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(os.Stdout).EnvColorProfile())
}

// truncate shortens s to width display cells.
func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// cell truncates and pads s to exactly width display cells.
func cell(s string, width int) string {
	return runewidth.FillRight(truncate(s, width), width)
}

// relativeTime renders t relative to now, or "-" when unset.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// activityStyle colors an activity state.
func activityStyle(s agentlog.ActivityState) lipgloss.Style {
	switch s {
	case agentlog.ActivityUser:
		return lipgloss.NewStyle().Foreground(colorUser).Bold(true)
	case agentlog.ActivityAssistant:
		return lipgloss.NewStyle().Foreground(colorAssistant)
	case agentlog.ActivityExited:
		return dimStyle
	}
	return lipgloss.NewStyle()
}

// activityCell renders a padded, colored activity state.
func activityCell(s agentlog.ActivityState) string {
	text := string(s)
	if text == "" {
		text = "-"
	}
	return activityStyle(s).Render(cell(text, colState))
}
