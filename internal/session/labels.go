package session

import (
	"strings"

	"github.com/asheshgoplani/projdeck/internal/state"
)

// ShellLabel is the label for sessions with no recorded command.
const ShellLabel = "shell"

// LabelInput is one session to label.
type LabelInput struct {
	Name    string
	Command string
}

// DisambiguateLabels returns a short display label per session name.
// Sessions whose commands share a first token are labeled with the
// shortest token prefix that no other distinct command in the group shares;
// a command that is a prefix of another keeps its full text.
func DisambiguateLabels(sessions []LabelInput) map[string]string {
	labels := make(map[string]string, len(sessions))

	type entry struct {
		name   string
		tokens []string
	}
	groups := make(map[string][]entry)
	var order []string
	for _, s := range sessions {
		tokens := strings.Fields(s.Command)
		base := ShellLabel
		if len(tokens) > 0 {
			base = tokens[0]
		}
		if _, ok := groups[base]; !ok {
			order = append(order, base)
		}
		groups[base] = append(groups[base], entry{name: s.Name, tokens: tokens})
	}

	for _, base := range order {
		members := groups[base]
		distinct := make(map[string][]string)
		for _, m := range members {
			distinct[strings.Join(m.tokens, " ")] = m.tokens
		}
		if len(distinct) == 1 {
			for _, m := range members {
				labels[m.name] = base
			}
			continue
		}
		for _, m := range members {
			full := strings.Join(m.tokens, " ")
			labels[m.name] = shortestUnsharedPrefix(full, m.tokens, distinct)
		}
	}
	return labels
}

func shortestUnsharedPrefix(full string, tokens []string, distinct map[string][]string) string {
	for k := 1; k <= len(tokens); k++ {
		shared := false
		for other, otherTokens := range distinct {
			if other == full {
				continue
			}
			if hasTokenPrefix(otherTokens, tokens[:k]) {
				shared = true
				break
			}
		}
		if !shared {
			return strings.Join(tokens[:k], " ")
		}
	}
	if full == "" {
		return ShellLabel
	}
	return full
}

func hasTokenPrefix(tokens, prefix []string) bool {
	if len(prefix) > len(tokens) {
		return false
	}
	for i := range prefix {
		if tokens[i] != prefix[i] {
			return false
		}
	}
	return true
}

// ProjectLabels labels every tracked session of one project.
func ProjectLabels(doc *state.Document, projectID string) map[string]string {
	recs := doc.SessionsForProject(projectID)
	in := make([]LabelInput, 0, len(recs))
	for _, r := range recs {
		in = append(in, LabelInput{Name: r.Name, Command: r.Command})
	}
	return DisambiguateLabels(in)
}
