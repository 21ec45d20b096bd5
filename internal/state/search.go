package state

import (
	"github.com/sahilm/fuzzy"
)

// projectSource adapts a project slice to fuzzy.Source. Names and paths are
// both searchable.
type projectSource []*Project

func (s projectSource) String(i int) string { return s[i].Name + " " + s[i].Path }

func (s projectSource) Len() int { return len(s) }

// SearchProjects ranks projects by fuzzy match against query. An empty query
// returns every project in SortedProjects order.
func SearchProjects(doc *Document, query string) []*Project {
	all := doc.SortedProjects()
	if query == "" {
		return all
	}
	matches := fuzzy.FindFrom(query, projectSource(all))
	out := make([]*Project, 0, len(matches))
	for _, m := range matches {
		out = append(out, all[m.Index])
	}
	return out
}
