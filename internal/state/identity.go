package state

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// ProjectIDLength is the number of hex characters kept from the path hash.
	ProjectIDLength = 16

	// SessionNamePrefix marks tmux sessions created by projdeck.
	SessionNamePrefix = "pd_"

	// SessionIDPrefixLength is how much of the project id a session name embeds.
	SessionIDPrefixLength = 8

	maxSlugLength = 24
)

// tmux treats '.' and ':' as target separators, so only these survive.
var slugUnsafe = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// ComputeProjectID hashes a canonical path into a stable project id.
// Callers canonicalize first; the same string always yields the same id.
func ComputeProjectID(canonicalPath string) string {
	sum := sha256.Sum256([]byte(canonicalPath))
	return hex.EncodeToString(sum[:])[:ProjectIDLength]
}

// ExpandPath expands environment variables and a leading ~.
func ExpandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// CanonicalizePath resolves raw against cwd and follows symlinks. The result
// must be an existing directory.
func CanonicalizePath(raw, cwd string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", &InvalidPathError{Path: raw, Reason: "empty path"}
	}
	p := ExpandPath(raw)
	if !filepath.IsAbs(p) {
		if cwd == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", &InvalidPathError{Path: raw, Reason: "cannot determine working directory", Err: err}
			}
			cwd = wd
		}
		p = filepath.Join(cwd, p)
	}
	p = filepath.Clean(p)

	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", &InvalidPathError{Path: raw, Reason: "does not exist", Err: err}
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", &InvalidPathError{Path: raw, Reason: "cannot stat", Err: err}
	}
	if !info.IsDir() {
		return "", &InvalidPathError{Path: raw, Reason: "not a directory"}
	}
	return real, nil
}

// ProjectNameFromPath names a project after the final path segment.
func ProjectNameFromPath(path string) string {
	name := filepath.Base(filepath.Clean(path))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "root"
	}
	return name
}

// NormalizeAndEnsureProject returns the project for rawPath, creating it if
// needed. An existing project has LastUsedAt bumped to now.
func NormalizeAndEnsureProject(doc *Document, rawPath, cwd string, now time.Time) (*Project, error) {
	canonical, err := CanonicalizePath(rawPath, cwd)
	if err != nil {
		return nil, err
	}
	doc.EnsureMaps()

	id := ComputeProjectID(canonical)
	p, ok := doc.Projects[id]
	if !ok {
		// Adopted sessions may have registered the path under another id.
		p = FindProjectByPath(doc, canonical)
	}
	if p != nil {
		p.LastUsedAt = now
		return p, nil
	}
	p = &Project{
		ID:         id,
		Name:       ProjectNameFromPath(canonical),
		Path:       canonical,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	doc.Projects[id] = p
	return p, nil
}

// FindProjectByPath returns the project stored under the canonical path.
func FindProjectByPath(doc *Document, canonical string) *Project {
	for _, p := range doc.Projects {
		if p.Path == canonical {
			return p
		}
	}
	return nil
}

// FindProject resolves token as a project id, then as a path relative to cwd.
// It returns nil when nothing matches.
func FindProject(doc *Document, token, cwd string) *Project {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if p, ok := doc.Projects[token]; ok {
		return p
	}
	canonical, err := CanonicalizePath(token, cwd)
	if err != nil {
		// The directory may be gone while the project is still tracked.
		p := ExpandPath(token)
		if !filepath.IsAbs(p) {
			p = filepath.Join(cwd, p)
		}
		return FindProjectByPath(doc, filepath.Clean(p))
	}
	if p, ok := doc.Projects[ComputeProjectID(canonical)]; ok {
		return p
	}
	return FindProjectByPath(doc, canonical)
}

// DeleteProject removes a project and every session that references it.
// It returns the removed session names.
func DeleteProject(doc *Document, id string) []string {
	if _, ok := doc.Projects[id]; !ok {
		return nil
	}
	var removed []string
	for _, rec := range doc.SessionsForProject(id) {
		delete(doc.Sessions, rec.Name)
		removed = append(removed, rec.Name)
	}
	delete(doc.Projects, id)
	return removed
}

// Slugify reduces s to characters tmux accepts in a session name.
func Slugify(s string) string {
	slug := strings.Trim(slugUnsafe.ReplaceAllString(s, "-"), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		slug = "project"
	}
	return slug
}

// FormatNewSessionName builds pd_<slug>_<id8>. The embedded id prefix lets a
// session be traced to its project without the state document.
func FormatNewSessionName(projectName, projectIDPrefix string) string {
	idPart := strings.ToLower(slugUnsafe.ReplaceAllString(projectIDPrefix, ""))
	if len(idPart) > SessionIDPrefixLength {
		idPart = idPart[:SessionIDPrefixLength]
	}
	if idPart == "" {
		idPart = "0"
	}
	return SessionNamePrefix + Slugify(projectName) + "_" + idPart
}

// UniqueSessionName returns base, or base_N for the smallest N >= 2 that
// taken reports as free.
func UniqueSessionName(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "_" + strconv.Itoa(n)
		if !taken(candidate) {
			return candidate
		}
	}
}

// ParseSessionName reverses FormatNewSessionName, accepting an optional
// ordinal suffix from UniqueSessionName.
func ParseSessionName(name string) (slug, idPrefix string, ok bool) {
	rest, found := strings.CutPrefix(name, SessionNamePrefix)
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "_")
	switch len(parts) {
	case 2:
	case 3:
		if _, err := strconv.Atoi(parts[2]); err != nil {
			return "", "", false
		}
	default:
		return "", "", false
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
