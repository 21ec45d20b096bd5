package session

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"testing"

	"github.com/asheshgoplani/projdeck/internal/tmux"
)

// fakeMux is an in-memory tmux server.
type fakeMux struct {
	envs    map[string]map[string]string
	order   []string
	listErr error

	newErr   error
	envErr   error
	unsetErr error
}

func newFakeMux() *fakeMux {
	return &fakeMux{envs: make(map[string]map[string]string)}
}

// start adds a live session with env.
func (f *fakeMux) start(name string, env map[string]string) {
	if _, ok := f.envs[name]; !ok {
		f.order = append(f.order, name)
	}
	f.envs[name] = maps.Clone(env)
	if f.envs[name] == nil {
		f.envs[name] = make(map[string]string)
	}
}

func (f *fakeMux) stop(name string) {
	delete(f.envs, name)
	for i, n := range f.order {
		if n == name {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *fakeMux) ListLiveSessions() ([]tmux.LiveSession, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]tmux.LiveSession, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, tmux.LiveSession{Name: name, Windows: 1})
	}
	return out, nil
}

func (f *fakeMux) GetSessionEnv(name, key string) (string, bool) {
	env, ok := f.envs[name]
	if !ok {
		return "", false
	}
	v, ok := env[key]
	return v, ok
}

func (f *fakeMux) HasSession(name string) bool {
	_, ok := f.envs[name]
	return ok
}

func (f *fakeMux) NewSession(name, workDir, command string) error {
	if f.newErr != nil {
		return f.newErr
	}
	if f.HasSession(name) {
		return fmt.Errorf("duplicate session: %s", name)
	}
	f.start(name, nil)
	return nil
}

func (f *fakeMux) KillSession(name string) error {
	if !f.HasSession(name) {
		return tmux.ErrSessionNotFound
	}
	f.stop(name)
	return nil
}

func (f *fakeMux) SetEnvironmentMap(name string, env map[string]string) error {
	if f.envErr != nil {
		return f.envErr
	}
	if !f.HasSession(name) {
		return tmux.ErrSessionNotFound
	}
	maps.Copy(f.envs[name], env)
	return nil
}

func (f *fakeMux) UnsetEnvironment(name, key string) error {
	if f.unsetErr != nil {
		return f.unsetErr
	}
	if !f.HasSession(name) {
		return tmux.ErrSessionNotFound
	}
	delete(f.envs[name], key)
	return nil
}

// projectDir returns a resolved temp directory named name.
func projectDir(t *testing.T, name string) string {
	t.Helper()
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}
	dir := filepath.Join(base, name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return dir
}
