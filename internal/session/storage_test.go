package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/projdeck/internal/state"
)

func sampleDocument() *state.Document {
	created := time.Unix(1767225600, 0)
	doc := state.NewDocument()
	doc.Projects["p1"] = &state.Project{ID: "p1", Name: "api", Path: "/src/api", CreatedAt: created, LastUsedAt: created.Add(time.Hour)}
	doc.Projects["p2"] = &state.Project{ID: "p2", Name: "web", Path: "/src/web", CreatedAt: created}
	doc.Sessions["pd_api_p1"] = &state.SessionRecord{
		Name: "pd_api_p1", ProjectID: "p1", ProjectPath: "/src/api",
		CreatedAt: created, Command: "claude", Kind: state.KindManaged,
		LastAttachedAt: created.Add(30 * time.Minute),
	}
	doc.Sessions["scratch"] = &state.SessionRecord{
		Name: "scratch", ProjectID: "p2", ProjectPath: "/src/web",
		CreatedAt: created, Kind: state.KindLinked,
	}
	return doc
}

func TestStorage_RoundTrip(t *testing.T) {
	for _, backend := range []string{BackendJSON, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			name := state.StateFileName
			if backend == BackendSQLite {
				name = StateDBFileName
			}
			s, err := NewStorageAt(backend, filepath.Join(t.TempDir(), name))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			assert.Equal(t, backend, s.Backend())

			_, err = s.Load()
			assert.True(t, IsNotFound(err), "fresh store should report not found, got %v", err)

			empty, err := s.LoadDocument()
			require.NoError(t, err)
			assert.Empty(t, empty.Projects)

			doc := sampleDocument()
			require.NoError(t, s.Save(doc))

			got, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, len(doc.Projects), len(got.Projects))
			for id, p := range doc.Projects {
				gp := got.Projects[id]
				require.NotNil(t, gp, id)
				assert.Equal(t, p.Name, gp.Name)
				assert.Equal(t, p.Path, gp.Path)
				assert.True(t, p.CreatedAt.Equal(gp.CreatedAt))
				assert.True(t, p.LastUsedAt.Equal(gp.LastUsedAt))
			}
			for name, r := range doc.Sessions {
				gr := got.Sessions[name]
				require.NotNil(t, gr, name)
				assert.Equal(t, r.ProjectID, gr.ProjectID)
				assert.Equal(t, r.Command, gr.Command)
				assert.Equal(t, r.Kind, gr.Kind)
				assert.True(t, r.LastAttachedAt.Equal(gr.LastAttachedAt))
			}

			// Deleting a project is reflected after the next save.
			state.DeleteProject(got, "p2")
			require.NoError(t, s.Save(got))
			again, err := s.Load()
			require.NoError(t, err)
			assert.NotContains(t, again.Projects, "p2")
			assert.NotContains(t, again.Sessions, "scratch")
			assert.Contains(t, again.Sessions, "pd_api_p1")
		})
	}
}

func TestStorage_SQLiteSavedEmptyIsNotNotFound(t *testing.T) {
	s, err := NewStorageAt(BackendSQLite, filepath.Join(t.TempDir(), StateDBFileName))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(state.NewDocument()))
	doc, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Projects)
}

func TestStorage_SQLiteImportsJSON(t *testing.T) {
	dir := t.TempDir()
	jsonStore := state.NewJSONStore(filepath.Join(dir, state.StateFileName))
	require.NoError(t, jsonStore.Save(sampleDocument()))

	s, err := NewStorageAt(BackendSQLite, filepath.Join(dir, StateDBFileName))
	require.NoError(t, err)

	doc, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, doc.Projects, 2)
	assert.Len(t, doc.Sessions, 2)
	require.NoError(t, s.Close())

	// A second open does not import again over newer data.
	s2, err := NewStorageAt(BackendSQLite, filepath.Join(dir, StateDBFileName))
	require.NoError(t, err)
	defer s2.Close()
	doc, err = s2.Load()
	require.NoError(t, err)
	state.DeleteProject(doc, "p1")
	state.DeleteProject(doc, "p2")
	require.NoError(t, s2.Save(doc))

	s3, err := NewStorageAt(BackendSQLite, filepath.Join(dir, StateDBFileName))
	require.NoError(t, err)
	defer s3.Close()
	doc, err = s3.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Projects)
}

func TestStorage_UnknownBackend(t *testing.T) {
	_, err := NewStorageAt("yaml", filepath.Join(t.TempDir(), "x"))
	assert.Error(t, err)
}

func TestNewStorageWithConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	s, err := NewStorageWithConfig(&UserConfig{})
	require.NoError(t, err)
	assert.Equal(t, BackendJSON, s.Backend())
	assert.Equal(t, filepath.Join(home, state.StateFileName), s.Path())

	s, err = NewStorageWithConfig(&UserConfig{Storage: StorageSettings{Backend: BackendSQLite}})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, filepath.Join(home, StateDBFileName), s.Path())
	_, err = os.Stat(s.Path())
	assert.NoError(t, err)
}

func TestRowsFromDocument_ProjectsBeforeSessions(t *testing.T) {
	projects, sessions := rowsFromDocument(sampleDocument())
	assert.Len(t, projects, 2)
	assert.Len(t, sessions, 2)

	back := documentFromRows(projects, sessions)
	assert.Equal(t, state.KindManaged, back.Sessions["pd_api_p1"].Kind)

}
