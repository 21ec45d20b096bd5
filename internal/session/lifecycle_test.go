package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/projdeck/internal/state"
)

func newTestProject(t *testing.T, doc *state.Document, name string) *state.Project {
	t.Helper()
	p, err := state.NormalizeAndEnsureProject(doc, projectDir(t, name), "", reconcileNow.Add(-time.Hour))
	require.NoError(t, err)
	return p
}

func TestCreateManagedSession(t *testing.T) {
	doc := state.NewDocument()
	p := newTestProject(t, doc, "webapp")
	mux := newFakeMux()

	rec, err := CreateManagedSession(doc, mux, p, "claude", reconcileNow)
	require.NoError(t, err)

	assert.Equal(t, state.FormatNewSessionName("webapp", p.ID), rec.Name)
	assert.Equal(t, state.KindManaged, rec.Kind)
	assert.Equal(t, "claude", rec.Command)
	assert.Equal(t, p.Path, rec.ProjectPath)
	assert.Equal(t, reconcileNow, p.LastUsedAt)
	assert.Same(t, rec, doc.Sessions[rec.Name])

	require.True(t, mux.HasSession(rec.Name))
	env := mux.envs[rec.Name]
	assert.Equal(t, p.Path, env[EnvProjectPath])
	assert.Equal(t, p.ID, env[EnvProjectID])
	assert.Equal(t, "claude", env[EnvCommand])
	assert.Equal(t, "1", env[EnvManaged])
	assert.Equal(t, reconcileNow.Format(time.RFC3339), env[EnvCreatedAt])
}

func TestCreateManagedSession_SecondSessionGetsOrdinal(t *testing.T) {
	doc := state.NewDocument()
	p := newTestProject(t, doc, "webapp")
	mux := newFakeMux()

	first, err := CreateManagedSession(doc, mux, p, "claude", reconcileNow)
	require.NoError(t, err)
	second, err := CreateManagedSession(doc, mux, p, "codex", reconcileNow)
	require.NoError(t, err)

	assert.Equal(t, first.Name+"_2", second.Name)
	_, prefix, ok := state.ParseSessionName(second.Name)
	require.True(t, ok)
	assert.Len(t, prefix, state.SessionIDPrefixLength)
}

func TestCreateManagedSession_RecoverableAfterStateLoss(t *testing.T) {
	doc := state.NewDocument()
	p := newTestProject(t, doc, "webapp")
	mux := newFakeMux()

	rec, err := CreateManagedSession(doc, mux, p, "claude", reconcileNow)
	require.NoError(t, err)

	fresh := state.NewDocument()
	live, _ := mux.ListLiveSessions()
	res := Reconcile(fresh, live, mux, reconcileNow.Add(time.Minute))

	assert.Equal(t, []string{rec.Name}, res.Added)
	got := fresh.Sessions[rec.Name]
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ProjectID)
	assert.Equal(t, state.KindManaged, got.Kind)
	assert.Equal(t, "claude", got.Command)
	assert.True(t, got.CreatedAt.Equal(reconcileNow))
}

func TestCreateManagedSession_Failures(t *testing.T) {
	t.Run("new-session fails", func(t *testing.T) {
		doc := state.NewDocument()
		p := newTestProject(t, doc, "api")
		mux := newFakeMux()
		mux.newErr = errors.New("no server")

		_, err := CreateManagedSession(doc, mux, p, "", reconcileNow)
		require.Error(t, err)
		assert.Empty(t, doc.Sessions)
	})

	t.Run("env fails kills session", func(t *testing.T) {
		doc := state.NewDocument()
		p := newTestProject(t, doc, "api")
		mux := newFakeMux()
		mux.envErr = errors.New("set-environment failed")

		_, err := CreateManagedSession(doc, mux, p, "", reconcileNow)
		require.Error(t, err)
		assert.Empty(t, doc.Sessions)
		assert.Empty(t, mux.order)
	})
}

func TestLinkSession(t *testing.T) {
	doc := state.NewDocument()
	p := newTestProject(t, doc, "notes")
	mux := newFakeMux()
	mux.start("scratch", nil)

	rec, err := LinkSession(doc, mux, "scratch", p, reconcileNow)
	require.NoError(t, err)
	assert.Equal(t, state.KindLinked, rec.Kind)
	assert.Empty(t, rec.Command)
	assert.Equal(t, "0", mux.envs["scratch"][EnvManaged])
	assert.Equal(t, p.Path, mux.envs["scratch"][EnvProjectPath])

	_, err = LinkSession(doc, mux, "scratch", p, reconcileNow)
	assert.ErrorIs(t, err, ErrSessionTracked)

	_, err = LinkSession(doc, mux, "missing", p, reconcileNow)
	assert.ErrorIs(t, err, ErrSessionNotLive)
}

func TestUnlinkSession_NotReadopted(t *testing.T) {
	doc := state.NewDocument()
	p := newTestProject(t, doc, "notes")
	mux := newFakeMux()
	mux.start("scratch", map[string]string{"OTHER": "kept"})

	_, err := LinkSession(doc, mux, "scratch", p, reconcileNow)
	require.NoError(t, err)
	require.NoError(t, UnlinkSession(doc, mux, "scratch"))

	assert.NotContains(t, doc.Sessions, "scratch")
	assert.True(t, mux.HasSession("scratch"), "unlink leaves the session running")
	assert.Equal(t, map[string]string{"OTHER": "kept"}, mux.envs["scratch"])

	live, _ := mux.ListLiveSessions()
	res := Reconcile(doc, live, mux, reconcileNow)
	assert.False(t, res.Changed())

	assert.ErrorIs(t, UnlinkSession(doc, mux, "scratch"), ErrSessionNotTracked)
}

func TestUnlinkSession_KeepsRecordWhenClearFails(t *testing.T) {
	doc := state.NewDocument()
	p := newTestProject(t, doc, "notes")
	mux := newFakeMux()
	mux.start("scratch", nil)

	_, err := LinkSession(doc, mux, "scratch", p, reconcileNow)
	require.NoError(t, err)

	mux.unsetErr = errors.New("server gone away")
	err = UnlinkSession(doc, mux, "scratch")
	require.Error(t, err)
	assert.Contains(t, doc.Sessions, "scratch", "record stays while provenance is still set")

	mux.unsetErr = nil
	require.NoError(t, UnlinkSession(doc, mux, "scratch"))
	assert.NotContains(t, doc.Sessions, "scratch")
}

func TestDeleteSession(t *testing.T) {
	doc := state.NewDocument()
	p := newTestProject(t, doc, "svc")
	mux := newFakeMux()

	rec, err := CreateManagedSession(doc, mux, p, "bash", reconcileNow)
	require.NoError(t, err)
	require.NoError(t, DeleteSession(doc, mux, rec.Name))
	assert.False(t, mux.HasSession(rec.Name))
	assert.NotContains(t, doc.Sessions, rec.Name)

	// Already gone from tmux.
	doc.Sessions["ghost"] = &state.SessionRecord{Name: "ghost", ProjectID: p.ID}
	require.NoError(t, DeleteSession(doc, mux, "ghost"))
	assert.NotContains(t, doc.Sessions, "ghost")
}

func TestTouchAttached(t *testing.T) {
	doc := state.NewDocument()
	p := newTestProject(t, doc, "svc")
	doc.Sessions["s"] = &state.SessionRecord{Name: "s", ProjectID: p.ID}

	later := reconcileNow.Add(2 * time.Hour)
	require.NoError(t, TouchAttached(doc, "s", later))
	assert.Equal(t, later, doc.Sessions["s"].LastAttachedAt)
	assert.Equal(t, later, p.LastUsedAt)

	assert.ErrorIs(t, TouchAttached(doc, "nope", later), ErrSessionNotTracked)
}
