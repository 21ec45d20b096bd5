package tmux

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCall struct {
	stdout string
	stderr string
	err    error
}

// fakeClient answers tmux invocations by their first argument.
func fakeClient(responses map[string]fakeCall, calls *[]string) *Client {
	var mu sync.Mutex
	return &Client{run: func(args ...string) ([]byte, []byte, error) {
		mu.Lock()
		if calls != nil {
			*calls = append(*calls, strings.Join(args, " "))
		}
		mu.Unlock()
		r := responses[args[0]]
		return []byte(r.stdout), []byte(r.stderr), r.err
	}}
}

var errExit = errors.New("exit status 1")

func TestParseListSessions(t *testing.T) {
	out := "work\t1\t3\tzsh\t/home/me/work\n" +
		"pd_alpha_01234567\t0\t1\tclaude\t/tmp/alpha:with:colons\n" +
		"\n" +
		"short\n" +
		"\t0\t1\tbash\t/\n"
	got := parseListSessions(out)
	require.Len(t, got, 3)
	assert.Equal(t, LiveSession{Name: "work", Attached: 1, Windows: 3, CurrentCommand: "zsh", CurrentPath: "/home/me/work"}, got[0])
	assert.Equal(t, "/tmp/alpha:with:colons", got[1].CurrentPath)
	assert.Equal(t, LiveSession{Name: "short"}, got[2])
}

func TestListLiveSessions(t *testing.T) {
	tests := []struct {
		name    string
		resp    fakeCall
		want    int
		wantErr bool
	}{
		{"sessions", fakeCall{stdout: "a\t0\t1\tbash\t/\nb\t1\t2\tzsh\t/tmp\n"}, 2, false},
		{"no server", fakeCall{stderr: "no server running on /tmp/tmux-0/default", err: errExit}, 0, false},
		{"no sessions", fakeCall{stderr: "no sessions", err: errExit}, 0, false},
		{"socket missing", fakeCall{stderr: "error connecting to /tmp/tmux-0/x (No such file or directory)", err: errExit}, 0, false},
		{"broken", fakeCall{stderr: "protocol version mismatch", err: errExit}, 0, true},
		{"not installed", fakeCall{err: exec.ErrNotFound}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fakeClient(map[string]fakeCall{"list-sessions": tt.resp}, nil)
			got, err := c.ListLiveSessions()
			if tt.wantErr {
				var ee *EnumerationError
				require.True(t, errors.As(err, &ee), "want *EnumerationError, got %v", err)
				assert.Equal(t, "list-sessions", ee.Op)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestListLiveSessionsNoServerOnConfiguredSocket(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
	}{
		{"no server", "no server running on /tmp/tmux-0/typo"},
		{"socket missing", "error connecting to /tmp/tmux-0/typo (No such file or directory)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fakeClient(map[string]fakeCall{"list-sessions": {stderr: tt.stderr, err: errExit}}, nil)
			c.Socket = "typo"
			got, err := c.ListLiveSessions()
			var ee *EnumerationError
			require.True(t, errors.As(err, &ee), "want *EnumerationError, got %v", err)
			assert.ErrorIs(t, err, ErrNoServer)
			assert.Nil(t, got)
		})
	}

	c := fakeClient(map[string]fakeCall{"list-sessions": {stderr: "no sessions", err: errExit}}, nil)
	c.Socket = "typo"
	got, err := c.ListLiveSessions()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListLiveSessionsCoalesces(t *testing.T) {
	var count atomic.Int32
	release := make(chan struct{})
	c := &Client{run: func(args ...string) ([]byte, []byte, error) {
		count.Add(1)
		<-release
		return []byte("a\t0\t1\tbash\t/\n"), nil, nil
	}}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.ListLiveSessions()
			assert.NoError(t, err)
			assert.Len(t, got, 1)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, count.Load(), int32(5))
	assert.GreaterOrEqual(t, count.Load(), int32(1))
}

func TestParseEnvOutput(t *testing.T) {
	tests := []struct {
		output string
		value  string
		ok     bool
	}{
		{"PROJDECK_PROJECT_PATH=/tmp/alpha\n", "/tmp/alpha", true},
		{"PROJDECK_PROJECT_PATH=\n", "", true},
		{"PROJDECK_PROJECT_PATH=a=b\n", "a=b", true},
		{"-PROJDECK_PROJECT_PATH\n", "", false},
		{"", "", false},
		{"OTHER=1\n", "", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.output), func(t *testing.T) {
			v, ok := parseEnvOutput("PROJDECK_PROJECT_PATH", tt.output)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.value, v)
		})
	}
}

func TestEnvironmentCommands(t *testing.T) {
	var calls []string
	c := fakeClient(map[string]fakeCall{
		"show-environment": {stdout: "K=v\n"},
		"set-environment":  {},
	}, &calls)

	v, ok := c.GetSessionEnv("s", "K")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, c.SetEnvironmentMap("s", map[string]string{"B": "2", "A": "1"}))
	require.NoError(t, c.UnsetEnvironment("s", "A"))

	assert.Equal(t, []string{
		"show-environment -t =s K",
		"set-environment -t =s A 1",
		"set-environment -t =s B 2",
		"set-environment -u -t =s A",
	}, calls)
}

func TestGetSessionEnvMissingSession(t *testing.T) {
	c := fakeClient(map[string]fakeCall{
		"show-environment": {stderr: "can't find session: nope", err: errExit},
	}, nil)
	_, ok := c.GetSessionEnv("nope", "K")
	assert.False(t, ok)
}

func TestUnsetEnvironmentUnknownVariable(t *testing.T) {
	c := fakeClient(map[string]fakeCall{
		"set-environment": {stderr: "unknown variable: K", err: errExit},
	}, nil)
	assert.NoError(t, c.UnsetEnvironment("s", "K"))
}

func TestKillSessionNotFound(t *testing.T) {
	c := fakeClient(map[string]fakeCall{
		"kill-session": {stderr: "can't find session: gone", err: errExit},
	}, nil)
	err := c.KillSession("gone")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestNewSessionArgs(t *testing.T) {
	var calls []string
	c := fakeClient(map[string]fakeCall{"new-session": {}}, &calls)
	require.NoError(t, c.NewSession("pd_x_1", "/tmp", "claude --resume"))
	require.NoError(t, c.NewSession("plain", "", ""))
	assert.Equal(t, []string{
		"new-session -d -s pd_x_1 -c /tmp claude --resume",
		"new-session -d -s plain",
	}, calls)
}

// TestRealServer runs against a private tmux socket so it never touches the
// user's sessions.
func TestRealServer(t *testing.T) {
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not available")
	}
	socket := fmt.Sprintf("projdeck-test-%d", os.Getpid())
	c := NewClient(socket)
	t.Cleanup(func() { _ = exec.Command("tmux", "-L", socket, "kill-server").Run() })

	got, err := c.ListLiveSessions()
	assert.ErrorIs(t, err, ErrNoServer, "a fresh configured socket has no server")
	assert.Nil(t, got)

	dir := t.TempDir()
	require.NoError(t, c.NewSession("pd_real_abcdef12", dir, ""))
	assert.True(t, c.HasSession("pd_real_abcdef12"))
	assert.False(t, c.HasSession("pd_real"))

	require.NoError(t, c.SetEnvironment("pd_real_abcdef12", "PROJDECK_PROJECT_PATH", dir))
	v, ok := c.GetSessionEnv("pd_real_abcdef12", "PROJDECK_PROJECT_PATH")
	assert.True(t, ok)
	assert.Equal(t, dir, v)

	require.NoError(t, c.UnsetEnvironment("pd_real_abcdef12", "PROJDECK_PROJECT_PATH"))
	_, ok = c.GetSessionEnv("pd_real_abcdef12", "PROJDECK_PROJECT_PATH")
	assert.False(t, ok)

	got, err = c.ListLiveSessions()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pd_real_abcdef12", got[0].Name)
	assert.Equal(t, 1, got[0].Windows)

	require.NoError(t, c.KillSession("pd_real_abcdef12"))
	assert.False(t, c.HasSession("pd_real_abcdef12"))
}
