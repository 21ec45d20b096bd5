package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/projdeck/internal/agentlog"
)

// withConfigHome points the config at a fresh directory for one test.
func withConfigHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	ClearUserConfigCache()
	t.Cleanup(ClearUserConfigCache)
	return dir
}

func TestUserConfig_Decode(t *testing.T) {
	content := `
[storage]
backend = "sqlite"

[claude]
home = "~/.claude-work"

[codex]
home = "/opt/codex"

[activity]
freshness_seconds = 45
tail_kib = 512

[logs]
level = "debug"
format = "text"
debug = true

[tmux]
socket = "work"
`
	var config UserConfig
	_, err := toml.Decode(content, &config)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, config.Storage.Backend)
	assert.Equal(t, "~/.claude-work", config.Claude.Home)
	assert.Equal(t, "/opt/codex", config.Codex.Home)
	assert.Equal(t, 45, config.Activity.FreshnessSeconds)
	assert.Equal(t, 512, config.Activity.TailKiB)
	assert.Zero(t, config.Activity.HeadKiB)
	assert.Equal(t, "debug", config.Logs.Level)
	assert.True(t, config.Logs.Debug)
	assert.Equal(t, "work", config.Tmux.Socket)
}

func TestLoadUserConfig_MissingFileUsesDefaults(t *testing.T) {
	withConfigHome(t)

	cfg, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, BackendJSON, cfg.Storage.Backend)

	again, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Same(t, cfg, again, "second load should hit the cache")
}

func TestLoadUserConfig_ParseError(t *testing.T) {
	dir := withConfigHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, UserConfigFileName), []byte("[storage\nbackend="), 0o600))

	cfg, err := LoadUserConfig()
	assert.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, BackendJSON, cfg.Storage.Backend)
}

func TestSaveUserConfig_RoundTrip(t *testing.T) {
	dir := withConfigHome(t)

	cfg := &UserConfig{
		Storage: StorageSettings{Backend: BackendSQLite},
		Codex:   ToolSettings{Home: "/srv/codex"},
		Logs:    LogSettings{Level: "warn", MaxBackups: 5},
	}
	require.NoError(t, SaveUserConfig(cfg))

	info, err := os.Stat(filepath.Join(dir, UserConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	_, err = os.Stat(filepath.Join(dir, UserConfigFileName+".tmp"))
	assert.True(t, os.IsNotExist(err))

	loaded, err := ReloadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, loaded.Storage.Backend)
	assert.Equal(t, "/srv/codex", loaded.Codex.Home)
	assert.Equal(t, "warn", loaded.Logs.Level)
}

func TestGetLogSettings_Defaults(t *testing.T) {
	withConfigHome(t)

	s := GetLogSettings()
	assert.Equal(t, "info", s.Level)
	assert.Equal(t, "json", s.Format)
	assert.Equal(t, 10, s.MaxSizeMB)
	assert.Equal(t, 3, s.MaxBackups)
	assert.Equal(t, 7, s.MaxAgeDays)
	assert.False(t, s.Debug)
}

func TestLogSettings_LoggingConfig(t *testing.T) {
	off := LogSettings{Level: "info"}.LoggingConfig("/logs")
	assert.Empty(t, off.LogDir)

	on := LogSettings{Level: "debug", Debug: true, Compress: true}.LoggingConfig("/logs")
	assert.Equal(t, "/logs", on.LogDir)
	assert.Equal(t, "debug", on.Level)
	assert.True(t, on.Compress)
}

func TestUserConfig_ReaderOptions(t *testing.T) {
	cfg := &UserConfig{
		Claude:   ToolSettings{Home: "/c"},
		Codex:    ToolSettings{Home: "/x"},
		Activity: ActivitySettings{FreshnessSeconds: 10, TailKiB: 8, HeadKiB: 4},
	}

	claude := cfg.ReaderOptions(agentlog.ToolClaude)
	assert.Equal(t, "/c", claude.Home)
	assert.Equal(t, 10*time.Second, claude.FreshnessWindow)
	assert.Equal(t, int64(8*1024), claude.TailBytes)
	assert.Equal(t, int64(4*1024), claude.HeadBytes)

	assert.Equal(t, "/x", cfg.ReaderOptions(agentlog.ToolCodex).Home)
}

func TestGetProjdeckDir(t *testing.T) {
	t.Setenv(HomeEnv, "/custom/projdeck")
	dir, err := GetProjdeckDir()
	require.NoError(t, err)
	assert.Equal(t, "/custom/projdeck", dir)

	path, err := GetUserConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/custom/projdeck/config.toml", path)
}
