package session

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/asheshgoplani/projdeck/internal/agentlog"
	"github.com/asheshgoplani/projdeck/internal/logging"
)

// UserConfig is the contents of ~/.projdeck/config.toml.
type UserConfig struct {
	Storage  StorageSettings  `toml:"storage"`
	Claude   ToolSettings     `toml:"claude"`
	Codex    ToolSettings     `toml:"codex"`
	Activity ActivitySettings `toml:"activity"`
	Logs     LogSettings      `toml:"logs"`
	Tmux     TmuxSettings     `toml:"tmux"`
}

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// StorageSettings selects where the state document lives.
type StorageSettings struct {
	// Backend is "json" (default) or "sqlite"
	Backend string `toml:"backend"`

	// Path overrides the state file location
	Path string `toml:"path,omitempty"`
}

// ToolSettings configures one external assistant CLI.
type ToolSettings struct {
	// Home overrides the tool's conventional home directory.
	// CLAUDE_CONFIG_DIR / CODEX_HOME still take precedence.
	Home string `toml:"home,omitempty"`
}

// ActivitySettings tunes transcript reading.
type ActivitySettings struct {
	// FreshnessSeconds is how recently a transcript must have been written
	// for a finished assistant turn to still count as working. Default: 30
	FreshnessSeconds int `toml:"freshness_seconds"`

	// TailKiB is how much of each transcript's end is read. Default: 256
	TailKiB int `toml:"tail_kib"`

	// HeadKiB is how much of each transcript's start is read for metadata.
	// Default: 64
	HeadKiB int `toml:"head_kib"`
}

// LogSettings configures debug.log.
type LogSettings struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `toml:"level"`

	// Format is "json" (default) or "text"
	Format string `toml:"format"`

	// MaxSizeMB is the max size in MB for debug.log before rotation
	// Default: 10
	MaxSizeMB int `toml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep. Default: 3
	MaxBackups int `toml:"max_backups"`

	// MaxAgeDays is the number of days to keep rotated files. Default: 7
	MaxAgeDays int `toml:"max_age_days"`

	// Compress rotated files
	Compress bool `toml:"compress"`

	// Debug enables file logging
	Debug bool `toml:"debug"`

	// Pprof serves net/http/pprof on localhost
	Pprof bool `toml:"pprof"`
}

// TmuxSettings configures the tmux client.
type TmuxSettings struct {
	// Socket selects a named tmux server (tmux -L). Empty means default.
	Socket string `toml:"socket,omitempty"`
}

var defaultUserConfig = UserConfig{
	Storage: StorageSettings{Backend: BackendJSON},
}

var (
	userConfigCache   *UserConfig
	userConfigCacheMu sync.RWMutex
)

// LoadUserConfig loads the user configuration from TOML file.
// Returns cached config after first load.
func LoadUserConfig() (*UserConfig, error) {
	userConfigCacheMu.RLock()
	if userConfigCache != nil {
		defer userConfigCacheMu.RUnlock()
		return userConfigCache, nil
	}
	userConfigCacheMu.RUnlock()

	userConfigCacheMu.Lock()
	defer userConfigCacheMu.Unlock()

	// Double-check after acquiring write lock
	if userConfigCache != nil {
		return userConfigCache, nil
	}

	configPath, err := GetUserConfigPath()
	if err != nil {
		cfg := defaultUserConfig
		userConfigCache = &cfg
		return userConfigCache, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := defaultUserConfig
		userConfigCache = &cfg
		return userConfigCache, nil
	}

	var config UserConfig
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		// Cache the default so a broken file is not re-parsed on every call
		cfg := defaultUserConfig
		userConfigCache = &cfg
		return userConfigCache, fmt.Errorf("config.toml parse error: %w", err)
	}
	if config.Storage.Backend == "" {
		config.Storage.Backend = BackendJSON
	}

	userConfigCache = &config
	return userConfigCache, nil
}

// ReloadUserConfig forces a reload of the user config.
func ReloadUserConfig() (*UserConfig, error) {
	ClearUserConfigCache()
	return LoadUserConfig()
}

// SaveUserConfig writes config.toml atomically and clears the cache.
func SaveUserConfig(config *UserConfig) error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# projdeck configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// temp file, fsync, rename
	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := syncConfigFile(tmpPath); err != nil {
		storageLog.Warn("config_sync_failed", "path", tmpPath, "error", err.Error())
	}
	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}

	ClearUserConfigCache()
	return nil
}

// syncConfigFile calls fsync on a file to ensure data is written to disk
func syncConfigFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// ClearUserConfigCache clears the cached user config, allowing tests to reset state.
// This does NOT reload - the next LoadUserConfig() call will read fresh from disk.
func ClearUserConfigCache() {
	userConfigCacheMu.Lock()
	userConfigCache = nil
	userConfigCacheMu.Unlock()
}

// GetLogSettings returns log settings with defaults applied.
func GetLogSettings() LogSettings {
	config, _ := LoadUserConfig()
	settings := LogSettings{}
	if config != nil {
		settings = config.Logs
	}
	if settings.Level == "" {
		settings.Level = "info"
	}
	if settings.Format == "" {
		settings.Format = "json"
	}
	if settings.MaxSizeMB <= 0 {
		settings.MaxSizeMB = 10
	}
	if settings.MaxBackups <= 0 {
		settings.MaxBackups = 3
	}
	if settings.MaxAgeDays <= 0 {
		settings.MaxAgeDays = 7
	}
	return settings
}

// LoggingConfig maps the [logs] section onto logging.Config. File logging
// is on when debug is set.
func (l LogSettings) LoggingConfig(dir string) logging.Config {
	cfg := logging.Config{
		Level:        l.Level,
		Format:       l.Format,
		MaxSizeMB:    l.MaxSizeMB,
		MaxBackups:   l.MaxBackups,
		MaxAgeDays:   l.MaxAgeDays,
		Compress:     l.Compress,
		PprofEnabled: l.Pprof,
		Debug:        l.Debug,
	}
	if l.Debug {
		cfg.LogDir = dir
	}
	return cfg
}

// ReaderOptions builds agentlog options for tool from config.
func (c *UserConfig) ReaderOptions(tool agentlog.Tool) agentlog.Options {
	opts := agentlog.Options{
		FreshnessWindow: time.Duration(c.Activity.FreshnessSeconds) * time.Second,
		TailBytes:       int64(c.Activity.TailKiB) * 1024,
		HeadBytes:       int64(c.Activity.HeadKiB) * 1024,
	}
	switch tool {
	case agentlog.ToolClaude:
		opts.Home = c.Claude.Home
	case agentlog.ToolCodex:
		opts.Home = c.Codex.Home
	}
	return opts
}
