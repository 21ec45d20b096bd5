package session

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// HomeEnv overrides the projdeck data directory.
	HomeEnv = "PROJDECK_HOME"

	// UserConfigFileName is the TOML config inside the projdeck directory.
	UserConfigFileName = "config.toml"

	// StateDBFileName is the SQLite backend's database file.
	StateDBFileName = "state.db"
)

// GetProjdeckDir returns the base projdeck directory (~/.projdeck), or
// $PROJDECK_HOME when set.
func GetProjdeckDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return expandTilde(dir), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".projdeck"), nil
}

// GetUserConfigPath returns the path to config.toml.
func GetUserConfigPath() (string, error) {
	dir, err := GetProjdeckDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, UserConfigFileName), nil
}

// expandTilde expands a leading ~/ to the user's home directory.
func expandTilde(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	return path
}
