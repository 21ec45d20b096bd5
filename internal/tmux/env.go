package tmux

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// GetSessionEnv reads a session-scoped environment variable. Missing
// sessions, unset keys and tmux failures all report ok=false.
func (c *Client) GetSessionEnv(name, key string) (string, bool) {
	stdout, _, err := c.run("show-environment", "-t", exactTarget(name), key)
	if err != nil {
		return "", false
	}
	return parseEnvOutput(key, string(stdout))
}

// parseEnvOutput handles "KEY=value" and tmux's "-KEY" removal marker.
func parseEnvOutput(key, output string) (string, bool) {
	line := strings.TrimRight(output, "\r\n")
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	value, found := strings.CutPrefix(line, key+"=")
	if !found {
		return "", false
	}
	return value, true
}

// SetEnvironment sets a variable in the session's environment.
func (c *Client) SetEnvironment(name, key, value string) error {
	if _, stderr, err := c.run("set-environment", "-t", exactTarget(name), key, value); err != nil {
		return fmt.Errorf("tmux set-environment %s %s: %w: %s", name, key, err, strings.TrimSpace(string(stderr)))
	}
	return nil
}

// UnsetEnvironment removes a variable from the session's environment.
func (c *Client) UnsetEnvironment(name, key string) error {
	if _, stderr, err := c.run("set-environment", "-u", "-t", exactTarget(name), key); err != nil {
		msg := strings.TrimSpace(string(stderr))
		// Unsetting an absent key is not a failure.
		if strings.Contains(msg, "unknown variable") {
			return nil
		}
		return fmt.Errorf("tmux set-environment -u %s %s: %w: %s", name, key, err, msg)
	}
	tmuxLog.Debug("env_unset", slog.String("session", name), slog.String("key", key))
	return nil
}

// SetEnvironmentMap sets several variables, stopping at the first failure.
func (c *Client) SetEnvironmentMap(name string, env map[string]string) error {
	for _, k := range slices.Sorted(maps.Keys(env)) {
		if err := c.SetEnvironment(name, k, env[k]); err != nil {
			return err
		}
	}
	return nil
}
