package session

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// Keep tests away from the real ~/.projdeck.
	dir, err := os.MkdirTemp("", "projdeck-session-test-")
	if err != nil {
		panic(err)
	}
	os.Setenv(HomeEnv, dir)

	code := m.Run()

	os.RemoveAll(dir)
	os.Exit(code)
}
