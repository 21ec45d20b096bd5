package agentlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func linesToStrings(lines [][]byte) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return out
}

func TestReadHead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jsonl")
	writeFile(t, path, "aaaa\nbbbb\ncccc\n")

	lines, err := readHead(path, 1024)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa", "bbbb", "cccc"}, linesToStrings(lines))

	// Budget ends inside "cccc": the partial line is dropped.
	lines, err = readHead(path, 12)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa", "bbbb"}, linesToStrings(lines))

	lines, err = readHead(path, 3)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = readHead(filepath.Join(t.TempDir(), "missing"), 10)
	assert.Error(t, err)
}

func TestReadHeadNoTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jsonl")
	writeFile(t, path, "aaaa\nbbbb")
	lines, err := readHead(path, 1024)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa", "bbbb"}, linesToStrings(lines))
}

func TestReadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jsonl")
	writeFile(t, path, "aaaa\nbbbb\ncccc\n")

	lines, err := readTail(path, 1024)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa", "bbbb", "cccc"}, linesToStrings(lines))

	// Last 7 bytes are "b\ncccc\n": the partial "b" is dropped.
	lines, err = readTail(path, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"cccc"}, linesToStrings(lines))

	// A cut exactly on a line start keeps that line.
	lines, err = readTail(path, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"bbbb", "cccc"}, linesToStrings(lines))

	lines, err = readTail(path, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"cccc"}, linesToStrings(lines))

	lines, err = readTail(path, 3)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestReadTailLargeFileBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.jsonl")
	var b strings.Builder
	for i := 0; i < 10000; i++ {
		b.WriteString(`{"n":"` + strings.Repeat("x", 90) + `"}` + "\n")
	}
	b.WriteString(`{"last":true}` + "\n")
	writeFile(t, path, b.String())

	lines, err := readTail(path, 4096)
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	assert.Less(t, len(lines), 50)
	assert.Equal(t, `{"last":true}`, string(lines[len(lines)-1]))
}

func TestScanLines(t *testing.T) {
	var got []string
	err := scanLines(strings.NewReader("a\n\n  b  \r\nc"), func(line []byte) {
		got = append(got, string(line))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
