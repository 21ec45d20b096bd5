package agentlog

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
)

// maxLineBytes bounds a single JSONL line; tool outputs can be huge.
const maxLineBytes = 10 * 1024 * 1024

// readHead returns the complete lines within the first budget bytes of path.
// A line cut off by the budget is dropped.
func readHead(path string, budget int64) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, budget)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	buf = buf[:n]
	atEOF := int64(n) < budget
	if !atEOF {
		if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
			buf = buf[:i+1]
		} else {
			return nil, nil
		}
	}
	return splitLines(buf), nil
}

// readTail returns the complete lines within the last budget bytes of path,
// oldest first.
func readTail(path string, budget int64) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	offset := size - budget
	if offset < 0 {
		offset = 0
	}
	// One byte before the window tells whether the cut is on a line start.
	start := offset
	if start > 0 {
		start--
	}
	buf := make([]byte, size-start)
	n, err := f.ReadAt(buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	buf = buf[:n]
	if offset > 0 {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return nil, nil
		}
		buf = buf[i+1:]
	}
	return splitLines(buf), nil
}

func splitLines(buf []byte) [][]byte {
	var lines [][]byte
	for len(buf) > 0 {
		var line []byte
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			line, buf = buf[:i], buf[i+1:]
		} else {
			line, buf = buf, nil
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}

// scanLines calls fn for each non-empty line of r. Lines beyond
// maxLineBytes end the scan with bufio.ErrTooLong.
func scanLines(r io.Reader, fn func(line []byte)) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(line)
	}
	return scanner.Err()
}
