package state

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPath is matched by InvalidPathError via errors.Is.
	ErrInvalidPath = errors.New("invalid project path")

	// ErrNotFound is returned by Store.Load when nothing has been saved yet.
	ErrNotFound = errors.New("state document not found")
)

// InvalidPathError reports a project path that does not resolve to an
// existing directory.
type InvalidPathError struct {
	Path   string
	Reason string
	Err    error
}

func (e *InvalidPathError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid project path %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid project path %q: %s", e.Path, e.Reason)
}

func (e *InvalidPathError) Is(target error) bool { return target == ErrInvalidPath }

func (e *InvalidPathError) Unwrap() error { return e.Err }

// StoreError wraps an I/O failure of the persistence capability.
type StoreError struct {
	Op   string // "load" or "save"
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("state %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
