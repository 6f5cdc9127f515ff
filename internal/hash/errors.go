package hash

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when a run stops because its cancel flag was set
// or its context ended. It is a normal exit, not a failure.
var ErrCancelled = errors.New("hash cancelled")

// ErrIsDirectory is the cause of an OpenError for directory paths.
var ErrIsDirectory = errors.New("is a directory")

// OpenError reports that the input could not be opened: missing path,
// directory, or permission denied.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open file %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// ReadError reports an I/O failure after the file was opened.
type ReadError struct {
	Path   string
	Offset uint64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read file %s at byte %d: %v", e.Path, e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
