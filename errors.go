package pagecache

import (
	"errors"
	"fmt"
)

var (
	// ErrOpen is returned when a resource cannot be opened.
	ErrOpen = errors.New("open failed")

	// ErrIO is returned when a block transfer to or from the device fails.
	ErrIO = errors.New("block i/o failed")

	// ErrSeek is returned for an unknown whence or a negative resulting offset.
	ErrSeek = errors.New("invalid seek")

	// ErrSync is returned by Close when the final flush failed.
	ErrSync = errors.New("sync failed")

	// ErrClose is returned when the device file cannot be released.
	ErrClose = errors.New("close failed")

	// ErrAllocation is returned when no page buffer can be allocated.
	ErrAllocation = errors.New("page allocation failed")

	// ErrInvalidHandle is returned for handles that are not open.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("cache closed")

	// ErrInvalidConfig is returned by New for unusable parameters.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// OpError describes a failed cache operation.
//
// Both the kind and the underlying cause match with errors.Is:
//
//	if errors.Is(err, pagecache.ErrIO) { ... }
//	if errors.Is(err, fs.ErrNotExist) { ... }
type OpError struct {
	Op     string // read, write, seek, flush, open, close
	Path   string
	Offset int64 // block offset for i/o failures, -1 if not applicable
	Kind   error
	Err    error
}

func (e *OpError) Error() string {
	msg := "pagecache: " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" @%d", e.Offset)
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op, path string, off int64, kind, err error) *OpError {
	return &OpError{Op: op, Path: path, Offset: off, Kind: kind, Err: err}
}
