package device

import (
	"context"
	"errors"
	"os"
)

// ErrNotFound is returned when a resource does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
var ErrNotFound = os.ErrNotExist

// ErrMisaligned is returned for transfers that are not block aligned.
var ErrMisaligned = errors.New("misaligned block transfer")

// Device opens resources for block-aligned access.
type Device interface {
	// Open opens an existing resource for reading and writing.
	Open(ctx context.Context, name string) (File, error)
}

// File is an open resource accessed in whole blocks.
type File interface {
	// ReadBlock reads up to len(p) bytes at off. See the package read contract.
	ReadBlock(ctx context.Context, p []byte, off int64) (int, error)
	// WriteBlock writes p at off, extending the resource if needed.
	WriteBlock(ctx context.Context, p []byte, off int64) (int, error)
	// Size returns the current size of the resource in bytes.
	Size(ctx context.Context) (int64, error)
	// Close releases the resource.
	Close() error
}

// Truncater is implemented by files whose size can be changed.
type Truncater interface {
	Truncate(ctx context.Context, size int64) error
}

// Syncer is implemented by files that buffer writes below the cache.
type Syncer interface {
	Sync() error
}
