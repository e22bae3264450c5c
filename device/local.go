package device

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/hupe1980/pagecache/internal/fs"
)

// Local opens files on the local filesystem.
//
// By default files are opened with O_DIRECT where the platform supports it,
// bypassing the kernel page cache. Some filesystems (tmpfs, overlayfs) reject
// O_DIRECT; disable it with WithDirectIO(false) there.
type Local struct {
	fs     fs.FileSystem
	direct bool
	create bool
	perm   os.FileMode
}

// LocalOption configures a Local device.
type LocalOption func(*Local)

// WithDirectIO enables or disables O_DIRECT.
func WithDirectIO(enabled bool) LocalOption {
	return func(l *Local) {
		l.direct = enabled
	}
}

// WithCreate creates missing files with the given permissions.
func WithCreate(perm os.FileMode) LocalOption {
	return func(l *Local) {
		l.create = true
		l.perm = perm
	}
}

// WithFileSystem replaces the filesystem used to open files.
// Intended for fault injection in tests.
func WithFileSystem(fsys fs.FileSystem) LocalOption {
	return func(l *Local) {
		if fsys == nil {
			fsys = fs.Default
		}
		l.fs = fsys
	}
}

// NewLocal creates a local file device.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		fs:     fs.Default,
		direct: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DirectIO reports whether files are opened with O_DIRECT.
func (l *Local) DirectIO() bool {
	return l.direct && directFlag != 0
}

// Open opens name for reading and writing.
func (l *Local) Open(_ context.Context, name string) (File, error) {
	flag := os.O_RDWR
	if l.direct {
		flag |= directFlag
	}
	if l.create {
		flag |= os.O_CREATE
	}

	f, err := l.fs.OpenFile(name, flag, l.perm)
	if err != nil {
		return nil, err
	}
	adviseRandom(f)
	return &localFile{f: f}, nil
}

type localFile struct {
	f fs.File
}

func (lf *localFile) ReadBlock(_ context.Context, p []byte, off int64) (int, error) {
	n, err := lf.f.ReadAt(p, off)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (lf *localFile) WriteBlock(_ context.Context, p []byte, off int64) (int, error) {
	return lf.f.WriteAt(p, off)
}

func (lf *localFile) Size(context.Context) (int64, error) {
	info, err := lf.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (lf *localFile) Truncate(_ context.Context, size int64) error {
	return lf.f.Truncate(size)
}

func (lf *localFile) Sync() error {
	return lf.f.Sync()
}

func (lf *localFile) Close() error {
	return lf.f.Close()
}
