package pagecache

import (
	"context"
	"io"
)

var (
	_ io.ReadWriteSeeker = (*File)(nil)
	_ io.Closer          = (*File)(nil)
)

// File adapts a cache handle to the io interfaces.
//
// Methods use the context given to OpenFile. A File must not be used after
// Close.
type File struct {
	c    *Cache
	h    Handle
	ctx  context.Context
	path string
}

// OpenFile opens path and returns it as a File.
func (c *Cache) OpenFile(ctx context.Context, path string) (*File, error) {
	h, err := c.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &File{c: c, h: h, ctx: ctx, path: path}, nil
}

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.path }

// Handle returns the underlying cache handle.
func (f *File) Handle() Handle { return f.h }

func (f *File) Read(p []byte) (int, error) {
	return f.c.Read(f.ctx, f.h, p)
}

func (f *File) Write(p []byte) (int, error) {
	return f.c.Write(f.ctx, f.h, p)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.c.Seek(f.ctx, f.h, offset, whence)
}

// Sync flushes the file's dirty pages.
func (f *File) Sync() error {
	return f.c.Flush(f.ctx, f.h)
}

// Size returns the logical size of the file.
func (f *File) Size() (int64, error) {
	return f.c.Size(f.h)
}

func (f *File) Close() error {
	return f.c.Close(f.ctx, f.h)
}
