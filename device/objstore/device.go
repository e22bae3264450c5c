package objstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hupe1980/pagecache/device"
)

var (
	_ device.Device    = (*Device)(nil)
	_ device.Truncater = (*file)(nil)
)

// Device stores every block of a resource as a separate object.
type Device struct {
	store     ObjectStore
	extents   ExtentStore
	codec     Codec
	blockSize int64
	prefix    string
	create    bool
}

// Option configures a Device.
type Option func(*Device)

// WithCodec sets the block compression.
func WithCodec(c Codec) Option {
	return func(d *Device) {
		d.codec = c
	}
}

// WithExtentStore replaces the default object-based extent store.
func WithExtentStore(e ExtentStore) Option {
	return func(d *Device) {
		d.extents = e
	}
}

// WithPrefix places block objects under prefix.
func WithPrefix(prefix string) Option {
	return func(d *Device) {
		d.prefix = prefix
	}
}

// WithCreate makes Open create missing resources with size zero.
func WithCreate() Option {
	return func(d *Device) {
		d.create = true
	}
}

// New creates a device on store with the given block size. The block size must
// match the cache's block size.
func New(store ObjectStore, blockSize int, opts ...Option) *Device {
	d := &Device{
		store:     store,
		blockSize: int64(blockSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.extents == nil {
		d.extents = NewObjectExtents(store, d.prefix)
	}
	return d
}

// Open opens a resource. Without WithCreate the resource must have an extent.
func (d *Device) Open(ctx context.Context, name string) (device.File, error) {
	ext, err := d.extents.Load(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound) && d.create:
		ext, err = d.extents.Commit(ctx, name, Extent{}, 0)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	return &file{d: d, name: name, ext: ext}, nil
}

func (d *Device) blockKey(name string, block int64) string {
	return joinKey(d.prefix, name, strconv.FormatInt(block, 10)+".blk")
}

type file struct {
	d    *Device
	name string
	ext  Extent
}

func (f *file) check(p []byte, off int64) error {
	if off < 0 || off%f.d.blockSize != 0 || int64(len(p)) != f.d.blockSize {
		return fmt.Errorf("%w: %d bytes at %d", device.ErrMisaligned, len(p), off)
	}
	return nil
}

func (f *file) ReadBlock(ctx context.Context, p []byte, off int64) (int, error) {
	if err := f.check(p, off); err != nil {
		return 0, err
	}
	if off >= f.ext.Size {
		return 0, nil
	}
	valid := int(min(f.d.blockSize, f.ext.Size-off))

	obj, err := f.d.store.Get(ctx, f.d.blockKey(f.name, off/f.d.blockSize))
	if errors.Is(err, ErrNotFound) {
		clear(p)
		return valid, nil
	}
	if err != nil {
		return 0, err
	}

	n, err := decode(obj, p)
	if err != nil {
		return 0, fmt.Errorf("block %d of %s: %w", off/f.d.blockSize, f.name, err)
	}
	clear(p[n:])
	return valid, nil
}

func (f *file) WriteBlock(ctx context.Context, p []byte, off int64) (int, error) {
	if err := f.check(p, off); err != nil {
		return 0, err
	}

	obj, err := encode(f.d.codec, p)
	if err != nil {
		return 0, err
	}
	if err := f.d.store.Put(ctx, f.d.blockKey(f.name, off/f.d.blockSize), obj); err != nil {
		return 0, err
	}

	if end := off + int64(len(p)); end > f.ext.Size {
		ext, err := f.d.extents.Commit(ctx, f.name, f.ext, end)
		if err != nil {
			return 0, err
		}
		f.ext = ext
	}
	return len(p), nil
}

func (f *file) Size(context.Context) (int64, error) {
	return f.ext.Size, nil
}

// Truncate commits the new extent, then deletes block objects past it and
// zeroes the tail of the last partial block.
func (f *file) Truncate(ctx context.Context, size int64) error {
	if size < 0 {
		return fmt.Errorf("%w: negative size %d", device.ErrMisaligned, size)
	}
	old := f.ext.Size

	ext, err := f.d.extents.Commit(ctx, f.name, f.ext, size)
	if err != nil {
		return err
	}
	f.ext = ext
	if size >= old {
		return nil
	}

	bs := f.d.blockSize
	for b := (size + bs - 1) / bs; b < (old+bs-1)/bs; b++ {
		if err := f.d.store.Delete(ctx, f.d.blockKey(f.name, b)); err != nil {
			return err
		}
	}

	if tail := size % bs; tail != 0 {
		block := size / bs
		key := f.d.blockKey(f.name, block)
		obj, err := f.d.store.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		buf := make([]byte, bs)
		if _, err := decode(obj, buf); err != nil {
			return err
		}
		clear(buf[tail:])
		if obj, err = encode(f.d.codec, buf); err != nil {
			return err
		}
		return f.d.store.Put(ctx, key, obj)
	}
	return nil
}

func (f *file) Close() error {
	return nil
}
