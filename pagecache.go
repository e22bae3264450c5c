package pagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/pagecache/device"
	"github.com/hupe1980/pagecache/internal/handle"
	"github.com/hupe1980/pagecache/internal/mem"
	"github.com/hupe1980/pagecache/internal/pagetable"
	"github.com/hupe1980/pagecache/internal/resource"
)

// Handle identifies an open resource and its cursor. Zero is never a valid handle.
type Handle uint64

// Cache is a bounded set of block-aligned pages shared by every handle opened
// through it.
//
// All methods are safe for concurrent use. Operations are serialized: each
// holds the cache lock for its whole duration, device I/O included.
type Cache struct {
	mu sync.Mutex

	blockSize int64
	alignment int

	dev     device.Device
	pages   *pagetable.Table
	handles *handle.Table
	budget  *resource.Budget
	logger  *Logger
	metrics MetricsCollector

	hits       uint64
	misses     uint64
	evictions  uint64
	writeBacks uint64

	closed bool
}

// New creates a cache of maxPages pages of blockSize bytes each.
// Both values are fixed for the lifetime of the cache.
func New(blockSize, maxPages int, optFns ...Option) (*Cache, error) {
	o := applyOptions(optFns)

	switch {
	case blockSize <= 0:
		return nil, fmt.Errorf("%w: block size must be positive, got %d", ErrInvalidConfig, blockSize)
	case maxPages <= 0:
		return nil, fmt.Errorf("%w: max pages must be positive, got %d", ErrInvalidConfig, maxPages)
	case !mem.IsPowerOfTwo(o.alignment):
		return nil, fmt.Errorf("%w: alignment %d is not a power of two", ErrInvalidConfig, o.alignment)
	case blockSize%o.alignment != 0:
		return nil, fmt.Errorf("%w: block size %d is not a multiple of alignment %d", ErrInvalidConfig, blockSize, o.alignment)
	case o.memoryLimit < 0 || o.writeBackRate < 0:
		return nil, fmt.Errorf("%w: limits must not be negative", ErrInvalidConfig)
	}

	return &Cache{
		blockSize: int64(blockSize),
		alignment: o.alignment,
		dev:       o.device,
		pages:     pagetable.New(maxPages, int64(blockSize)),
		handles:   handle.New(),
		budget:    resource.NewBudget(o.memoryLimit, o.writeBackRate),
		logger:    o.logger,
		metrics:   o.metricsCollector,
	}, nil
}

// BlockSize returns the page size in bytes.
func (c *Cache) BlockSize() int { return int(c.blockSize) }

// Capacity returns the maximum number of resident pages.
func (c *Cache) Capacity() int { return c.pages.Cap() }

// Open opens path on the cache's device and returns a handle positioned at 0.
//
// Opening a path that is already open shares its device file and pages.
func (c *Cache) Open(ctx context.Context, path string) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, opError("open", path, -1, ErrClosed, nil)
	}

	if res, ok := c.handles.Resource(path); ok {
		h := Handle(c.handles.Attach(res).ID)
		c.logger.LogOpen(ctx, res.Path, h, true, nil)
		return h, nil
	}

	f, err := c.dev.Open(ctx, path)
	if err != nil {
		err = opError("open", path, -1, ErrOpen, err)
		c.logger.LogOpen(ctx, path, 0, false, err)
		return 0, err
	}

	size, err := f.Size(ctx)
	if err != nil {
		_ = f.Close()
		err = opError("open", path, -1, ErrOpen, err)
		c.logger.LogOpen(ctx, path, 0, false, err)
		return 0, err
	}

	hd := c.handles.Register(path, f, size)
	c.logger.LogOpen(ctx, hd.Res.Path, Handle(hd.ID), false, nil)
	return Handle(hd.ID), nil
}

// Close flushes the handle's resource and invalidates the handle. When it is
// the last handle on the resource, the resource's pages are dropped and the
// device file is closed, even if the flush failed.
//
// A failed flush is reported as ErrSync, a failed release as ErrClose.
func (c *Cache) Close(ctx context.Context, h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return opError("close", "", -1, ErrClosed, nil)
	}
	return c.closeHandle(ctx, h)
}

func (c *Cache) closeHandle(ctx context.Context, h Handle) error {
	hd, err := c.lookup("close", h)
	if err != nil {
		return err
	}
	res := hd.Res

	flushErr := c.flushResource(ctx, "close", res)

	_, last := c.handles.Remove(hd.ID)

	var closeErr error
	if last {
		c.dropResource(ctx, res)
		closeErr = res.File.Close()
	}

	switch {
	case flushErr != nil:
		err = opError("close", res.Path, -1, ErrSync, errors.Join(flushErr, closeErr))
	case closeErr != nil:
		err = opError("close", res.Path, -1, ErrClose, closeErr)
	}

	c.logger.LogClose(ctx, res.Path, h, last, err)
	return err
}

// dropResource releases every page of res. Pages still dirty at this point
// could not be written back and are lost.
func (c *Cache) dropResource(ctx context.Context, res *handle.Resource) {
	dirty := 0
	for _, pg := range c.pages.RemoveResource(res.ID) {
		if pg.Dirty {
			dirty++
		}
		c.releasePage(pg.Data)
	}
	if dirty > 0 {
		c.logger.WarnContext(ctx, "discarding dirty pages",
			"path", res.Path,
			"pages", dirty,
		)
	}
}

// Seek sets the handle's cursor. SeekEnd is relative to the logical size of
// the resource, which includes unflushed writes.
func (c *Cache) Seek(_ context.Context, h Handle, offset int64, whence int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, opError("seek", "", -1, ErrClosed, nil)
	}
	hd, err := c.lookup("seek", h)
	if err != nil {
		return 0, err
	}

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = hd.Cursor
	case io.SeekEnd:
		base = hd.Res.Size
	default:
		return 0, opError("seek", hd.Res.Path, -1, ErrSeek, fmt.Errorf("unknown whence %d", whence))
	}

	pos := base + offset
	if pos < 0 {
		return 0, opError("seek", hd.Res.Path, -1, ErrSeek, fmt.Errorf("negative position %d", pos))
	}
	hd.Cursor = pos
	return pos, nil
}

// Size returns the logical size of the handle's resource.
func (c *Cache) Size(h Handle) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hd, err := c.lookup("size", h)
	if err != nil {
		return 0, err
	}
	return hd.Res.Size, nil
}

// Shutdown closes every open handle, flushing all resources, and rejects
// further operations with ErrClosed. Errors from individual handles are joined.
func (c *Cache) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	var errs []error
	for _, id := range c.handles.Handles() {
		if err := c.closeHandle(ctx, Handle(id)); err != nil {
			errs = append(errs, err)
		}
	}
	c.closed = true

	c.logger.InfoContext(ctx, "cache shut down",
		"evictions", c.evictions,
		"write_backs", c.writeBacks,
	)
	return errors.Join(errs...)
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	BlockSize     int
	Capacity      int
	Resident      int
	Dirty         int
	OpenHandles   int
	OpenResources int
	MemoryBytes   int64
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	WriteBacks    uint64
}

// Stats returns current occupancy and counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		BlockSize:     int(c.blockSize),
		Capacity:      c.pages.Cap(),
		Resident:      c.pages.Len(),
		Dirty:         c.pages.DirtyCount(),
		OpenHandles:   c.handles.Len(),
		OpenResources: len(c.handles.Resources()),
		MemoryBytes:   c.budget.Held(),
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		WriteBacks:    c.writeBacks,
	}
}

// PageInfo describes one resident page.
type PageInfo struct {
	Path   string
	Offset int64
	Dirty  bool
}

// Resident returns the resident pages in eviction order, oldest first.
func (c *Cache) Resident() []PageInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.pages.Keys()
	out := make([]PageInfo, 0, len(keys))
	for _, k := range keys {
		info := PageInfo{Offset: k.Offset}
		if res, ok := c.handles.ResourceByID(k.Resource); ok {
			info.Path = res.Path
		}
		if pg, ok := c.pages.Get(k); ok {
			info.Dirty = pg.Dirty
		}
		out = append(out, info)
	}
	return out
}

func (c *Cache) lookup(op string, h Handle) (*handle.Handle, error) {
	hd, ok := c.handles.Get(handle.ID(h))
	if !ok {
		return nil, opError(op, "", -1, ErrInvalidHandle, fmt.Errorf("handle %d", h))
	}
	return hd, nil
}
