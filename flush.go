package pagecache

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/hupe1980/pagecache/device"
	"github.com/hupe1980/pagecache/internal/handle"
	"github.com/hupe1980/pagecache/internal/pagetable"
)

// Flush writes every dirty page of the handle's resource back to the device in
// ascending offset order. It stops at the first failure with ErrIO; pages not
// yet written stay dirty and a later Flush retries them.
//
// Once all pages are written the device is truncated to the logical size and
// synced when it supports either.
func (c *Cache) Flush(ctx context.Context, h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return opError("flush", "", -1, ErrClosed, nil)
	}
	hd, err := c.lookup("flush", h)
	if err != nil {
		return err
	}
	return c.flushResource(ctx, "flush", hd.Res)
}

// FlushAll flushes every open resource. Failures do not stop the remaining
// resources from being flushed; all errors are joined.
func (c *Cache) FlushAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return opError("flush", "", -1, ErrClosed, nil)
	}

	var errs []error
	for _, res := range c.handles.Resources() {
		if err := c.flushResource(ctx, "flush", res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Cache) flushResource(ctx context.Context, op string, res *handle.Resource) error {
	start := time.Now()

	written := 0
	for _, pg := range c.pages.DirtyPages(res.ID) {
		if err := c.writeBack(ctx, res, pg); err != nil {
			err = opError(op, res.Path, pg.Key.Offset, ErrIO, err)
			c.metrics.RecordFlush(written, time.Since(start), err)
			c.logger.LogFlush(ctx, res.Path, written, err)
			return err
		}
		written++
	}

	err := c.settle(ctx, op, res)
	c.metrics.RecordFlush(written, time.Since(start), err)
	c.logger.LogFlush(ctx, res.Path, written, err)
	return err
}

// writeBack stores one full page at its block offset and marks it clean.
func (c *Cache) writeBack(ctx context.Context, res *handle.Resource, pg *pagetable.Page) error {
	if err := c.budget.Throttle(ctx, len(pg.Data)); err != nil {
		return err
	}

	n, err := res.File.WriteBlock(ctx, pg.Data, pg.Key.Offset)
	if err != nil {
		return err
	}
	if n < len(pg.Data) {
		return io.ErrShortWrite
	}

	c.pages.MarkClean(pg)
	res.Unsynced = true
	c.writeBacks++
	return nil
}

// settle trims block padding past the logical size and syncs the device file.
func (c *Cache) settle(ctx context.Context, op string, res *handle.Resource) error {
	if !res.Unsynced {
		return nil
	}

	if tr, ok := res.File.(device.Truncater); ok {
		size, err := res.File.Size(ctx)
		if err != nil {
			return opError(op, res.Path, -1, ErrSync, err)
		}
		if size > res.Size {
			if err := tr.Truncate(ctx, res.Size); err != nil {
				return opError(op, res.Path, -1, ErrSync, err)
			}
		}
	}

	if sy, ok := res.File.(device.Syncer); ok {
		if err := sy.Sync(); err != nil {
			return opError(op, res.Path, -1, ErrSync, err)
		}
	}

	res.Unsynced = false
	return nil
}
