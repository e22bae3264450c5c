package pagecache

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/hupe1980/pagecache/internal/handle"
	"github.com/hupe1980/pagecache/internal/mem"
	"github.com/hupe1980/pagecache/internal/pagetable"
	"github.com/hupe1980/pagecache/internal/resource"
)

// errOrphanPage marks a dirty page whose resource is no longer registered.
var errOrphanPage = errors.New("dirty page has no open resource")

// Read reads up to len(p) bytes at the handle's cursor and advances it.
//
// The count is short only at the end of the resource; at the end it returns
// 0, io.EOF. A device failure on any spanned block fails the whole call with
// ErrIO and leaves the cursor unchanged.
func (c *Cache) Read(ctx context.Context, h Handle, p []byte) (int, error) {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, opError("read", "", -1, ErrClosed, nil)
	}
	hd, err := c.lookup("read", h)
	if err != nil {
		return 0, err
	}

	n, err := c.readAt(ctx, hd.Res, p, hd.Cursor)
	c.metrics.RecordRead(n, time.Since(start), err)
	if err != nil {
		return 0, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	hd.Cursor += int64(n)
	return n, nil
}

func (c *Cache) readAt(ctx context.Context, res *handle.Resource, p []byte, off int64) (int, error) {
	bs := c.blockSize

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		if pos >= res.Size {
			break
		}
		blockOff := pos - pos%bs

		pg, err := c.fault(ctx, "read", res, blockOff, true)
		if err != nil {
			return 0, err
		}

		inPage := pos - blockOff
		avail := min(bs, res.Size-blockOff)
		n += copy(p[n:], pg.Data[inPage:avail])
	}
	return n, nil
}

// Write writes p at the handle's cursor, extending the resource if needed,
// and advances the cursor by the number of bytes accepted.
//
// Every spanned block is faulted in, modified in place and marked dirty.
// Nothing reaches the device until the page is evicted or flushed.
func (c *Cache) Write(ctx context.Context, h Handle, p []byte) (int, error) {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, opError("write", "", -1, ErrClosed, nil)
	}
	hd, err := c.lookup("write", h)
	if err != nil {
		return 0, err
	}

	n, err := c.writeAt(ctx, hd.Res, p, hd.Cursor)
	hd.Cursor += int64(n)
	c.metrics.RecordWrite(n, time.Since(start), err)
	return n, err
}

func (c *Cache) writeAt(ctx context.Context, res *handle.Resource, p []byte, off int64) (int, error) {
	bs := c.blockSize

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		blockOff := pos - pos%bs
		inPage := pos - blockOff

		// A block that will be overwritten entirely, or that lies wholly past
		// the logical end, has nothing worth reading.
		whole := inPage == 0 && int64(len(p)-n) >= bs
		fill := !whole && blockOff < res.Size

		pg, err := c.fault(ctx, "write", res, blockOff, fill)
		if err != nil {
			return n, err
		}

		k := copy(pg.Data[inPage:], p[n:])
		c.pages.MarkDirty(pg)
		n += k

		if end := pos + int64(k); end > res.Size {
			res.Size = end
		}
	}
	return n, nil
}

// fault returns the resident page at off, loading it from the device if
// needed. When fill is false a missing page starts zeroed without a device read.
func (c *Cache) fault(ctx context.Context, op string, res *handle.Resource, off int64, fill bool) (*pagetable.Page, error) {
	key := pagetable.Key{Resource: res.ID, Offset: off}

	if pg, ok := c.pages.Get(key); ok {
		c.hits++
		c.metrics.RecordFault(true)
		return pg, nil
	}
	c.misses++
	c.metrics.RecordFault(false)

	if c.pages.Full() {
		if err := c.evict(ctx, op); err != nil {
			return nil, err
		}
	}

	// A memory limit tighter than the page count is enforced by evicting too.
	buf, err := c.allocPage()
	for errors.Is(err, resource.ErrOverBudget) && c.pages.Len() > 0 {
		if err := c.evict(ctx, op); err != nil {
			return nil, err
		}
		buf, err = c.allocPage()
	}
	if err != nil {
		return nil, opError(op, res.Path, off, ErrAllocation, err)
	}

	n := 0
	if fill {
		n, err = res.File.ReadBlock(ctx, buf, off)
		if err != nil {
			c.releasePage(buf)
			return nil, opError(op, res.Path, off, ErrIO, err)
		}
	}

	pg := &pagetable.Page{Key: key, Data: buf}
	if err := c.pages.Insert(pg); err != nil {
		c.releasePage(buf)
		return nil, opError(op, res.Path, off, ErrIO, err)
	}

	c.logger.LogFault(ctx, res.Path, off, n)
	return pg, nil
}

// evict removes the oldest page, writing it back first if dirty. On a failed
// write-back the victim stays resident and dirty.
func (c *Cache) evict(ctx context.Context, op string) error {
	victim, ok := c.pages.Oldest()
	if !ok {
		return nil
	}
	dirty := victim.Dirty

	res, ok := c.handles.ResourceByID(victim.Key.Resource)
	if dirty {
		if !ok {
			return opError(op, "", victim.Key.Offset, ErrIO, errOrphanPage)
		}
		if err := c.writeBack(ctx, res, victim); err != nil {
			return opError(op, res.Path, victim.Key.Offset, ErrIO, err)
		}
	}

	c.pages.Remove(victim.Key)
	c.releasePage(victim.Data)
	c.evictions++
	c.metrics.RecordEviction(dirty)

	if ok {
		c.logger.LogEvict(ctx, res.Path, victim.Key.Offset, dirty)
	}
	return nil
}

func (c *Cache) allocPage() ([]byte, error) {
	if err := c.budget.Reserve(c.blockSize); err != nil {
		return nil, err
	}
	return mem.AllocAligned(int(c.blockSize), c.alignment), nil
}

func (c *Cache) releasePage(buf []byte) {
	c.budget.Release(int64(len(buf)))
}
