package pagecache_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/pagecache"
	"github.com/hupe1980/pagecache/device"
	"github.com/hupe1980/pagecache/internal/fs"
	"github.com/hupe1980/pagecache/internal/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const bs = 4096

// blocks returns n blocks where every byte of block i equals byte(i+1).
func blocks(n int) []byte {
	data := make([]byte, n*bs)
	for i := range data {
		data[i] = byte(i/bs + 1)
	}
	return data
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	return data
}

func newMemCache(t *testing.T, maxPages int, data []byte, opts ...pagecache.Option) (*pagecache.Cache, *device.Memory) {
	t.Helper()
	dev := device.NewMemory()
	dev.Put("r", data)
	c, err := pagecache.New(bs, maxPages, append([]pagecache.Option{pagecache.WithDevice(dev)}, opts...)...)
	require.NoError(t, err)
	return c, dev
}

// newLocalCache writes data to a temp file and opens a cache over it through
// a fault-injecting filesystem.
func newLocalCache(t *testing.T, maxPages int, data []byte, opts ...pagecache.Option) (*pagecache.Cache, *fs.FaultyFS, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	ffs := fs.NewFaultyFS(nil)
	dev := device.NewLocal(device.WithDirectIO(false), device.WithFileSystem(ffs))
	c, err := pagecache.New(bs, maxPages, append([]pagecache.Option{pagecache.WithDevice(dev)}, opts...)...)
	require.NoError(t, err)
	return c, ffs, path
}

type handleReader struct {
	ctx context.Context
	c   *pagecache.Cache
	h   pagecache.Handle
}

func (r handleReader) Read(p []byte) (int, error) {
	return r.c.Read(r.ctx, r.h, p)
}

func offsets(pages []pagecache.PageInfo) []int64 {
	out := make([]int64, len(pages))
	for i, p := range pages {
		out[i] = p.Offset
	}
	return out
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name      string
		blockSize int
		maxPages  int
		opts      []pagecache.Option
	}{
		{"zero block size", 0, 4, nil},
		{"zero pages", bs, 0, nil},
		{"alignment not power of two", bs, 4, []pagecache.Option{pagecache.WithAlignment(3000)}},
		{"block size not multiple of alignment", 1000, 4, nil},
		{"negative memory limit", bs, 4, []pagecache.Option{pagecache.WithMemoryLimit(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pagecache.New(tt.blockSize, tt.maxPages, tt.opts...)
			assert.ErrorIs(t, err, pagecache.ErrInvalidConfig)
		})
	}

	t.Run("small blocks with matching alignment", func(t *testing.T) {
		c, err := pagecache.New(512, 4, pagecache.WithAlignment(512), pagecache.WithDevice(device.NewMemory()))
		require.NoError(t, err)
		assert.Equal(t, 512, c.BlockSize())
		assert.Equal(t, 4, c.Capacity())
	})
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemCache(t, 2, make([]byte, 4*bs))

	h, err := c.Open(ctx, "r")
	require.NoError(t, err)

	// Spans three blocks starting mid-block, with a capacity of two.
	payload := pattern(2*bs + 500)
	_, err = c.Seek(ctx, h, 1000, io.SeekStart)
	require.NoError(t, err)

	n, err := c.Write(ctx, h, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	_, err = c.Seek(ctx, h, 1000, io.SeekStart)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	n, err = io.ReadFull(handleReader{ctx: ctx, c: c, h: h}, got)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, got)

	require.NoError(t, c.Close(ctx, h))
}

type checkedDevice struct {
	*device.Memory
	t     *testing.T
	reads int
}

func (d *checkedDevice) Open(ctx context.Context, name string) (device.File, error) {
	f, err := d.Memory.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &checkedFile{File: f, d: d}, nil
}

type checkedFile struct {
	device.File
	d *checkedDevice
}

func (f *checkedFile) check(p []byte, off int64) {
	assert.Len(f.d.t, p, bs)
	assert.Zero(f.d.t, off%bs, "offset %d not block aligned", off)
	assert.True(f.d.t, mem.IsAligned(p, mem.DirectIOAlignment), "buffer not memory aligned")
}

func (f *checkedFile) ReadBlock(ctx context.Context, p []byte, off int64) (int, error) {
	f.check(p, off)
	f.d.reads++
	return f.File.ReadBlock(ctx, p, off)
}

func (f *checkedFile) WriteBlock(ctx context.Context, p []byte, off int64) (int, error) {
	f.check(p, off)
	return f.File.WriteBlock(ctx, p, off)
}

func TestCache_AlignedTransfers(t *testing.T) {
	ctx := context.Background()
	mdev := device.NewMemory()
	mdev.Put("r", pattern(3*bs+123))
	dev := &checkedDevice{Memory: mdev, t: t}

	c, err := pagecache.New(bs, 2, pagecache.WithDevice(dev))
	require.NoError(t, err)

	h, err := c.Open(ctx, "r")
	require.NoError(t, err)

	// Odd offsets and lengths on both paths.
	for _, off := range []int64{1, 4095, 5000, 3*bs + 100} {
		_, err = c.Seek(ctx, h, off, io.SeekStart)
		require.NoError(t, err)
		_, err = c.Write(ctx, h, []byte("xyz"))
		require.NoError(t, err)

		_, err = c.Seek(ctx, h, off-1, io.SeekStart)
		require.NoError(t, err)
		buf := make([]byte, 7)
		_, err = c.Read(ctx, h, buf)
		require.NoError(t, err)
	}
	require.NoError(t, c.Close(ctx, h))
	assert.Positive(t, dev.reads)
}

func TestCache_BoundedResidency(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemCache(t, 3, blocks(10))

	h, err := c.Open(ctx, "r")
	require.NoError(t, err)

	buf := make([]byte, 1)
	for i := 0; i < 10; i++ {
		_, err := c.Seek(ctx, h, int64(i*bs+i), io.SeekStart)
		require.NoError(t, err)
		_, err = c.Read(ctx, h, buf)
		require.NoError(t, err)
		assert.Equal(t, byte(i+1), buf[0])
		assert.LessOrEqual(t, c.Stats().Resident, 3)
	}

	stats := c.Stats()
	assert.Equal(t, 3, stats.Resident)
	assert.Equal(t, uint64(7), stats.Evictions)
	assert.Equal(t, int64(3*bs), stats.MemoryBytes)
}

func TestCache_FIFOIgnoresRereads(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemCache(t, 4, blocks(10))

	h, err := c.Open(ctx, "r")
	require.NoError(t, err)

	readBlock := func(i int) {
		t.Helper()
		_, err := c.Seek(ctx, h, int64(i*bs), io.SeekStart)
		require.NoError(t, err)
		_, err = c.Read(ctx, h, make([]byte, 10))
		require.NoError(t, err)
	}

	for i := 0; i < 4; i++ {
		readBlock(i)
	}
	// Block 0 is the hottest page but still the oldest.
	for i := 0; i < 5; i++ {
		readBlock(0)
	}
	readBlock(4)

	assert.Equal(t, []int64{1 * bs, 2 * bs, 3 * bs, 4 * bs}, offsets(c.Resident()))

	stats := c.Stats()
	assert.Equal(t, uint64(5), stats.Hits)
	assert.Equal(t, uint64(5), stats.Misses)
	assert.Equal(t, uint64(1), stats.Evictions)
}

func TestCache_DirtySurvivesEviction(t *testing.T) {
	ctx := context.Background()
	c, dev := newMemCache(t, 1, blocks(2))

	h, err := c.Open(ctx, "r")
	require.NoError(t, err)

	_, err = c.Write(ctx, h, []byte("hello"))
	require.NoError(t, err)

	// Faulting block 1 evicts the dirty block 0.
	_, err = c.Seek(ctx, h, bs, io.SeekStart)
	require.NoError(t, err)
	_, err = c.Read(ctx, h, make([]byte, 1))
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.WriteBacks)
	assert.Zero(t, stats.Dirty)

	data, ok := dev.Bytes("r")
	require.True(t, ok)
	assert.Equal(t, "hello", string(data[:5]))

	_, err = c.Seek(ctx, h, 0, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 6)
	_, err = c.Read(ctx, h, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello\x01", string(buf))
}

func TestCache_EndToEnd(t *testing.T) {
	ctx := context.Background()
	data := blocks(10)
	c, _, path := newLocalCache(t, 4, data)

	h, err := c.Open(ctx, path)
	require.NoError(t, err)

	got, err := io.ReadAll(handleReader{ctx: ctx, c: c, h: h})
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, []int64{6 * bs, 7 * bs, 8 * bs, 9 * bs}, offsets(c.Resident()))

	block := bytes.Repeat([]byte{0x41}, bs)
	_, err = c.Seek(ctx, h, 0, io.SeekStart)
	require.NoError(t, err)
	n, err := c.Write(ctx, h, block)
	require.NoError(t, err)
	assert.Equal(t, bs, n)

	_, err = c.Seek(ctx, h, 0, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, bs)
	n, err = c.Read(ctx, h, buf)
	require.NoError(t, err)
	assert.Equal(t, bs, n)
	assert.Equal(t, block, buf)

	require.NoError(t, c.Close(ctx, h))

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, onDisk, 10*bs)
	assert.Equal(t, block, onDisk[:bs])
	assert.Equal(t, data[bs:], onDisk[bs:])
}

func TestCache_ReadEOF(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemCache(t, 4, pattern(bs+10))

	h, err := c.Open(ctx, "r")
	require.NoError(t, err)

	t.Run("empty buffer", func(t *testing.T) {
		n, err := c.Read(ctx, h, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("short at tail", func(t *testing.T) {
		_, err := c.Seek(ctx, h, bs, io.SeekStart)
		require.NoError(t, err)
		buf := make([]byte, 100)
		n, err := c.Read(ctx, h, buf)
		require.NoError(t, err)
		assert.Equal(t, 10, n)
	})

	t.Run("at end", func(t *testing.T) {
		n, err := c.Read(ctx, h, make([]byte, 100))
		assert.ErrorIs(t, err, io.EOF)
		assert.Zero(t, n)
	})

	t.Run("past end", func(t *testing.T) {
		_, err := c.Seek(ctx, h, 100, io.SeekEnd)
		require.NoError(t, err)
		n, err := c.Read(ctx, h, make([]byte, 100))
		assert.ErrorIs(t, err, io.EOF)
		assert.Zero(t, n)
	})

	t.Run("no fault past end", func(t *testing.T) {
		before := c.Stats().Misses
		_, _ = c.Read(ctx, h, make([]byte, 100))
		assert.Equal(t, before, c.Stats().Misses)
	})
}

func TestCache_Seek(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemCache(t, 4, pattern(1000))

	h, err := c.Open(ctx, "r")
	require.NoError(t, err)

	tests := []struct {
		name    string
		offset  int64
		whence  int
		want    int64
		wantErr bool
	}{
		{"start", 10, io.SeekStart, 10, false},
		{"current forward", 5, io.SeekCurrent, 15, false},
		{"current back", -15, io.SeekCurrent, 0, false},
		{"end", -100, io.SeekEnd, 900, false},
		{"past end", 50, io.SeekEnd, 1050, false},
		{"negative", -1, io.SeekStart, 0, true},
		{"negative from end", -2000, io.SeekEnd, 0, true},
		{"bad whence", 0, 7, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := c.Seek(ctx, h, tt.offset, tt.whence)
			if tt.wantErr {
				assert.ErrorIs(t, err, pagecache.ErrSeek)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, pos)
		})
	}
}

func TestCache_WritePastEnd(t *testing.T) {
	ctx := context.Background()
	c, dev := newMemCache(t, 4, pattern(100))

	h, err := c.Open(ctx, "r")
	require.NoError(t, err)

	_, err = c.Seek(ctx, h, bs+50, io.SeekStart)
	require.NoError(t, err)
	_, err = c.Write(ctx, h, []byte("tail"))
	require.NoError(t, err)

	size, err := c.Size(h)
	require.NoError(t, err)
	assert.Equal(t, int64(bs+54), size)

	pos, err := c.Seek(ctx, h, 0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, size, pos)

	require.NoError(t, c.Flush(ctx, h))

	// Full-block write-back is trimmed back to the logical size.
	data, ok := dev.Bytes("r")
	require.True(t, ok)
	require.Len(t, data, bs+54)
	assert.Equal(t, pattern(100), data[:100])
	assert.Equal(t, make([]byte, bs-100), data[100:bs])
	assert.Equal(t, "tail", string(data[bs+50:]))
}

func TestCache_SharedResource(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemCache(t, 4, blocks(4))

	h1, err := c.Open(ctx, "r")
	require.NoError(t, err)
	h2, err := c.Open(ctx, "./r")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	_, err = c.Write(ctx, h1, []byte("shared"))
	require.NoError(t, err)

	buf := make([]byte, 6)
	_, err = c.Read(ctx, h2, buf)
	require.NoError(t, err)
	assert.Equal(t, "shared", string(buf), "handles share pages")

	stats := c.Stats()
	assert.Equal(t, 2, stats.OpenHandles)
	assert.Equal(t, 1, stats.OpenResources)
	assert.Equal(t, 1, stats.Resident)

	require.NoError(t, c.Close(ctx, h1))
	assert.Equal(t, 1, c.Stats().Resident, "pages stay while a handle remains")

	require.NoError(t, c.Close(ctx, h2))
	stats = c.Stats()
	assert.Zero(t, stats.Resident)
	assert.Zero(t, stats.OpenResources)
	assert.Zero(t, stats.MemoryBytes)
}

func TestCache_GlobalFIFOAcrossResources(t *testing.T) {
	ctx := context.Background()
	dev := device.NewMemory()
	dev.Put("a", blocks(2))
	dev.Put("b", blocks(2))

	c, err := pagecache.New(bs, 3, pagecache.WithDevice(dev))
	require.NoError(t, err)

	ha, err := c.Open(ctx, "a")
	require.NoError(t, err)
	hb, err := c.Open(ctx, "b")
	require.NoError(t, err)

	one := make([]byte, 1)
	_, err = c.Read(ctx, ha, one)
	require.NoError(t, err)
	_, err = c.Read(ctx, hb, one)
	require.NoError(t, err)
	_, err = c.Seek(ctx, ha, bs, io.SeekStart)
	require.NoError(t, err)
	_, err = c.Read(ctx, ha, one)
	require.NoError(t, err)
	_, err = c.Seek(ctx, hb, bs, io.SeekStart)
	require.NoError(t, err)
	_, err = c.Read(ctx, hb, one)
	require.NoError(t, err)

	resident := c.Resident()
	require.Len(t, resident, 3)
	assert.Equal(t, "b", filepath.Base(resident[0].Path))
	assert.Equal(t, int64(0), resident[0].Offset)
	assert.Equal(t, "a", filepath.Base(resident[1].Path))
	assert.Equal(t, int64(bs), resident[1].Offset)
}

func TestCache_InvalidHandle(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemCache(t, 4, pattern(10))

	_, err := c.Read(ctx, 99, make([]byte, 1))
	assert.ErrorIs(t, err, pagecache.ErrInvalidHandle)

	h, err := c.Open(ctx, "r")
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx, h))

	_, err = c.Write(ctx, h, []byte("x"))
	assert.ErrorIs(t, err, pagecache.ErrInvalidHandle)
	assert.ErrorIs(t, c.Flush(ctx, h), pagecache.ErrInvalidHandle)
	assert.ErrorIs(t, c.Close(ctx, h), pagecache.ErrInvalidHandle)
}

func TestCache_OpenMissing(t *testing.T) {
	ctx := context.Background()
	c, _, path := newLocalCache(t, 4, nil)

	_, err := c.Open(ctx, path+".missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, pagecache.ErrOpen)
	assert.ErrorIs(t, err, device.ErrNotFound)

	var opErr *pagecache.OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "open", opErr.Op)
}

func TestCache_ReadFailure(t *testing.T) {
	ctx := context.Background()
	c, ffs, path := newLocalCache(t, 4, blocks(3))

	h, err := c.Open(ctx, path)
	require.NoError(t, err)

	ffs.AddRule("data.bin", fs.Fault{FailReadsAfter: 1, FailWritesAfter: -1})

	n, err := c.Read(ctx, h, make([]byte, 2*bs))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, pagecache.ErrIO)
	assert.ErrorIs(t, err, fs.ErrInjected)

	var opErr *pagecache.OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, int64(bs), opErr.Offset)

	pos, err := c.Seek(ctx, h, 0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Zero(t, pos, "cursor unchanged after a failed read")

	ffs.ClearRules()
	buf := make([]byte, 2*bs)
	n, err = c.Read(ctx, h, buf)
	require.NoError(t, err)
	assert.Equal(t, 2*bs, n)
	assert.Equal(t, blocks(3)[:2*bs], buf)
}

func TestCache_PartialFlush(t *testing.T) {
	ctx := context.Background()
	c, ffs, path := newLocalCache(t, 8, blocks(3))

	h, err := c.Open(ctx, path)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := c.Seek(ctx, h, int64(i*bs+10), io.SeekStart)
		require.NoError(t, err)
		_, err = c.Write(ctx, h, []byte("dirty"))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Stats().Dirty)

	ffs.AddRule("data.bin", fs.Fault{FailReadsAfter: -1, FailWritesAfter: 1})

	err = c.Flush(ctx, h)
	assert.ErrorIs(t, err, pagecache.ErrIO)

	var opErr *pagecache.OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, int64(bs), opErr.Offset, "stops at the first failing page")
	assert.Equal(t, 2, c.Stats().Dirty)

	ffs.ClearRules()
	require.NoError(t, c.Flush(ctx, h))
	assert.Zero(t, c.Stats().Dirty)

	require.NoError(t, c.Close(ctx, h))

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Equal(t, "dirty", string(onDisk[i*bs+10:i*bs+15]))
	}
}

func TestCache_DirtyVictimWriteBackFailure(t *testing.T) {
	ctx := context.Background()
	c, ffs, path := newLocalCache(t, 1, blocks(2))

	h, err := c.Open(ctx, path)
	require.NoError(t, err)

	_, err = c.Write(ctx, h, []byte("keep"))
	require.NoError(t, err)

	ffs.AddRule("data.bin", fs.Fault{FailReadsAfter: -1, FailWritesAfter: 0})

	_, err = c.Seek(ctx, h, bs, io.SeekStart)
	require.NoError(t, err)
	_, err = c.Read(ctx, h, make([]byte, 1))
	assert.ErrorIs(t, err, pagecache.ErrIO)

	resident := c.Resident()
	require.Len(t, resident, 1)
	assert.Equal(t, int64(0), resident[0].Offset)
	assert.True(t, resident[0].Dirty, "victim stays resident and dirty")

	ffs.ClearRules()
	buf := make([]byte, 1)
	_, err = c.Read(ctx, h, buf)
	require.NoError(t, err)
	assert.Equal(t, byte(2), buf[0])
	require.NoError(t, c.Close(ctx, h))

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(onDisk[:4]))
}

func TestCache_CloseErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("sync", func(t *testing.T) {
		c, ffs, path := newLocalCache(t, 4, blocks(1))
		h, err := c.Open(ctx, path)
		require.NoError(t, err)
		_, err = c.Write(ctx, h, []byte("x"))
		require.NoError(t, err)

		ffs.AddRule("data.bin", fs.Fault{FailReadsAfter: -1, FailWritesAfter: -1, FailOnSync: true})

		err = c.Close(ctx, h)
		assert.ErrorIs(t, err, pagecache.ErrSync)
		assert.ErrorIs(t, err, fs.ErrInjected)

		assert.ErrorIs(t, c.Close(ctx, h), pagecache.ErrInvalidHandle, "handle invalid after a failed close")
		assert.Zero(t, c.Stats().OpenResources)
	})

	t.Run("write-back", func(t *testing.T) {
		c, ffs, path := newLocalCache(t, 4, blocks(1))
		h, err := c.Open(ctx, path)
		require.NoError(t, err)
		_, err = c.Write(ctx, h, []byte("x"))
		require.NoError(t, err)

		ffs.AddRule("data.bin", fs.Fault{FailReadsAfter: -1, FailWritesAfter: 0})

		err = c.Close(ctx, h)
		assert.ErrorIs(t, err, pagecache.ErrSync)
		assert.ErrorIs(t, err, pagecache.ErrIO)
		assert.Zero(t, c.Stats().Resident, "pages dropped with the last handle")
	})

	t.Run("release", func(t *testing.T) {
		c, ffs, path := newLocalCache(t, 4, blocks(1))
		h, err := c.Open(ctx, path)
		require.NoError(t, err)

		ffs.AddRule("data.bin", fs.Fault{FailReadsAfter: -1, FailWritesAfter: -1, FailOnClose: true})

		err = c.Close(ctx, h)
		assert.ErrorIs(t, err, pagecache.ErrClose)
		assert.NotErrorIs(t, err, pagecache.ErrSync)
	})
}

func TestCache_Allocation(t *testing.T) {
	ctx := context.Background()

	t.Run("limit below one page", func(t *testing.T) {
		c, _ := newMemCache(t, 4, blocks(2), pagecache.WithMemoryLimit(bs-1))
		h, err := c.Open(ctx, "r")
		require.NoError(t, err)

		_, err = c.Read(ctx, h, make([]byte, 1))
		assert.ErrorIs(t, err, pagecache.ErrAllocation)
	})

	t.Run("limit tighter than page count", func(t *testing.T) {
		c, _ := newMemCache(t, 4, blocks(2), pagecache.WithMemoryLimit(bs))
		h, err := c.Open(ctx, "r")
		require.NoError(t, err)

		_, err = c.Read(ctx, h, make([]byte, 1))
		require.NoError(t, err)

		// Block 1 only fits once block 0 is evicted.
		n, err := c.Read(ctx, h, make([]byte, bs))
		require.NoError(t, err)
		assert.Equal(t, bs, n)

		resident := c.Resident()
		require.Len(t, resident, 1)
		assert.Equal(t, int64(bs), resident[0].Offset)
		assert.Equal(t, int64(bs), c.Stats().MemoryBytes)

		require.NoError(t, c.Close(ctx, h))
		assert.Zero(t, c.Stats().MemoryBytes)
	})

	t.Run("budget evicts in FIFO order", func(t *testing.T) {
		c, _ := newMemCache(t, 4, blocks(3), pagecache.WithMemoryLimit(2*bs))
		h, err := c.Open(ctx, "r")
		require.NoError(t, err)

		buf := make([]byte, bs)
		for i := 0; i < 3; i++ {
			_, err := c.Read(ctx, h, buf)
			require.NoError(t, err, "block %d", i)
			assert.Equal(t, byte(i+1), buf[0])
		}

		assert.Equal(t, []int64{bs, 2 * bs}, offsets(c.Resident()))
		assert.Equal(t, uint64(1), c.Stats().Evictions)
		require.NoError(t, c.Close(ctx, h))
	})

	t.Run("budget eviction writes back dirty pages", func(t *testing.T) {
		c, dev := newMemCache(t, 4, blocks(2), pagecache.WithMemoryLimit(bs))
		h, err := c.Open(ctx, "r")
		require.NoError(t, err)

		_, err = c.Write(ctx, h, bytes.Repeat([]byte{0x41}, bs))
		require.NoError(t, err)
		_, err = c.Read(ctx, h, make([]byte, 1))
		require.NoError(t, err)

		data, ok := dev.Bytes("r")
		require.True(t, ok)
		assert.Equal(t, bytes.Repeat([]byte{0x41}, bs), data[:bs])
		assert.Equal(t, 1, c.Stats().Resident)
		require.NoError(t, c.Close(ctx, h))
	})
}

func TestCache_FlushAll(t *testing.T) {
	ctx := context.Background()
	dev := device.NewMemory()
	dev.Put("a", nil)
	dev.Put("b", nil)

	c, err := pagecache.New(bs, 8, pagecache.WithDevice(dev))
	require.NoError(t, err)

	for _, name := range []string{"a", "b"} {
		h, err := c.Open(ctx, name)
		require.NoError(t, err)
		_, err = c.Write(ctx, h, []byte(name+name))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Stats().Dirty)

	require.NoError(t, c.FlushAll(ctx))
	assert.Zero(t, c.Stats().Dirty)

	for _, name := range []string{"a", "b"} {
		data, ok := dev.Bytes(name)
		require.True(t, ok)
		assert.Equal(t, name+name, string(data))
	}
}

func TestCache_Shutdown(t *testing.T) {
	ctx := context.Background()
	c, dev := newMemCache(t, 4, nil)

	h, err := c.Open(ctx, "r")
	require.NoError(t, err)
	_, err = c.Write(ctx, h, []byte("persisted"))
	require.NoError(t, err)

	require.NoError(t, c.Shutdown(ctx))
	require.NoError(t, c.Shutdown(ctx))

	data, ok := dev.Bytes("r")
	require.True(t, ok)
	assert.Equal(t, "persisted", string(data))

	_, err = c.Open(ctx, "r")
	assert.ErrorIs(t, err, pagecache.ErrClosed)
	_, err = c.Read(ctx, h, make([]byte, 1))
	assert.ErrorIs(t, err, pagecache.ErrClosed)
	assert.ErrorIs(t, c.FlushAll(ctx), pagecache.ErrClosed)
}

func TestCache_Metrics(t *testing.T) {
	ctx := context.Background()
	metrics := &pagecache.BasicMetricsCollector{}
	c, _ := newMemCache(t, 1, blocks(2), pagecache.WithMetricsCollector(metrics))

	h, err := c.Open(ctx, "r")
	require.NoError(t, err)

	_, err = c.Write(ctx, h, []byte("ab"))
	require.NoError(t, err)
	_, err = c.Read(ctx, h, make([]byte, bs))
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx, h))

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.WriteCount)
	assert.Equal(t, int64(2), stats.WriteBytes)
	assert.Equal(t, int64(1), stats.ReadCount)
	assert.Equal(t, int64(bs), stats.ReadBytes)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.DirtyEvictions)
	assert.Equal(t, int64(1), stats.FlushCount)
	assert.InDelta(t, 0.33, stats.HitRatio(), 0.01)
}

func TestCache_ConcurrentHandles(t *testing.T) {
	ctx := context.Background()
	const perResource = 6

	dev := device.NewMemory()
	names := []string{"a", "b"}
	for _, name := range names {
		dev.Put(name, make([]byte, perResource*bs))
	}

	// Two resources of six blocks each compete for four pages.
	c, err := pagecache.New(bs, 4, pagecache.WithDevice(dev))
	require.NoError(t, err)

	fill := func(r, block int) byte { return byte(r*16 + block + 1) }

	var g errgroup.Group
	for r, name := range names {
		for worker := 0; worker < 2; worker++ {
			g.Go(func() error {
				h, err := c.Open(ctx, name)
				if err != nil {
					return err
				}

				// Each worker owns alternate blocks of its resource.
				buf := make([]byte, bs)
				for block := worker; block < perResource; block += 2 {
					if _, err := c.Seek(ctx, h, int64(block*bs), io.SeekStart); err != nil {
						return err
					}
					for i := range buf {
						buf[i] = fill(r, block)
					}
					if _, err := c.Write(ctx, h, buf); err != nil {
						return err
					}
				}
				if err := c.Flush(ctx, h); err != nil {
					return err
				}

				for block := worker; block < perResource; block += 2 {
					if _, err := c.Seek(ctx, h, int64(block*bs), io.SeekStart); err != nil {
						return err
					}
					if _, err := io.ReadFull(handleReader{ctx: ctx, c: c, h: h}, buf); err != nil {
						return err
					}
					if want := fill(r, block); buf[0] != want || buf[bs-1] != want {
						return fmt.Errorf("%s block %d: got %#x, want %#x", name, block, buf[0], want)
					}
				}
				return c.Close(ctx, h)
			})
		}
	}
	require.NoError(t, g.Wait())

	for r, name := range names {
		data, ok := dev.Bytes(name)
		require.True(t, ok)
		require.Len(t, data, perResource*bs)
		for block := 0; block < perResource; block++ {
			assert.Equal(t, bytes.Repeat([]byte{fill(r, block)}, bs), data[block*bs:(block+1)*bs], "%s block %d", name, block)
		}
	}

	st := c.Stats()
	assert.Zero(t, st.Resident)
	assert.Zero(t, st.OpenHandles)
	assert.NotZero(t, st.Evictions)
}
