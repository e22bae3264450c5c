// Package pagecache provides a block-granular page cache for direct I/O.
//
// The cache sits between a byte-oriented read/write/seek API and a device that
// only accepts whole, aligned blocks (files opened with O_DIRECT, block
// objects in S3 or MinIO). Requests of any length at any offset are translated
// into aligned block transfers; a bounded number of blocks stays resident and
// is replaced in strict FIFO order.
//
// # Quick Start
//
//	c, _ := pagecache.New(4096, 1024)
//	h, _ := c.Open(ctx, "/data/blob.bin")
//	defer c.Close(ctx, h)
//
//	buf := make([]byte, 100)
//	n, err := c.Read(ctx, h, buf)
//
// Or through the io adapter:
//
//	f, _ := c.OpenFile(ctx, "/data/blob.bin")
//	io.Copy(dst, f)
//	f.Close()
//
// # Write-Back
//
// Writes modify resident pages and mark them dirty. Dirty pages reach the
// device when they are evicted, on Flush, on Close of the last handle of a
// resource, or on Shutdown. A flush writes whole blocks, then truncates the
// device back to the logical resource size and syncs it when the device
// supports it.
//
// # Sharing
//
// All handles opened through one Cache share its pages and its eviction order.
// Handles on the same path share one device file and one logical size; each
// handle has its own cursor.
//
// # Devices
//
// By default resources are local files opened with O_DIRECT (see
// device.NewLocal). Use WithDevice to read through device.NewMemory or the
// object store device in device/objstore.
package pagecache
