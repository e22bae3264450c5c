// Package device defines the aligned block device consumed by the page cache.
//
// A Device opens named resources; a File transfers whole blocks at
// block-aligned offsets. The cache guarantees that every buffer handed to
// ReadBlock and WriteBlock is exactly one block long and aligned in memory to
// the configured alignment, which is what direct (O_DIRECT) I/O requires.
//
// # Built-in Implementations
//
//   - Local: files on a local filesystem, opened with O_DIRECT on Linux
//   - Memory: in-memory resources for tests and benchmarks
//   - objstore.Device: one object per block on S3, MinIO or memory
//
// # Read Contract
//
// ReadBlock returns the number of bytes present at off. A short count means
// the block is the tail of the resource; zero means off is at or past the end.
// io.EOF is never returned; errors are reserved for device failures.
package device
