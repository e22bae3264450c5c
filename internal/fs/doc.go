// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with positional read/write, sync and truncate
//   - [FileSystem]: opens files
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// # Usage
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR, 0)
//
// Tests can inject [FaultyFS] to make block reads or writes fail:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("data.bin", fs.Fault{FailWritesAfter: 1, FailReadsAfter: -1})
//	// inject ffs into the local block device
//
// # Design Notes
//
// This package intentionally does NOT include context.Context parameters.
// Local positional reads and writes are non-interruptible at the syscall level.
package fs
