// Package mem provides memory allocation utilities.
//
// # Aligned Allocation
//
// Direct (unbuffered) I/O requires the user buffer to start at an address
// that is a multiple of the device's logical block size. Go's allocator only
// guarantees word alignment, so page buffers are carved out of a slightly
// larger allocation at the first aligned address.
package mem
