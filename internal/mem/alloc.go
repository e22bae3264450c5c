package mem

import (
	"unsafe"
)

// DirectIOAlignment is the buffer alignment required by O_DIRECT on common
// Linux filesystems and block devices (4 KiB).
const DirectIOAlignment = 4096

// AllocAligned allocates a zeroed byte slice of the given size whose first
// byte sits at an address divisible by align.
//
// align must be a power of two; values <= 1 fall back to a plain allocation.
// The underlying array is kept alive by the returned slice.
func AllocAligned(size, align int) []byte {
	if size <= 0 {
		return nil
	}
	if align <= 1 {
		return make([]byte, size)
	}

	// Allocate size + align so the start can be shifted up by at most align-1 bytes.
	buf := make([]byte, size+align)

	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // unsafe is required for memory alignment
	offset := int((uintptr(align) - (addr & uintptr(align-1))) & uintptr(align-1))

	// Cap the slice so appends can never spill into the padding.
	return buf[offset : offset+size : offset+size]
}

// IsAligned reports whether the first byte of b sits at an address divisible by align.
func IsAligned(b []byte, align int) bool {
	if len(b) == 0 || align <= 1 {
		return true
	}
	addr := uintptr(unsafe.Pointer(&b[0])) //nolint:gosec // unsafe is required for memory alignment
	return addr&uintptr(align-1) == 0
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
