//go:build linux

package device

import "golang.org/x/sys/unix"

// directFlag bypasses the kernel page cache.
const directFlag = unix.O_DIRECT

// adviseRandom tells the kernel not to read ahead. Block access from the
// cache is driven by callers, not by file order.
func adviseRandom(f any) {
	fd, ok := f.(interface{ Fd() uintptr })
	if !ok {
		return
	}
	_ = unix.Fadvise(int(fd.Fd()), 0, 0, unix.FADV_RANDOM)
}
