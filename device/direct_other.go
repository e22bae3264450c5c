//go:build !linux

package device

// O_DIRECT is Linux specific; elsewhere files are opened buffered.
const directFlag = 0

func adviseRandom(any) {}
