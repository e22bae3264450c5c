package pagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Drain reads path sequentially to the end in chunks of bufSize bytes, then
// closes it. It returns the number of bytes read.
//
// A read failure is reported together with any close failure.
func (c *Cache) Drain(ctx context.Context, path string, bufSize int) (int64, error) {
	if bufSize <= 0 {
		return 0, fmt.Errorf("%w: buffer size must be positive, got %d", ErrInvalidConfig, bufSize)
	}

	h, err := c.Open(ctx, path)
	if err != nil {
		c.logger.LogDrain(ctx, path, 0, err)
		return 0, err
	}

	buf := make([]byte, bufSize)
	var total int64
	var readErr error
	for {
		n, err := c.Read(ctx, h, buf)
		total += int64(n)
		if errors.Is(err, io.EOF) {
			c.logger.LogEOF(ctx, path, total)
			break
		}
		if err != nil {
			readErr = err
			break
		}
	}

	err = errors.Join(readErr, c.Close(ctx, h))
	c.logger.LogDrain(ctx, path, total, err)
	return total, err
}
