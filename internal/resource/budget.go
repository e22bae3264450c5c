package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrOverBudget is returned when a page buffer does not fit the memory limit.
var ErrOverBudget = errors.New("page memory budget exhausted")

// Budget accounts for page buffer memory and paces dirty page write-back.
// A nil *Budget places no limits.
type Budget struct {
	limit int64
	sem   *semaphore.Weighted // nil without a memory limit
	held  atomic.Int64

	writeBack *rate.Limiter // nil without a rate
}

// NewBudget creates a Budget. A memoryLimit of zero only tracks usage; a
// writeBackRate of zero disables pacing.
func NewBudget(memoryLimit, writeBackRate int64) *Budget {
	b := &Budget{limit: memoryLimit}
	if memoryLimit > 0 {
		b.sem = semaphore.NewWeighted(memoryLimit)
	}
	if writeBackRate > 0 {
		b.writeBack = rate.NewLimiter(rate.Limit(writeBackRate), int(writeBackRate))
	}
	return b
}

// Reserve accounts for a page buffer of n bytes. It never blocks: a page
// fault that does not fit fails with ErrOverBudget.
func (b *Budget) Reserve(n int64) error {
	if b == nil || n <= 0 {
		return nil
	}
	if b.sem != nil && !b.sem.TryAcquire(n) {
		return ErrOverBudget
	}
	b.held.Add(n)
	return nil
}

// Release returns n bytes reserved by Reserve.
func (b *Budget) Release(n int64) {
	if b == nil || n <= 0 {
		return
	}
	if b.sem != nil {
		b.sem.Release(n)
	}
	b.held.Add(-n)
}

// Held reports the bytes currently reserved.
func (b *Budget) Held() int64 {
	if b == nil {
		return 0
	}
	return b.held.Load()
}

// Limit reports the memory limit, zero when unlimited.
func (b *Budget) Limit() int64 {
	if b == nil {
		return 0
	}
	return b.limit
}

// Throttle blocks until n bytes of write-back are allowed or ctx is done.
// Writes above the bucket size are paced in bucket-sized steps.
func (b *Budget) Throttle(ctx context.Context, n int) error {
	if b == nil || b.writeBack == nil {
		return nil
	}
	step := b.writeBack.Burst()
	for n > 0 {
		chunk := min(n, step)
		if err := b.writeBack.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
