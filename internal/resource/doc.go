// Package resource holds the page cache's Budget: a byte limit on resident
// page buffers and a token bucket that paces write-back.
//
// Reservations never wait. When the next page would push buffer memory past
// the limit the fault fails:
//
//	b := resource.NewBudget(64<<20, 0)
//	if err := b.Reserve(4096); err != nil {
//		// resource.ErrOverBudget
//	}
//	defer b.Release(4096)
//
// Write-back waits instead, honoring the context:
//
//	b := resource.NewBudget(0, 100<<20)
//	if err := b.Throttle(ctx, 4096); err != nil {
//		return err
//	}
package resource
