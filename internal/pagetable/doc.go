// Package pagetable holds the resident pages of a block cache.
//
// A Table combines three structures that always agree on membership:
//
//   - an index from Key (resource, block-aligned offset) to an arena slot
//   - a FIFO eviction queue, threaded through the slots as an intrusive
//     doubly linked list of slot indices (oldest at the head)
//   - a per-resource dirty set of block numbers (roaring64 bitmaps)
//
// Slots are addressed by index rather than by pointer so that the queue links
// stay valid when the arena grows. Lookups never reorder the queue, which is
// what makes the policy FIFO rather than LRU.
//
// A Table is not safe for concurrent use; the owning cache serializes access.
package pagetable
