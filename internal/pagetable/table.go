package pagetable

import (
	"errors"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

var (
	// ErrFull is returned by Insert when the table holds its maximum page count.
	ErrFull = errors.New("page table full")
	// ErrExists is returned by Insert when a page with the same key is resident.
	ErrExists = errors.New("page already resident")
	// ErrMisaligned is returned by Insert for offsets that are not block-aligned
	// or buffers that are not exactly one block long.
	ErrMisaligned = errors.New("page not block aligned")
)

// ResourceID identifies an open storage resource.
type ResourceID uint64

// Key identifies at most one resident page.
type Key struct {
	Resource ResourceID
	Offset   int64
}

// Page is one resident, block-aligned chunk of a resource.
//
// Dirty must only be changed through Table.MarkDirty and Table.MarkClean so the
// dirty index stays consistent.
type Page struct {
	Key   Key
	Data  []byte
	Dirty bool
}

const nilSlot int32 = -1

type slot struct {
	page       *Page
	prev, next int32
}

// Table maps keys to pages and orders them for FIFO eviction.
type Table struct {
	capacity  int
	blockSize int64

	slots []slot
	free  []int32
	index map[Key]int32
	head  int32 // oldest
	tail  int32 // newest

	dirty map[ResourceID]*roaring64.Bitmap
}

// New creates a table holding at most capacity pages of blockSize bytes.
func New(capacity int, blockSize int64) *Table {
	return &Table{
		capacity:  capacity,
		blockSize: blockSize,
		slots:     make([]slot, 0, capacity),
		index:     make(map[Key]int32, capacity),
		head:      nilSlot,
		tail:      nilSlot,
		dirty:     make(map[ResourceID]*roaring64.Bitmap),
	}
}

// Len returns the number of resident pages.
func (t *Table) Len() int { return len(t.index) }

// Cap returns the maximum number of resident pages.
func (t *Table) Cap() int { return t.capacity }

// Full reports whether an insert would exceed the capacity.
func (t *Table) Full() bool { return len(t.index) >= t.capacity }

// BlockSize returns the page size in bytes.
func (t *Table) BlockSize() int64 { return t.blockSize }

// Get returns the resident page for k. It does not affect eviction order.
func (t *Table) Get(k Key) (*Page, bool) {
	i, ok := t.index[k]
	if !ok {
		return nil, false
	}
	return t.slots[i].page, true
}

// Insert appends p to the tail of the eviction queue and indexes it.
func (t *Table) Insert(p *Page) error {
	if p.Key.Offset < 0 || p.Key.Offset%t.blockSize != 0 || int64(len(p.Data)) != t.blockSize {
		return ErrMisaligned
	}
	if _, ok := t.index[p.Key]; ok {
		return ErrExists
	}
	if t.Full() {
		return ErrFull
	}

	var i int32
	if n := len(t.free); n > 0 {
		i = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot{})
		i = int32(len(t.slots) - 1)
	}

	t.slots[i] = slot{page: p, prev: t.tail, next: nilSlot}
	if t.tail != nilSlot {
		t.slots[t.tail].next = i
	} else {
		t.head = i
	}
	t.tail = i
	t.index[p.Key] = i

	if p.Dirty {
		t.dirtySet(p.Key.Resource).Add(t.blockNo(p.Key.Offset))
	}
	return nil
}

// Oldest returns the page at the head of the eviction queue.
func (t *Table) Oldest() (*Page, bool) {
	if t.head == nilSlot {
		return nil, false
	}
	return t.slots[t.head].page, true
}

// Remove unlinks the page for k from the queue, the index and the dirty set.
func (t *Table) Remove(k Key) (*Page, bool) {
	i, ok := t.index[k]
	if !ok {
		return nil, false
	}
	s := t.slots[i]

	if s.prev != nilSlot {
		t.slots[s.prev].next = s.next
	} else {
		t.head = s.next
	}
	if s.next != nilSlot {
		t.slots[s.next].prev = s.prev
	} else {
		t.tail = s.prev
	}

	delete(t.index, k)
	t.slots[i] = slot{prev: nilSlot, next: nilSlot}
	t.free = append(t.free, i)

	if s.page.Dirty {
		t.clearDirtyBit(k)
	}
	return s.page, true
}

// RemoveResource removes every page owned by r and returns them in FIFO order.
func (t *Table) RemoveResource(r ResourceID) []*Page {
	var removed []*Page
	for i := t.head; i != nilSlot; {
		next := t.slots[i].next
		if p := t.slots[i].page; p.Key.Resource == r {
			t.Remove(p.Key)
			removed = append(removed, p)
		}
		i = next
	}
	delete(t.dirty, r)
	return removed
}

// MarkDirty flags p as modified since it was loaded.
func (t *Table) MarkDirty(p *Page) {
	if p.Dirty {
		return
	}
	p.Dirty = true
	if _, ok := t.index[p.Key]; ok {
		t.dirtySet(p.Key.Resource).Add(t.blockNo(p.Key.Offset))
	}
}

// MarkClean clears the dirty flag after a successful write-back.
func (t *Table) MarkClean(p *Page) {
	if !p.Dirty {
		return
	}
	p.Dirty = false
	t.clearDirtyBit(p.Key)
}

// DirtyPages returns the dirty pages of r in ascending offset order.
func (t *Table) DirtyPages(r ResourceID) []*Page {
	bm, ok := t.dirty[r]
	if !ok {
		return nil
	}

	pages := make([]*Page, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		off := int64(it.Next()) * t.blockSize
		if p, ok := t.Get(Key{Resource: r, Offset: off}); ok {
			pages = append(pages, p)
		}
	}
	return pages
}

// DirtyCount returns the number of dirty pages across all resources.
func (t *Table) DirtyCount() int {
	var n uint64
	for _, bm := range t.dirty {
		n += bm.GetCardinality()
	}
	return int(n)
}

// Keys returns the resident keys in eviction order, oldest first.
func (t *Table) Keys() []Key {
	keys := make([]Key, 0, len(t.index))
	for i := t.head; i != nilSlot; i = t.slots[i].next {
		keys = append(keys, t.slots[i].page.Key)
	}
	return keys
}

func (t *Table) blockNo(off int64) uint64 {
	return uint64(off / t.blockSize)
}

func (t *Table) dirtySet(r ResourceID) *roaring64.Bitmap {
	bm, ok := t.dirty[r]
	if !ok {
		bm = roaring64.New()
		t.dirty[r] = bm
	}
	return bm
}

func (t *Table) clearDirtyBit(k Key) {
	bm, ok := t.dirty[k.Resource]
	if !ok {
		return
	}
	bm.Remove(t.blockNo(k.Offset))
	if bm.IsEmpty() {
		delete(t.dirty, k.Resource)
	}
}
