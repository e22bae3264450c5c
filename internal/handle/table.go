package handle

import (
	"path/filepath"
	"sort"

	"github.com/hupe1980/pagecache/device"
	"github.com/hupe1980/pagecache/internal/pagetable"
)

// ID identifies an open handle. Zero is never issued.
type ID uint64

// Resource is an open device file shared by every handle on the same path.
type Resource struct {
	ID   pagetable.ResourceID
	Path string
	File device.File
	// Size is the logical size: the device size at open, grown by writes.
	Size int64
	// Unsynced is set once a block has been written back since the last flush.
	Unsynced bool

	refs int
}

// Refs returns the number of handles attached to the resource.
func (r *Resource) Refs() int { return r.refs }

// Handle is a cursor over a resource.
type Handle struct {
	ID     ID
	Res    *Resource
	Cursor int64
}

// Table holds open handles and resources.
// Not safe for concurrent use; callers serialize access.
type Table struct {
	handles   map[ID]*Handle
	resources map[string]*Resource
	byID      map[pagetable.ResourceID]*Resource

	nextHandle   ID
	nextResource pagetable.ResourceID
}

// New creates an empty handle table.
func New() *Table {
	return &Table{
		handles:   make(map[ID]*Handle),
		resources: make(map[string]*Resource),
		byID:      make(map[pagetable.ResourceID]*Resource),
	}
}

// Canonical returns the identity used for path.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// Resource returns the open resource for path, if any.
func (t *Table) Resource(path string) (*Resource, bool) {
	r, ok := t.resources[Canonical(path)]
	return r, ok
}

// ResourceByID returns the open resource with the given id.
func (t *Table) ResourceByID(id pagetable.ResourceID) (*Resource, bool) {
	r, ok := t.byID[id]
	return r, ok
}

// Register adds a newly opened resource and attaches a first handle to it.
func (t *Table) Register(path string, f device.File, size int64) *Handle {
	t.nextResource++
	r := &Resource{
		ID:   t.nextResource,
		Path: Canonical(path),
		File: f,
		Size: size,
	}
	t.resources[r.Path] = r
	t.byID[r.ID] = r
	return t.Attach(r)
}

// Attach creates a new handle on an already registered resource.
func (t *Table) Attach(r *Resource) *Handle {
	t.nextHandle++
	h := &Handle{ID: t.nextHandle, Res: r}
	t.handles[h.ID] = h
	r.refs++
	return h
}

// Get returns the handle with the given id.
func (t *Table) Get(id ID) (*Handle, bool) {
	h, ok := t.handles[id]
	return h, ok
}

// Remove deletes a handle. last reports whether it was the final handle on its
// resource, in which case the resource is unregistered as well.
func (t *Table) Remove(id ID) (res *Resource, last bool) {
	h, ok := t.handles[id]
	if !ok {
		return nil, false
	}
	delete(t.handles, id)

	res = h.Res
	res.refs--
	if res.refs > 0 {
		return res, false
	}
	delete(t.resources, res.Path)
	delete(t.byID, res.ID)
	return res, true
}

// Handles returns the ids of all open handles in ascending order.
func (t *Table) Handles() []ID {
	ids := make([]ID, 0, len(t.handles))
	for id := range t.handles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Resources returns all open resources ordered by id.
func (t *Table) Resources() []*Resource {
	out := make([]*Resource, 0, len(t.byID))
	for _, r := range t.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of open handles.
func (t *Table) Len() int { return len(t.handles) }
