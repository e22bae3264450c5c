package objstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrConcurrentModification is returned when an extent changed since it was loaded.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// Extent is the committed logical size of a resource.
type Extent struct {
	Size int64
	// Version increases with every commit. Zero means never committed.
	Version uint64
}

// ExtentStore persists resource extents.
type ExtentStore interface {
	// Load returns the current extent, or an error matching ErrNotFound.
	Load(ctx context.Context, name string) (Extent, error)
	// Commit replaces prev with a new extent of the given size. It fails with
	// ErrConcurrentModification if the stored extent is no longer prev.
	Commit(ctx context.Context, name string, prev Extent, size int64) (Extent, error)
}

// ObjectExtents stores each extent as a small object next to the blocks.
//
// The version check is a read before the write; object stores without
// conditional puts cannot make it atomic. Use DynamoExtents when several
// writers share a resource.
type ObjectExtents struct {
	store  ObjectStore
	prefix string
}

// NewObjectExtents creates an extent store on top of store.
func NewObjectExtents(store ObjectStore, prefix string) *ObjectExtents {
	return &ObjectExtents{store: store, prefix: prefix}
}

func (e *ObjectExtents) key(name string) string {
	return joinKey(e.prefix, name, "EXTENT")
}

// Format: [Size int64][Version uint64]
const extentSize = 16

func (e *ObjectExtents) Load(ctx context.Context, name string) (Extent, error) {
	data, err := e.store.Get(ctx, e.key(name))
	if err != nil {
		return Extent{}, err
	}
	if len(data) != extentSize {
		return Extent{}, fmt.Errorf("extent %s: invalid length %d", name, len(data))
	}
	return Extent{
		Size:    int64(binary.LittleEndian.Uint64(data[0:])),
		Version: binary.LittleEndian.Uint64(data[8:]),
	}, nil
}

func (e *ObjectExtents) Commit(ctx context.Context, name string, prev Extent, size int64) (Extent, error) {
	cur, err := e.Load(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		cur = Extent{}
	case err != nil:
		return Extent{}, err
	}
	if cur.Version != prev.Version {
		return Extent{}, ErrConcurrentModification
	}

	next := Extent{Size: size, Version: prev.Version + 1}
	buf := make([]byte, extentSize)
	binary.LittleEndian.PutUint64(buf[0:], uint64(next.Size))
	binary.LittleEndian.PutUint64(buf[8:], next.Version)
	if err := e.store.Put(ctx, e.key(name), buf); err != nil {
		return Extent{}, err
	}
	return next, nil
}
