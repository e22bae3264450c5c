package objstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/hupe1980/pagecache/device"
)

// ErrNotFound is returned by ObjectStore.Get for missing keys.
var ErrNotFound = device.ErrNotFound

// ObjectStore is a flat namespace of immutable objects.
type ObjectStore interface {
	// Get returns the object content, or an error matching ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put creates or replaces an object.
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

func joinKey(prefix string, parts ...string) string {
	elems := append([]string{prefix}, parts...)
	return strings.TrimPrefix(path.Join(elems...), "/")
}

// MemoryStore is an in-memory ObjectStore for testing.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[key] = copied
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

// Keys returns the stored keys with the given prefix.
func (s *MemoryStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}
