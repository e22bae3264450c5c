package device

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Device for testing and benchmarks.
// Thread-safe for concurrent reads and writes.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory creates an empty in-memory device.
func NewMemory() *Memory {
	return &Memory{
		files: make(map[string][]byte),
	}
}

// Put creates or replaces a resource with a copy of data.
func (m *Memory) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	m.files[name] = copied
}

// Bytes returns a copy of the resource contents.
func (m *Memory) Bytes(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[name]
	if !ok {
		return nil, false
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, true
}

// Open opens an existing resource.
func (m *Memory) Open(_ context.Context, name string) (File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.files[name]; !ok {
		return nil, fmt.Errorf("memory device: %s: %w", name, ErrNotFound)
	}
	return &memoryFile{m: m, name: name}, nil
}

type memoryFile struct {
	m    *Memory
	name string
}

func (f *memoryFile) ReadBlock(_ context.Context, p []byte, off int64) (int, error) {
	f.m.mu.RLock()
	defer f.m.mu.RUnlock()

	data := f.m.files[f.name]
	if off < 0 {
		return 0, ErrMisaligned
	}
	if off >= int64(len(data)) {
		return 0, nil
	}
	return copy(p, data[off:]), nil
}

func (f *memoryFile) WriteBlock(_ context.Context, p []byte, off int64) (int, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()

	if off < 0 {
		return 0, ErrMisaligned
	}
	data := f.m.files[f.name]
	if end := off + int64(len(p)); end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	n := copy(data[off:], p)
	f.m.files[f.name] = data
	return n, nil
}

func (f *memoryFile) Size(context.Context) (int64, error) {
	f.m.mu.RLock()
	defer f.m.mu.RUnlock()
	return int64(len(f.m.files[f.name])), nil
}

func (f *memoryFile) Truncate(_ context.Context, size int64) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()

	data := f.m.files[f.name]
	switch {
	case size < 0:
		return ErrMisaligned
	case size <= int64(len(data)):
		data = data[:size:size]
	default:
		grown := make([]byte, size)
		copy(grown, data)
		data = grown
	}
	f.m.files[f.name] = data
	return nil
}

func (f *memoryFile) Close() error {
	return nil
}
