package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps files in process memory and never evicts them. It backs
// tests; production runs without a bucket use no remote store at all.
type MemoryStore struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		dirs:  make(map[string]bool),
		files: make(map[string][]byte),
	}
}

func memKey(dir, name string) string { return dir + "/" + name }

// DirectoryExists implements Store.
func (m *MemoryStore) DirectoryExists(_ context.Context, dir string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[dir], nil
}

// CreateDirectory implements Store.
func (m *MemoryStore) CreateDirectory(_ context.Context, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[dir] = true
	return nil
}

// AppendTextFile implements Store.
func (m *MemoryStore) AppendTextFile(_ context.Context, dir, name, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[dir] = true
	k := memKey(dir, name)
	m.files[k] = append(m.files[k], text...)
	return nil
}

// UploadFile implements Store.
func (m *MemoryStore) UploadFile(_ context.Context, dir, name string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[dir] = true
	m.files[memKey(dir, name)] = append([]byte(nil), data...)
	return nil
}

// ReadFile implements Store.
func (m *MemoryStore) ReadFile(_ context.Context, dir, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[memKey(dir, name)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Files lists the file names stored under dir, sorted.
func (m *MemoryStore) Files(dir string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := dir + "/"
	var names []string
	for k := range m.files {
		if name, ok := strings.CutPrefix(k, prefix); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
