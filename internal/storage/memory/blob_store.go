// Package memory stores blob content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/cbcr-finder/internal/storage"
)

// BlobStore keeps objects in a map guarded by a RWMutex.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	puts map[string]int
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data: make(map[string][]byte),
		puts: make(map[string]int),
	}
}

// Get returns a copy of the stored object.
func (s *BlobStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Put persists a copy of data at path.
func (s *BlobStore) Put(_ context.Context, path string, data []byte) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	s.puts[path]++
	return nil
}

// List returns the sorted paths stored under prefix.
func (s *BlobStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for p := range s.data {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// PutCount reports how many times path was written.
func (s *BlobStore) PutCount(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts[path]
}
