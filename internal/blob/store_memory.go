package blob

import (
	"context"
	"fmt"
	"sync"

	"campuscard/pkg/platform/sentinel"
)

// MemoryStore keeps objects in a map for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailPuts makes the next n Put calls fail transiently; tests use it to
	// exercise the retry path.
	failPuts int
}

// NewMemory constructs an empty in-memory blob store.
func NewMemory() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// FailNextPuts arms transient failures for the next n Put calls.
func (s *MemoryStore) FailNextPuts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPuts = n
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPuts > 0 {
		s.failPuts--
		return "", Transient(fmt.Errorf("injected put failure"))
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
	return key, nil
}

func (s *MemoryStore) URL(_ context.Context, ref string) (string, error) {
	// Memory objects have no addressable URL; callers fall back to Fetch.
	return "", fmt.Errorf("memory store has no URLs: %w", sentinel.ErrUnavailable)
}

func (s *MemoryStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[ref]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", ref, sentinel.ErrNotFound)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemoryStore) Exists(_ context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[ref]
	return ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
	return nil
}

// Len reports the number of stored objects. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
