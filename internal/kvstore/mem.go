package kvstore

import (
	"sync"

	"todo/internal/service"
)

// MemStore is an in-memory Store. It does not implement Batcher, so callers
// exercise their non-atomic write path against it.
//
// The exported error fields inject failures for testing.
type MemStore struct {
	mu     sync.Mutex
	values map[string]string
	writes int

	GetErr    error
	SetErr    error
	RemoveErr error

	// FailSetKey restricts SetErr to a single key when non-empty.
	FailSetKey string
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string]string)}
}

// Get implements Store.
func (s *MemStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return "", false, service.Storage("read "+key, s.GetErr)
	}
	v, ok := s.values[key]
	return v, ok, nil
}

// Set implements Store.
func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetErr != nil && (s.FailSetKey == "" || s.FailSetKey == key) {
		return service.Storage("write "+key, s.SetErr)
	}
	s.values[key] = value
	s.writes++
	return nil
}

// Remove implements Store.
func (s *MemStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RemoveErr != nil {
		return service.Storage("remove "+key, s.RemoveErr)
	}
	delete(s.values, key)
	s.writes++
	return nil
}

// Writes returns the number of successful Set and Remove calls.
func (s *MemStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Len returns the number of stored keys.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
