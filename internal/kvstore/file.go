package kvstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"todo/internal/service"
)

// FileStore keeps all keys in a single YAML document.
// Every write rewrites the document through a temp file and a rename, so a
// crash never leaves a half-written session behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the file at path.
// The file and its directory are created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get implements Store.
func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", false, service.Storage("read "+key, err)
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set implements Store.
func (s *FileStore) Set(key, value string) error {
	return s.SetAll(map[string]string{key: value})
}

// Remove implements Store.
func (s *FileStore) Remove(key string) error {
	return s.RemoveAll(key)
}

// SetAll implements Batcher.
func (s *FileStore) SetAll(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return service.Storage("write session", err)
	}
	for k, v := range values {
		current[k] = v
	}
	if err := s.save(current); err != nil {
		return service.Storage("write session", err)
	}
	return nil
}

// RemoveAll implements Batcher.
func (s *FileStore) RemoveAll(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return service.Storage("clear session", err)
	}
	changed := false
	for _, k := range keys {
		if _, ok := current[k]; ok {
			delete(current, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if len(current) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return service.Storage("clear session", err)
		}
		return nil
	}
	if err := s.save(current); err != nil {
		return service.Storage("clear session", err)
	}
	return nil
}

// load reads the document. A missing file is an empty store.
func (s *FileStore) load() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(s.path), err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	return values, nil
}

// save writes the document with mode 0600 via temp file + rename.
func (s *FileStore) save(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}
