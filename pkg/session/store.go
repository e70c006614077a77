package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Store is a key-value abstraction for durable client-side state
// (session token, usage snapshot, saved posts). Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool)

	// Set stores a value under key, replacing any previous value.
	Set(key, value string) error

	// Clear removes key from the store. Clearing an absent key is not an error.
	Clear(key string) error
}

// MemoryStore implements Store using an in-memory map.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get implements Store
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok
}

// Set implements Store
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

// Clear implements Store
func (s *MemoryStore) Clear(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// FileStore implements Store as a JSON file on disk, the closest
// equivalent of the browser's local storage for a CLI installation.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// NewFileStore creates a store persisted at path. The file is created on
// first write; a missing file means an empty store.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &s.values); err != nil {
		// Corrupt state file: start over rather than refusing to run.
		s.values = make(map[string]string)
	}

	return s, nil
}

// Get implements Store
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	return v, ok
}

// Set implements Store
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.save()
}

// Clear implements Store
func (s *FileStore) Clear(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return s.save()
}

func (s *FileStore) save() error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return os.WriteFile(s.path, data, 0o600)
}
