package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Fixed keys under which tracker state survives page navigations.
const (
	KeySessionID  = "app_page_session"
	KeyRecordID   = "app_page_record_id"
	KeyHintClicks = "app_page_hint_clicks"
	KeyStepCount  = "app_page_step_count"
	KeyLastPath   = "app_page_last_path"

	// Newline-joined list of every path already counted as a step.
	KeyTrackedPaths = "app_page_tracked_paths"
)

// Storage is the small key-value store the tracker persists its state
// through between page loads. Implementations must be safe for
// concurrent use.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// MemoryStorage is a map-backed Storage, mainly for tests and
// short-lived embedders that do not need persistence.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// FileStorage persists tracker state as a small JSON file, giving the
// same survive-a-restart behavior browser local storage gives the web
// client. Every write rewrites the whole file; the state is five short
// strings, so that is fine.
type FileStorage struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

func NewFileStorage(path string) (*FileStorage, error) {
	s := &FileStorage{
		path:   path,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read tracker state file %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.values); err != nil {
			return nil, fmt.Errorf("failed to parse tracker state file %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *FileStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *FileStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.flushLocked()
}

func (s *FileStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return s.flushLocked()
}

func (s *FileStorage) flushLocked() error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("failed to encode tracker state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write tracker state file %s: %w", s.path, err)
	}
	return nil
}
