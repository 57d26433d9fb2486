// Package prefs holds the small set of durable process-wide flags shared by
// the settings surface and the background reminder.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"dicodingevent/internal/config"
	appLog "dicodingevent/internal/log"
)

const (
	KeyDarkMode      = "dark_mode"
	KeyDailyReminder = "daily_reminder"
)

// Store is the preference port handed to consumers.
type Store interface {
	Bool(key string, def bool) bool
	SetBool(key string, v bool) error
}

// FileStore keeps flags in a YAML file. Every write rewrites the file
// atomically.
type FileStore struct {
	path string

	mu     sync.RWMutex
	values map[string]bool
}

// OpenFile loads the preferences at path. A missing file is an empty store;
// it is created on the first write.
func OpenFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("prefs: path is empty")
	}
	s := &FileStore{path: path, values: map[string]bool{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		appLog.Debug("prefs: no preference file yet", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("prefs: parse %s: %w", path, err)
	}
	if s.values == nil {
		s.values = map[string]bool{}
	}
	return s, nil
}

func (s *FileStore) Bool(key string, def bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return def
	}
	return v
}

// SetBool stores v under key and persists the file. On a write failure the
// in-memory value is rolled back.
func (s *FileStore) SetBool(key string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.values[key]
	s.values[key] = v

	data, err := yaml.Marshal(s.values)
	if err == nil {
		err = config.WriteFileAtomic(s.path, data, 0o600)
	}
	if err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return fmt.Errorf("prefs: save %s: %w", key, err)
	}

	appLog.Debug("prefs: saved", "key", key, "value", v)
	return nil
}

// Memory is a Store that lives only in process memory.
type Memory struct {
	mu     sync.RWMutex
	values map[string]bool
}

func NewMemory() *Memory {
	return &Memory{values: map[string]bool{}}
}

func (m *Memory) Bool(key string, def bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

func (m *Memory) SetBool(key string, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = v
	return nil
}
