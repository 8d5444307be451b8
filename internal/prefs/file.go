package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps preferences in a YAML file, one map of keys per user.
// It is meant for a single process such as the CLI.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on the first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) load() (map[string]map[string]string, error) {
	values := make(map[string]map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse preferences %s: %w", s.path, err)
	}
	return values, nil
}

// Get returns the value stored under key, or ErrNotSet.
func (s *FileStore) Get(_ context.Context, userID, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := values[userID][key]
	if !ok {
		return "", ErrNotSet
	}
	return v, nil
}

// Set stores value under key and rewrites the file.
func (s *FileStore) Set(_ context.Context, userID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	if values[userID] == nil {
		values[userID] = make(map[string]string)
	}
	values[userID][key] = value

	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create preferences dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}
