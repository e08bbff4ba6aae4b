package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store persists Settings in a YAML file. A missing file reads as Defaults.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store backed by path. The file is created on first Save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads the settings file. Fields absent from the file keep their
// default values.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Defaults()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return Settings{}, fmt.Errorf("settings: parse %s: %w", s.path, err)
	}
	if err := out.Validate(); err != nil {
		return Settings{}, fmt.Errorf("settings: %s: %w", s.path, err)
	}
	return out, nil
}

// Save validates and writes settings atomically (temp file + rename).
func (s *Store) Save(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yml")
	if err != nil {
		return fmt.Errorf("settings: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}

// Reset writes Defaults and returns them.
func (s *Store) Reset() (Settings, error) {
	d := Defaults()
	if err := s.Save(d); err != nil {
		return Settings{}, err
	}
	return d, nil
}
