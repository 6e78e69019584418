package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bt-bridge/gemini-live/shared"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

const (
	EnvKeyAPIKey = "GEMINI_API_KEY"
	EnvKeyModel  = "GEMINI_MODEL"
)

var ErrUnknownKey = errors.New("unknown settings key")

// Store is the key-value settings backend the agent reads and writes.
type Store interface {
	Load() (Settings, error)
	Save(s Settings) error
	// Update changes the stored values in place. Environment overrides are not applied to s.
	Update(fn func(s *Settings) error) error
}

// FileStore keeps settings in a YAML file. Environment variables override the API key and
// model on Load but are never written back.
type FileStore struct {
	logger shared.LoggerAdapter
	path   string

	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

func NewFileStore(logger shared.LoggerAdapter, path string) (*FileStore, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if path == "" {
		return nil, &shared.ConfigurationError{Field: "settingsPath", Err: shared.ErrNoConfig}
	}
	return &FileStore{logger: logger, path: path}, nil
}

func (f *FileStore) Path() string { return f.path }

// Load reads the file, writing defaults first when it does not exist.
func (f *FileStore) Load() (Settings, error) {
	s, err := f.loadFile()
	if err != nil {
		return Settings{}, err
	}

	apiKey, err := shared.Getenv(shared.GetenvString, EnvKeyAPIKey, false, "")
	if err != nil {
		return Settings{}, err
	}
	if apiKey != "" {
		s.APIKey = apiKey
	}
	model, err := shared.Getenv(shared.GetenvString, EnvKeyModel, false, "")
	if err != nil {
		return Settings{}, err
	}
	if model != "" {
		s.Model = model
	}
	return s, nil
}

// LoadFile reads the file without environment overrides.
func (f *FileStore) LoadFile() (Settings, error) {
	return f.loadFile()
}

func (f *FileStore) loadFile() (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked()
}

func (f *FileStore) loadLocked() (Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		f.logger.Info("settings file not found, writing defaults", zap.String("path", f.path))
		if err := f.writeLocked(s); err != nil {
			return Settings{}, err
		}
		return s, nil
	case err != nil:
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing settings %s: %w", f.path, err)
	}
	return s, nil
}

func (f *FileStore) Save(s Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeLocked(s)
}

// Update is a read-modify-write of the file under one lock.
func (f *FileStore) Update(fn func(s *Settings) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.loadLocked()
	if err != nil {
		return err
	}
	if err := fn(&s); err != nil {
		return err
	}
	return f.writeLocked(s)
}

func (f *FileStore) writeLocked(s Settings) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing settings: %w", err)
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a Store without persistence.
type MemoryStore struct {
	mu sync.Mutex
	s  Settings
}

func NewMemoryStore(s Settings) *MemoryStore {
	return &MemoryStore{s: s}
}

func (m *MemoryStore) Load() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *MemoryStore) Save(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func (m *MemoryStore) Update(fn func(s *Settings) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.s
	if err := fn(&next); err != nil {
		return err
	}
	m.s = next
	return nil
}
