package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// FileStore keeps every unit's record in one YAML file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) read() (map[int]record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[int]record{}, nil
	}
	if err != nil {
		return nil, err
	}
	records := map[int]record{}
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return records, nil
}

// Load reads the unit's record.
func (s *FileStore) Load(ctx context.Context, unit int) (plunger.Calibration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		return plunger.Calibration{}, false, fmt.Errorf("load calibration: %w", err)
	}
	r, ok := records[unit]
	if !ok {
		return plunger.Calibration{}, false, nil
	}
	return r.calibration(), true, nil
}

// Save rewrites the file with the unit's record replaced. The write goes
// through a temporary file so a crash never leaves a truncated file.
func (s *FileStore) Save(ctx context.Context, unit int, cal plunger.Calibration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	records[unit] = toRecord(cal)

	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
