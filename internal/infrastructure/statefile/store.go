// Package statefile snapshots source health and seen fingerprints to a JSON file.
package statefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

const formatVersion = 1

type snapshot struct {
	Version      int                   `json:"version"`
	SavedAt      time.Time             `json:"saved_at"`
	Health       []domain.SourceHealth `json:"health,omitempty"`
	Fingerprints map[string]time.Time  `json:"fingerprints,omitempty"`
}

// Store keeps both sections in one file and rewrites it atomically.
type Store struct {
	path string
	mu   sync.Mutex
}

var (
	_ ports.HealthStore      = (*Store)(nil)
	_ ports.FingerprintStore = (*Store)(nil)
)

// New returns a store for path; the file is created on first save.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot location.
func (s *Store) Path() string {
	return s.path
}

// LoadHealth returns nil when no snapshot exists yet.
func (s *Store) LoadHealth(_ context.Context) ([]domain.SourceHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.read()
	if err != nil {
		return nil, err
	}
	return snap.Health, nil
}

// SaveHealth replaces the health section.
func (s *Store) SaveHealth(_ context.Context, entries []domain.SourceHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.read()
	if err != nil {
		return err
	}
	snap.Health = entries
	return s.write(snap)
}

// LoadFingerprints returns nil when no snapshot exists yet.
func (s *Store) LoadFingerprints(_ context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.read()
	if err != nil {
		return nil, err
	}
	return snap.Fingerprints, nil
}

// SaveFingerprints replaces the fingerprint section.
func (s *Store) SaveFingerprints(_ context.Context, entries map[string]time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.read()
	if err != nil {
		return err
	}
	snap.Fingerprints = entries
	return s.write(snap)
}

func (s *Store) read() (snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot{Version: formatVersion}, nil
	}
	if err != nil {
		return snapshot{}, fmt.Errorf("read state file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot{}, fmt.Errorf("decode state file %s: %w", s.path, err)
	}
	if snap.Version > formatVersion {
		return snapshot{}, fmt.Errorf("state file %s has unsupported version %d", s.path, snap.Version)
	}
	return snap, nil
}

func (s *Store) write(snap snapshot) error {
	snap.Version = formatVersion
	snap.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
