package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/kingrea/linaje/internal/genealogy"
	"github.com/kingrea/linaje/internal/pattern"
	"github.com/kingrea/linaje/internal/ritual"
)

const (
	graphFile    = "graph.json"
	patternsFile = "patterns.json"
	sessionsFile = "sessions.json"
	lockFile     = "store.lock"
)

// FileStore keeps one JSON document per collection. Writes go through a
// temporary file and a rename so readers never see a partial document, and
// an advisory file lock serializes separate linaje processes.
type FileStore struct {
	dir  string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileStore prepares dir for use.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	return &FileStore{dir: dir, lock: flock.New(filepath.Join(dir, lockFile))}, nil
}

// Dir returns the directory holding the documents.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) LoadGraph() (*genealogy.Snapshot, error) {
	var snap genealogy.Snapshot
	found, err := s.read(graphFile, &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

func (s *FileStore) SaveGraph(snap genealogy.Snapshot) error {
	return s.write(graphFile, snap)
}

func (s *FileStore) LoadPatterns() ([]pattern.Pattern, error) {
	var out []pattern.Pattern
	if _, err := s.read(patternsFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FileStore) SavePatterns(p []pattern.Pattern) error {
	if p == nil {
		p = []pattern.Pattern{}
	}
	return s.write(patternsFile, p)
}

func (s *FileStore) LoadSessions() ([]ritual.Session, error) {
	var out []ritual.Session
	if _, err := s.read(sessionsFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FileStore) SaveSessions(sessions []ritual.Session) error {
	if sessions == nil {
		sessions = []ritual.Session{}
	}
	return s.write(sessionsFile, sessions)
}

// Close releases the lock file handle.
func (s *FileStore) Close() error {
	return s.lock.Close()
}

func (s *FileStore) read(name string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.RLock(); err != nil {
		return false, fmt.Errorf("store: lock %s: %w", s.dir, err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", name, err)
	}
	return true, nil
}

func (s *FileStore) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", name, err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("store: lock %s: %w", s.dir, err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("store: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("store: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("store: close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		cleanup()
		return fmt.Errorf("store: replace %s: %w", name, err)
	}
	return nil
}
