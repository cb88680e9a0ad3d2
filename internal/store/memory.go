package store

import (
	"sync"

	"github.com/kingrea/linaje/internal/genealogy"
	"github.com/kingrea/linaje/internal/pattern"
	"github.com/kingrea/linaje/internal/ritual"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	graph    *genealogy.Snapshot
	patterns []pattern.Pattern
	sessions []ritual.Session
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) LoadGraph() (*genealogy.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.graph == nil {
		return nil, nil
	}
	snap := m.graph.Clone()
	return &snap, nil
}

func (m *MemoryStore) SaveGraph(s genealogy.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := s.Clone()
	m.graph = &snap
	return nil
}

func (m *MemoryStore) LoadPatterns() ([]pattern.Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pattern.ClonePatterns(m.patterns), nil
}

func (m *MemoryStore) SavePatterns(p []pattern.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = pattern.ClonePatterns(p)
	return nil
}

func (m *MemoryStore) LoadSessions() ([]ritual.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ritual.CloneSessions(m.sessions), nil
}

func (m *MemoryStore) SaveSessions(s []ritual.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = ritual.CloneSessions(s)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
