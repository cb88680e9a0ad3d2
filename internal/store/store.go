// Package store persists the family graph, detected patterns and ritual
// sessions. Three backends share one contract: JSON files guarded by a file
// lock, a single SQLite database, and an in-memory store for tests.
package store

import (
	"fmt"
	"io"

	"github.com/kingrea/linaje/internal/config"
	"github.com/kingrea/linaje/internal/genealogy"
	"github.com/kingrea/linaje/internal/pattern"
	"github.com/kingrea/linaje/internal/ritual"
)

// Store is the full persistence contract. Loads of collections that were
// never saved return nil without error.
type Store interface {
	LoadGraph() (*genealogy.Snapshot, error)
	SaveGraph(genealogy.Snapshot) error
	LoadPatterns() ([]pattern.Pattern, error)
	SavePatterns([]pattern.Pattern) error
	ritual.SessionStore
	io.Closer
}

// Open builds the backend selected in the project config.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Project.Storage.Backend {
	case config.BackendJSON, "":
		return NewFileStore(cfg.DataDir())
	case config.BackendSQLite:
		return OpenSQLite(cfg.DataDir())
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Project.Storage.Backend)
	}
}
