package family

import (
	"github.com/kingrea/linaje/internal/genealogy"
	"github.com/kingrea/linaje/internal/pattern"
)

// GraphStore persists the family graph. LoadGraph returns nil when nothing
// has been saved yet.
type GraphStore interface {
	LoadGraph() (*genealogy.Snapshot, error)
	SaveGraph(genealogy.Snapshot) error
}

// PatternStore persists the latest detected patterns.
type PatternStore interface {
	LoadPatterns() ([]pattern.Pattern, error)
	SavePatterns([]pattern.Pattern) error
}
