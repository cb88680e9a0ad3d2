package pattern

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/kingrea/linaje/internal/genealogy"
)

//go:embed catalog.toml
var defaultCatalog []byte

const (
	// DefaultSaturation is the summed weight that maps to a score of 100.
	DefaultSaturation = 3.0
	// DefaultMinEvidence is the fewest evidence items a rule needs to fire.
	DefaultMinEvidence = 1
)

// Rule describes what evidence counts toward one pattern type.
type Rule struct {
	Type              PatternType                  `toml:"type"`
	Name              string                       `toml:"name"`
	Description       string                       `toml:"description"`
	EventKinds        []genealogy.EventKind        `toml:"event_kinds"`
	RelationshipTypes []genealogy.RelationshipType `toml:"relationship_types"`
	IncludeSecrets    bool                         `toml:"include_secrets"`
	IncludeTraumatic  bool                         `toml:"include_traumatic"`
	Saturation        float64                      `toml:"saturation"`
	MinEvidence       int                          `toml:"min_evidence"`
	Recommendations   []string                     `toml:"recommendations"`
}

func (r Rule) matchesEvent(e genealogy.FamilyEvent) bool {
	if r.IncludeSecrets && e.IsSecret {
		return true
	}
	if r.IncludeTraumatic && e.Kind.IsTraumatic() {
		return true
	}
	for _, kind := range r.EventKinds {
		if kind == e.Kind {
			return true
		}
	}
	return false
}

func (r Rule) matchesRelationship(t genealogy.RelationshipType) bool {
	for _, kind := range r.RelationshipTypes {
		if kind == t {
			return true
		}
	}
	return false
}

// Catalog is the ordered rule set. Rules run in file order.
type Catalog struct {
	Saturation  float64 `toml:"saturation"`
	MinEvidence int     `toml:"min_evidence"`
	Rules       []Rule  `toml:"rule"`
}

// DefaultCatalog parses the embedded rule set.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// MustDefaultCatalog is DefaultCatalog for callers that cannot recover from a
// broken embedded file.
func MustDefaultCatalog() Catalog {
	c, err := DefaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog reads a catalog override from disk.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("pattern: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes TOML and fills per-rule defaults from the catalog
// header.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if _, err := toml.Decode(string(data), &c); err != nil {
		return Catalog{}, fmt.Errorf("pattern: parse catalog: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c *Catalog) applyDefaults() {
	if c.Saturation <= 0 {
		c.Saturation = DefaultSaturation
	}
	if c.MinEvidence <= 0 {
		c.MinEvidence = DefaultMinEvidence
	}
	for i := range c.Rules {
		rule := &c.Rules[i]
		rule.Name = strings.TrimSpace(rule.Name)
		if rule.Name == "" {
			rule.Name = string(rule.Type)
		}
		if rule.Saturation <= 0 {
			rule.Saturation = c.Saturation
		}
		if rule.MinEvidence <= 0 {
			rule.MinEvidence = c.MinEvidence
		}
	}
}

// Validate rejects unknown tags and duplicate rule names.
func (c Catalog) Validate() error {
	if len(c.Rules) == 0 {
		return fmt.Errorf("pattern: catalog has no rules")
	}
	seen := map[string]struct{}{}
	for _, rule := range c.Rules {
		if !rule.Type.Valid() {
			return fmt.Errorf("pattern: rule %q: unknown type %q", rule.Name, rule.Type)
		}
		if _, dup := seen[rule.Name]; dup {
			return fmt.Errorf("pattern: duplicate rule name %q", rule.Name)
		}
		seen[rule.Name] = struct{}{}
		if len(rule.EventKinds) == 0 && len(rule.RelationshipTypes) == 0 && !rule.IncludeSecrets && !rule.IncludeTraumatic {
			return fmt.Errorf("pattern: rule %q matches nothing", rule.Name)
		}
		for _, kind := range rule.EventKinds {
			if !kind.Valid() {
				return fmt.Errorf("pattern: rule %q: unknown event kind %q", rule.Name, kind)
			}
		}
		for _, kind := range rule.RelationshipTypes {
			if !kind.Valid() {
				return fmt.Errorf("pattern: rule %q: unknown relationship type %q", rule.Name, kind)
			}
		}
	}
	return nil
}

// Rule returns the rule for a pattern type.
func (c Catalog) Rule(t PatternType) (Rule, bool) {
	for _, rule := range c.Rules {
		if rule.Type == t {
			return rule, true
		}
	}
	return Rule{}, false
}
