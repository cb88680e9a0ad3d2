package pattern

import (
	"time"

	"github.com/kingrea/linaje/internal/genealogy"
)

// PatternType identifies the rule that produced a pattern.
type PatternType string

const (
	TypeDivorceCycle PatternType = "divorce-cycle"
	TypeAbsence      PatternType = "absence-pattern"
	TypeAddiction    PatternType = "addiction-pattern"
	TypeSecret       PatternType = "secret-pattern"
	TypeTrauma       PatternType = "trauma-pattern"
	TypeEarlyLoss    PatternType = "early-loss-pattern"
)

// Valid reports whether t is a known pattern type.
func (t PatternType) Valid() bool {
	switch t {
	case TypeDivorceCycle, TypeAbsence, TypeAddiction, TypeSecret, TypeTrauma, TypeEarlyLoss:
		return true
	}
	return false
}

// EvidenceType tells what kind of record an evidence item points at.
type EvidenceType string

const (
	EvidenceEvent        EvidenceType = "event"
	EvidenceLineageEvent EvidenceType = "lineage-event"
	EvidenceRelationship EvidenceType = "relationship"
)

// Evidence links a pattern back to the record that supports it. The IDs are
// references only; the pattern owns none of them.
type Evidence struct {
	Type           EvidenceType             `json:"type"`
	MemberID       genealogy.MemberID       `json:"member_id,omitempty"`
	EventID        genealogy.EventID        `json:"event_id,omitempty"`
	RelationshipID genealogy.RelationshipID `json:"relationship_id,omitempty"`
	Generation     int                      `json:"generation"`
	Lateral        bool                     `json:"lateral,omitempty"`
	Lineage        genealogy.Lineage        `json:"lineage,omitempty"`
	Severity       int                      `json:"severity"`
	Weight         float64                  `json:"weight"`
	Note           string                   `json:"note,omitempty"`
}

// Pattern is one detected rule hit. Detection overwrites patterns by Name;
// only IsResolved is ever changed afterwards.
type Pattern struct {
	Name            string            `json:"name"`
	Type            PatternType       `json:"type"`
	Description     string            `json:"description"`
	Evidence        []Evidence        `json:"evidence"`
	Score           float64           `json:"score"`
	Lineage         genealogy.Lineage `json:"lineage"`
	Recommendations []string          `json:"recommendations,omitempty"`
	DetectedAt      time.Time         `json:"detected_at"`
	IsResolved      bool              `json:"is_resolved"`
}

// Clone returns a deep copy of the pattern.
func (p Pattern) Clone() Pattern {
	out := p
	out.Evidence = append([]Evidence(nil), p.Evidence...)
	out.Recommendations = append([]string(nil), p.Recommendations...)
	return out
}

// ClonePatterns deep-copies a pattern list.
func ClonePatterns(patterns []Pattern) []Pattern {
	if patterns == nil {
		return nil
	}
	out := make([]Pattern, len(patterns))
	for i, p := range patterns {
		out[i] = p.Clone()
	}
	return out
}

// CarryResolved copies IsResolved from previous onto next for every pattern
// whose name survived the re-detection.
func CarryResolved(previous, next []Pattern) []Pattern {
	resolved := map[string]bool{}
	for _, p := range previous {
		if p.IsResolved {
			resolved[p.Name] = true
		}
	}
	out := ClonePatterns(next)
	for i := range out {
		if resolved[out[i].Name] {
			out[i].IsResolved = true
		}
	}
	return out
}
